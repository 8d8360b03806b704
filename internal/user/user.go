package user

import (
	"github.com/frahmantamala/orgtree/internal"
	userDatamodel "github.com/frahmantamala/orgtree/internal/core/datamodel/user"
)

type User struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	FullName     string        `json:"fullName"`
	Gender       string        `json:"gender"`
	Role         internal.Role `json:"role"`
	NodeID       string        `json:"nodeId"`
	CreatedAt    int64         `json:"createdAt"`
	UpdatedAt    int64         `json:"updatedAt"`
	DeletedAt    int64         `json:"deletedAt"`
}

// Profile is the outward-facing projection of a user. It never carries the
// password hash.
type Profile struct {
	ID        string        `json:"id"`
	Email     string        `json:"email"`
	FullName  string        `json:"fullName"`
	Gender    string        `json:"gender"`
	Role      internal.Role `json:"role"`
	NodeID    string        `json:"nodeId"`
	CreatedAt int64         `json:"createdAt"`
	UpdatedAt int64         `json:"updatedAt"`
	DeletedAt int64         `json:"deletedAt"`
}

func (u *User) Public() *Profile {
	return &Profile{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Gender:    u.Gender,
		Role:      u.Role,
		NodeID:    u.NodeID,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		DeletedAt: u.DeletedAt,
	}
}

func (u *User) Archived() bool {
	return u.DeletedAt != 0
}

func (u *User) Actor() internal.Actor {
	return internal.Actor{ID: u.ID, Role: u.Role, Email: u.Email}
}

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FullName:     u.FullName,
		Gender:       u.Gender,
		Role:         string(u.Role),
		NodeID:       u.NodeID,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		DeletedAt:    u.DeletedAt,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FullName:     u.FullName,
		Gender:       u.Gender,
		Role:         internal.Role(u.Role),
		NodeID:       u.NodeID,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		DeletedAt:    u.DeletedAt,
	}
}
