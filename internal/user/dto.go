package user

import (
	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/core/common/validation"
)

type CreateUserDTO struct {
	Email    string `json:"email"`
	Gender   string `json:"gender"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
	NodeID   string `json:"nodeId"`
}

// Validate checks the body. Only managers and employees are stored users;
// the admin is a configured credential.
func (d CreateUserDTO) Validate(genders []string) error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email().MaxLength(50)
	v.Field("gender", d.Gender).Required().OneOf(genders...)
	v.Field("password", d.Password).Required().MinLength(6).MaxLength(32)
	v.Field("fullName", d.FullName).Required().MaxLength(200)
	v.Field("role", d.Role).Required().OneOf(string(internal.RoleManager), string(internal.RoleEmployee))
	v.Field("nodeId", d.NodeID).Required().MaxLength(36)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type UpdateUserDTO struct {
	FullName *string `json:"fullName,omitempty"`
	Gender   *string `json:"gender,omitempty"`
}

func (d UpdateUserDTO) Validate(genders []string) error {
	v := validation.NewValidator()
	v.Field("fullName", d.FullName).MaxLength(100)
	v.Field("gender", d.Gender).Optional().OneOf(genders...)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

func (d UpdateUserDTO) Empty() bool {
	return d.FullName == nil && d.Gender == nil
}

type ChangePasswordDTO struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (d ChangePasswordDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("oldPassword", d.OldPassword).Required().MinLength(6).MaxLength(32)
	v.Field("newPassword", d.NewPassword).Required().MinLength(6).MaxLength(32)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

const (
	SortByCreatedAt = "createdAt"
	SortByFullName  = "fullName"
	SortByEmail     = "email"
)

// ListQuery selects live users. FullName, DateRange, Descendants, SortType
// and paging come from the caller; NodeIDs, Role and ExcludeID are scoping
// filled in by the service and never read from the request.
type ListQuery struct {
	internal.Pagination
	FullName    string
	DateRange   internal.DateRange
	Descendants bool
	SortType    string

	NodeIDs   []string
	Role      internal.Role
	ExcludeID string
}

func (q ListQuery) Normalize(maxPageSize int) ListQuery {
	q.Pagination = q.Pagination.Clamp(maxPageSize)
	switch q.SortType {
	case SortByFullName, SortByEmail:
	default:
		q.SortType = SortByCreatedAt
	}
	return q
}
