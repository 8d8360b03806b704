package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/frahmantamala/orgtree/internal"
	userDatamodel "github.com/frahmantamala/orgtree/internal/core/datamodel/user"
	"github.com/frahmantamala/orgtree/internal/user"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var sortColumns = map[string]string{
	user.SortByFullName: "full_name ASC",
	user.SortByEmail:    "email ASC",
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := r.db.WithContext(ctx).Create(user.ToDataModel(u)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return internal.ErrEmailTaken
	}
	if err != nil {
		return internal.NewInternalError("failed to create user", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var rec userDatamodel.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, translateNotFound(err, "failed to get user")
	}
	return user.FromDataModel(&rec), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var rec userDatamodel.User
	err := r.db.WithContext(ctx).Where("email = ? AND deleted_at = ?", email, 0).First(&rec).Error
	if err != nil {
		return nil, translateNotFound(err, "failed to get user by email")
	}
	return user.FromDataModel(&rec), nil
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	return r.updateColumns(ctx, u.ID, map[string]interface{}{
		"full_name":  u.FullName,
		"gender":     u.Gender,
		"updated_at": u.UpdatedAt,
	})
}

func (r *UserRepository) SetPassword(ctx context.Context, id, hash string, updatedAt int64) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"password_hash": hash,
		"updated_at":    updatedAt,
	})
}

func (r *UserRepository) SetDeletedAt(ctx context.Context, id string, deletedAt, updatedAt int64) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"deleted_at": deletedAt,
		"updated_at": updatedAt,
	})
}

func (r *UserRepository) updateColumns(ctx context.Context, id string, columns map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Where("id = ?", id).Updates(columns)
	if res.Error != nil {
		return internal.NewInternalError("failed to update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return internal.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, q user.ListQuery) ([]*user.User, int64, error) {
	scoped := func() *gorm.DB {
		tx := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Where("deleted_at = ?", 0)
		if q.FullName != "" {
			tx = tx.Where(`LOWER(full_name) LIKE ? ESCAPE '\'`, "%"+internal.EscapeLike(strings.ToLower(q.FullName))+"%")
		}
		if q.DateRange.From != nil {
			tx = tx.Where("created_at >= ?", *q.DateRange.From)
		}
		if q.DateRange.To != nil {
			tx = tx.Where("created_at <= ?", *q.DateRange.To)
		}
		if q.NodeIDs != nil {
			tx = tx.Where("node_id IN ?", q.NodeIDs)
		}
		if q.Role != "" {
			tx = tx.Where("role = ?", string(q.Role))
		}
		if q.ExcludeID != "" {
			tx = tx.Where("id <> ?", q.ExcludeID)
		}
		return tx
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, internal.NewInternalError("failed to count users", err)
	}

	order, ok := sortColumns[q.SortType]
	if !ok {
		order = "created_at DESC"
	}

	var recs []userDatamodel.User
	err := scoped().Order(order).Limit(q.Size).Offset(q.Offset()).Find(&recs).Error
	if err != nil {
		return nil, 0, internal.NewInternalError("failed to list users", err)
	}

	users := make([]*user.User, 0, len(recs))
	for i := range recs {
		users = append(users, user.FromDataModel(&recs[i]))
	}
	return users, total, nil
}

func translateNotFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return internal.ErrUserNotFound
	}
	return internal.NewInternalError(message, err)
}
