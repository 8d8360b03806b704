package postgres

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/frahmantamala/orgtree/internal"
	nodeDatamodel "github.com/frahmantamala/orgtree/internal/core/datamodel/node"
	"github.com/frahmantamala/orgtree/internal/node"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var filterColumns = map[string]string{
	"type":      "type",
	"location":  "location",
	"parent":    "parent",
	"createdBy": "created_by",
	"managedBy": "managed_by",
}

var sortColumns = map[string]string{
	node.SortByName:     "name ASC",
	node.SortByType:     "type ASC",
	node.SortByLocation: "location ASC",
}

// NodeRepository implements node.Repository with GORM. The gorm.DB must be
// opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
type NodeRepository struct {
	db *gorm.DB
}

func NewNodeRepository(db *gorm.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

// Count includes archived nodes: an archived root still counts as installed.
func (r *NodeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&nodeDatamodel.Node{}).Count(&count).Error; err != nil {
		return 0, internal.NewInternalError("failed to count nodes", err)
	}
	return count, nil
}

func (r *NodeRepository) Create(ctx context.Context, n *node.Node) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	err := r.db.WithContext(ctx).Create(node.ToDataModel(n)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if n.IsRoot() {
			// single-root index: somebody installed the root first
			return internal.ErrParentRequired
		}
		return internal.ErrNodeNameTaken
	}
	if err != nil {
		return internal.NewInternalError("failed to create node", err)
	}
	return nil
}

func (r *NodeRepository) GetByID(ctx context.Context, id string) (*node.Node, error) {
	var rec nodeDatamodel.Node
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, translateNotFound(err, "failed to get node")
	}
	return node.FromDataModel(&rec), nil
}

func (r *NodeRepository) GetByName(ctx context.Context, name string) (*node.Node, error) {
	var rec nodeDatamodel.Node
	err := r.db.WithContext(ctx).Where("name = ? AND deleted_at = ?", name, 0).First(&rec).Error
	if err != nil {
		return nil, translateNotFound(err, "failed to get node by name")
	}
	return node.FromDataModel(&rec), nil
}

// Update writes the patchable columns of a live node. Children are only
// written when replaceChildren is set, and then under the row lock
// mutateChildren takes, so a concurrent AddChild is never overwritten by a
// stale read.
func (r *NodeRepository) Update(ctx context.Context, n *node.Node, replaceChildren bool) error {
	rec := node.ToDataModel(n)
	columns := []string{"type", "location", "managed_by", "updated_at"}
	if !replaceChildren {
		return updateLive(r.db.WithContext(ctx), rec, columns)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked nodeDatamodel.Node
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND deleted_at = ?", n.ID, 0).
			First(&locked).Error
		if err != nil {
			return translateNotFound(err, "failed to lock node")
		}
		return updateLive(tx, rec, append(columns, "children"))
	})
}

func updateLive(tx *gorm.DB, rec *nodeDatamodel.Node, columns []string) error {
	res := tx.Model(rec).
		Where("deleted_at = ?", 0).
		Select(columns).
		Updates(rec)
	if res.Error != nil {
		return internal.NewInternalError("failed to update node", res.Error)
	}
	if res.RowsAffected == 0 {
		return internal.ErrNodeNotFound
	}
	return nil
}

// Archive is a single conditional UPDATE: it only matches a live row whose
// stored children set is empty. The UPDATE waits on the row lock held by a
// concurrent AddChild and re-checks the condition afterwards.
func (r *NodeRepository) Archive(ctx context.Context, id string, deletedAt int64) error {
	res := r.db.WithContext(ctx).Model(&nodeDatamodel.Node{}).
		Where("id = ? AND deleted_at = ? AND children IN ?", id, 0, []string{"[]", "null"}).
		Updates(map[string]interface{}{
			"deleted_at": deletedAt,
			"updated_at": deletedAt,
		})
	if res.Error != nil {
		return internal.NewInternalError("failed to archive node", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Archived() {
		return internal.ErrNodeNotFound
	}
	return internal.ErrNodeHasChildren.WithDetails(map[string]int{"children": len(current.Children)})
}

func (r *NodeRepository) SetDeletedAt(ctx context.Context, id string, deletedAt, updatedAt int64) error {
	res := r.db.WithContext(ctx).Model(&nodeDatamodel.Node{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deleted_at": deletedAt,
			"updated_at": updatedAt,
		})
	if res.Error != nil {
		return internal.NewInternalError("failed to update node state", res.Error)
	}
	if res.RowsAffected == 0 {
		return internal.ErrNodeNotFound
	}
	return nil
}

func (r *NodeRepository) Remove(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&nodeDatamodel.Node{}).Error
	if err != nil {
		return internal.NewInternalError("failed to remove node", err)
	}
	return nil
}

// AddChild refuses an archived parent with internal.ErrNodeNotFound.
func (r *NodeRepository) AddChild(ctx context.Context, parentID, childID string, updatedAt int64) error {
	return r.mutateChildren(ctx, parentID, updatedAt, true, func(children []string) []string {
		if slices.Contains(children, childID) {
			return children
		}
		return append(children, childID)
	})
}

func (r *NodeRepository) RemoveChild(ctx context.Context, parentID, childID string, updatedAt int64) error {
	return r.mutateChildren(ctx, parentID, updatedAt, false, func(children []string) []string {
		return slices.DeleteFunc(children, func(id string) bool { return id == childID })
	})
}

// mutateChildren rewrites the children column of one row while holding its
// row lock, so concurrent mutations on the same parent serialize.
func (r *NodeRepository) mutateChildren(ctx context.Context, parentID string, updatedAt int64, requireLive bool, fn func([]string) []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent nodeDatamodel.Node
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", parentID).
			First(&parent).Error
		if err == nil && parent.DeletedAt != 0 && requireLive {
			err = gorm.ErrRecordNotFound
		}
		if err != nil {
			return translateNotFound(err, "failed to lock parent node")
		}

		parent.Children = fn(parent.Children)
		if parent.Children == nil {
			parent.Children = []string{}
		}
		parent.UpdatedAt = updatedAt
		err = tx.Model(&parent).Select("children", "updated_at").Updates(&parent).Error
		if err != nil {
			return internal.NewInternalError("failed to update parent children", err)
		}
		return nil
	})
}

func (r *NodeRepository) List(ctx context.Context, q node.ListQuery) ([]*node.Node, int64, error) {
	scoped := func() *gorm.DB {
		tx := r.db.WithContext(ctx).Model(&nodeDatamodel.Node{}).Where("deleted_at = ?", 0)
		if q.Name != "" {
			tx = tx.Where(`LOWER(name) LIKE ? ESCAPE '\'`, "%"+internal.EscapeLike(strings.ToLower(q.Name))+"%")
		}
		if q.DateRange.From != nil {
			tx = tx.Where("created_at >= ?", *q.DateRange.From)
		}
		if q.DateRange.To != nil {
			tx = tx.Where("created_at <= ?", *q.DateRange.To)
		}
		for key, value := range q.Filters {
			if column, ok := filterColumns[key]; ok {
				tx = tx.Where(column+" = ?", value)
			}
		}
		return tx
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, internal.NewInternalError("failed to count nodes", err)
	}

	order, ok := sortColumns[q.SortType]
	if !ok {
		order = "created_at DESC"
	}

	var recs []nodeDatamodel.Node
	err := scoped().Order(order).Limit(q.Size).Offset(q.Offset()).Find(&recs).Error
	if err != nil {
		return nil, 0, internal.NewInternalError("failed to list nodes", err)
	}

	nodes := make([]*node.Node, 0, len(recs))
	for i := range recs {
		nodes = append(nodes, node.FromDataModel(&recs[i]))
	}
	return nodes, total, nil
}

// DescendantIDs matches the quoted id inside the JSON encoded ancestors
// column.
func (r *NodeRepository) DescendantIDs(ctx context.Context, id string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&nodeDatamodel.Node{}).
		Where(`deleted_at = ? AND ancestors LIKE ? ESCAPE '\'`, 0, `%"`+internal.EscapeLike(id)+`"%`).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, internal.NewInternalError("failed to list descendants", err)
	}
	return ids, nil
}

func translateNotFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return internal.ErrNodeNotFound
	}
	return internal.NewInternalError(message, err)
}
