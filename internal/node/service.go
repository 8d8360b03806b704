package node

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/auth"
	"github.com/frahmantamala/orgtree/internal/core/events"
)

// Repository persists nodes. GetByID returns archived nodes too; every other
// read filters them out. Missing rows yield internal.ErrNodeNotFound.
//
// AddChild and RemoveChild are atomic set operations on one parent record,
// so concurrent sibling creations never lose a child id. AddChild only links
// under a live parent.
//
// Update writes the patchable fields of a live node and leaves the stored
// children untouched unless replaceChildren is set. Archive stamps deletedAt
// only while the stored children set is empty, failing with
// internal.ErrNodeHasChildren otherwise.
type Repository interface {
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, n *Node) error
	GetByID(ctx context.Context, id string) (*Node, error)
	GetByName(ctx context.Context, name string) (*Node, error)
	Update(ctx context.Context, n *Node, replaceChildren bool) error
	Archive(ctx context.Context, id string, deletedAt int64) error
	SetDeletedAt(ctx context.Context, id string, deletedAt, updatedAt int64) error
	Remove(ctx context.Context, id string) error
	AddChild(ctx context.Context, parentID, childID string, updatedAt int64) error
	RemoveChild(ctx context.Context, parentID, childID string, updatedAt int64) error
	List(ctx context.Context, q ListQuery) ([]*Node, int64, error)
	DescendantIDs(ctx context.Context, id string) ([]string, error)
}

// Authorizer is the permission evaluator as seen by the hierarchy manager.
type Authorizer interface {
	CanActOnNode(ctx context.Context, actor internal.Actor, targetNodeID string) (bool, error)
	CanManageNode(actorID string, target auth.NodeScope) bool
}

type Service struct {
	repo      Repository
	access    Authorizer
	publisher events.Publisher
	cfg       internal.DomainConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, access Authorizer, publisher events.Publisher, cfg internal.DomainConfig, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		access:    access,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Create inserts a node. The first node ever stored becomes the root: its
// parent is null and it is created and managed by the admin sentinel. Every
// later node needs a live parent, and a manager may only create under a
// parent within their subtree.
func (s *Service) Create(ctx context.Context, actor internal.Actor, dto CreateNodeDTO) (*Node, error) {
	if err := dto.Validate(s.cfg.NodeTypes); err != nil {
		return nil, err
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count nodes", "error", err)
		return nil, err
	}

	now := s.now().UnixMilli()
	n := &Node{
		Name:      dto.Name,
		Type:      dto.Type,
		Location:  dto.Location,
		Ancestors: []string{},
		Children:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if count == 0 {
		if dto.Parent != "" {
			return nil, internal.ErrRootHasNoParent
		}
		n.CreatedBy = internal.AdminID
		n.ManagedBy = internal.AdminID
		if err := s.repo.Create(ctx, n); err != nil {
			return nil, err
		}
		s.logger.Info("root node installed", "node_id", n.ID, "name", n.Name)
		s.publish(ctx, events.NewNodeEvent(events.EventTypeNodeCreated, n.ID, "", actor.ID))
		return n, nil
	}

	if dto.Parent == "" {
		return nil, internal.ErrParentRequired
	}
	parent, err := s.liveNode(ctx, dto.Parent)
	if errors.Is(err, internal.ErrNodeNotFound) {
		return nil, internal.ErrParentNotFound
	}
	if err != nil {
		return nil, err
	}

	if !actor.IsAdmin() {
		ok, err := s.access.CanActOnNode(ctx, actor, parent.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Warn("node creation outside actor scope", "actor_id", actor.ID, "parent", parent.ID)
			return nil, internal.ErrNodeOutOfScope
		}
	}

	parentID := parent.ID
	n.Parent = &parentID
	n.Ancestors = append(slices.Clone(parent.Ancestors), parent.ID)
	n.CreatedBy = actor.ID
	n.ManagedBy = dto.ManagedBy
	if n.ManagedBy == "" {
		n.ManagedBy = actor.ID
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	if err := s.repo.AddChild(ctx, parent.ID, n.ID, now); err != nil {
		s.logger.Error("failed to link node to parent, removing node", "error", err, "node_id", n.ID, "parent", parent.ID)
		if rmErr := s.repo.Remove(ctx, n.ID); rmErr != nil {
			s.logger.Error("failed to remove unlinked node", "error", rmErr, "node_id", n.ID)
		}
		// the parent was archived after it was read
		if errors.Is(err, internal.ErrNodeNotFound) {
			return nil, internal.ErrParentNotFound
		}
		return nil, err
	}

	s.logger.Info("node created", "node_id", n.ID, "parent", parent.ID, "actor_id", actor.ID)
	s.publish(ctx, events.NewNodeEvent(events.EventTypeNodeCreated, n.ID, parent.ID, actor.ID))
	return n, nil
}

// Update merges p into a live node. Managers must own the node.
func (s *Service) Update(ctx context.Context, actor internal.Actor, id string, p Patch) (*Node, error) {
	if err := ValidatePatch(p, s.cfg.NodeTypes); err != nil {
		return nil, err
	}

	current, err := s.liveNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(actor, current); err != nil {
		return nil, err
	}
	if p.Empty() {
		return current, nil
	}

	updated := ApplyPatch(*current, p)
	updated.UpdatedAt = s.now().UnixMilli()
	if err := s.repo.Update(ctx, &updated, p.Children != nil); err != nil {
		return nil, err
	}

	// children may have changed concurrently; answer with the stored row
	stored, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("node updated", "node_id", id, "actor_id", actor.ID)
	s.publish(ctx, events.NewNodeEvent(events.EventTypeNodeUpdated, id, stored.ParentID(), actor.ID))
	return stored, nil
}

// Archive soft-deletes a childless node and unlinks it from its parent.
// Nodes with children are never archived; they must be re-parented first.
func (s *Service) Archive(ctx context.Context, actor internal.Actor, id string) (*Node, error) {
	n, err := s.liveNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(actor, n); err != nil {
		return nil, err
	}
	if len(n.Children) > 0 {
		return nil, internal.ErrNodeHasChildren.WithDetails(map[string]int{"children": len(n.Children)})
	}

	// a child linked after the read above makes the store refuse
	now := s.now().UnixMilli()
	if err := s.repo.Archive(ctx, n.ID, now); err != nil {
		return nil, err
	}
	if parentID := n.ParentID(); parentID != "" {
		if err := s.repo.RemoveChild(ctx, parentID, n.ID, now); err != nil {
			if revertErr := s.repo.SetDeletedAt(ctx, n.ID, 0, now); revertErr != nil {
				s.logger.Error("failed to revive node after unlink failure", "error", revertErr, "node_id", n.ID)
			}
			return nil, err
		}
	}

	n.DeletedAt = now
	n.UpdatedAt = now
	s.logger.Info("node archived", "node_id", n.ID, "actor_id", actor.ID)
	s.publish(ctx, events.NewNodeEvent(events.EventTypeNodeArchived, n.ID, n.ParentID(), actor.ID))
	return n, nil
}

// Restore revives an archived node and links it back under its parent,
// which must itself be live.
func (s *Service) Restore(ctx context.Context, actor internal.Actor, id string) (*Node, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.Archived() {
		return nil, internal.ErrNodeNotArchived
	}
	if err := s.authorizeManage(actor, n); err != nil {
		return nil, err
	}

	parentID := n.ParentID()
	if parentID != "" {
		if _, err := s.liveNode(ctx, parentID); err != nil {
			if errors.Is(err, internal.ErrNodeNotFound) {
				return nil, internal.ErrParentNotFound
			}
			return nil, err
		}
	}

	now := s.now().UnixMilli()
	if err := s.repo.SetDeletedAt(ctx, n.ID, 0, now); err != nil {
		return nil, err
	}
	if parentID != "" {
		if err := s.repo.AddChild(ctx, parentID, n.ID, now); err != nil {
			if revertErr := s.repo.SetDeletedAt(ctx, n.ID, n.DeletedAt, now); revertErr != nil {
				s.logger.Error("failed to re-archive node after relink failure", "error", revertErr, "node_id", n.ID)
			}
			if errors.Is(err, internal.ErrNodeNotFound) {
				return nil, internal.ErrParentNotFound
			}
			return nil, err
		}
	}

	n.DeletedAt = 0
	n.UpdatedAt = now
	s.logger.Info("node restored", "node_id", n.ID, "actor_id", actor.ID)
	s.publish(ctx, events.NewNodeEvent(events.EventTypeNodeRestored, n.ID, parentID, actor.ID))
	return n, nil
}

func (s *Service) List(ctx context.Context, q ListQuery) (*internal.ListResult[*Node], error) {
	q = q.Normalize(s.cfg.MaxPageSize)
	nodes, total, err := s.repo.List(ctx, q)
	if err != nil {
		s.logger.Error("failed to list nodes", "error", err)
		return nil, err
	}
	return &internal.ListResult[*Node]{Total: total, List: nodes}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*Node, error) {
	return s.liveNode(ctx, id)
}

func (s *Service) GetByName(ctx context.Context, name string) (*Node, error) {
	return s.repo.GetByName(ctx, name)
}

// DescendantIDs returns the ids of every live node below id.
func (s *Service) DescendantIDs(ctx context.Context, id string) ([]string, error) {
	return s.repo.DescendantIDs(ctx, id)
}

func (s *Service) liveNode(ctx context.Context, id string) (*Node, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Archived() {
		return nil, internal.ErrNodeNotFound
	}
	return n, nil
}

func (s *Service) authorizeManage(actor internal.Actor, n *Node) error {
	if actor.IsAdmin() {
		return nil
	}
	if !s.access.CanManageNode(actor.ID, *n.Scope()) {
		s.logger.Warn("node mutation by non-owner", "actor_id", actor.ID, "node_id", n.ID)
		return internal.ErrNodeNotOwned
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "error", err, "event_type", event.EventType())
	}
}
