package node

import (
	"context"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/auth"
)

// ScopeLookup serves live nodes to the permission evaluator straight from
// the repository.
type ScopeLookup struct {
	repo Repository
}

func NewScopeLookup(repo Repository) *ScopeLookup {
	return &ScopeLookup{repo: repo}
}

func (l *ScopeLookup) NodeScope(ctx context.Context, nodeID string) (*auth.NodeScope, error) {
	n, err := l.repo.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if n.Archived() {
		return nil, internal.ErrNodeNotFound
	}
	return n.Scope(), nil
}
