package user

import (
	"context"

	"github.com/frahmantamala/orgtree/internal"
)

// MembershipLookup resolves which node a user belongs to. It sits on the
// repository rather than the service so the permission evaluator can be
// built before the directory that depends on it.
type MembershipLookup struct {
	repo Repository
}

func NewMembershipLookup(repo Repository) *MembershipLookup {
	return &MembershipLookup{repo: repo}
}

func (l *MembershipLookup) NodeOf(ctx context.Context, userID string) (string, error) {
	u, err := l.repo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.Archived() {
		return "", internal.ErrUserNotFound
	}
	return u.NodeID, nil
}
