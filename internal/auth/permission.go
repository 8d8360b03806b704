package auth

import (
	"context"
	"errors"
	"slices"

	"github.com/frahmantamala/orgtree/internal"
)

// NodeScope is the slice of a node the evaluator reasons about.
type NodeScope struct {
	ID        string
	Ancestors []string
	Children  []string
	CreatedBy string
	ManagedBy string
}

// NodeLookup resolves live nodes. Missing or archived nodes yield
// internal.ErrNodeNotFound.
type NodeLookup interface {
	NodeScope(ctx context.Context, nodeID string) (*NodeScope, error)
}

// MembershipLookup resolves the node a stored user belongs to. Missing or
// archived users yield internal.ErrUserNotFound.
type MembershipLookup interface {
	NodeOf(ctx context.Context, userID string) (string, error)
}

// Evaluator answers whether an actor may operate on a node. Two predicates
// exist: CanActOnNode is tree-position based and guards creation inside a
// subtree, CanManageNode is ownership based and guards update and archive of
// one specific node.
type Evaluator struct {
	nodes   NodeLookup
	members MembershipLookup
}

func NewEvaluator(nodes NodeLookup, members MembershipLookup) *Evaluator {
	return &Evaluator{nodes: nodes, members: members}
}

// CanActOnNode is true for admins, and for managers whose own node is the
// target, has the target as a direct child, or appears in the target's
// ancestors. Employees never act on nodes.
func (e *Evaluator) CanActOnNode(ctx context.Context, actor internal.Actor, targetNodeID string) (bool, error) {
	switch actor.Role {
	case internal.RoleAdmin:
		return true, nil
	case internal.RoleManager:
	default:
		return false, nil
	}

	ownNodeID, err := e.members.NodeOf(ctx, actor.ID)
	if errors.Is(err, internal.ErrUserNotFound) || errors.Is(err, internal.ErrNodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if ownNodeID == targetNodeID {
		return true, nil
	}

	own, err := e.nodes.NodeScope(ctx, ownNodeID)
	if errors.Is(err, internal.ErrNodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if slices.Contains(own.Children, targetNodeID) {
		return true, nil
	}

	target, err := e.nodes.NodeScope(ctx, targetNodeID)
	if errors.Is(err, internal.ErrNodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return slices.Contains(target.Ancestors, ownNodeID), nil
}

// CanManageNode is true iff the actor created or manages target.
func (e *Evaluator) CanManageNode(actorID string, target NodeScope) bool {
	return actorID != "" && (target.ManagedBy == actorID || target.CreatedBy == actorID)
}
