package node

import (
	"slices"

	"github.com/frahmantamala/orgtree/internal/auth"
	nodeDatamodel "github.com/frahmantamala/orgtree/internal/core/datamodel/node"
)

type Node struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Location  string   `json:"location"`
	Parent    *string  `json:"parent"`
	Ancestors []string `json:"ancestors"`
	Children  []string `json:"children"`
	CreatedBy string   `json:"createdBy"`
	ManagedBy string   `json:"managedBy"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
	DeletedAt int64    `json:"deletedAt"`
}

func (n *Node) IsRoot() bool {
	return n.Parent == nil
}

func (n *Node) Archived() bool {
	return n.DeletedAt != 0
}

// ParentID is the parent id, or "" for the root.
func (n *Node) ParentID() string {
	if n.Parent == nil {
		return ""
	}
	return *n.Parent
}

// Scope is the view of n the permission evaluator works with.
func (n *Node) Scope() *auth.NodeScope {
	return &auth.NodeScope{
		ID:        n.ID,
		Ancestors: n.Ancestors,
		Children:  n.Children,
		CreatedBy: n.CreatedBy,
		ManagedBy: n.ManagedBy,
	}
}

// Patch carries the fields a generic update may change. A nil field is
// left untouched. Name is deliberately absent.
type Patch struct {
	Type      *string   `json:"type,omitempty"`
	Location  *string   `json:"location,omitempty"`
	Children  *[]string `json:"children,omitempty"`
	ManagedBy *string   `json:"managedBy,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Type == nil && p.Location == nil && p.Children == nil && p.ManagedBy == nil
}

// ApplyPatch returns a copy of n with p merged in. Children are
// de-duplicated keeping first occurrence order.
func ApplyPatch(n Node, p Patch) Node {
	out := n
	out.Ancestors = slices.Clone(n.Ancestors)
	out.Children = slices.Clone(n.Children)

	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Location != nil {
		out.Location = *p.Location
	}
	if p.ManagedBy != nil {
		out.ManagedBy = *p.ManagedBy
	}
	if p.Children != nil {
		out.Children = uniqueIDs(*p.Children)
	}
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func ToDataModel(n *Node) *nodeDatamodel.Node {
	return &nodeDatamodel.Node{
		ID:        n.ID,
		Name:      n.Name,
		Type:      n.Type,
		Location:  n.Location,
		Parent:    n.Parent,
		Ancestors: nonNil(n.Ancestors),
		Children:  nonNil(n.Children),
		CreatedBy: n.CreatedBy,
		ManagedBy: n.ManagedBy,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		DeletedAt: n.DeletedAt,
	}
}

func FromDataModel(n *nodeDatamodel.Node) *Node {
	return &Node{
		ID:        n.ID,
		Name:      n.Name,
		Type:      n.Type,
		Location:  n.Location,
		Parent:    n.Parent,
		Ancestors: nonNil(n.Ancestors),
		Children:  nonNil(n.Children),
		CreatedBy: n.CreatedBy,
		ManagedBy: n.ManagedBy,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		DeletedAt: n.DeletedAt,
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
