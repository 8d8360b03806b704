package node

import (
	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/core/common/validation"
)

type CreateNodeDTO struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Location  string `json:"location"`
	Parent    string `json:"parent"`
	ManagedBy string `json:"managedBy"`
}

func (d CreateNodeDTO) Validate(nodeTypes []string) error {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(200)
	v.Field("type", d.Type).Required().OneOf(nodeTypes...)
	v.Field("location", d.Location).Optional().MaxLength(200)
	v.Field("parent", d.Parent).Optional().MaxLength(36)
	v.Field("managedBy", d.ManagedBy).Optional().MaxLength(200)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

func ValidatePatch(p Patch, nodeTypes []string) error {
	v := validation.NewValidator()
	v.Field("type", p.Type).Optional().OneOf(nodeTypes...)
	v.Field("location", p.Location).Optional().MaxLength(200)
	if p.ManagedBy != nil {
		v.Field("managedBy", *p.ManagedBy).Required().MaxLength(200)
	}
	if p.Children != nil {
		for _, child := range *p.Children {
			v.Field("children", child).Required().MaxLength(36)
		}
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

const (
	SortByCreatedAt = "createdAt"
	SortByName      = "name"
	SortByType      = "type"
	SortByLocation  = "location"
)

// Filterable lists the equality filters a node listing accepts, keyed by
// query parameter.
var Filterable = []string{"type", "location", "parent", "createdBy", "managedBy"}

// ListQuery selects live nodes. Name matches case-insensitively as a
// substring; Filters are exact matches on the Filterable keys.
type ListQuery struct {
	internal.Pagination
	Name      string
	DateRange internal.DateRange
	Filters   map[string]string
	SortType  string
}

// Normalize clamps paging and drops unknown filters and sort types.
func (q ListQuery) Normalize(maxPageSize int) ListQuery {
	q.Pagination = q.Pagination.Clamp(maxPageSize)
	switch q.SortType {
	case SortByName, SortByType, SortByLocation:
	default:
		q.SortType = SortByCreatedAt
	}
	filters := make(map[string]string, len(q.Filters))
	for _, key := range Filterable {
		if value, ok := q.Filters[key]; ok && value != "" {
			filters[key] = value
		}
	}
	q.Filters = filters
	return q
}
