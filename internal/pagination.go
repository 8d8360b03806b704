package internal

import "strings"

const DefaultPageSize = 10

// Pagination is a 1-based page request.
type Pagination struct {
	Page int
	Size int
}

// Clamp fills defaults and caps Size at maxSize.
func (p Pagination) Clamp(maxSize int) Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if maxSize > 0 && p.Size > maxSize {
		p.Size = maxSize
	}
	return p
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Size
}

// DateRange bounds createdAt in epoch milliseconds. Nil ends are open.
type DateRange struct {
	From *int64
	To   *int64
}

func (d DateRange) Empty() bool {
	return d.From == nil && d.To == nil
}

// ListResult is one page of a listing plus the total matching count.
type ListResult[T any] struct {
	Total int64 `json:"total"`
	List  []T   `json:"list"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes the LIKE wildcards in s for a pattern that declares
// ESCAPE '\'.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
