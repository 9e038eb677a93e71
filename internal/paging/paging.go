// Package paging carries 1-based page requests and their response metadata.
package paging

import "math"

const (
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage keeps (Page-1)*Limit within int.
	MaxPage = math.MaxInt / MaxLimit
)

// Request is a 1-based page selection.
type Request struct {
	Page  int
	Limit int
}

// Normalize clamps the request to sane bounds.
func (r Request) Normalize() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Page > MaxPage {
		r.Page = MaxPage
	}
	if r.Limit < 1 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	return r
}

// Offset is the number of rows skipped before this page.
func (r Request) Offset() int {
	n := r.Normalize()
	return (n.Page - 1) * n.Limit
}

// Window returns the [start, end) slice bounds of this page over total rows.
func (r Request) Window(total int) (int, int) {
	n := r.Normalize()
	start := r.Offset()
	if start > total {
		start = total
	}
	end := start + n.Limit
	if end > total {
		end = total
	}
	return start, end
}

// Meta describes a returned page.
type Meta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewMeta builds metadata for total rows under the request.
func NewMeta(total int, r Request) Meta {
	n := r.Normalize()
	pages := 0
	if total > 0 {
		pages = (total + n.Limit - 1) / n.Limit
	}
	return Meta{Total: total, Page: n.Page, Limit: n.Limit, Pages: pages}
}

// Result is a page of items plus its metadata.
type Result[T any] struct {
	Items []T
	Meta  Meta
}
