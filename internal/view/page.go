package view

import "math"

// PageRequest is a validated page/page_size pair.
type PageRequest struct {
	Page     int
	PageSize int
}

// NewPageRequest rejects page < 1, page_size < 1 and pages whose offset does
// not fit in an int. page_size is clamped to maxSize.
func NewPageRequest(page, pageSize, maxSize int) (PageRequest, error) {
	if page < 1 {
		return PageRequest{}, invalid("page", "must be >= 1, got %d", page)
	}
	if pageSize < 1 {
		return PageRequest{}, invalid("page_size", "must be >= 1, got %d", pageSize)
	}
	if maxSize > 0 && pageSize > maxSize {
		pageSize = maxSize
	}
	if page-1 > math.MaxInt/pageSize {
		return PageRequest{}, invalid("page", "too large for page_size %d, got %d", pageSize, page)
	}
	return PageRequest{Page: page, PageSize: pageSize}, nil
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Page is one page of rows plus the total before pagination.
type Page[T any] struct {
	Rows     []T `json:"rows"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Paginate cuts the requested page out of items.
func Paginate[T any](items []T, req PageRequest) Page[T] {
	return Page[T]{
		Rows:     window(items, req.Offset(), req.PageSize),
		Total:    len(items),
		Page:     req.Page,
		PageSize: req.PageSize,
	}
}

// Window is a validated limit/offset pair.
type Window struct {
	Limit  int
	Offset int
}

// NewWindow requires 1 <= limit <= maxLimit and offset >= 0.
func NewWindow(limit, offset, maxLimit int) (Window, error) {
	if limit < 1 || (maxLimit > 0 && limit > maxLimit) {
		return Window{}, invalid("limit", "must be between 1 and %d, got %d", maxLimit, limit)
	}
	if offset < 0 {
		return Window{}, invalid("offset", "must be >= 0, got %d", offset)
	}
	return Window{Limit: limit, Offset: offset}, nil
}

// Apply returns the slice of items selected by the window. Never nil.
func Apply[T any](items []T, w Window) []T {
	return window(items, w.Offset, w.Limit)
}

func window[T any](items []T, offset, size int) []T {
	if offset < 0 || offset >= len(items) {
		return []T{}
	}
	if size > len(items)-offset {
		size = len(items) - offset
	}
	return items[offset : offset+size]
}
