package harvest

// PaginationConfig is a tagged variant describing how an API source pages
// through results. Each variant drives exactly which query parameters the API
// engine attaches per page request. A nil PaginationConfig means single-page.
type PaginationConfig interface {
	PageSizeHint() int
	MaxPagesHint() int
}

// HasMoreFunc decides whether another page should be requested after the
// current one. payload is the decoded page response.
type HasMoreFunc func(payload map[string]any, page, itemCount, pageSize int) bool

// OffsetPagination sends limit/offset query parameters.
type OffsetPagination struct {
	PageSize int
	MaxPages int
	// HasMore overrides the default decision (explicit has-more flag, then
	// total page count, then the full-page heuristic). The heuristic can
	// both over- and under-fetch; sources that know better set this.
	HasMore HasMoreFunc
}

// PagePagination sends 1-based page/per_page query parameters.
type PagePagination struct {
	PageSize int
	MaxPages int
	// HasMore overrides the default decision, see OffsetPagination.
	HasMore HasMoreFunc
}

// CursorPagination sends a limit plus an opaque cursor derived from the
// previous page's response.
type CursorPagination struct {
	PageSize int
	MaxPages int
	// CursorField names the response field holding the next cursor.
	// Defaults to "next_cursor" when empty.
	CursorField string
}

func (p OffsetPagination) PageSizeHint() int { return p.PageSize }
func (p OffsetPagination) MaxPagesHint() int { return p.MaxPages }
func (p PagePagination) PageSizeHint() int   { return p.PageSize }
func (p PagePagination) MaxPagesHint() int   { return p.MaxPages }
func (p CursorPagination) PageSizeHint() int { return p.PageSize }
func (p CursorPagination) MaxPagesHint() int { return p.MaxPages }
