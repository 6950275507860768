package api

import (
	"net/url"
	"strconv"

	"github.com/grantscope/harvester/internal/harvest"
)

const (
	defaultPageSize = 25
	defaultMaxPages = 10
)

// pageState tracks the walk through one source's result pages.
type pageState struct {
	pagination harvest.PaginationConfig
	pageSize   int
	maxPages   int
	page       int // 1-based
	cursor     string
}

func newPageState(p harvest.PaginationConfig) *pageState {
	s := &pageState{pagination: p, pageSize: defaultPageSize, maxPages: 1, page: 1}
	if p == nil {
		return s
	}
	if hint := p.PageSizeHint(); hint > 0 {
		s.pageSize = hint
	}
	s.maxPages = defaultMaxPages
	if hint := p.MaxPagesHint(); hint > 0 {
		s.maxPages = hint
	}
	return s
}

// params builds the query parameters for the current page.
func (s *pageState) params() url.Values {
	values := url.Values{}
	switch s.pagination.(type) {
	case nil:
	case harvest.OffsetPagination:
		values.Set("limit", strconv.Itoa(s.pageSize))
		values.Set("offset", strconv.Itoa((s.page-1)*s.pageSize))
	case harvest.PagePagination:
		values.Set("page", strconv.Itoa(s.page))
		values.Set("per_page", strconv.Itoa(s.pageSize))
	case harvest.CursorPagination:
		values.Set("limit", strconv.Itoa(s.pageSize))
		if s.cursor != "" {
			values.Set("cursor", s.cursor)
		}
	}
	return values
}

// advance consumes one page response and reports whether another page should
// be requested. The decision prefers an explicit has-more flag, then a total
// page count, then falls back to the full-page heuristic.
func (s *pageState) advance(payload map[string]any, itemCount int) bool {
	if s.pagination == nil || s.page >= s.maxPages {
		return false
	}

	if cp, ok := s.pagination.(harvest.CursorPagination); ok {
		field := cp.CursorField
		if field == "" {
			field = "next_cursor"
		}
		next, _ := lookupPath(payload, field).(string)
		if next == "" || next == s.cursor {
			return false
		}
		s.cursor = next
		s.page++
		return true
	}

	if override := s.hasMoreOverride(); override != nil {
		if !override(payload, s.page, itemCount, s.pageSize) {
			return false
		}
		s.page++
		return true
	}

	more, decided := hasMore(payload, s.page, itemCount, s.pageSize)
	if !more && decided {
		return false
	}
	if !decided && itemCount < s.pageSize {
		return false
	}
	s.page++
	return true
}

func (s *pageState) hasMoreOverride() harvest.HasMoreFunc {
	switch p := s.pagination.(type) {
	case harvest.OffsetPagination:
		return p.HasMore
	case harvest.PagePagination:
		return p.HasMore
	}
	return nil
}

// skip moves past a failed page so the walk can continue. Cursor sources
// cannot skip: without the page there is no next cursor.
func (s *pageState) skip() bool {
	if _, ok := s.pagination.(harvest.CursorPagination); ok {
		return false
	}
	if s.pagination == nil || s.page >= s.maxPages {
		return false
	}
	s.page++
	return true
}

// hasMore reads explicit pagination signals from the response. decided is
// false when the payload carries none.
func hasMore(payload map[string]any, page, itemCount, pageSize int) (more, decided bool) {
	for _, key := range []string{"has_more", "hasMore", "has_next", "hasNext"} {
		if flag, ok := lookupPath(payload, key).(bool); ok {
			return flag, true
		}
	}
	for _, key := range []string{"total_pages", "totalPages"} {
		if total, ok := asFloat(lookupPath(payload, key)); ok {
			return float64(page) < total, true
		}
	}
	return false, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
