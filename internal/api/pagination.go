package api

import (
	"net/http"
	"strconv"
)

// listWindow is the slice of the admin list a request asks for. Callers pass
// either page or offset; offset wins when both are set.
type listWindow struct {
	Offset int
	Limit  int
}

// listMeta is returned next to a listed page.
type listMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// parseListWindow reads page, offset and limit. limit falls back to
// defaultLimit and is capped at maxLimit.
func parseListWindow(r *http.Request, defaultLimit, maxLimit int) listWindow {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	if raw := q.Get("offset"); raw != "" {
		offset, _ := strconv.Atoi(raw)
		if offset < 0 {
			offset = 0
		}
		return listWindow{Offset: offset, Limit: limit}
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	return listWindow{Offset: (page - 1) * limit, Limit: limit}
}

// meta describes the window against total entries. An offset that is not a
// multiple of the limit reports the page it starts in.
func (w listWindow) meta(total int) listMeta {
	pages := (total + w.Limit - 1) / w.Limit
	if pages < 1 {
		pages = 1
	}
	return listMeta{
		Page:       w.Offset/w.Limit + 1,
		Limit:      w.Limit,
		Offset:     w.Offset,
		Total:      total,
		TotalPages: pages,
		HasMore:    w.Offset+w.Limit < total,
	}
}
