package api

import (
	"net/http"

	"github.com/ignite/waitlist-engine/internal/auth"
	"github.com/ignite/waitlist-engine/internal/pkg/httputil"
	"github.com/ignite/waitlist-engine/internal/pkg/logger"
)

// AdminList handles GET /admin/waitlist?page=&limit= and ?offset=&limit=.
func (h *Handlers) AdminList(w http.ResponseWriter, r *http.Request) {
	win := parseListWindow(r, 50, 500)
	entries, total := h.waitlist.List(r.Context(), win.Offset, win.Limit)
	httputil.OK(w, map[string]any{
		"success":    true,
		"data":       entries,
		"pagination": win.meta(total),
	})
}

// AdminReindex handles POST /admin/waitlist/reindex.
func (h *Handlers) AdminReindex(w http.ResponseWriter, r *http.Request) {
	operator := "dev"
	if s, ok := auth.SessionFromContext(r.Context()); ok {
		operator = s.Email
	}

	report, err := h.waitlist.Reindex(r.Context())
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", err, "Reindex failed. Check the logs and retry.")
		return
	}

	logger.Info("waitlist reindexed", "operator", operator, "scanned", report.Scanned, "healedKeys", report.HealedKeys, "repairedCodes", report.RepairedCodes)
	httputil.OK(w, map[string]any{
		"success": true,
		"report":  report,
	})
}
