package handler

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/campusmate/planner/internal/model"
	"github.com/campusmate/planner/internal/store"
)

// SearchHandler queries planner entries and notice reminders together,
// returning a mixed list of tagged items.
type SearchHandler struct {
	planner   *store.PlannerStore
	reminders *store.ReminderStore
	logger    *slog.Logger
}

func NewSearchHandler(ps *store.PlannerStore, rs *store.ReminderStore, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{planner: ps, reminders: rs, logger: logger}
}

// Search handles GET /api/search?q=
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	entries, err := h.planner.GetAll(r.Context())
	if err != nil {
		h.logger.Error("search entries", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	reminders, err := h.reminders.GetAll(r.Context())
	if err != nil {
		h.logger.Error("search reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	items := []model.Item{}
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Title), q) || strings.Contains(strings.ToLower(e.Notes), q) {
			items = append(items, model.EntryItem(e))
		}
	}
	for _, rem := range reminders {
		// Titles are stored HTML-unescaped, so matching works on the
		// human-readable text.
		if strings.Contains(strings.ToLower(rem.NoticeTitle), q) {
			items = append(items, model.NoticeItem(rem))
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].When().Before(items[j].When())
	})

	writeJSON(w, http.StatusOK, items)
}
