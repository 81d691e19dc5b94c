package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusmate/planner/internal/model"
	"github.com/campusmate/planner/internal/recurrence"
	"github.com/campusmate/planner/internal/reminder"
	"github.com/campusmate/planner/internal/store"
	ws "github.com/campusmate/planner/internal/websocket"
)

// entryResponse decorates an entry with the display label of its
// recurrence rule.
type entryResponse struct {
	model.PlannerEntry
	RecurrenceLabel string `json:"recurrenceLabel,omitempty"`
}

func newEntryResponse(e model.PlannerEntry) entryResponse {
	resp := entryResponse{PlannerEntry: e}
	if e.Recurrence != nil {
		resp.RecurrenceLabel = recurrence.Describe(*e.Recurrence)
	}
	return resp
}

func newEntryResponses(entries []model.PlannerEntry) []entryResponse {
	out := make([]entryResponse, len(entries))
	for i, e := range entries {
		out[i] = newEntryResponse(e)
	}
	return out
}

type PlannerHandler struct {
	store  *store.PlannerStore
	coord  *reminder.Coordinator
	hub    *ws.Hub
	logger *slog.Logger
}

func NewPlannerHandler(ps *store.PlannerStore, coord *reminder.Coordinator, hub *ws.Hub, logger *slog.Logger) *PlannerHandler {
	return &PlannerHandler{store: ps, coord: coord, hub: hub, logger: logger}
}

type entryRequest struct {
	Title          string                `json:"title"`
	Notes          string                `json:"notes"`
	DateTime       string                `json:"dateTime"`
	Priority       model.Priority        `json:"priority"`
	Category       model.Category        `json:"category"`
	IsCompleted    bool                  `json:"isCompleted"`
	Subtasks       []model.SubTask       `json:"subtasks"`
	Recurrence     *model.RecurrenceRule `json:"recurrence"`
	ReminderOffset model.Minutes         `json:"reminderOffset"`
	IsArchived     bool                  `json:"isArchived"`
	// EnableReminder chooses whether a notification is scheduled at
	// all. A false value with a non-zero offset keeps the offset for
	// redisplay without scheduling anything.
	EnableReminder bool `json:"enableReminder"`
}

func (h *PlannerHandler) parseAndValidate(r *http.Request, w http.ResponseWriter) (*entryRequest, time.Time, bool) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return nil, time.Time{}, false
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return nil, time.Time{}, false
	}

	due, err := time.Parse(time.RFC3339, req.DateTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "dateTime must be RFC3339 format")
		return nil, time.Time{}, false
	}

	return &req, due, true
}

func (h *PlannerHandler) apply(entry *model.PlannerEntry, req *entryRequest, due time.Time) {
	entry.Title = req.Title
	entry.Notes = req.Notes
	entry.DateTime = due
	if req.Priority != "" {
		entry.Priority = req.Priority
	}
	if req.Category != "" {
		entry.Category = req.Category
	}
	entry.IsCompleted = req.IsCompleted
	entry.Subtasks = req.Subtasks
	for i := range entry.Subtasks {
		if entry.Subtasks[i].ID == "" {
			entry.Subtasks[i].ID = uuid.NewString()
		}
	}
	entry.Recurrence = req.Recurrence
	entry.ReminderOffset = req.ReminderOffset
	entry.IsArchived = req.IsArchived
	entry.UpdatedAt = time.Now().UTC()
}

// scheduleReminder runs the coordinator call and maps its error
// taxonomy onto HTTP. Returns false when the response was written.
func (h *PlannerHandler) scheduleReminder(w http.ResponseWriter, r *http.Request, entry model.PlannerEntry, enabled bool) bool {
	err := h.coord.ScheduleEntry(r.Context(), entry, enabled)
	switch {
	case errors.Is(err, reminder.ErrPastReminderTime):
		writeError(w, http.StatusUnprocessableEntity, "reminder time must be in the future")
		return false
	case errors.Is(err, reminder.ErrPermissionDenied):
		writeError(w, http.StatusConflict, "notifications are not enabled")
		return false
	case err != nil:
		h.logger.Error("schedule entry reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to schedule reminder")
		return false
	}
	return true
}

func (h *PlannerHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, due, ok := h.parseAndValidate(r, w)
	if !ok {
		return
	}

	entry := model.NewPlannerEntry(req.Title, due)
	h.apply(&entry, req, due)

	if !h.scheduleReminder(w, r, entry, req.EnableReminder) {
		return
	}

	if err := h.store.Upsert(r.Context(), entry); err != nil {
		h.logger.Error("create planner entry", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create entry")
		return
	}

	h.hub.Broadcast(ws.Change{Entity: "entry", Action: "created", ID: entry.ID})
	writeJSON(w, http.StatusCreated, newEntryResponse(entry))
}

func (h *PlannerHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		entries []model.PlannerEntry
		err     error
	)

	q := r.URL.Query()
	switch {
	case q.Get("category") != "":
		entries, err = h.store.GetByCategory(r.Context(), model.Category(q.Get("category")))
	case q.Get("priority") != "":
		entries, err = h.store.GetByPriority(r.Context(), model.Priority(q.Get("priority")))
	case q.Get("completed") == "true":
		entries, err = h.store.GetCompleted(r.Context())
	case q.Get("completed") == "false":
		entries, err = h.store.GetIncomplete(r.Context())
	default:
		entries, err = h.store.GetAll(r.Context())
	}
	if err != nil {
		h.logger.Error("list planner entries", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}
	writeJSON(w, http.StatusOK, newEntryResponses(entries))
}

func (h *PlannerHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get entry")
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}

	writeJSON(w, http.StatusOK, newEntryResponse(*entry))
}

func (h *PlannerHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get entry")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}

	req, due, ok := h.parseAndValidate(r, w)
	if !ok {
		return
	}

	entry := *existing
	h.apply(&entry, req, due)

	if !h.scheduleReminder(w, r, entry, req.EnableReminder) {
		return
	}

	if err := h.store.Upsert(r.Context(), entry); err != nil {
		h.logger.Error("update planner entry", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update entry")
		return
	}

	h.hub.Broadcast(ws.Change{Entity: "entry", Action: "updated", ID: entry.ID})
	writeJSON(w, http.StatusOK, newEntryResponse(entry))
}

func (h *PlannerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Cancel any pending notification first; the entry is removed
	// regardless of the cancellation outcome.
	h.coord.CancelEntry(r.Context(), id)

	if err := h.store.DeleteByID(r.Context(), id); err != nil {
		h.logger.Error("delete planner entry", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete entry")
		return
	}

	h.hub.Broadcast(ws.Change{Entity: "entry", Action: "deleted", ID: id})
	w.WriteHeader(http.StatusNoContent)
}

// ToggleCompletion flips an entry's done state. Unknown ids are a
// silent no-op, matching the store's idempotent-delete semantics.
func (h *PlannerHandler) ToggleCompletion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.ToggleCompletion(r.Context(), id); err != nil {
		h.logger.Error("toggle completion", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to toggle entry")
		return
	}

	h.hub.Broadcast(ws.Change{Entity: "entry", Action: "toggled", ID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *PlannerHandler) ToggleSubtask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	subtaskID := r.PathValue("subtaskId")
	if err := h.store.ToggleSubtask(r.Context(), id, subtaskID); err != nil {
		h.logger.Error("toggle subtask", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to toggle subtask")
		return
	}

	h.hub.Broadcast(ws.Change{Entity: "entry", Action: "toggled", ID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *PlannerHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.store.Analytics(r.Context(), time.Now())
	if err != nil {
		h.logger.Error("planner analytics", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute analytics")
		return
	}

	writeJSON(w, http.StatusOK, analytics)
}
