package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/campusmate/planner/internal/model"
	"github.com/campusmate/planner/internal/recurrence"
	"github.com/campusmate/planner/internal/reminder"
	"github.com/campusmate/planner/internal/store"
)

// reminderResponse decorates a reminder with the display label of its
// recurrence rule.
type reminderResponse struct {
	model.NoticeReminder
	RecurrenceLabel string `json:"recurrenceLabel,omitempty"`
}

func newReminderResponse(rem model.NoticeReminder) reminderResponse {
	resp := reminderResponse{NoticeReminder: rem}
	if rem.Recurrence != nil {
		resp.RecurrenceLabel = recurrence.Describe(*rem.Recurrence)
	}
	return resp
}

type ReminderHandler struct {
	store  *store.ReminderStore
	coord  *reminder.Coordinator
	logger *slog.Logger
}

func NewReminderHandler(rs *store.ReminderStore, coord *reminder.Coordinator, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{store: rs, coord: coord, logger: logger}
}

type reminderRequest struct {
	NoticeTitle    string                `json:"noticeTitle"`
	ScheduledAt    string                `json:"scheduledAt"`
	Priority       model.Priority        `json:"priority"`
	Category       model.Category        `json:"category"`
	Recurrence     *model.RecurrenceRule `json:"recurrence"`
	ReminderOffset model.Minutes         `json:"reminderOffset"`
}

// writeCoordError maps the coordinator's error taxonomy onto HTTP.
// Only the user-actionable conditions get distinct statuses.
func (h *ReminderHandler) writeCoordError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, reminder.ErrPastReminderTime):
		writeError(w, http.StatusUnprocessableEntity, "reminder time must be in the future")
	case errors.Is(err, reminder.ErrPermissionDenied):
		writeError(w, http.StatusConflict, "notifications are not enabled")
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.store.GetAll(r.Context())
	if err != nil {
		h.logger.Error("list reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	out := make([]reminderResponse, len(reminders))
	for i, rem := range reminders {
		out[i] = newReminderResponse(rem)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ReminderHandler) Get(w http.ResponseWriter, r *http.Request) {
	newsID, err := parseNewsIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid newsId")
		return
	}

	rem, err := h.store.GetByNewsID(r.Context(), newsID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get reminder")
		return
	}
	if rem == nil {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}

	writeJSON(w, http.StatusOK, newReminderResponse(*rem))
}

// Upsert creates or replaces the reminder for a notice and schedules
// its notification. There is never more than one reminder per notice.
func (h *ReminderHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	newsID, err := parseNewsIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid newsId")
		return
	}

	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.NoticeTitle = strings.TrimSpace(req.NoticeTitle)
	if req.NoticeTitle == "" {
		writeError(w, http.StatusBadRequest, "noticeTitle is required")
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "scheduledAt must be RFC3339 format")
		return
	}

	rem := model.NewNoticeReminder(newsID, req.NoticeTitle, scheduledAt)
	if req.Priority != "" {
		rem.Priority = req.Priority
	}
	if req.Category != "" {
		rem.Category = req.Category
	}
	rem.Recurrence = req.Recurrence
	rem.ReminderOffset = req.ReminderOffset

	// Replacing an existing reminder keeps its original creation time.
	if existing, err := h.store.GetByNewsID(r.Context(), newsID); err == nil && existing != nil {
		rem.CreatedAt = existing.CreatedAt
	}

	scheduled, err := h.coord.ScheduleNotice(r.Context(), rem)
	if err != nil {
		h.writeCoordError(w, err, "schedule reminder")
		return
	}

	writeJSON(w, http.StatusOK, newReminderResponse(scheduled))
}

func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	newsID, err := parseNewsIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid newsId")
		return
	}

	if err := h.coord.RemoveNotice(r.Context(), newsID); err != nil {
		h.logger.Error("remove reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove reminder")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type snoozeRequest struct {
	Until string `json:"until"`
}

// Snooze moves the next fire time; the original schedule is retained.
func (h *ReminderHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	newsID, err := parseNewsIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid newsId")
		return
	}

	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	until, err := time.Parse(time.RFC3339, req.Until)
	if err != nil {
		writeError(w, http.StatusBadRequest, "until must be RFC3339 format")
		return
	}

	if err := h.coord.SnoozeNotice(r.Context(), newsID, until); err != nil {
		h.writeCoordError(w, err, "snooze reminder")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Advance rolls a recurring reminder forward to its next occurrence.
func (h *ReminderHandler) Advance(w http.ResponseWriter, r *http.Request) {
	newsID, err := parseNewsIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid newsId")
		return
	}

	if err := h.coord.AdvanceRecurring(r.Context(), newsID); err != nil {
		h.writeCoordError(w, err, "advance reminder")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
