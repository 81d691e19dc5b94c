package handler

import (
	"log/slog"
	"net/http"

	"github.com/campusmate/planner/internal/backup"
)

// BackupHandler exposes backup status and a manual trigger.
type BackupHandler struct {
	manager *backup.Manager
	logger  *slog.Logger
}

func NewBackupHandler(manager *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: manager, logger: logger}
}

// Status handles GET /api/backup/status
func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// Trigger handles POST /api/backup/run
func (h *BackupHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	key, err := h.manager.RunNow(r.Context())
	if err != nil {
		h.logger.Error("manual backup failed", "error", err)
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}
