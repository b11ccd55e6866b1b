package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/basket/internal/backup"
)

type BackupHandler struct {
	manager *backup.Manager
	logger  *slog.Logger
}

func NewBackupHandler(m *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, logger: logger}
}

// Status handles GET /api/backup
func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// Run handles POST /api/backup
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	key, err := h.manager.RunNow(r.Context())
	if err != nil {
		if errors.Is(err, backup.ErrDisabled) {
			writeErr(w, http.StatusNotFound, "backups are not configured")
			return
		}
		h.logger.Error("run backup", "error", err)
		writeErr(w, http.StatusBadGateway, "backup failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}
