package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// maxBackupBytes bounds a single uploaded snapshot
const maxBackupBytes = 8 << 20

// BackupHandler handles the per-device backup endpoints
type BackupHandler struct {
	svc    RecoveryService
	logger *slog.Logger
}

// NewBackupHandler creates a new backup handler
func NewBackupHandler(svc RecoveryService, logger *slog.Logger) *BackupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupHandler{svc: svc, logger: logger}
}

// HandleUpsert handles POST /backups. The body is the whole snapshot document.
func (h *BackupHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBackupBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "backup payload too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	deviceUUID, err := h.svc.UpsertBackup(r.Context(), body)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, okResponse{Status: "ok", DeviceUUID: deviceUUID})
}

// HandleLatest handles GET /backups/latest?device_uuid=
func (h *BackupHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.LatestBackup(r.Context(), r.URL.Query().Get("device_uuid"))
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}
