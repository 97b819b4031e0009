package handlers

import (
	"log/slog"
	"net/http"
)

// RecoveryHandler handles email verification, status and cross-device recovery
type RecoveryHandler struct {
	svc    RecoveryService
	logger *slog.Logger
}

// NewRecoveryHandler creates a new recovery handler
func NewRecoveryHandler(svc RecoveryService, logger *slog.Logger) *RecoveryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryHandler{svc: svc, logger: logger}
}

// emailRequest is the request body for POST /recovery/email/request
type emailRequest struct {
	DeviceUUID string `json:"device_uuid"`
	Email      string `json:"email"`
}

// emailVerifyRequest is the request body for POST /recovery/email/verify
type emailVerifyRequest struct {
	DeviceUUID string `json:"device_uuid"`
	Email      string `json:"email"`
	Code       string `json:"code"`
}

// HandleStatus handles GET /recovery/status?device_uuid=
func (h *RecoveryHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Status(r.Context(), r.URL.Query().Get("device_uuid"))
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// HandleRequestCode handles POST /recovery/email/request
func (h *RecoveryHandler) HandleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.svc.RequestCode(r.Context(), req.DeviceUUID, req.Email); err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, okResponse{Status: "ok", Message: "verification code sent"})
}

// HandleVerifyCode handles POST /recovery/email/verify
func (h *RecoveryHandler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req emailVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.svc.VerifyCode(r.Context(), req.DeviceUUID, req.Email, req.Code); err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, okResponse{Status: "ok", Message: "email verified"})
}

// HandleRecoverBackup handles GET /recovery/backup?device_uuid=
func (h *RecoveryHandler) HandleRecoverBackup(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.RecoverBackup(r.Context(), r.URL.Query().Get("device_uuid"))
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}
