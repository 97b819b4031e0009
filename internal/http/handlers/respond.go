package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/habitcell/server/internal/model"
	"github.com/habitcell/server/internal/recovery"
)

// RecoveryService is the part of recovery.Service the HTTP layer depends on
type RecoveryService interface {
	UpsertBackup(ctx context.Context, body []byte) (string, error)
	LatestBackup(ctx context.Context, deviceUUID string) (model.BackupSnapshot, error)
	RecoverBackup(ctx context.Context, deviceUUID string) (model.BackupSnapshot, error)
	Status(ctx context.Context, deviceUUID string) (model.RecoveryStatus, error)
	RequestCode(ctx context.Context, deviceUUID, email string) error
	VerifyCode(ctx context.Context, deviceUUID, email, code string) error
}

// errorResponse is the body of every non-2xx response
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// okResponse acknowledges a state change
type okResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	DeviceUUID string `json:"device_uuid,omitempty"`
}

type errorMapping struct {
	kind   error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{recovery.ErrValidation, http.StatusBadRequest, "validation_error"},
	{recovery.ErrNotFound, http.StatusNotFound, "not_found"},
	{recovery.ErrVerificationRequired, http.StatusForbidden, "verification_required"},
	{recovery.ErrChallengeNotFound, http.StatusBadRequest, "challenge_not_found"},
	{recovery.ErrCodeMismatch, http.StatusBadRequest, "code_mismatch"},
	{recovery.ErrCodeExpired, http.StatusBadRequest, "code_expired"},
	{recovery.ErrAttemptsExhausted, http.StatusBadRequest, "attempts_exhausted"},
	{recovery.ErrDeliveryUnavailable, http.StatusServiceUnavailable, "delivery_unavailable"},
}

// statusFor maps an error kind to HTTP status and stable code. Anything unmapped is internal.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondWithServiceError logs internal failures with their cause and writes the client-safe form
func respondWithServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	respondWithError(w, status, code, recovery.PublicMessage(err))
}

// maxJSONBodyBytes bounds the small JSON bodies of the verification endpoints
const maxJSONBodyBytes = 4 << 10

// decodeJSON decodes a size-capped body into dst. On failure it writes the response and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondWithError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
		return false
	}
	respondWithError(w, http.StatusBadRequest, "validation_error", "invalid request body")
	return false
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, code, message string) {
	respondWithJSON(w, statusCode, errorResponse{Error: code, Message: message})
}

func respondWithJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
