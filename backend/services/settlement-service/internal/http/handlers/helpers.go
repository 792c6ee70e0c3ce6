package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"coursepay/backend/services/settlement-service/internal/errs"
)

const maxBodyBytes = 64 * 1024

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, false
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, errs.ErrOrderRejected):
		return http.StatusPaymentRequired, false
	case errors.Is(err, errs.ErrGatewayUnavailable), errors.Is(err, errs.ErrAmbiguousCapture),
		errors.Is(err, errs.ErrCaptureUnrecorded):
		return http.StatusServiceUnavailable, true
	default:
		return http.StatusInternalServerError, false
	}
}

// writeServiceError hides internal causes behind a generic message for 5xx.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	status, retryable := statusFor(err)
	message := err.Error()
	switch {
	case errors.Is(err, errs.ErrCaptureUnrecorded):
		logger.Error(op+" failed", zap.Error(err))
		message = "payment captured but not recorded, retry the capture"
	case status == http.StatusInternalServerError:
		logger.Error(op+" failed", zap.Error(err))
		message = "internal error"
	default:
		logger.Warn(op+" failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: message, Retryable: retryable})
}
