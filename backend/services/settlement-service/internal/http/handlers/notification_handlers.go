package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"coursepay/backend/services/settlement-service/internal/http/middleware"
	"coursepay/backend/services/settlement-service/internal/models"
)

// Dispatcher sends a notification to a known user.
type Dispatcher interface {
	NotifyUser(ctx context.Context, kind models.NotificationKind, userID string, params map[string]string) (models.NotificationOutcome, error)
}

// NotificationHandlers expose the dispatcher.
type NotificationHandlers struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewNotificationHandlers builds handlers.
func NewNotificationHandlers(dispatcher Dispatcher, logger *zap.Logger) *NotificationHandlers {
	return &NotificationHandlers{dispatcher: dispatcher, logger: logger}
}

// Test handles POST /api/notifications/test: sends a test notification to
// the caller so an instructor can check their setup.
func (h *NotificationHandlers) Test(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	outcome, err := h.dispatcher.NotifyUser(r.Context(), models.NotificationTest, userID, map[string]string{
		"message": "This is a test notification.",
	})
	if err != nil {
		writeServiceError(w, h.logger, "test notification", err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type internalNotificationRequest struct {
	Kind        models.NotificationKind `json:"kind"`
	RecipientID string                  `json:"recipient_id"`
	Context     map[string]string       `json:"context"`
}

// Internal handles POST /internal/notifications from the payout and monthly
// report jobs. Delivery failure is reported in the body, not the status.
func (h *NotificationHandlers) Internal(w http.ResponseWriter, r *http.Request) {
	var req internalNotificationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	outcome, err := h.dispatcher.NotifyUser(r.Context(), req.Kind, req.RecipientID, req.Context)
	if err != nil {
		writeServiceError(w, h.logger, "internal notification", err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
