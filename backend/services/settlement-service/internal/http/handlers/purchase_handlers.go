package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"coursepay/backend/services/settlement-service/internal/http/middleware"
	"coursepay/backend/services/settlement-service/internal/models"
	"coursepay/backend/services/settlement-service/internal/service"
)

// Settlement is the part of the settlement service the handlers call.
type Settlement interface {
	Quote(ctx context.Context, courseID string) (*models.Course, models.PriceQuote, error)
	CreateOrder(ctx context.Context, req service.OrderRequest) (*models.OrderHandle, error)
	Purchase(ctx context.Context, req service.PurchaseRequest) (*service.PurchaseResult, error)
}

// PurchaseHandlers serve the buyer side of a purchase.
type PurchaseHandlers struct {
	settlement Settlement
	logger     *zap.Logger
}

// NewPurchaseHandlers builds handlers.
func NewPurchaseHandlers(settlement Settlement, logger *zap.Logger) *PurchaseHandlers {
	return &PurchaseHandlers{settlement: settlement, logger: logger}
}

type quoteResponse struct {
	CourseID string            `json:"course_id"`
	Title    string            `json:"title"`
	Quote    models.PriceQuote `json:"quote"`
}

// Quote handles GET /api/quotes?course_id=.
func (h *PurchaseHandlers) Quote(w http.ResponseWriter, r *http.Request) {
	courseID := strings.TrimSpace(r.URL.Query().Get("course_id"))
	course, quote, err := h.settlement.Quote(r.Context(), courseID)
	if err != nil {
		writeServiceError(w, h.logger, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{CourseID: course.ID, Title: course.Title, Quote: quote})
}

type createOrderRequest struct {
	CourseID string `json:"course_id"`
}

// CreateOrder handles POST /api/purchases/orders.
func (h *PurchaseHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	handle, err := h.settlement.CreateOrder(r.Context(), service.OrderRequest{CourseID: req.CourseID, PayerID: userID})
	if err != nil {
		writeServiceError(w, h.logger, "create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, handle)
}

type captureRequest struct {
	CourseID string `json:"course_id"`
	OrderID  string `json:"order_id"`
}

// Capture handles POST /api/purchases/capture, called after the buyer
// approved the order with the gateway.
func (h *PurchaseHandlers) Capture(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req captureRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := h.settlement.Purchase(r.Context(), service.PurchaseRequest{
		CourseID: req.CourseID,
		PayerID:  userID,
		Approval: service.PaymentApproval{OrderID: strings.TrimSpace(req.OrderID)},
	})
	if err != nil {
		writeServiceError(w, h.logger, "capture", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
