package clients

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/metrics"
	"coursepay/backend/services/settlement-service/internal/models"
)

// Gateway order statuses.
const (
	OrderStatusCreated   = "CREATED"
	OrderStatusApproved  = "APPROVED"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusVoided    = "VOIDED"
)

const errorNameAlreadyCaptured = "ORDER_ALREADY_CAPTURED"

// CaptureStore remembers capture results so a repeated capture is replayed
// instead of sent again. GetCapture returns errs.ErrOrderNotFound when absent.
type CaptureStore interface {
	GetCapture(ctx context.Context, orderID string) (*models.CaptureResult, error)
	SaveCapture(ctx context.Context, result *models.CaptureResult) error
}

// GatewayConfig holds gateway credentials and the per-call timeout.
type GatewayConfig struct {
	BaseURL  string
	ClientID string
	Secret   string
	Timeout  time.Duration
}

// OrderMetadata describes what an order pays for.
type OrderMetadata struct {
	CourseID    string
	PayerID     string
	Description string
}

// GatewayCapture is the capture section of a gateway order.
type GatewayCapture struct {
	Captured             bool            `json:"captured"`
	GatewayTransactionID string          `json:"gateway_transaction_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	CapturedAt           *time.Time      `json:"captured_at,omitempty"`
}

// GatewayOrder is the gateway's view of an order.
type GatewayOrder struct {
	OrderID       string          `json:"order_id"`
	Status        string          `json:"status"`
	CorrelationID string          `json:"correlation_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Capture       *GatewayCapture `json:"capture,omitempty"`
}

// Completed reports whether funds were captured.
func (o *GatewayOrder) Completed() bool {
	return o.Status == OrderStatusCompleted && o.Capture != nil && o.Capture.Captured
}

type createOrderRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	CorrelationID string          `json:"correlation_id"`
}

type createOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type gatewayError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// GatewayClient is the payment gateway adapter. It keeps no state between
// calls apart from the capture store; it never retries on its own.
type GatewayClient struct {
	base     *BaseClient
	cfg      GatewayConfig
	captures CaptureStore
	group    singleflight.Group
	logger   *zap.Logger
	now      func() time.Time
}

// NewGatewayClient returns the adapter. httpClient may be nil.
func NewGatewayClient(cfg GatewayConfig, httpClient HTTPDoer, captures CaptureStore, logger *zap.Logger) *GatewayClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = NewDefaultHTTPClient(0)
	}
	return &GatewayClient{
		base:     NewBaseClient(cfg.BaseURL, httpClient),
		cfg:      cfg,
		captures: captures,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder registers a payment order for quote.TotalCharged. A timeout here
// is reported as ErrGatewayUnavailable: nothing has been charged yet.
func (c *GatewayClient) CreateOrder(ctx context.Context, quote models.PriceQuote, meta OrderMetadata) (*models.OrderHandle, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	if meta.CourseID == "" || meta.PayerID == "" {
		return nil, fmt.Errorf("create order: %w", errs.ErrInvalidID)
	}
	if !quote.TotalCharged.IsPositive() {
		return nil, fmt.Errorf("create order: %w", errs.ErrInvalidAmount)
	}

	correlationID := EncodeCorrelation(Correlation{
		CourseID:       meta.CourseID,
		PayerID:        meta.PayerID,
		ListedAmount:   quote.ListedAmount,
		ListedCurrency: quote.ListedCurrency,
	})

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.base.Do(callCtx, http.MethodPost, "/v2/checkout/orders", createOrderRequest{
		Amount:        quote.TotalCharged,
		Currency:      quote.SettlementCurrency,
		Description:   meta.Description,
		CorrelationID: correlationID,
	}, c.headers(""))
	if err != nil {
		observe("create", "unavailable", start)
		return nil, fmt.Errorf("create order: %w: %v", errs.ErrGatewayUnavailable, err)
	}
	if !resp.OK() {
		err := c.classify("create order", resp, errs.ErrGatewayUnavailable)
		observe("create", resultLabel(err), start)
		return nil, err
	}

	var out createOrderResponse
	if err := resp.Decode(&out); err != nil || out.OrderID == "" {
		observe("create", "unavailable", start)
		return nil, fmt.Errorf("create order: %w: malformed response", errs.ErrGatewayUnavailable)
	}
	observe("create", "ok", start)

	c.logger.Info("gateway order created",
		zap.String("order_id", out.OrderID),
		zap.String("course_id", meta.CourseID),
		zap.String("payer_id", meta.PayerID),
		zap.String("amount", quote.TotalCharged.StringFixed(2)),
	)

	return &models.OrderHandle{
		OrderID:       out.OrderID,
		CorrelationID: correlationID,
		CourseID:      meta.CourseID,
		PayerID:       meta.PayerID,
		Quote:         quote,
		CreatedAt:     c.now(),
	}, nil
}

// CaptureOrder transfers the approved funds. Repeated calls for one order are
// safe: concurrent callers share one request, an earlier stored result is
// replayed, and a gateway "already captured" answer is resolved through
// GetOrder. A timeout or transport failure returns ErrAmbiguousCapture because
// the gateway may have captured anyway.
func (c *GatewayClient) CaptureOrder(ctx context.Context, handle *models.OrderHandle) (*models.CaptureResult, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	if handle == nil || handle.OrderID == "" {
		return nil, fmt.Errorf("capture order: %w", errs.ErrInvalidID)
	}

	v, err, _ := c.group.Do(handle.OrderID, func() (interface{}, error) {
		return c.capture(ctx, handle)
	})
	if err != nil {
		return nil, err
	}
	result := *v.(*models.CaptureResult)
	return &result, nil
}

func (c *GatewayClient) capture(ctx context.Context, handle *models.OrderHandle) (*models.CaptureResult, error) {
	if c.captures != nil {
		prev, err := c.captures.GetCapture(ctx, handle.OrderID)
		switch {
		case err == nil:
			prev.Replayed = true
			return prev, nil
		case !errors.Is(err, errs.ErrOrderNotFound):
			c.logger.Warn("capture store lookup failed, asking gateway", zap.String("order_id", handle.OrderID), zap.Error(err))
		}
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.base.Do(callCtx, http.MethodPost, c.orderPath(handle.OrderID)+"/capture", struct{}{}, c.headers("capture-"+handle.OrderID))
	if err != nil {
		observe("capture", "ambiguous", start)
		return nil, fmt.Errorf("capture order %s: %w: %v", handle.OrderID, errs.ErrAmbiguousCapture, err)
	}

	if resp.Status == http.StatusUnprocessableEntity && errorName(resp) == errorNameAlreadyCaptured {
		observe("capture", "replayed", start)
		order, err := c.GetOrder(ctx, handle.OrderID)
		if err != nil {
			return nil, fmt.Errorf("capture order %s: already captured, status lookup failed: %w", handle.OrderID, errs.ErrAmbiguousCapture)
		}
		result, err := c.CaptureFromOrder(order, handle)
		if err != nil {
			return nil, err
		}
		result.Replayed = true
		c.remember(ctx, result)
		return result, nil
	}

	if !resp.OK() {
		err := c.classify("capture order "+handle.OrderID, resp, errs.ErrAmbiguousCapture)
		observe("capture", resultLabel(err), start)
		return nil, err
	}

	var captured GatewayCapture
	if err := resp.Decode(&captured); err != nil {
		observe("capture", "ambiguous", start)
		return nil, fmt.Errorf("capture order %s: %w: malformed response", handle.OrderID, errs.ErrAmbiguousCapture)
	}
	if !captured.Captured {
		observe("capture", "rejected", start)
		return nil, fmt.Errorf("capture order %s: %w: gateway did not capture", handle.OrderID, errs.ErrOrderRejected)
	}
	observe("capture", "ok", start)

	result := c.buildResult(handle, captured)
	c.remember(ctx, result)

	c.logger.Info("gateway order captured",
		zap.String("order_id", handle.OrderID),
		zap.String("gateway_transaction_id", result.GatewayTransactionID),
		zap.String("amount", result.Amount.StringFixed(2)),
	)
	return result, nil
}

// GetOrder re-queries the gateway for an order's actual status.
func (c *GatewayClient) GetOrder(ctx context.Context, orderID string) (*GatewayOrder, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	if orderID == "" {
		return nil, fmt.Errorf("get order: %w", errs.ErrInvalidID)
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.base.Do(callCtx, http.MethodGet, c.orderPath(orderID), nil, c.headers(""))
	if err != nil {
		observe("get", "unavailable", start)
		return nil, fmt.Errorf("get order %s: %w: %v", orderID, errs.ErrGatewayUnavailable, err)
	}
	if resp.Status == http.StatusNotFound {
		observe("get", "not_found", start)
		return nil, fmt.Errorf("get order %s: %w", orderID, errs.ErrOrderNotFound)
	}
	if !resp.OK() {
		err := c.classify("get order "+orderID, resp, errs.ErrGatewayUnavailable)
		observe("get", resultLabel(err), start)
		return nil, err
	}

	var order GatewayOrder
	if err := resp.Decode(&order); err != nil {
		observe("get", "unavailable", start)
		return nil, fmt.Errorf("get order %s: %w: malformed response", orderID, errs.ErrGatewayUnavailable)
	}
	if order.OrderID == "" {
		order.OrderID = orderID
	}
	observe("get", "ok", start)
	return &order, nil
}

// CaptureFromOrder turns a completed gateway order into a capture result.
func (c *GatewayClient) CaptureFromOrder(order *GatewayOrder, handle *models.OrderHandle) (*models.CaptureResult, error) {
	if !order.Completed() {
		return nil, fmt.Errorf("order %s is %s: %w", order.OrderID, order.Status, errs.ErrNotCaptured)
	}
	return c.buildResult(handle, *order.Capture), nil
}

func (c *GatewayClient) buildResult(handle *models.OrderHandle, captured GatewayCapture) *models.CaptureResult {
	capturedAt := c.now()
	if captured.CapturedAt != nil {
		capturedAt = captured.CapturedAt.UTC()
	}
	currency := captured.Currency
	if currency == "" {
		currency = handle.Quote.SettlementCurrency
	}
	amount := captured.Amount
	if amount.IsZero() {
		amount = handle.Quote.TotalCharged
	}
	return &models.CaptureResult{
		OrderID:              handle.OrderID,
		GatewayTransactionID: captured.GatewayTransactionID,
		Captured:             true,
		Amount:               amount,
		Currency:             strings.ToUpper(currency),
		CourseID:             handle.CourseID,
		PayerID:              handle.PayerID,
		ListedAmount:         handle.Quote.ListedAmount,
		ListedCurrency:       handle.Quote.ListedCurrency,
		CapturedAt:           capturedAt,
	}
}

func (c *GatewayClient) remember(ctx context.Context, result *models.CaptureResult) {
	if c.captures == nil {
		return
	}
	stored := *result
	stored.Replayed = false
	if err := c.captures.SaveCapture(ctx, &stored); err != nil {
		c.logger.Warn("failed to store capture result", zap.String("order_id", result.OrderID), zap.Error(err))
	}
}

func (c *GatewayClient) checkConfig() error {
	var missing []string
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		missing = append(missing, "base url")
	}
	if strings.TrimSpace(c.cfg.ClientID) == "" {
		missing = append(missing, "client id")
	}
	if strings.TrimSpace(c.cfg.Secret) == "" {
		missing = append(missing, "secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("gateway: missing %s: %w", strings.Join(missing, ", "), errs.ErrConfiguration)
	}
	return nil
}

func (c *GatewayClient) headers(idempotencyKey string) map[string]string {
	creds := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.Secret))
	h := map[string]string{"Authorization": "Basic " + creds}
	if idempotencyKey != "" {
		h["Idempotency-Key"] = idempotencyKey
	}
	return h
}

func (c *GatewayClient) orderPath(orderID string) string {
	return "/v2/checkout/orders/" + url.PathEscape(orderID)
}

// classify maps a non-2xx response. Server-side failures map to transient,
// which is ErrGatewayUnavailable or, during capture, ErrAmbiguousCapture.
func (c *GatewayClient) classify(op string, resp Response, transient error) error {
	detail := errorMessage(resp)
	switch {
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		return fmt.Errorf("%s: gateway refused credentials (%d): %w", op, resp.Status, errs.ErrConfiguration)
	case resp.Status == http.StatusRequestTimeout || resp.Status == http.StatusTooManyRequests || resp.Status >= 500:
		return fmt.Errorf("%s: status %d %s: %w", op, resp.Status, detail, transient)
	default:
		return fmt.Errorf("%s: status %d %s: %w", op, resp.Status, detail, errs.ErrOrderRejected)
	}
}

func errorName(resp Response) string {
	var ge gatewayError
	if err := resp.Decode(&ge); err != nil {
		return ""
	}
	return ge.Name
}

func errorMessage(resp Response) string {
	var ge gatewayError
	if err := resp.Decode(&ge); err != nil || (ge.Name == "" && ge.Message == "") {
		return ""
	}
	return strings.TrimSpace(ge.Name + " " + ge.Message)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrConfiguration):
		return "configuration"
	case errors.Is(err, errs.ErrOrderRejected):
		return "rejected"
	case errors.Is(err, errs.ErrAmbiguousCapture):
		return "ambiguous"
	default:
		return "unavailable"
	}
}

func observe(op, result string, start time.Time) {
	metrics.GatewayLatency.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}
