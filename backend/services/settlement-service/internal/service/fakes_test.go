package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"coursepay/backend/services/settlement-service/internal/clients"
	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/memstore"
	"coursepay/backend/services/settlement-service/internal/models"
)

var fastRetry = RetryPolicy{Attempts: 3, Delay: time.Millisecond}

// stubGateway behaves like a gateway that never double-charges.
type stubGateway struct {
	mu           sync.Mutex
	seq          int
	orders       map[string]*clients.GatewayOrder
	createErrs   []error
	createCalls  int
	captureCalls int
	// loseCaptureResponse captures the order but reports an ambiguous outcome.
	loseCaptureResponse bool
	captureErr          error
}

func newStubGateway() *stubGateway {
	return &stubGateway{orders: make(map[string]*clients.GatewayOrder)}
}

func (g *stubGateway) CreateOrder(_ context.Context, quote models.PriceQuote, meta clients.OrderMetadata) (*models.OrderHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if len(g.createErrs) > 0 {
		err := g.createErrs[0]
		g.createErrs = g.createErrs[1:]
		return nil, err
	}
	g.seq++
	id := fmt.Sprintf("ORD-%d", g.seq)
	corr := clients.EncodeCorrelation(clients.Correlation{
		CourseID: meta.CourseID, PayerID: meta.PayerID,
		ListedAmount: quote.ListedAmount, ListedCurrency: quote.ListedCurrency,
	})
	g.orders[id] = &clients.GatewayOrder{
		OrderID: id, Status: clients.OrderStatusApproved, CorrelationID: corr,
		Amount: quote.TotalCharged, Currency: quote.SettlementCurrency,
	}
	return &models.OrderHandle{OrderID: id, CorrelationID: corr, CourseID: meta.CourseID, PayerID: meta.PayerID, Quote: quote}, nil
}

func (g *stubGateway) CaptureOrder(_ context.Context, handle *models.OrderHandle) (*models.CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls++
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	order, ok := g.orders[handle.OrderID]
	if !ok {
		return nil, errs.ErrOrderRejected
	}
	replayed := order.Completed()
	if !replayed {
		order.Status = clients.OrderStatusCompleted
		order.Capture = &clients.GatewayCapture{
			Captured: true, GatewayTransactionID: "CAP-" + order.OrderID,
			Amount: order.Amount, Currency: order.Currency,
		}
	}
	if g.loseCaptureResponse {
		return nil, errs.ErrAmbiguousCapture
	}
	res := captureFrom(order, handle)
	res.Replayed = replayed
	return res, nil
}

func (g *stubGateway) GetOrder(_ context.Context, orderID string) (*clients.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return nil, errs.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (g *stubGateway) CaptureFromOrder(order *clients.GatewayOrder, handle *models.OrderHandle) (*models.CaptureResult, error) {
	if !order.Completed() {
		return nil, errs.ErrNotCaptured
	}
	return captureFrom(order, handle), nil
}

func captureFrom(order *clients.GatewayOrder, handle *models.OrderHandle) *models.CaptureResult {
	return &models.CaptureResult{
		OrderID: order.OrderID, GatewayTransactionID: order.Capture.GatewayTransactionID, Captured: true,
		Amount: order.Capture.Amount, Currency: order.Capture.Currency,
		CourseID: handle.CourseID, PayerID: handle.PayerID,
		ListedAmount: handle.Quote.ListedAmount, ListedCurrency: handle.Quote.ListedCurrency,
		CapturedAt: time.Now().UTC(),
	}
}

type stubEmail struct {
	mu         sync.Mutex
	configured bool
	err        error
	sent       []models.NotificationKind
}

func (e *stubEmail) Configured() bool { return e.configured }

func (e *stubEmail) Send(_ context.Context, kind models.NotificationKind, _ models.Recipient, _ map[string]string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	e.sent = append(e.sent, kind)
	return fmt.Sprintf("msg-%d", len(e.sent)), nil
}

type stubAlerts struct {
	mu     sync.Mutex
	err    error
	alerts map[string][]models.Alert
}

func newStubAlerts() *stubAlerts {
	return &stubAlerts{alerts: make(map[string][]models.Alert)}
}

func (a *stubAlerts) SendAlert(_ context.Context, userID string, alert models.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.alerts[userID] = append(a.alerts[userID], alert)
	return nil
}

func (a *stubAlerts) count(userID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts[userID])
}

type pipeline struct {
	store   *memstore.Store
	gateway *stubGateway
	email   *stubEmail
	alerts  *stubAlerts
	svc     *SettlementService
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memstore.New(time.Hour, 0)
	store.PutUser(models.UserProfile{ID: "inst-1", Email: "inst@example.com", DisplayName: "Instructor"})
	store.PutUser(models.UserProfile{ID: "stud-1", Email: "stud@example.com", DisplayName: "Student"})
	store.PutCourse(models.Course{ID: "course-1", InstructorID: "inst-1", Title: "Go in Practice",
		Price: decimal.NewFromInt(100), Currency: "EGP"})

	p := &pipeline{store: store, gateway: newStubGateway(), email: &stubEmail{}, alerts: newStubAlerts()}
	pricer := testPricer()
	p.svc = NewSettlementService(SettlementDeps{
		Pricer:      pricer,
		Gateway:     p.gateway,
		Orders:      store,
		Courses:     store,
		Users:       store,
		Recorder:    NewRecorder(store, fastRetry, logger),
		Enrollments: NewEnrollmentService(store, fastRetry, logger),
		Earnings:    NewEarningsService(store, store, pricer, fastRetry, logger),
		Notifier:    NewNotifier(p.email, p.alerts, store, logger),
		CreateRetry: fastRetry,
		StatusRetry: fastRetry,
	}, logger)
	return p
}
