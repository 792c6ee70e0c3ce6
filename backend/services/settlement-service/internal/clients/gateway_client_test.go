package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

type captureMap struct {
	mu    sync.Mutex
	items map[string]models.CaptureResult
}

func newCaptureMap() *captureMap {
	return &captureMap{items: make(map[string]models.CaptureResult)}
}

func (m *captureMap) GetCapture(_ context.Context, orderID string) (*models.CaptureResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.items[orderID]
	if !ok {
		return nil, errs.ErrOrderNotFound
	}
	return &res, nil
}

func (m *captureMap) SaveCapture(_ context.Context, res *models.CaptureResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[res.OrderID] = *res
	return nil
}

// fakeGateway is a tiny in-process order API.
type fakeGateway struct {
	createStatus  int
	captureStatus int
	captureDelay  time.Duration
	alreadyDone   bool

	creates  atomic.Int32
	captures atomic.Int32
	gets     atomic.Int32
	lastAuth atomic.Value
	lastBody atomic.Value
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.lastAuth.Store(r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v2/checkout/orders":
		g.creates.Add(1)
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.lastBody.Store(body)
		if g.createStatus != 0 {
			w.WriteHeader(g.createStatus)
			_, _ = w.Write([]byte(`{"name":"DECLINED","message":"nope"}`))
			return
		}
		_, _ = w.Write([]byte(`{"order_id":"ORD-1","status":"CREATED"}`))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/capture"):
		g.captures.Add(1)
		if g.captureDelay > 0 {
			time.Sleep(g.captureDelay)
		}
		if g.alreadyDone {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"name":"ORDER_ALREADY_CAPTURED"}`))
			return
		}
		if g.captureStatus != 0 {
			w.WriteHeader(g.captureStatus)
			return
		}
		_, _ = w.Write([]byte(`{"captured":true,"gateway_transaction_id":"CAP-1","amount":"3.34","currency":"USD"}`))
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v2/checkout/orders/"):
		g.gets.Add(1)
		_, _ = w.Write([]byte(`{"order_id":"ORD-1","status":"COMPLETED","amount":"3.34","currency":"USD",
			"capture":{"captured":true,"gateway_transaction_id":"CAP-OLD","amount":"3.34","currency":"USD"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestGateway(t *testing.T, fake *fakeGateway, store CaptureStore) *GatewayClient {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewGatewayClient(GatewayConfig{
		BaseURL:  srv.URL,
		ClientID: "client",
		Secret:   "secret",
		Timeout:  200 * time.Millisecond,
	}, srv.Client(), store, zaptest.NewLogger(t))
}

func scenarioQuote() models.PriceQuote {
	return models.PriceQuote{
		ListedAmount:       decimal.NewFromInt(100),
		ListedCurrency:     "EGP",
		SettlementAmount:   decimal.RequireFromString("3.23"),
		SettlementCurrency: "USD",
		GatewayFee:         decimal.RequireFromString("0.11"),
		TotalCharged:       decimal.RequireFromString("3.34"),
	}
}

func scenarioHandle() *models.OrderHandle {
	return &models.OrderHandle{OrderID: "ORD-1", CourseID: "c1", PayerID: "u1", Quote: scenarioQuote()}
}

func TestGatewayMissingCredentialsFailsFast(t *testing.T) {
	fake := &fakeGateway{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := NewGatewayClient(GatewayConfig{BaseURL: srv.URL, ClientID: "client"}, srv.Client(), nil, zaptest.NewLogger(t))

	_, err := client.CreateOrder(context.Background(), scenarioQuote(), OrderMetadata{CourseID: "c1", PayerID: "u1"})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = client.CaptureOrder(context.Background(), scenarioHandle())
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Zero(t, fake.creates.Load()+fake.captures.Load())
}

func TestGatewayCreateOrder(t *testing.T) {
	fake := &fakeGateway{}
	client := newTestGateway(t, fake, nil)

	handle, err := client.CreateOrder(context.Background(), scenarioQuote(), OrderMetadata{CourseID: "c1", PayerID: "u1", Description: "Go course"})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", handle.OrderID)
	assert.Equal(t, "c1", handle.CourseID)
	assert.True(t, strings.HasPrefix(fake.lastAuth.Load().(string), "Basic "))

	body := fake.lastBody.Load().(map[string]interface{})
	assert.Equal(t, "3.34", body["amount"])
	assert.Equal(t, "USD", body["currency"])
	assert.Equal(t, handle.CorrelationID, body["correlation_id"])

	corr, err := DecodeCorrelation(handle.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, "c1", corr.CourseID)
	assert.Equal(t, "u1", corr.PayerID)
	assert.True(t, corr.ListedAmount.Equal(decimal.NewFromInt(100)))
}

func TestGatewayCreateOrderClassifiesFailures(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusServiceUnavailable, errs.ErrGatewayUnavailable},
		{http.StatusTooManyRequests, errs.ErrGatewayUnavailable},
		{http.StatusBadRequest, errs.ErrOrderRejected},
		{http.StatusUnauthorized, errs.ErrConfiguration},
	}
	for _, tc := range cases {
		client := newTestGateway(t, &fakeGateway{createStatus: tc.status}, nil)
		_, err := client.CreateOrder(context.Background(), scenarioQuote(), OrderMetadata{CourseID: "c1", PayerID: "u1"})
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}
}

func TestGatewayCaptureIsReplayedFromStore(t *testing.T) {
	fake := &fakeGateway{}
	store := newCaptureMap()
	client := newTestGateway(t, fake, store)

	first, err := client.CaptureOrder(context.Background(), scenarioHandle())
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.Equal(t, "CAP-1", first.GatewayTransactionID)
	assert.Equal(t, "3.34", first.Amount.StringFixed(2))
	assert.True(t, first.ListedAmount.Equal(decimal.NewFromInt(100)))

	second, err := client.CaptureOrder(context.Background(), scenarioHandle())
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.GatewayTransactionID, second.GatewayTransactionID)
	assert.EqualValues(t, 1, fake.captures.Load())
}

func TestGatewayConcurrentCapturesSendOneRequest(t *testing.T) {
	fake := &fakeGateway{captureDelay: 50 * time.Millisecond}
	client := newTestGateway(t, fake, newCaptureMap())

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := client.CaptureOrder(context.Background(), scenarioHandle())
			if err == nil {
				ids[i] = res.GatewayTransactionID
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, fake.captures.Load())
	for _, id := range ids {
		assert.Equal(t, "CAP-1", id)
	}
}

func TestGatewayAlreadyCapturedResolvesThroughStatus(t *testing.T) {
	fake := &fakeGateway{alreadyDone: true}
	client := newTestGateway(t, fake, newCaptureMap())

	res, err := client.CaptureOrder(context.Background(), scenarioHandle())
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, "CAP-OLD", res.GatewayTransactionID)
	assert.EqualValues(t, 1, fake.gets.Load())
}

func TestGatewayCaptureTimeoutIsAmbiguous(t *testing.T) {
	fake := &fakeGateway{captureDelay: time.Second}
	client := newTestGateway(t, fake, nil)

	_, err := client.CaptureOrder(context.Background(), scenarioHandle())
	assert.ErrorIs(t, err, errs.ErrAmbiguousCapture)
	assert.False(t, errs.IsRetryable(err))
}

func TestGatewayCaptureServerErrorIsAmbiguous(t *testing.T) {
	client := newTestGateway(t, &fakeGateway{captureStatus: http.StatusBadGateway}, nil)
	_, err := client.CaptureOrder(context.Background(), scenarioHandle())
	assert.ErrorIs(t, err, errs.ErrAmbiguousCapture)
}

func TestGatewayGetOrder(t *testing.T) {
	client := newTestGateway(t, &fakeGateway{}, nil)

	order, err := client.GetOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.True(t, order.Completed())

	res, err := client.CaptureFromOrder(order, scenarioHandle())
	require.NoError(t, err)
	assert.Equal(t, "CAP-OLD", res.GatewayTransactionID)

	order.Status = OrderStatusApproved
	_, err = client.CaptureFromOrder(order, scenarioHandle())
	assert.ErrorIs(t, err, errs.ErrNotCaptured)
}

func TestCorrelationRoundTripAndTamper(t *testing.T) {
	token := EncodeCorrelation(Correlation{CourseID: "c1", PayerID: "u1", ListedAmount: decimal.NewFromInt(100), ListedCurrency: "EGP"})
	corr, err := DecodeCorrelation(token)
	require.NoError(t, err)
	assert.NotEmpty(t, corr.Nonce)
	assert.NotEqual(t, token, EncodeCorrelation(Correlation{CourseID: "c1", PayerID: "u1"}))

	_, err = DecodeCorrelation("not base64 !!")
	assert.ErrorIs(t, err, errs.ErrCorrelationMismatch)
	_, err = DecodeCorrelation(EncodeCorrelation(Correlation{CourseID: "c1"}))
	assert.ErrorIs(t, err, errs.ErrCorrelationMismatch)
}
