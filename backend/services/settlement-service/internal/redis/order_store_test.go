package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redislib "coursepay/backend/libs/redis"
	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// Runs against a real server when SETTLEMENT_TEST_REDIS_ADDR is set.
func testStore(t *testing.T) *OrderStore {
	t.Helper()
	addr := os.Getenv("SETTLEMENT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SETTLEMENT_TEST_REDIS_ADDR not set")
	}
	client, err := redislib.NewRedisClient(redislib.Options{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewOrderStore(client, time.Minute, time.Minute)
}

func TestOrderStoreRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	orderID := "test-" + uuid.NewString()

	_, err := store.GetOrder(ctx, orderID)
	assert.ErrorIs(t, err, errs.ErrOrderNotFound)

	handle := &models.OrderHandle{OrderID: orderID, CourseID: "c1", PayerID: "u1",
		Quote: models.PriceQuote{TotalCharged: decimal.RequireFromString("3.34")}}
	require.NoError(t, store.SaveOrder(ctx, handle))

	got, err := store.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.CourseID)
	assert.True(t, got.Quote.TotalCharged.Equal(handle.Quote.TotalCharged))

	require.NoError(t, store.DeleteOrder(ctx, orderID))
	_, err = store.GetOrder(ctx, orderID)
	assert.ErrorIs(t, err, errs.ErrOrderNotFound)
}

func TestOrderStoreKeepsFirstCapture(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	orderID := "test-" + uuid.NewString()

	require.NoError(t, store.SaveCapture(ctx, &models.CaptureResult{OrderID: orderID, GatewayTransactionID: "first"}))
	require.NoError(t, store.SaveCapture(ctx, &models.CaptureResult{OrderID: orderID, GatewayTransactionID: "second"}))

	got, err := store.GetCapture(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.GatewayTransactionID)
}
