package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// OrderStore keeps pending order handles between create and capture, and
// capture results for replay.
type OrderStore struct {
	client     *redis.Client
	orderTTL   time.Duration
	captureTTL time.Duration
}

// NewOrderStore returns redis-backed store.
func NewOrderStore(client *redis.Client, orderTTL, captureTTL time.Duration) *OrderStore {
	return &OrderStore{client: client, orderTTL: orderTTL, captureTTL: captureTTL}
}

func (s *OrderStore) orderKey(orderID string) string {
	return fmt.Sprintf("settlement:order:%s", orderID)
}

func (s *OrderStore) captureKey(orderID string) string {
	return fmt.Sprintf("settlement:capture:%s", orderID)
}

// SaveOrder caches a pending handle.
func (s *OrderStore) SaveOrder(ctx context.Context, handle *models.OrderHandle) error {
	data, err := json.Marshal(handle)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.orderKey(handle.OrderID), data, s.orderTTL).Err(); err != nil {
		return errs.Persistence("save order", err)
	}
	return nil
}

// GetOrder returns a pending handle or errs.ErrOrderNotFound.
func (s *OrderStore) GetOrder(ctx context.Context, orderID string) (*models.OrderHandle, error) {
	var handle models.OrderHandle
	if err := s.get(ctx, s.orderKey(orderID), &handle); err != nil {
		return nil, err
	}
	return &handle, nil
}

// DeleteOrder drops a pending handle once it has been settled.
func (s *OrderStore) DeleteOrder(ctx context.Context, orderID string) error {
	if err := s.client.Del(ctx, s.orderKey(orderID)).Err(); err != nil {
		return errs.Persistence("delete order", err)
	}
	return nil
}

// SaveCapture stores the first capture result for an order. Later writes for
// the same order are ignored.
func (s *OrderStore) SaveCapture(ctx context.Context, result *models.CaptureResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := s.client.SetNX(ctx, s.captureKey(result.OrderID), data, s.captureTTL).Err(); err != nil {
		return errs.Persistence("save capture", err)
	}
	return nil
}

// GetCapture returns a stored capture result or errs.ErrOrderNotFound.
func (s *OrderStore) GetCapture(ctx context.Context, orderID string) (*models.CaptureResult, error) {
	var result models.CaptureResult
	if err := s.get(ctx, s.captureKey(orderID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *OrderStore) get(ctx context.Context, key string, v interface{}) error {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return errs.ErrOrderNotFound
	}
	if err != nil {
		return errs.Persistence("get "+key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errs.Persistence("decode "+key, err)
	}
	return nil
}
