package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// Recorder turns a confirmed capture into the transaction record. Once Record
// returns, the sale has happened.
type Recorder struct {
	store  TransactionStore
	retry  RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder builds recorder.
func NewRecorder(store TransactionStore, retry RetryPolicy, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:  store,
		retry:  retry,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record persists the capture. A second capture of the same gateway order
// returns the transaction recorded the first time.
func (r *Recorder) Record(ctx context.Context, capture *models.CaptureResult) (*models.Transaction, error) {
	if capture == nil || !capture.Captured {
		return nil, fmt.Errorf("record: %w", errs.ErrNotCaptured)
	}
	if capture.OrderID == "" || capture.CourseID == "" || capture.PayerID == "" {
		return nil, fmt.Errorf("record: %w", errs.ErrInvalidID)
	}
	if !capture.Amount.IsPositive() {
		return nil, fmt.Errorf("record: %w", errs.ErrInvalidAmount)
	}

	capturedAt := capture.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = r.now()
	}
	tx := &models.Transaction{
		ID:                   uuid.NewString(),
		GatewayOrderID:       capture.OrderID,
		GatewayTransactionID: capture.GatewayTransactionID,
		CourseID:             capture.CourseID,
		PayerID:              capture.PayerID,
		SettlementAmount:     capture.Amount,
		SettlementCurrency:   capture.Currency,
		ListedAmount:         capture.ListedAmount,
		ListedCurrency:       capture.ListedCurrency,
		Status:               models.TransactionStatusCompleted,
		CreatedAt:            r.now(),
		CapturedAt:           capturedAt,
	}

	var (
		stored  *models.Transaction
		created bool
	)
	err := r.retry.do(ctx, func() error {
		var err error
		stored, created, err = r.store.InsertTransaction(ctx, tx)
		return err
	})
	if err != nil {
		r.logger.Error("failed to record transaction",
			zap.String("order_id", capture.OrderID),
			zap.String("gateway_transaction_id", capture.GatewayTransactionID),
			zap.Error(err),
		)
		return nil, err
	}

	if created {
		r.logger.Info("transaction recorded",
			zap.String("transaction_id", stored.ID),
			zap.String("order_id", stored.GatewayOrderID),
			zap.String("amount", stored.SettlementAmount.StringFixed(2)),
			zap.String("currency", stored.SettlementCurrency),
		)
	} else {
		r.logger.Info("transaction already recorded", zap.String("transaction_id", stored.ID), zap.String("order_id", stored.GatewayOrderID))
	}
	return stored, nil
}
