package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// EarningsService credits instructors for recorded sales.
//
// Balances are never read and written back. The ledger store applies each
// credit as an in-place increment together with an idempotency row keyed by
// the transaction id, so concurrent sales of one instructor's courses cannot
// lose updates and a repeated credit is a no-op.
type EarningsService struct {
	courses CourseStore
	ledger  LedgerStore
	pricer  *Pricer
	retry   RetryPolicy
	logger  *zap.Logger
	now     func() time.Time
}

// NewEarningsService builds service.
func NewEarningsService(courses CourseStore, ledger LedgerStore, pricer *Pricer, retry RetryPolicy, logger *zap.Logger) *EarningsService {
	return &EarningsService{
		courses: courses,
		ledger:  ledger,
		pricer:  pricer,
		retry:   retry,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Credit applies the instructor share of tx.ListedAmount to the course owner
// and adds the sale to the course aggregate.
func (s *EarningsService) Credit(ctx context.Context, tx *models.Transaction) (*models.LedgerUpdateResult, error) {
	if tx == nil || tx.ID == "" {
		return nil, fmt.Errorf("credit: %w", errs.ErrInvalidID)
	}
	if !tx.ListedAmount.IsPositive() {
		return nil, fmt.Errorf("credit %s: %w", tx.ID, errs.ErrInvalidAmount)
	}

	course, err := s.courses.GetCourse(ctx, tx.CourseID)
	if err != nil {
		return nil, fmt.Errorf("credit %s: %w", tx.ID, err)
	}
	if course.InstructorID == "" {
		return nil, fmt.Errorf("credit %s: course %s has no instructor: %w", tx.ID, course.ID, errs.ErrUserNotFound)
	}

	share, commission := s.pricer.Split(tx.ListedAmount)
	credit := models.EarningsCredit{
		TransactionID:      tx.ID,
		InstructorID:       course.InstructorID,
		CourseID:           course.ID,
		GrossAmount:        tx.ListedAmount,
		InstructorShare:    share,
		PlatformCommission: commission,
		Currency:           tx.ListedCurrency,
		CreditedAt:         s.now(),
	}

	var applied bool
	err = s.retry.do(ctx, func() error {
		var err error
		applied, err = s.ledger.ApplyCredit(ctx, credit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("credit %s: %w", tx.ID, err)
	}

	if applied {
		s.logger.Info("instructor credited",
			zap.String("transaction_id", tx.ID),
			zap.String("instructor_id", credit.InstructorID),
			zap.String("share", share.StringFixed(2)),
			zap.String("commission", commission.StringFixed(2)),
			zap.String("currency", credit.Currency),
		)
	} else {
		s.logger.Info("transaction already credited", zap.String("transaction_id", tx.ID))
	}
	return &models.LedgerUpdateResult{Credit: credit, Applied: applied}, nil
}
