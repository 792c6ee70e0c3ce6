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

// EnrollmentService grants course access for recorded transactions.
type EnrollmentService struct {
	store  EnrollmentStore
	retry  RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewEnrollmentService builds service.
func NewEnrollmentService(store EnrollmentStore, retry RetryPolicy, logger *zap.Logger) *EnrollmentService {
	return &EnrollmentService{
		store:  store,
		retry:  retry,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enroll creates the enrollment for tx, then the payer's index entry. Calling
// it again for the same transaction, or for a course the payer already owns,
// returns the existing enrollment. If only the index write fails the
// enrollment is returned together with the error.
func (s *EnrollmentService) Enroll(ctx context.Context, tx *models.Transaction) (*models.Enrollment, error) {
	if tx == nil || tx.ID == "" || tx.PayerID == "" || tx.CourseID == "" {
		return nil, fmt.Errorf("enroll: %w", errs.ErrInvalidID)
	}
	if tx.Status != models.TransactionStatusCompleted {
		return nil, fmt.Errorf("enroll: transaction %s is %q: %w", tx.ID, tx.Status, errs.ErrNotCaptured)
	}

	candidate := &models.Enrollment{
		ID:            uuid.NewString(),
		UserID:        tx.PayerID,
		CourseID:      tx.CourseID,
		TransactionID: tx.ID,
		AmountPaid:    tx.SettlementAmount,
		Currency:      tx.SettlementCurrency,
		Status:        models.EnrollmentStatusActive,
		Progress:      0,
		EnrolledAt:    s.now(),
	}

	var (
		enrollment *models.Enrollment
		created    bool
	)
	err := s.retry.do(ctx, func() error {
		var err error
		enrollment, created, err = s.store.CreateEnrollment(ctx, candidate)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case created:
		s.logger.Info("enrollment created",
			zap.String("enrollment_id", enrollment.ID),
			zap.String("transaction_id", tx.ID),
			zap.String("user_id", tx.PayerID),
			zap.String("course_id", tx.CourseID),
		)
	case enrollment.TransactionID != tx.ID:
		s.logger.Warn("payer already enrolled through another transaction",
			zap.String("enrollment_id", enrollment.ID),
			zap.String("transaction_id", tx.ID),
			zap.String("existing_transaction_id", enrollment.TransactionID),
		)
	}

	entry := models.EnrolledCourse{
		UserID:        enrollment.UserID,
		CourseID:      enrollment.CourseID,
		TransactionID: enrollment.TransactionID,
		EnrolledAt:    enrollment.EnrolledAt,
	}
	if err := s.retry.do(ctx, func() error { return s.store.UpsertEnrolledCourse(ctx, entry) }); err != nil {
		s.logger.Error("enrolled-course index not updated",
			zap.String("enrollment_id", enrollment.ID),
			zap.String("transaction_id", enrollment.TransactionID),
			zap.Error(err),
		)
		return enrollment, fmt.Errorf("enroll: index entry: %w", err)
	}
	return enrollment, nil
}

// IsEnrolled reports whether the user already owns the course.
func (s *EnrollmentService) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	return s.store.IsEnrolled(ctx, userID, courseID)
}
