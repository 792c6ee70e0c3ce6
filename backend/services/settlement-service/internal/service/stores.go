package service

import (
	"context"
	"time"

	"github.com/avast/retry-go"

	"coursepay/backend/services/settlement-service/internal/clients"
	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// TransactionStore writes transactions insert-if-absent by gateway order id.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, bool, error)
	GetTransactionByOrderID(ctx context.Context, orderID string) (*models.Transaction, error)
}

// EnrollmentStore holds enrollments and the per-user course index.
type EnrollmentStore interface {
	CreateEnrollment(ctx context.Context, e *models.Enrollment) (*models.Enrollment, bool, error)
	UpsertEnrolledCourse(ctx context.Context, entry models.EnrolledCourse) error
	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
}

type CourseStore interface {
	GetCourse(ctx context.Context, id string) (*models.Course, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.UserProfile, error)
}

// LedgerStore applies a credit atomically and at most once per transaction.
type LedgerStore interface {
	ApplyCredit(ctx context.Context, credit models.EarningsCredit) (bool, error)
}

// OrderStore keeps pending order handles between create and capture.
type OrderStore interface {
	SaveOrder(ctx context.Context, handle *models.OrderHandle) error
	GetOrder(ctx context.Context, orderID string) (*models.OrderHandle, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

// Gateway is the payment gateway adapter as seen by the pipeline.
type Gateway interface {
	CreateOrder(ctx context.Context, quote models.PriceQuote, meta clients.OrderMetadata) (*models.OrderHandle, error)
	CaptureOrder(ctx context.Context, handle *models.OrderHandle) (*models.CaptureResult, error)
	GetOrder(ctx context.Context, orderID string) (*clients.GatewayOrder, error)
	CaptureFromOrder(order *clients.GatewayOrder, handle *models.OrderHandle) (*models.CaptureResult, error)
}

// RetryPolicy bounds caller-side retries of transient failures.
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
}

// do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts run out. The last error is returned unwrapped.
func (p RetryPolicy) do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(errs.IsRetryable),
	)
}
