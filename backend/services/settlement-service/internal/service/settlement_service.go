package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"coursepay/backend/services/settlement-service/internal/clients"
	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/metrics"
	"coursepay/backend/services/settlement-service/internal/models"
)

// Post-capture warnings reported with a successful purchase.
const (
	WarningEnrollmentFailed   = "enrollment failed"
	WarningEarningsFailed     = "earnings credit failed"
	WarningNotificationFailed = "notification failed"
)

// OrderRequest starts a purchase.
type OrderRequest struct {
	CourseID string
	PayerID  string
}

// PaymentApproval is the buyer's approval of a gateway order.
type PaymentApproval struct {
	OrderID string
}

// PurchaseRequest completes a purchase after approval.
type PurchaseRequest struct {
	CourseID string
	PayerID  string
	Approval PaymentApproval
}

// PurchaseResult is returned for every purchase that reached the transaction
// record, even when later steps degraded.
type PurchaseResult struct {
	TransactionID   string   `json:"transaction_id"`
	EnrollmentID    string   `json:"enrollment_id,omitempty"`
	OutcomeWarnings []string `json:"outcome_warnings"`
	Replayed        bool     `json:"replayed"`
}

// SettlementDeps wires the pipeline.
type SettlementDeps struct {
	Pricer      *Pricer
	Gateway     Gateway
	Orders      OrderStore
	Courses     CourseStore
	Users       UserStore
	Recorder    *Recorder
	Enrollments *EnrollmentService
	Earnings    *EarningsService
	Notifier    *Notifier
	// CreateRetry applies to order creation, StatusRetry to order status
	// re-queries after an ambiguous capture.
	CreateRetry RetryPolicy
	StatusRetry RetryPolicy
}

// SettlementService runs a purchase from quote to notification. Failures
// before the transaction is recorded abort the purchase; failures after it
// only add warnings.
type SettlementService struct {
	deps   SettlementDeps
	logger *zap.Logger
}

// NewSettlementService builds service.
func NewSettlementService(deps SettlementDeps, logger *zap.Logger) *SettlementService {
	return &SettlementService{deps: deps, logger: logger}
}

// Quote prices a course for the buyer.
func (s *SettlementService) Quote(ctx context.Context, courseID string) (*models.Course, models.PriceQuote, error) {
	if strings.TrimSpace(courseID) == "" {
		return nil, models.PriceQuote{}, fmt.Errorf("quote: %w", errs.ErrInvalidID)
	}
	course, err := s.deps.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, models.PriceQuote{}, err
	}
	quote, err := s.deps.Pricer.Quote(course.Price, course.Currency)
	if err != nil {
		return nil, models.PriceQuote{}, err
	}
	return course, quote, nil
}

// CreateOrder quotes the course and opens a gateway order for the payer.
// Gateway unavailability is retried here: nothing has been charged yet.
func (s *SettlementService) CreateOrder(ctx context.Context, req OrderRequest) (*models.OrderHandle, error) {
	if err := validateIDs(req.CourseID, req.PayerID); err != nil {
		return nil, err
	}

	enrolled, err := s.deps.Enrollments.IsEnrolled(ctx, req.PayerID, req.CourseID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, fmt.Errorf("create order for %s: %w", req.CourseID, errs.ErrAlreadyEnrolled)
	}

	course, quote, err := s.Quote(ctx, req.CourseID)
	if err != nil {
		metrics.Purchases.WithLabelValues("quote_rejected").Inc()
		return nil, err
	}

	var handle *models.OrderHandle
	err = s.deps.CreateRetry.do(ctx, func() error {
		var err error
		handle, err = s.deps.Gateway.CreateOrder(ctx, quote, clients.OrderMetadata{
			CourseID:    course.ID,
			PayerID:     req.PayerID,
			Description: course.Title,
		})
		return err
	})
	if err != nil {
		metrics.Purchases.WithLabelValues("order_failed").Inc()
		s.logger.Warn("gateway order not created",
			zap.String("course_id", req.CourseID),
			zap.String("payer_id", req.PayerID),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.deps.Orders.SaveOrder(ctx, handle); err != nil {
		// Capture can still rebuild the handle from the gateway's correlation id.
		s.logger.Warn("pending order not stored", zap.String("order_id", handle.OrderID), zap.Error(err))
	}
	return handle, nil
}

// Purchase captures an approved order and settles it.
func (s *SettlementService) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if err := validateIDs(req.CourseID, req.PayerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Approval.OrderID) == "" {
		return nil, fmt.Errorf("purchase: missing order id: %w", errs.ErrInvalidID)
	}

	handle, err := s.resolveHandle(ctx, req)
	if err != nil {
		metrics.Purchases.WithLabelValues("capture_failed").Inc()
		return nil, err
	}

	capture, err := s.deps.Gateway.CaptureOrder(ctx, handle)
	if errors.Is(err, errs.ErrAmbiguousCapture) {
		s.logger.Warn("capture outcome unknown, re-querying order", zap.String("order_id", handle.OrderID), zap.Error(err))
		capture, err = s.resolveAmbiguous(ctx, handle)
	}
	if err != nil {
		metrics.Purchases.WithLabelValues("capture_failed").Inc()
		s.logger.Warn("capture failed",
			zap.String("order_id", handle.OrderID),
			zap.String("payer_id", req.PayerID),
			zap.Error(err),
		)
		return nil, err
	}

	// Funds are captured. The rest runs to completion even if the buyer goes away.
	ctx = context.WithoutCancel(ctx)

	tx, err := s.deps.Recorder.Record(ctx, capture)
	if err != nil {
		metrics.Purchases.WithLabelValues("record_failed").Inc()
		s.logger.Error("captured payment not recorded",
			zap.String("order_id", handle.OrderID),
			zap.String("gateway_transaction_id", capture.GatewayTransactionID),
			zap.Error(err),
		)
		if errors.Is(err, errs.ErrPersistence) {
			return nil, fmt.Errorf("order %s: %w: %w", handle.OrderID, errs.ErrCaptureUnrecorded, err)
		}
		return nil, err
	}
	if err := s.deps.Orders.DeleteOrder(ctx, handle.OrderID); err != nil {
		s.logger.Debug("pending order not removed", zap.String("order_id", handle.OrderID), zap.Error(err))
	}

	result := &PurchaseResult{TransactionID: tx.ID, OutcomeWarnings: []string{}, Replayed: capture.Replayed}

	enrollment, err := s.deps.Enrollments.Enroll(ctx, tx)
	if enrollment != nil {
		result.EnrollmentID = enrollment.ID
	}
	if err != nil {
		s.warn(result, WarningEnrollmentFailed, tx, err)
	}

	ledger, err := s.deps.Earnings.Credit(ctx, tx)
	if err != nil {
		s.warn(result, WarningEarningsFailed, tx, err)
	}

	if !s.notifyInstructor(ctx, tx, ledger) {
		s.warn(result, WarningNotificationFailed, tx, nil)
	}

	if len(result.OutcomeWarnings) == 0 {
		metrics.Purchases.WithLabelValues("completed").Inc()
	} else {
		metrics.Purchases.WithLabelValues("degraded").Inc()
	}
	s.logger.Info("purchase settled",
		zap.String("transaction_id", tx.ID),
		zap.String("enrollment_id", result.EnrollmentID),
		zap.Bool("replayed", result.Replayed),
		zap.Strings("warnings", result.OutcomeWarnings),
	)
	return result, nil
}

// resolveHandle finds the pending order, falling back to the gateway's copy
// of the correlation id when the pending store lost it.
func (s *SettlementService) resolveHandle(ctx context.Context, req PurchaseRequest) (*models.OrderHandle, error) {
	orderID := req.Approval.OrderID

	handle, err := s.deps.Orders.GetOrder(ctx, orderID)
	if err != nil {
		if !errors.Is(err, errs.ErrOrderNotFound) {
			s.logger.Warn("pending order lookup failed, asking gateway", zap.String("order_id", orderID), zap.Error(err))
		}
		handle, err = s.handleFromGateway(ctx, orderID)
		if err != nil {
			return nil, err
		}
	}

	if handle.CourseID != req.CourseID || handle.PayerID != req.PayerID {
		return nil, fmt.Errorf("order %s: %w", orderID, errs.ErrCorrelationMismatch)
	}
	return handle, nil
}

func (s *SettlementService) handleFromGateway(ctx context.Context, orderID string) (*models.OrderHandle, error) {
	var order *clients.GatewayOrder
	err := s.deps.StatusRetry.do(ctx, func() error {
		var err error
		order, err = s.deps.Gateway.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	corr, err := clients.DecodeCorrelation(order.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, err)
	}
	return &models.OrderHandle{
		OrderID:       order.OrderID,
		CorrelationID: order.CorrelationID,
		CourseID:      corr.CourseID,
		PayerID:       corr.PayerID,
		Quote: models.PriceQuote{
			ListedAmount:       corr.ListedAmount,
			ListedCurrency:     corr.ListedCurrency,
			SettlementCurrency: order.Currency,
			TotalCharged:       order.Amount,
		},
	}, nil
}

// resolveAmbiguous asks the gateway what happened to a capture that timed out.
// Only a completed order proceeds; anything else is reported as retryable,
// since no funds moved.
func (s *SettlementService) resolveAmbiguous(ctx context.Context, handle *models.OrderHandle) (*models.CaptureResult, error) {
	var order *clients.GatewayOrder
	err := s.deps.StatusRetry.do(ctx, func() error {
		var err error
		order, err = s.deps.Gateway.GetOrder(ctx, handle.OrderID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("order %s status unknown after capture: %w", handle.OrderID, errs.ErrAmbiguousCapture)
	}
	if !order.Completed() {
		return nil, fmt.Errorf("order %s is %s after capture attempt: %w", handle.OrderID, order.Status, errs.ErrGatewayUnavailable)
	}
	return s.deps.Gateway.CaptureFromOrder(order, handle)
}

// notifyInstructor reports false only when a notification was attempted and
// not delivered. A purchase whose ledger credit had already been applied was
// notified the first time round.
func (s *SettlementService) notifyInstructor(ctx context.Context, tx *models.Transaction, ledger *models.LedgerUpdateResult) bool {
	if ledger != nil && !ledger.Applied {
		return true
	}

	course, err := s.deps.Courses.GetCourse(ctx, tx.CourseID)
	if err != nil || course.InstructorID == "" {
		s.logger.Warn("instructor unknown, purchase notification skipped",
			zap.String("transaction_id", tx.ID),
			zap.String("course_id", tx.CourseID),
			zap.Error(err),
		)
		return true
	}

	to := models.Recipient{UserID: course.InstructorID}
	if instructor, err := s.deps.Users.GetUser(ctx, course.InstructorID); err == nil {
		to.Email = instructor.Email
		to.Name = instructor.DisplayName
	}

	studentName := tx.PayerID
	if student, err := s.deps.Users.GetUser(ctx, tx.PayerID); err == nil && student.DisplayName != "" {
		studentName = student.DisplayName
	}

	params := map[string]string{
		"course_id":      course.ID,
		"course_title":   course.Title,
		"student_name":   studentName,
		"amount":         tx.ListedAmount.StringFixed(2),
		"currency":       tx.ListedCurrency,
		"transaction_id": tx.ID,
	}
	if ledger != nil {
		params["instructor_share"] = ledger.Credit.InstructorShare.StringFixed(2)
	}

	outcome := s.deps.Notifier.Notify(ctx, models.NotificationCoursePurchase, to, params)
	return outcome.Delivered()
}

func (s *SettlementService) warn(result *PurchaseResult, warning string, tx *models.Transaction, err error) {
	result.OutcomeWarnings = append(result.OutcomeWarnings, warning)
	metrics.Warnings.WithLabelValues(warning).Inc()
	s.logger.Error("post-capture step degraded",
		zap.String("warning", warning),
		zap.String("transaction_id", tx.ID),
		zap.String("order_id", tx.GatewayOrderID),
		zap.Error(err),
	)
}

func validateIDs(courseID, payerID string) error {
	if strings.TrimSpace(courseID) == "" || strings.TrimSpace(payerID) == "" {
		return fmt.Errorf("course and payer ids required: %w", errs.ErrInvalidID)
	}
	return nil
}
