package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"coursepay/backend/services/settlement-service/internal/clients"
	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

func purchaseOf(handle *models.OrderHandle) PurchaseRequest {
	return PurchaseRequest{CourseID: handle.CourseID, PayerID: handle.PayerID, Approval: PaymentApproval{OrderID: handle.OrderID}}
}

func TestPurchaseHappyPath(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	handle, err := p.svc.CreateOrder(ctx, OrderRequest{CourseID: "course-1", PayerID: "stud-1"})
	require.NoError(t, err)
	assert.Equal(t, "3.34", handle.Quote.TotalCharged.StringFixed(2))

	res, err := p.svc.Purchase(ctx, purchaseOf(handle))
	require.NoError(t, err)
	assert.NotEmpty(t, res.TransactionID)
	assert.NotEmpty(t, res.EnrollmentID)
	assert.Empty(t, res.OutcomeWarnings)

	txs := p.store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "3.34", txs[0].SettlementAmount.StringFixed(2))
	assert.Equal(t, "USD", txs[0].SettlementCurrency)
	assert.True(t, txs[0].ListedAmount.Equal(decimal.NewFromInt(100)))

	entry, ok := p.store.EnrolledCourse("stud-1", "course-1")
	require.True(t, ok)
	assert.Equal(t, res.TransactionID, entry.TransactionID)

	instructor, err := p.store.GetUser(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "90.00", instructor.Earnings.TotalEarnings.StringFixed(2))
	assert.Equal(t, "90.00", instructor.Earnings.AvailableBalance.StringFixed(2))

	course, err := p.store.GetCourse(ctx, "course-1")
	require.NoError(t, err)
	assert.Equal(t, "100.00", course.Sales.TotalRevenue.StringFixed(2))
	assert.EqualValues(t, 1, course.Sales.SalesCount)

	// Email is not configured in the default pipeline.
	assert.Equal(t, 1, p.alerts.count("inst-1"))
}

func TestPurchaseCourseNotFoundOnlyWarns(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	quote := models.PriceQuote{ListedAmount: decimal.NewFromInt(100), ListedCurrency: "EGP",
		SettlementCurrency: "USD", TotalCharged: decimal.RequireFromString("3.34")}
	handle, err := p.gateway.CreateOrder(ctx, quote, clients.OrderMetadata{CourseID: "ghost", PayerID: "stud-1"})
	require.NoError(t, err)
	require.NoError(t, p.store.SaveOrder(ctx, handle))

	res, err := p.svc.Purchase(ctx, purchaseOf(handle))
	require.NoError(t, err)
	assert.Equal(t, []string{WarningEarningsFailed}, res.OutcomeWarnings)
	assert.NotEmpty(t, res.EnrollmentID)

	enrolled, err := p.store.IsEnrolled(ctx, "stud-1", "ghost")
	require.NoError(t, err)
	assert.True(t, enrolled)
}

func TestDoubleCaptureRecordsOneTransaction(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	handle, err := p.svc.CreateOrder(ctx, OrderRequest{CourseID: "course-1", PayerID: "stud-1"})
	require.NoError(t, err)

	first, err := p.svc.Purchase(ctx, purchaseOf(handle))
	require.NoError(t, err)
	second, err := p.svc.Purchase(ctx, purchaseOf(handle))
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, first.EnrollmentID, second.EnrollmentID)
	assert.True(t, second.Replayed)
	assert.Empty(t, second.OutcomeWarnings)
	assert.Len(t, p.store.Transactions(), 1)
	assert.Len(t, p.store.Enrollments("stud-1"), 1)

	instructor, _ := p.store.GetUser(ctx, "inst-1")
	assert.Equal(t, "90.00", instructor.Earnings.TotalEarnings.StringFixed(2))
	assert.Equal(t, 1, p.alerts.count("inst-1"))
}

func TestAmbiguousCaptureResolvedByStatus(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	handle, err := p.svc.CreateOrder(ctx, OrderRequest{CourseID: "course-1", PayerID: "stud-1"})
	require.NoError(t, err)

	p.gateway.loseCaptureResponse = true
	res, err := p.svc.Purchase(ctx, purchaseOf(handle))
	require.NoError(t, err)
	assert.NotEmpty(t, res.TransactionID)
	assert.Len(t, p.store.Transactions(), 1)
}

func TestAmbiguousCaptureWithoutFundsAborts(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	handle, err := p.svc.CreateOrder(ctx, OrderRequest{CourseID: "course-1", PayerID: "stud-1"})
	require.NoError(t, err)

	p.gateway.captureErr = errs.ErrAmbiguousCapture
	_, err = p.svc.Purchase(ctx, purchaseOf(handle))
	assert.ErrorIs(t, err, errs.ErrGatewayUnavailable)
	assert.Empty(t, p.store.Transactions())
}

func TestPurchaseRejectsForeignOrder(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	handle, err := p.svc.CreateOrder(ctx, OrderRequest{CourseID: "course-1", PayerID: "stud-1"})
	require.NoError(t, err)

	req := purchaseOf(handle)
	req.PayerID = "someone-else"
	_, err = p.svc.Purchase(ctx, req)
	assert.ErrorIs(t, err, errs.ErrCorrelationMismatch)
	assert.Zero(t, p.gateway.captureCalls)
}

func TestPurchaseRebuildsHandleFromGateway(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	handle, err := p.svc.CreateOrder(ctx, OrderRequest{CourseID: "course-1", PayerID: "stud-1"})
	require.NoError(t, err)
	require.NoError(t, p.store.DeleteOrder(ctx, handle.OrderID))

	res, err := p.svc.Purchase(ctx, purchaseOf(handle))
	require.NoError(t, err)
	assert.Empty(t, res.OutcomeWarnings)

	txs := p.store.Transactions()
	require.Len(t, txs, 1)
	assert.True(t, txs[0].ListedAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "EGP", txs[0].ListedCurrency)
}

func TestCreateOrderRetriesUnavailableGateway(t *testing.T) {
	p := newPipeline(t)
	p.gateway.createErrs = []error{errs.ErrGatewayUnavailable, errs.ErrGatewayUnavailable}

	handle, err := p.svc.CreateOrder(context.Background(), OrderRequest{CourseID: "course-1", PayerID: "stud-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, handle.OrderID)
	assert.Equal(t, 3, p.gateway.createCalls)
}

func TestCreateOrderDoesNotRetryRejection(t *testing.T) {
	p := newPipeline(t)
	p.gateway.createErrs = []error{errs.ErrOrderRejected}

	_, err := p.svc.CreateOrder(context.Background(), OrderRequest{CourseID: "course-1", PayerID: "stud-1"})
	assert.ErrorIs(t, err, errs.ErrOrderRejected)
	assert.Equal(t, 1, p.gateway.createCalls)
}

func TestCreateOrderGuards(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	_, err := p.svc.CreateOrder(ctx, OrderRequest{CourseID: "", PayerID: "stud-1"})
	assert.ErrorIs(t, err, errs.ErrInvalidID)

	_, err = p.svc.CreateOrder(ctx, OrderRequest{CourseID: "missing", PayerID: "stud-1"})
	assert.ErrorIs(t, err, errs.ErrCourseNotFound)

	handle, err := p.svc.CreateOrder(ctx, OrderRequest{CourseID: "course-1", PayerID: "stud-1"})
	require.NoError(t, err)
	_, err = p.svc.Purchase(ctx, purchaseOf(handle))
	require.NoError(t, err)

	_, err = p.svc.CreateOrder(ctx, OrderRequest{CourseID: "course-1", PayerID: "stud-1"})
	assert.ErrorIs(t, err, errs.ErrAlreadyEnrolled)
}

func TestPurchaseNotificationFailureIsAWarning(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.alerts.err = errs.ErrAlertUnavailable

	handle, err := p.svc.CreateOrder(ctx, OrderRequest{CourseID: "course-1", PayerID: "stud-1"})
	require.NoError(t, err)

	res, err := p.svc.Purchase(ctx, purchaseOf(handle))
	require.NoError(t, err)
	assert.Equal(t, []string{WarningNotificationFailed}, res.OutcomeWarnings)
}

func TestUnrecordedCaptureIsRetryableAndRecordsOnce(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	transactions := &flakyTransactions{Store: p.store, failures: int(fastRetry.Attempts)}
	p.svc.deps.Recorder = NewRecorder(transactions, fastRetry, zaptest.NewLogger(t))

	handle, err := p.svc.CreateOrder(ctx, OrderRequest{CourseID: "course-1", PayerID: "stud-1"})
	require.NoError(t, err)

	_, err = p.svc.Purchase(ctx, purchaseOf(handle))
	require.ErrorIs(t, err, errs.ErrCaptureUnrecorded)
	assert.True(t, errs.IsRetryable(err))
	assert.Empty(t, p.store.Transactions())

	res, err := p.svc.Purchase(ctx, purchaseOf(handle))
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Empty(t, res.OutcomeWarnings)
	assert.Equal(t, 2, p.gateway.captureCalls)

	txs := p.store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, res.TransactionID, txs[0].ID)
	assert.Len(t, p.store.Enrollments("stud-1"), 1)

	instructor, _ := p.store.GetUser(ctx, "inst-1")
	assert.Equal(t, "90.00", instructor.Earnings.TotalEarnings.StringFixed(2))
}
