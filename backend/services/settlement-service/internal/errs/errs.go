// Package errs holds the settlement error taxonomy. Every specific error wraps
// its category, so errors.Is(err, ErrGateway) matches ErrOrderRejected too.
package errs

import (
	"errors"
	"fmt"
)

// Categories.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrGateway       = errors.New("gateway error")
	ErrPersistence   = errors.New("persistence error")
	ErrNotFound      = errors.New("not found")
	ErrNotification  = errors.New("notification error")
)

// Validation.
var (
	ErrInvalidAmount       = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidCurrency     = fmt.Errorf("%w: unsupported currency", ErrValidation)
	ErrInvalidID           = fmt.Errorf("%w: invalid id", ErrValidation)
	ErrAlreadyEnrolled     = fmt.Errorf("%w: already enrolled", ErrValidation)
	ErrCorrelationMismatch = fmt.Errorf("%w: order does not belong to this purchase", ErrValidation)
	ErrNotCaptured         = fmt.Errorf("%w: capture not completed", ErrValidation)
)

// Gateway.
var (
	ErrGatewayUnavailable = fmt.Errorf("%w: unavailable", ErrGateway)
	ErrOrderRejected      = fmt.Errorf("%w: order rejected", ErrGateway)
	ErrAmbiguousCapture   = fmt.Errorf("%w: ambiguous capture", ErrGateway)
)

// ErrCaptureUnrecorded means funds were captured but the transaction write
// failed. Repeating the capture replays it and records the transaction.
var ErrCaptureUnrecorded = fmt.Errorf("%w: captured but not recorded", ErrPersistence)

// Not found.
var (
	ErrCourseNotFound = fmt.Errorf("course %w", ErrNotFound)
	ErrUserNotFound   = fmt.Errorf("user %w", ErrNotFound)
	ErrOrderNotFound  = fmt.Errorf("order %w", ErrNotFound)
)

// Notification.
var (
	ErrTemplateMissing  = fmt.Errorf("%w: no template for kind", ErrNotification)
	ErrAlertUnavailable = fmt.Errorf("%w: no dashboard connected", ErrNotification)
	ErrAlertDenied      = fmt.Errorf("%w: alert permission denied", ErrNotification)
)

// Persistence wraps a store failure under ErrPersistence, keeping the cause.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// IsRetryable reports whether the attempt can be repeated safely. It walks the
// whole chain, including joined errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAmbiguousCapture) {
		return false
	}
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, ErrPersistence)
}
