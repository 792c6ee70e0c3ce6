package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/metrics"
	"coursepay/backend/services/settlement-service/internal/models"
)

// EmailSender delivers templated email.
type EmailSender interface {
	Configured() bool
	Send(ctx context.Context, kind models.NotificationKind, to models.Recipient, params map[string]string) (string, error)
}

// AlertSender pushes an alert to a user's connected dashboard.
type AlertSender interface {
	SendAlert(ctx context.Context, userID string, alert models.Alert) error
}

// Notifier dispatches notifications: templated email first, local alert as
// the fallback. It never fails the caller.
type Notifier struct {
	email  EmailSender
	alerts AlertSender
	users  UserStore
	logger *zap.Logger
	now    func() time.Time
}

// NewNotifier builds notifier. email and alerts may be nil.
func NewNotifier(email EmailSender, alerts AlertSender, users UserStore, logger *zap.Logger) *Notifier {
	return &Notifier{
		email:  email,
		alerts: alerts,
		users:  users,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Notify delivers kind to the recipient. Every attempt is recorded in the
// outcome; failures are logged and never returned.
func (n *Notifier) Notify(ctx context.Context, kind models.NotificationKind, to models.Recipient, params map[string]string) models.NotificationOutcome {
	outcome := models.NotificationOutcome{Kind: kind}

	if n.email != nil && n.email.Configured() {
		messageID, err := n.email.Send(ctx, kind, to, params)
		if err == nil {
			n.record(&outcome, models.ChannelTemplatedEmail, models.OutcomeSent, nil)
			outcome.MessageID = messageID
			return outcome
		}
		n.record(&outcome, models.ChannelTemplatedEmail, models.OutcomeFailed, err)
		n.logger.Warn("email notification failed, falling back to local alert",
			zap.String("kind", string(kind)),
			zap.String("recipient_id", to.UserID),
			zap.Error(err),
		)
	} else {
		n.record(&outcome, models.ChannelTemplatedEmail, models.OutcomeSkippedUnconfigured, nil)
	}

	title, body := alertText(kind, to, params)
	err := fmt.Errorf("local alert: %w", errs.ErrAlertUnavailable)
	if n.alerts != nil {
		err = n.alerts.SendAlert(ctx, to.UserID, models.Alert{Kind: kind, Title: title, Body: body, SentAt: n.now()})
	}
	if err != nil {
		n.record(&outcome, models.ChannelLocalAlert, models.OutcomeFailed, err)
		n.logger.Warn("notification not delivered",
			zap.String("kind", string(kind)),
			zap.String("recipient_id", to.UserID),
			zap.Error(err),
		)
		return outcome
	}
	n.record(&outcome, models.ChannelLocalAlert, models.OutcomeSent, nil)
	return outcome
}

// NotifyUser resolves the recipient profile first. Only a bad kind or an
// unknown user is reported as an error.
func (n *Notifier) NotifyUser(ctx context.Context, kind models.NotificationKind, userID string, params map[string]string) (models.NotificationOutcome, error) {
	if !kind.Valid() {
		return models.NotificationOutcome{}, fmt.Errorf("notify: unknown kind %q: %w", kind, errs.ErrValidation)
	}
	if userID == "" {
		return models.NotificationOutcome{}, fmt.Errorf("notify: %w", errs.ErrInvalidID)
	}
	to := models.Recipient{UserID: userID}
	if n.users != nil {
		profile, err := n.users.GetUser(ctx, userID)
		if err != nil {
			return models.NotificationOutcome{}, fmt.Errorf("notify %s: %w", userID, err)
		}
		to.Email = profile.Email
		to.Name = profile.DisplayName
	}
	return n.Notify(ctx, kind, to, params), nil
}

func (n *Notifier) record(outcome *models.NotificationOutcome, channel models.NotificationChannel, result models.Outcome, err error) {
	event := models.NotificationEvent{Channel: channel, Outcome: result}
	if err != nil {
		event.Error = err.Error()
	}
	outcome.Attempts = append(outcome.Attempts, event)
	outcome.Channel = channel
	outcome.Outcome = result
	metrics.Notifications.WithLabelValues(string(channel), string(result)).Inc()
}

// alertText is the short summary shown when email is not available.
func alertText(kind models.NotificationKind, to models.Recipient, params map[string]string) (title, body string) {
	get := func(key, fallback string) string {
		if v := params[key]; v != "" {
			return v
		}
		return fallback
	}
	switch kind {
	case models.NotificationCoursePurchase:
		return "New course purchase", fmt.Sprintf("%s purchased %s for %s %s.",
			get("student_name", "A student"), get("course_title", "your course"), get("amount", ""), get("currency", ""))
	case models.NotificationPayout:
		return "Payout processed", fmt.Sprintf("Your payout of %s %s has been processed.", get("amount", ""), get("currency", ""))
	case models.NotificationMonthlyReport:
		return "Monthly report ready", fmt.Sprintf("Your earnings report for %s is ready.", get("month", "last month"))
	case models.NotificationWelcome:
		return "Welcome", fmt.Sprintf("Welcome aboard, %s!", get("name", nameOr(to)))
	case models.NotificationTest:
		return "Test notification", "Notifications are set up correctly."
	default:
		return "Notification", get("message", string(kind))
	}
}

func nameOr(to models.Recipient) string {
	if to.Name != "" {
		return to.Name
	}
	return "there"
}
