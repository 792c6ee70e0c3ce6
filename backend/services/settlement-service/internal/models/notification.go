package models

import "time"

// NotificationKind selects the message template.
type NotificationKind string

const (
	NotificationPayout         NotificationKind = "payout"
	NotificationCoursePurchase NotificationKind = "coursePurchase"
	NotificationMonthlyReport  NotificationKind = "monthlyReport"
	NotificationWelcome        NotificationKind = "welcome"
	NotificationTest           NotificationKind = "test"
)

// Valid reports whether k is a known kind.
func (k NotificationKind) Valid() bool {
	switch k {
	case NotificationPayout, NotificationCoursePurchase, NotificationMonthlyReport, NotificationWelcome, NotificationTest:
		return true
	}
	return false
}

// NotificationChannel is where a notification attempt went.
type NotificationChannel string

const (
	ChannelTemplatedEmail NotificationChannel = "templatedEmail"
	ChannelLocalAlert     NotificationChannel = "localAlert"
)

// Outcome of a notification attempt.
type Outcome string

const (
	OutcomeSent                Outcome = "sent"
	OutcomeFailed              Outcome = "failed"
	OutcomeSkippedUnconfigured Outcome = "skipped-unconfigured"
)

// Recipient of a notification.
type Recipient struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// NotificationEvent is a single attempt on one channel. Not persisted.
type NotificationEvent struct {
	Channel NotificationChannel `json:"channel"`
	Outcome Outcome             `json:"outcome"`
	Error   string              `json:"error,omitempty"`
}

// NotificationOutcome is the final result of Notify with every attempt in order.
type NotificationOutcome struct {
	Kind      NotificationKind    `json:"kind"`
	Channel   NotificationChannel `json:"channel"`
	Outcome   Outcome             `json:"outcome"`
	MessageID string              `json:"message_id,omitempty"`
	Attempts  []NotificationEvent `json:"attempts"`
}

// Delivered reports whether some channel accepted the notification.
func (o NotificationOutcome) Delivered() bool {
	return o.Outcome == OutcomeSent
}

// Alert is pushed to a connected dashboard over the local alert channel.
type Alert struct {
	Kind   NotificationKind `json:"kind"`
	Title  string           `json:"title"`
	Body   string           `json:"body"`
	SentAt time.Time        `json:"sent_at"`
}
