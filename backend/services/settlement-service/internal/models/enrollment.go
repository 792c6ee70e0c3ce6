package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrollmentStatusActive is set on creation.
const EnrollmentStatusActive = "active"

// Enrollment grants a user access to a course.
type Enrollment struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	CourseID      string          `db:"course_id" json:"course_id"`
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	AmountPaid    decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	Currency      string          `db:"currency" json:"currency"`
	Status        string          `db:"status" json:"status"`
	Progress      int             `db:"progress" json:"progress"`
	EnrolledAt    time.Time       `db:"enrolled_at" json:"enrolled_at"`
}

// EnrolledCourse is one entry of a user's enrolled-course index.
type EnrolledCourse struct {
	UserID        string    `db:"user_id" json:"user_id"`
	CourseID      string    `db:"course_id" json:"course_id"`
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	EnrolledAt    time.Time `db:"enrolled_at" json:"enrolled_at"`
}
