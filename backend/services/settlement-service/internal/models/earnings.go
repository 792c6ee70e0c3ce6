package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstructorEarnings is the ledger part of a user profile.
type InstructorEarnings struct {
	TotalEarnings    decimal.Decimal `db:"total_earnings" json:"total_earnings"`
	AvailableBalance decimal.Decimal `db:"available_balance" json:"available_balance"`
	LastEarningDate  *time.Time      `db:"last_earning_date" json:"last_earning_date,omitempty"`
}

// UserProfile is a student or instructor.
type UserProfile struct {
	ID          string             `db:"id" json:"id"`
	Email       string             `db:"email" json:"email"`
	DisplayName string             `db:"display_name" json:"display_name"`
	Earnings    InstructorEarnings `json:"earnings"`
}

// CourseSales aggregates completed sales of a course.
type CourseSales struct {
	TotalRevenue decimal.Decimal `db:"total_revenue" json:"total_revenue"`
	SalesCount   int64           `db:"sales_count" json:"sales_count"`
	LastSaleDate *time.Time      `db:"last_sale_date" json:"last_sale_date,omitempty"`
}

// Course is the part of a course document the pipeline reads and updates.
type Course struct {
	ID           string          `db:"id" json:"id"`
	InstructorID string          `db:"instructor_id" json:"instructor_id"`
	Title        string          `db:"title" json:"title"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Currency     string          `db:"currency" json:"currency"`
	Sales        CourseSales     `json:"sales"`
}

// EarningsCredit is one ledger credit, keyed by the transaction it derives from.
type EarningsCredit struct {
	TransactionID      string          `db:"transaction_id" json:"transaction_id"`
	InstructorID       string          `db:"instructor_id" json:"instructor_id"`
	CourseID           string          `db:"course_id" json:"course_id"`
	GrossAmount        decimal.Decimal `db:"gross_amount" json:"gross_amount"`
	InstructorShare    decimal.Decimal `db:"instructor_share" json:"instructor_share"`
	PlatformCommission decimal.Decimal `db:"platform_commission" json:"platform_commission"`
	Currency           string          `db:"currency" json:"currency"`
	CreditedAt         time.Time       `db:"credited_at" json:"credited_at"`
}

// LedgerUpdateResult reports a credit. Applied is false when the transaction
// had been credited before and nothing changed.
type LedgerUpdateResult struct {
	Credit  EarningsCredit `json:"credit"`
	Applied bool           `json:"applied"`
}
