package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatusCompleted is the only status ever recorded.
const TransactionStatusCompleted = "completed"

// Transaction is the immutable record that a sale happened.
type Transaction struct {
	ID                   string          `db:"id" json:"id"`
	GatewayOrderID       string          `db:"gateway_order_id" json:"gateway_order_id"`
	GatewayTransactionID string          `db:"gateway_transaction_id" json:"gateway_transaction_id"`
	CourseID             string          `db:"course_id" json:"course_id"`
	PayerID              string          `db:"payer_id" json:"payer_id"`
	SettlementAmount     decimal.Decimal `db:"settlement_amount" json:"settlement_amount"`
	SettlementCurrency   string          `db:"settlement_currency" json:"settlement_currency"`
	ListedAmount         decimal.Decimal `db:"listed_amount" json:"listed_amount"`
	ListedCurrency       string          `db:"listed_currency" json:"listed_currency"`
	Status               string          `db:"status" json:"status"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	CapturedAt           time.Time       `db:"captured_at" json:"captured_at"`
}
