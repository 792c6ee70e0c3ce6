package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is derived from a listed price; never stored on its own.
type PriceQuote struct {
	ListedAmount       decimal.Decimal `json:"listed_amount"`
	ListedCurrency     string          `json:"listed_currency"`
	SettlementAmount   decimal.Decimal `json:"settlement_amount"`
	SettlementCurrency string          `json:"settlement_currency"`
	ExchangeRate       decimal.Decimal `json:"exchange_rate"`
	FeeRate            decimal.Decimal `json:"fee_rate"`
	GatewayFee         decimal.Decimal `json:"gateway_fee"`
	TotalCharged       decimal.Decimal `json:"total_charged"`
}

// OrderHandle references an order created with the gateway.
type OrderHandle struct {
	OrderID       string     `json:"order_id"`
	CorrelationID string     `json:"correlation_id"`
	CourseID      string     `json:"course_id"`
	PayerID       string     `json:"payer_id"`
	Quote         PriceQuote `json:"quote"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CaptureResult is what the gateway confirmed for a captured order.
type CaptureResult struct {
	OrderID              string          `json:"order_id"`
	GatewayTransactionID string          `json:"gateway_transaction_id"`
	Captured             bool            `json:"captured"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	CourseID             string          `json:"course_id"`
	PayerID              string          `json:"payer_id"`
	ListedAmount         decimal.Decimal `json:"listed_amount"`
	ListedCurrency       string          `json:"listed_currency"`
	CapturedAt           time.Time       `json:"captured_at"`
	// Replayed is set when the result comes from an earlier capture of the same order.
	Replayed bool `json:"replayed"`
}
