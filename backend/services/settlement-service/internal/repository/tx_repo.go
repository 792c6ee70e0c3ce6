package repository

import (
	"context"
	"database/sql"
	"errors"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// TransactionRepository persists settlement transactions.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository returns repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, gateway_order_id, gateway_transaction_id, course_id, payer_id,
	settlement_amount, settlement_currency, listed_amount, listed_currency, status, created_at, captured_at`

// InsertTransaction writes tx unless a transaction for the same gateway order
// exists. It returns the stored row and whether it was created by this call.
func (r *TransactionRepository) InsertTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, bool, error) {
	const query = `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (gateway_order_id) DO NOTHING
		RETURNING id
	`
	var id string
	err := r.db.QueryRowContext(ctx, query,
		tx.ID,
		tx.GatewayOrderID,
		tx.GatewayTransactionID,
		tx.CourseID,
		tx.PayerID,
		tx.SettlementAmount,
		tx.SettlementCurrency,
		tx.ListedAmount,
		tx.ListedCurrency,
		tx.Status,
		tx.CreatedAt,
		tx.CapturedAt,
	).Scan(&id)
	switch {
	case err == nil:
		stored := *tx
		return &stored, true, nil
	case errors.Is(err, sql.ErrNoRows):
		existing, err := r.GetTransactionByOrderID(ctx, tx.GatewayOrderID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	default:
		return nil, false, errs.Persistence("insert transaction", err)
	}
}

// GetTransactionByOrderID returns the transaction recorded for a gateway order.
func (r *TransactionRepository) GetTransactionByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM transactions WHERE gateway_order_id = $1`
	var tx models.Transaction
	err := r.db.QueryRowContext(ctx, query, orderID).Scan(
		&tx.ID,
		&tx.GatewayOrderID,
		&tx.GatewayTransactionID,
		&tx.CourseID,
		&tx.PayerID,
		&tx.SettlementAmount,
		&tx.SettlementCurrency,
		&tx.ListedAmount,
		&tx.ListedCurrency,
		&tx.Status,
		&tx.CreatedAt,
		&tx.CapturedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrOrderNotFound
	}
	if err != nil {
		return nil, errs.Persistence("get transaction", err)
	}
	return &tx, nil
}
