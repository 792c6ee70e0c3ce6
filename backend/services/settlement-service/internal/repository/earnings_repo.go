package repository

import (
	"context"
	"database/sql"
	"fmt"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// EarningsRepository applies ledger credits.
type EarningsRepository struct {
	db *sql.DB
}

// NewEarningsRepository returns repository.
func NewEarningsRepository(db *sql.DB) *EarningsRepository {
	return &EarningsRepository{db: db}
}

// ApplyCredit records the credit and increments the instructor balance and
// the course aggregate in one SQL transaction. Balances are only ever changed
// with in-place increments. It returns false when the transaction had already
// been credited.
func (r *EarningsRepository) ApplyCredit(ctx context.Context, credit models.EarningsCredit) (applied bool, err error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errs.Persistence("begin credit", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	const insertCredit = `
		INSERT INTO earnings_credits (transaction_id, instructor_id, course_id, gross_amount,
			instructor_share, platform_commission, currency, credited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transaction_id) DO NOTHING
	`
	res, err := sqlTx.ExecContext(ctx, insertCredit,
		credit.TransactionID,
		credit.InstructorID,
		credit.CourseID,
		credit.GrossAmount,
		credit.InstructorShare,
		credit.PlatformCommission,
		credit.Currency,
		credit.CreditedAt,
	)
	if err != nil {
		return false, errs.Persistence("insert credit", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, sqlTx.Commit()
	}

	const creditInstructor = `
		UPDATE user_profiles
		SET total_earnings = total_earnings + $1,
		    available_balance = available_balance + $1,
		    last_earning_date = $2
		WHERE id = $3
	`
	if err = execOne(ctx, sqlTx, errs.ErrUserNotFound, creditInstructor, credit.InstructorShare, credit.CreditedAt, credit.InstructorID); err != nil {
		return false, err
	}

	const recordSale = `
		UPDATE courses
		SET total_revenue = total_revenue + $1,
		    sales_count = sales_count + 1,
		    last_sale_date = $2
		WHERE id = $3
	`
	if err = execOne(ctx, sqlTx, errs.ErrCourseNotFound, recordSale, credit.GrossAmount, credit.CreditedAt, credit.CourseID); err != nil {
		return false, err
	}

	if err = sqlTx.Commit(); err != nil {
		return false, errs.Persistence("commit credit", err)
	}
	return true, nil
}

func execOne(ctx context.Context, tx *sql.Tx, notFound error, query string, args ...interface{}) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return errs.Persistence("apply credit", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Persistence("apply credit", err)
	}
	if n == 0 {
		return fmt.Errorf("apply credit: %w", notFound)
	}
	return nil
}
