package repository

import (
	"context"
	"database/sql"
	"errors"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// UserRepository reads user profiles.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository returns repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUser returns a profile with its earnings or errs.ErrUserNotFound.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	const query = `
		SELECT id, email, display_name, total_earnings, available_balance, last_earning_date
		FROM user_profiles
		WHERE id = $1
	`
	var (
		u        models.UserProfile
		lastEarn sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.Earnings.TotalEarnings,
		&u.Earnings.AvailableBalance,
		&lastEarn,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrUserNotFound
	}
	if err != nil {
		return nil, errs.Persistence("get user", err)
	}
	if lastEarn.Valid {
		u.Earnings.LastEarningDate = &lastEarn.Time
	}
	return &u, nil
}
