package repository

import (
	"context"
	"database/sql"
	"errors"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// EnrollmentRepository persists enrollments and the per-user course index.
type EnrollmentRepository struct {
	db *sql.DB
}

// NewEnrollmentRepository returns repository.
func NewEnrollmentRepository(db *sql.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateEnrollment inserts e unless an enrollment exists for the same
// transaction or the same (user, course) pair; the existing one is returned then.
func (r *EnrollmentRepository) CreateEnrollment(ctx context.Context, e *models.Enrollment) (*models.Enrollment, bool, error) {
	const query = `
		INSERT INTO enrollments (id, user_id, course_id, transaction_id, amount_paid, currency, status, progress, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.UserID,
		e.CourseID,
		e.TransactionID,
		e.AmountPaid,
		e.Currency,
		e.Status,
		e.Progress,
		e.EnrolledAt,
	)
	if err != nil {
		return nil, false, errs.Persistence("insert enrollment", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		stored := *e
		return &stored, true, nil
	}

	const existingQuery = `
		SELECT id, user_id, course_id, transaction_id, amount_paid, currency, status, progress, enrolled_at
		FROM enrollments
		WHERE transaction_id = $1 OR (user_id = $2 AND course_id = $3)
		ORDER BY enrolled_at
		LIMIT 1
	`
	var existing models.Enrollment
	err = r.db.QueryRowContext(ctx, existingQuery, e.TransactionID, e.UserID, e.CourseID).Scan(
		&existing.ID,
		&existing.UserID,
		&existing.CourseID,
		&existing.TransactionID,
		&existing.AmountPaid,
		&existing.Currency,
		&existing.Status,
		&existing.Progress,
		&existing.EnrolledAt,
	)
	if err != nil {
		return nil, false, errs.Persistence("load existing enrollment", err)
	}
	return &existing, false, nil
}

// UpsertEnrolledCourse writes the payer's index entry. The first transaction
// that enrolled the user wins.
func (r *EnrollmentRepository) UpsertEnrolledCourse(ctx context.Context, entry models.EnrolledCourse) error {
	const query = `
		INSERT INTO user_courses (user_id, course_id, transaction_id, enrolled_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, course_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, entry.UserID, entry.CourseID, entry.TransactionID, entry.EnrolledAt); err != nil {
		return errs.Persistence("upsert enrolled course", err)
	}
	return nil
}

// IsEnrolled reports whether the user owns the course.
func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2`
	var one int
	err := r.db.QueryRowContext(ctx, query, userID, courseID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errs.Persistence("check enrollment", err)
	}
	return true, nil
}
