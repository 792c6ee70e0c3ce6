package repository

import (
	"context"
	"database/sql"
	"errors"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// CourseRepository reads course pricing and sales aggregates.
type CourseRepository struct {
	db *sql.DB
}

// NewCourseRepository returns repository.
func NewCourseRepository(db *sql.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// GetCourse returns a course or errs.ErrCourseNotFound.
func (r *CourseRepository) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	const query = `
		SELECT id, instructor_id, title, price, currency, total_revenue, sales_count, last_sale_date
		FROM courses
		WHERE id = $1
	`
	var (
		c        models.Course
		lastSale sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.InstructorID,
		&c.Title,
		&c.Price,
		&c.Currency,
		&c.Sales.TotalRevenue,
		&c.Sales.SalesCount,
		&lastSale,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrCourseNotFound
	}
	if err != nil {
		return nil, errs.Persistence("get course", err)
	}
	if lastSale.Valid {
		c.Sales.LastSaleDate = &lastSale.Time
	}
	return &c, nil
}
