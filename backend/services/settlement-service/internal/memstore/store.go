// Package memstore is a process-local implementation of every settlement
// store. It backs the memory driver and the service tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

type userCourse struct {
	userID, courseID string
}

type expiring[T any] struct {
	value     T
	expiresAt time.Time
}

// Store holds all data behind one mutex.
type Store struct {
	mu sync.Mutex

	users        map[string]models.UserProfile
	courses      map[string]models.Course
	transactions map[string]models.Transaction // by gateway order id
	enrollments  map[string]models.Enrollment  // by id
	byTxn        map[string]string             // transaction id -> enrollment id
	byUserCourse map[userCourse]string         // -> enrollment id
	index        map[userCourse]models.EnrolledCourse
	credits      map[string]models.EarningsCredit
	orders       map[string]expiring[models.OrderHandle]
	captures     map[string]expiring[models.CaptureResult]

	orderTTL   time.Duration
	captureTTL time.Duration
	now        func() time.Time
}

// New returns an empty store. Zero TTLs never expire.
func New(orderTTL, captureTTL time.Duration) *Store {
	return &Store{
		users:        make(map[string]models.UserProfile),
		courses:      make(map[string]models.Course),
		transactions: make(map[string]models.Transaction),
		enrollments:  make(map[string]models.Enrollment),
		byTxn:        make(map[string]string),
		byUserCourse: make(map[userCourse]string),
		index:        make(map[userCourse]models.EnrolledCourse),
		credits:      make(map[string]models.EarningsCredit),
		orders:       make(map[string]expiring[models.OrderHandle]),
		captures:     make(map[string]expiring[models.CaptureResult]),
		orderTTL:     orderTTL,
		captureTTL:   captureTTL,
		now:          time.Now,
	}
}

// PutUser adds or replaces a profile.
func (s *Store) PutUser(u models.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutCourse adds or replaces a course.
func (s *Store) PutCourse(c models.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = c
}

func (s *Store) GetUser(_ context.Context, id string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) GetCourse(_ context.Context, id string) (*models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, errs.ErrCourseNotFound
	}
	return &c, nil
}

func (s *Store) InsertTransaction(_ context.Context, tx *models.Transaction) (*models.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.transactions[tx.GatewayOrderID]; ok {
		return &existing, false, nil
	}
	s.transactions[tx.GatewayOrderID] = *tx
	stored := *tx
	return &stored, true, nil
}

func (s *Store) GetTransactionByOrderID(_ context.Context, orderID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[orderID]
	if !ok {
		return nil, errs.ErrOrderNotFound
	}
	return &tx, nil
}

// Transactions returns every recorded transaction ordered by creation.
func (s *Store) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) CreateEnrollment(_ context.Context, e *models.Enrollment) (*models.Enrollment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byTxn[e.TransactionID]; ok {
		existing := s.enrollments[id]
		return &existing, false, nil
	}
	key := userCourse{e.UserID, e.CourseID}
	if id, ok := s.byUserCourse[key]; ok {
		existing := s.enrollments[id]
		return &existing, false, nil
	}
	s.enrollments[e.ID] = *e
	s.byTxn[e.TransactionID] = e.ID
	s.byUserCourse[key] = e.ID
	stored := *e
	return &stored, true, nil
}

func (s *Store) UpsertEnrolledCourse(_ context.Context, entry models.EnrolledCourse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userCourse{entry.UserID, entry.CourseID}
	if _, ok := s.index[key]; !ok {
		s.index[key] = entry
	}
	return nil
}

func (s *Store) IsEnrolled(_ context.Context, userID, courseID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byUserCourse[userCourse{userID, courseID}]
	return ok, nil
}

// Enrollments returns every enrollment of a user.
func (s *Store) Enrollments(userID string) []models.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Enrollment
	for _, e := range s.enrollments {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// EnrolledCourse returns the index entry for a user and course.
func (s *Store) EnrolledCourse(userID, courseID string) (models.EnrolledCourse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.index[userCourse{userID, courseID}]
	return entry, ok
}

// ApplyCredit mirrors the Postgres implementation: the credit row, the
// instructor increment and the course increment happen together or not at all.
func (s *Store) ApplyCredit(_ context.Context, credit models.EarningsCredit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credits[credit.TransactionID]; ok {
		return false, nil
	}
	user, ok := s.users[credit.InstructorID]
	if !ok {
		return false, fmt.Errorf("apply credit: %w", errs.ErrUserNotFound)
	}
	course, ok := s.courses[credit.CourseID]
	if !ok {
		return false, fmt.Errorf("apply credit: %w", errs.ErrCourseNotFound)
	}

	at := credit.CreditedAt
	user.Earnings.TotalEarnings = user.Earnings.TotalEarnings.Add(credit.InstructorShare)
	user.Earnings.AvailableBalance = user.Earnings.AvailableBalance.Add(credit.InstructorShare)
	user.Earnings.LastEarningDate = &at
	course.Sales.TotalRevenue = course.Sales.TotalRevenue.Add(credit.GrossAmount)
	course.Sales.SalesCount++
	course.Sales.LastSaleDate = &at

	s.users[user.ID] = user
	s.courses[course.ID] = course
	s.credits[credit.TransactionID] = credit
	return true, nil
}

func (s *Store) SaveOrder(_ context.Context, handle *models.OrderHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[handle.OrderID] = expiring[models.OrderHandle]{value: *handle, expiresAt: s.deadline(s.orderTTL)}
	return nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*models.OrderHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.orders[orderID]
	if !ok || s.expired(item.expiresAt) {
		delete(s.orders, orderID)
		return nil, errs.ErrOrderNotFound
	}
	handle := item.value
	return &handle, nil
}

func (s *Store) DeleteOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, orderID)
	return nil
}

func (s *Store) SaveCapture(_ context.Context, result *models.CaptureResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.captures[result.OrderID]; ok && !s.expired(item.expiresAt) {
		return nil
	}
	s.captures[result.OrderID] = expiring[models.CaptureResult]{value: *result, expiresAt: s.deadline(s.captureTTL)}
	return nil
}

func (s *Store) GetCapture(_ context.Context, orderID string) (*models.CaptureResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.captures[orderID]
	if !ok || s.expired(item.expiresAt) {
		delete(s.captures, orderID)
		return nil, errs.ErrOrderNotFound
	}
	result := item.value
	return &result, nil
}

func (s *Store) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *Store) expired(at time.Time) bool {
	return !at.IsZero() && s.now().After(at)
}
