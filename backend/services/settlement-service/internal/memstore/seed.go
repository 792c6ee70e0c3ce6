package memstore

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"coursepay/backend/services/settlement-service/internal/models"
)

// Seed is the YAML document loaded into a memory store at startup:
//
//	users:
//	  - id: inst-1
//	    email: inst@example.com
//	    displayName: Instructor
//	courses:
//	  - id: course-1
//	    instructorId: inst-1
//	    title: Go in Practice
//	    price: "100"
//	    currency: EGP
type Seed struct {
	Users   []SeedUser   `yaml:"users"`
	Courses []SeedCourse `yaml:"courses"`
}

// SeedUser is a profile entry of a seed file.
type SeedUser struct {
	ID          string `yaml:"id"`
	Email       string `yaml:"email"`
	DisplayName string `yaml:"displayName"`
}

// SeedCourse is a course entry of a seed file. Price is a decimal string.
type SeedCourse struct {
	ID           string `yaml:"id"`
	InstructorID string `yaml:"instructorId"`
	Title        string `yaml:"title"`
	Price        string `yaml:"price"`
	Currency     string `yaml:"currency"`
}

// LoadSeedFile reads and applies a seed file. It returns how many users and
// courses were loaded.
func (s *Store) LoadSeedFile(path string) (users, courses int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("seed: read %s: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, 0, fmt.Errorf("seed: decode %s: %w", path, err)
	}
	if err := s.ApplySeed(seed); err != nil {
		return 0, 0, err
	}
	return len(seed.Users), len(seed.Courses), nil
}

// ApplySeed validates the whole seed before storing any of it.
func (s *Store) ApplySeed(seed Seed) error {
	users := make([]models.UserProfile, 0, len(seed.Users))
	for i, u := range seed.Users {
		if strings.TrimSpace(u.ID) == "" {
			return fmt.Errorf("seed: user %d has no id", i)
		}
		users = append(users, models.UserProfile{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName})
	}

	courses := make([]models.Course, 0, len(seed.Courses))
	for i, c := range seed.Courses {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("seed: course %d has no id", i)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(c.Price))
		if err != nil || !price.IsPositive() {
			return fmt.Errorf("seed: course %s has invalid price %q", c.ID, c.Price)
		}
		courses = append(courses, models.Course{
			ID:           c.ID,
			InstructorID: c.InstructorID,
			Title:        c.Title,
			Price:        price,
			Currency:     strings.ToUpper(strings.TrimSpace(c.Currency)),
		})
	}

	for _, u := range users {
		s.PutUser(u)
	}
	for _, c := range courses {
		s.PutCourse(c)
	}
	return nil
}
