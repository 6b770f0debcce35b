package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRegion indicates a region rectangle falls outside the unit page.
var ErrInvalidRegion = errors.New("invalid region")

const regionEpsilon = 1e-9

// Region marks where a question's answer appears on a page. Coordinates are fractions of the
// page width and height so they survive page rebuilds at a different resolution.
type Region struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	QuestionID uint      `gorm:"not null;index" json:"question_id"`
	PageNumber int       `gorm:"not null" json:"page_number"`
	X          float64   `gorm:"not null" json:"x"`
	Y          float64   `gorm:"not null" json:"y"`
	W          float64   `gorm:"not null" json:"w"`
	H          float64   `gorm:"not null" json:"h"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate enforces 0 <= x <= x+w <= 1, 0 <= y <= y+h <= 1, positive extent and a 1-based page.
func (r Region) Validate() error {
	switch {
	case r.PageNumber < 1:
		return fmt.Errorf("%w: page_number must be >= 1, got %d", ErrInvalidRegion, r.PageNumber)
	case r.X < 0 || r.Y < 0:
		return fmt.Errorf("%w: x and y must be >= 0, got x=%g y=%g", ErrInvalidRegion, r.X, r.Y)
	case r.W <= 0 || r.H <= 0:
		return fmt.Errorf("%w: w and h must be > 0, got w=%g h=%g", ErrInvalidRegion, r.W, r.H)
	case r.X+r.W > 1+regionEpsilon:
		return fmt.Errorf("%w: x+w must be <= 1, got %g", ErrInvalidRegion, r.X+r.W)
	case r.Y+r.H > 1+regionEpsilon:
		return fmt.Errorf("%w: y+h must be <= 1, got %g", ErrInvalidRegion, r.Y+r.H)
	}
	return nil
}
