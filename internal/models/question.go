package models

import (
	"time"

	"gorm.io/datatypes"
)

// Question is one gradable item of an exam together with its rubric and answer regions.
type Question struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ExamID    uint           `gorm:"not null;index" json:"exam_id"`
	Label     string         `gorm:"size:64;not null" json:"label"`
	MaxMarks  int            `gorm:"not null" json:"max_marks"`
	Rubric    datatypes.JSON `json:"rubric"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Regions   []Region       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"regions"`
}
