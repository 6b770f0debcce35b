package models

import "time"

// Exam groups the questions of one paper and the student submissions made against it.
type Exam struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	Name        string        `gorm:"size:255;not null" json:"name"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Questions   []Question    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions,omitempty"`
	Submissions []Submission  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"submissions,omitempty"`
	KeyFiles    []ExamKeyFile `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	KeyPages    []ExamKeyPage `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
