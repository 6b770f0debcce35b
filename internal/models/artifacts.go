package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnswerCrop is the stitched image of a question's regions for one submission. It holds no
// foreign key to Question so a deleted question leaves its crop orphaned rather than erroring.
type AnswerCrop struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;uniqueIndex:idx_crop_submission_question" json:"submission_id"`
	QuestionID   uint      `gorm:"not null;uniqueIndex:idx_crop_submission_question" json:"question_id"`
	ImagePath    string    `gorm:"size:1024;not null" json:"image_path"`
	Width        int       `gorm:"not null" json:"width"`
	Height       int       `gorm:"not null" json:"height"`
	Placeholder  bool      `gorm:"not null;default:false" json:"placeholder"`
	Generation   string    `gorm:"size:64;not null" json:"generation"`
	CreatedAt    time.Time `json:"created_at"`
}

// Transcription is the OCR output for one question crop.
type Transcription struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	SubmissionID uint              `gorm:"not null;uniqueIndex:idx_transcription_submission_question" json:"submission_id"`
	QuestionID   uint              `gorm:"not null;uniqueIndex:idx_transcription_submission_question" json:"question_id"`
	Provider     string            `gorm:"size:32;not null" json:"provider"`
	Text         string            `gorm:"type:text" json:"text"`
	Confidence   float64           `gorm:"not null" json:"confidence"`
	NoAnswer     bool              `gorm:"not null;default:false" json:"no_answer"`
	Raw          datatypes.JSONMap `json:"raw"`
	CreatedAt    time.Time         `json:"created_at"`
}

// GradeResult captures the marks a grader awarded for one question.
type GradeResult struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	SubmissionID uint              `gorm:"not null;uniqueIndex:idx_grade_submission_question" json:"submission_id"`
	QuestionID   uint              `gorm:"not null;uniqueIndex:idx_grade_submission_question" json:"question_id"`
	Grader       string            `gorm:"size:32;not null" json:"grader"`
	MarksAwarded float64           `gorm:"not null" json:"marks_awarded"`
	MaxMarks     int               `gorm:"not null" json:"max_marks"`
	RawMarks     float64           `gorm:"not null" json:"raw_marks"`
	Clamped      bool              `gorm:"not null;default:false" json:"clamped"`
	Breakdown    datatypes.JSONMap `json:"breakdown"`
	Feedback     datatypes.JSONMap `json:"feedback"`
	CreatedAt    time.Time         `json:"created_at"`
}

// AllModels lists every table the service migrates.
func AllModels() []interface{} {
	return []interface{}{
		&Exam{},
		&Question{},
		&Region{},
		&Submission{},
		&SubmissionFile{},
		&SubmissionPage{},
		&AnswerCrop{},
		&Transcription{},
		&GradeResult{},
		&ExamKeyFile{},
		&ExamKeyPage{},
	}
}
