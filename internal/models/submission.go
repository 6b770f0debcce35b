package models

import "time"

// SubmissionStatus is the pipeline stage a submission has completed.
type SubmissionStatus string

const (
	// SubmissionStatusUploaded indicates files are stored and no stage has run yet.
	SubmissionStatusUploaded SubmissionStatus = "UPLOADED"
	// SubmissionStatusPagesReady indicates normalized page images exist.
	SubmissionStatusPagesReady SubmissionStatus = "PAGES_READY"
	// SubmissionStatusCropsReady indicates per-question crops exist.
	SubmissionStatusCropsReady SubmissionStatus = "CROPS_READY"
	// SubmissionStatusTranscribed indicates every question has a transcription.
	SubmissionStatusTranscribed SubmissionStatus = "TRANSCRIBED"
	// SubmissionStatusGraded indicates every question has a grade.
	SubmissionStatusGraded SubmissionStatus = "GRADED"
)

var statusRank = map[SubmissionStatus]int{
	SubmissionStatusUploaded:    0,
	SubmissionStatusPagesReady:  1,
	SubmissionStatusCropsReady:  2,
	SubmissionStatusTranscribed: 3,
	SubmissionStatusGraded:      4,
}

// Rank orders statuses along the pipeline. Unknown values rank below UPLOADED.
func (s SubmissionStatus) Rank() int {
	if rank, ok := statusRank[s]; ok {
		return rank
	}
	return -1
}

// AtLeast reports whether s is at or beyond other in the pipeline.
func (s SubmissionStatus) AtLeast(other SubmissionStatus) bool {
	return s.Rank() >= other.Rank() && s.Rank() >= 0
}

// Valid reports whether s is one of the known statuses.
func (s SubmissionStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Submission is one student's answer script for an exam.
type Submission struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	ExamID      uint             `gorm:"not null;index" json:"exam_id"`
	StudentName string           `gorm:"size:255;not null" json:"student_name"`
	Status      SubmissionStatus `gorm:"size:32;not null" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Files       []SubmissionFile `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"files,omitempty"`
	Pages       []SubmissionPage `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"pages,omitempty"`
}

// Submission file kinds.
const (
	FileKindPDF   = "pdf"
	FileKindImage = "image"
)

// SubmissionFile is an uploaded artefact. It is never modified after it is stored.
type SubmissionFile struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SubmissionID     uint      `gorm:"not null;index" json:"submission_id"`
	Kind             string    `gorm:"size:16;not null" json:"kind"`
	OriginalFilename string    `gorm:"size:255;not null" json:"original_filename"`
	StoredPath       string    `gorm:"size:1024;not null" json:"stored_path"`
	ContentType      string    `gorm:"size:128" json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	Checksum         string    `gorm:"size:64" json:"checksum"`
	CreatedAt        time.Time `json:"created_at"`
}

// SubmissionPage is one normalized page image produced by the page stage.
type SubmissionPage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	PageNumber   int       `gorm:"not null" json:"page_number"`
	ImagePath    string    `gorm:"size:1024;not null" json:"image_path"`
	Width        int       `gorm:"not null" json:"width"`
	Height       int       `gorm:"not null" json:"height"`
	Generation   string    `gorm:"size:64;not null" json:"generation"`
	CreatedAt    time.Time `json:"created_at"`
}
