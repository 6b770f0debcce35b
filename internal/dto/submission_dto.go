package dto

import (
	"time"

	"github.com/noah-isme/supermarks-api/internal/models"
)

// SubmissionUploadRequest describes the non-file fields of the upload form.
type SubmissionUploadRequest struct {
	StudentName string `form:"student_name" validate:"required,min=1,max=255"`
}

// SubmissionSummary is a compact submission view used inside exam details.
type SubmissionSummary struct {
	ID          uint      `json:"id"`
	StudentName string    `json:"student_name"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubmissionResponse is returned to API clients when viewing a submission.
type SubmissionResponse struct {
	ID          uint                     `json:"id"`
	ExamID      uint                     `json:"exam_id"`
	StudentName string                   `json:"student_name"`
	Status      string                   `json:"status"`
	Files       []SubmissionFileResponse `json:"files"`
	Pages       []PageResponse           `json:"pages"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// SubmissionFileResponse describes one stored upload.
type SubmissionFileResponse struct {
	ID               uint   `json:"id"`
	Kind             string `json:"kind"`
	OriginalFilename string `json:"original_filename"`
	ContentType      string `json:"content_type"`
	SizeBytes        int64  `json:"size_bytes"`
	Checksum         string `json:"checksum"`
}

// NewSubmissionSummary converts a Submission model into its compact form.
func NewSubmissionSummary(model models.Submission) SubmissionSummary {
	return SubmissionSummary{
		ID:          model.ID,
		StudentName: model.StudentName,
		Status:      string(model.Status),
		CreatedAt:   model.CreatedAt,
	}
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	files := make([]SubmissionFileResponse, 0, len(model.Files))
	for _, file := range model.Files {
		files = append(files, SubmissionFileResponse{
			ID:               file.ID,
			Kind:             file.Kind,
			OriginalFilename: file.OriginalFilename,
			ContentType:      file.ContentType,
			SizeBytes:        file.SizeBytes,
			Checksum:         file.Checksum,
		})
	}

	return SubmissionResponse{
		ID:          model.ID,
		ExamID:      model.ExamID,
		StudentName: model.StudentName,
		Status:      string(model.Status),
		Files:       files,
		Pages:       NewPageResponseSlice(model.ID, model.Pages),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}
