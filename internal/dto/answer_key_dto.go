package dto

import (
	"fmt"
	"time"

	"github.com/noah-isme/supermarks-api/internal/models"
)

// KeyFileResponse describes one stored answer key file.
type KeyFileResponse struct {
	ID               uint      `json:"id"`
	Kind             string    `json:"kind"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	Checksum         string    `json:"checksum"`
	CreatedAt        time.Time `json:"created_at"`
}

// KeyUploadResponse is returned after answer key files are stored.
type KeyUploadResponse struct {
	ExamID   uint              `json:"exam_id"`
	Uploaded int               `json:"uploaded"`
	Files    []KeyFileResponse `json:"files"`
}

// KeyPagesResponse lists an exam's rendered answer key pages.
type KeyPagesResponse struct {
	ExamID uint           `json:"exam_id"`
	Pages  []PageResponse `json:"pages"`
}

// KeyPageImageURL is the API path serving an answer key page image.
func KeyPageImageURL(examID uint, pageNumber int) string {
	return fmt.Sprintf("/api/v1/exams/%d/key/pages/%d", examID, pageNumber)
}

// NewKeyFileResponseSlice converts key file rows.
func NewKeyFileResponseSlice(files []models.ExamKeyFile) []KeyFileResponse {
	responses := make([]KeyFileResponse, 0, len(files))
	for _, file := range files {
		responses = append(responses, KeyFileResponse{
			ID:               file.ID,
			Kind:             file.Kind,
			OriginalFilename: file.OriginalFilename,
			ContentType:      file.ContentType,
			SizeBytes:        file.SizeBytes,
			Checksum:         file.Checksum,
			CreatedAt:        file.CreatedAt,
		})
	}
	return responses
}

// NewKeyPagesResponse converts key page rows.
func NewKeyPagesResponse(examID uint, pages []models.ExamKeyPage) KeyPagesResponse {
	responses := make([]PageResponse, 0, len(pages))
	for _, page := range pages {
		responses = append(responses, PageResponse{
			PageNumber: page.PageNumber,
			Width:      page.Width,
			Height:     page.Height,
			ImageURL:   KeyPageImageURL(examID, page.PageNumber),
		})
	}
	return KeyPagesResponse{ExamID: examID, Pages: responses}
}
