package dto

import (
	"fmt"

	"github.com/noah-isme/supermarks-api/internal/models"
)

// PageResponse describes one normalized page.
type PageResponse struct {
	PageNumber int    `json:"page_number"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	ImageURL   string `json:"image_url"`
}

// CropResponse describes one question crop.
type CropResponse struct {
	QuestionID  uint   `json:"question_id"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Placeholder bool   `json:"placeholder"`
	ImageURL    string `json:"image_url"`
}

// TranscriptionResponse describes one OCR result.
type TranscriptionResponse struct {
	QuestionID uint                   `json:"question_id"`
	Provider   string                 `json:"provider"`
	Text       string                 `json:"text"`
	Confidence float64                `json:"confidence"`
	NoAnswer   bool                   `json:"no_answer"`
	Raw        map[string]interface{} `json:"raw,omitempty"`
}

// GradeResponse describes one grading result.
type GradeResponse struct {
	QuestionID   uint                   `json:"question_id"`
	Grader       string                 `json:"grader"`
	MarksAwarded float64                `json:"marks_awarded"`
	MaxMarks     int                    `json:"max_marks"`
	RawMarks     float64                `json:"raw_marks"`
	Clamped      bool                   `json:"clamped"`
	Breakdown    map[string]interface{} `json:"breakdown"`
	Feedback     map[string]interface{} `json:"feedback"`
}

// StageResponse is returned by every stage endpoint.
type StageResponse struct {
	SubmissionID   uint                    `json:"submission_id"`
	Status         string                  `json:"status"`
	Pages          []PageResponse          `json:"pages,omitempty"`
	Crops          []CropResponse          `json:"crops,omitempty"`
	Transcriptions []TranscriptionResponse `json:"transcriptions,omitempty"`
	Grades         []GradeResponse         `json:"grades,omitempty"`
}

// QuestionResult joins a question with its latest transcription and grade.
type QuestionResult struct {
	QuestionID    uint                   `json:"question_id"`
	Label         string                 `json:"label"`
	MaxMarks      int                    `json:"max_marks"`
	Transcription *TranscriptionResponse `json:"transcription"`
	Grade         *GradeResponse         `json:"grade"`
}

// ResultsResponse summarises a submission's marks.
type ResultsResponse struct {
	SubmissionID uint             `json:"submission_id"`
	StudentName  string           `json:"student_name"`
	Status       string           `json:"status"`
	Questions    []QuestionResult `json:"questions"`
	TotalAwarded float64          `json:"total_awarded"`
	TotalMax     int              `json:"total_max"`
}

// PageImageURL is the API path serving a page image.
func PageImageURL(submissionID uint, pageNumber int) string {
	return fmt.Sprintf("/api/v1/submissions/%d/pages/%d", submissionID, pageNumber)
}

// CropImageURL is the API path serving a crop image.
func CropImageURL(submissionID, questionID uint) string {
	return fmt.Sprintf("/api/v1/submissions/%d/crops/%d", submissionID, questionID)
}

// NewPageResponseSlice converts page rows.
func NewPageResponseSlice(submissionID uint, pages []models.SubmissionPage) []PageResponse {
	responses := make([]PageResponse, 0, len(pages))
	for _, page := range pages {
		responses = append(responses, PageResponse{
			PageNumber: page.PageNumber,
			Width:      page.Width,
			Height:     page.Height,
			ImageURL:   PageImageURL(submissionID, page.PageNumber),
		})
	}
	return responses
}

// NewCropResponseSlice converts crop rows.
func NewCropResponseSlice(crops []models.AnswerCrop) []CropResponse {
	responses := make([]CropResponse, 0, len(crops))
	for _, crop := range crops {
		responses = append(responses, CropResponse{
			QuestionID:  crop.QuestionID,
			Width:       crop.Width,
			Height:      crop.Height,
			Placeholder: crop.Placeholder,
			ImageURL:    CropImageURL(crop.SubmissionID, crop.QuestionID),
		})
	}
	return responses
}

// NewTranscriptionResponse converts a transcription row.
func NewTranscriptionResponse(row models.Transcription) TranscriptionResponse {
	return TranscriptionResponse{
		QuestionID: row.QuestionID,
		Provider:   row.Provider,
		Text:       row.Text,
		Confidence: row.Confidence,
		NoAnswer:   row.NoAnswer,
		Raw:        row.Raw,
	}
}

// NewTranscriptionResponseSlice converts transcription rows.
func NewTranscriptionResponseSlice(rows []models.Transcription) []TranscriptionResponse {
	responses := make([]TranscriptionResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, NewTranscriptionResponse(row))
	}
	return responses
}

// NewGradeResponse converts a grade row.
func NewGradeResponse(row models.GradeResult) GradeResponse {
	return GradeResponse{
		QuestionID:   row.QuestionID,
		Grader:       row.Grader,
		MarksAwarded: row.MarksAwarded,
		MaxMarks:     row.MaxMarks,
		RawMarks:     row.RawMarks,
		Clamped:      row.Clamped,
		Breakdown:    row.Breakdown,
		Feedback:     row.Feedback,
	}
}

// NewGradeResponseSlice converts grade rows.
func NewGradeResponseSlice(rows []models.GradeResult) []GradeResponse {
	responses := make([]GradeResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, NewGradeResponse(row))
	}
	return responses
}
