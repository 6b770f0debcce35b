package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/supermarks-api/internal/models"
)

// ExamCreateRequest describes the payload for creating an exam.
type ExamCreateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

// ExamResponse is returned to API clients when listing exams.
type ExamResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExamDetailResponse includes the exam's questions and submissions.
type ExamDetailResponse struct {
	ExamResponse
	Questions   []QuestionResponse  `json:"questions"`
	Submissions []SubmissionSummary `json:"submissions"`
}

// QuestionCreateRequest describes the payload for adding a question.
type QuestionCreateRequest struct {
	Label    string          `json:"label" validate:"required,min=1,max=64"`
	MaxMarks int             `json:"max_marks" validate:"gte=0,lte=1000"`
	Rubric   json.RawMessage `json:"rubric"`
}

// QuestionUpdateRequest patches a question. Nil fields stay unchanged.
type QuestionUpdateRequest struct {
	Label    *string         `json:"label" validate:"omitempty,min=1,max=64"`
	MaxMarks *int            `json:"max_marks" validate:"omitempty,gte=0,lte=1000"`
	Rubric   json.RawMessage `json:"rubric"`
}

// QuestionResponse is the API view of a question.
type QuestionResponse struct {
	ID        uint             `json:"id"`
	ExamID    uint             `json:"exam_id"`
	Label     string           `json:"label"`
	MaxMarks  int              `json:"max_marks"`
	Rubric    json.RawMessage  `json:"rubric"`
	Regions   []RegionResponse `json:"regions"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// RegionInput is one fractional rectangle in a region replacement request.
type RegionInput struct {
	PageNumber int     `json:"page_number" validate:"required,gte=1"`
	X          float64 `json:"x" validate:"gte=0,lte=1"`
	Y          float64 `json:"y" validate:"gte=0,lte=1"`
	W          float64 `json:"w" validate:"gt=0,lte=1"`
	H          float64 `json:"h" validate:"gt=0,lte=1"`
}

// RegionsReplaceRequest replaces every region of a question.
type RegionsReplaceRequest struct {
	Regions []RegionInput `json:"regions" validate:"dive"`
}

// RegionResponse is the API view of a region.
type RegionResponse struct {
	ID         uint    `json:"id"`
	QuestionID uint    `json:"question_id"`
	PageNumber int     `json:"page_number"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
}

// NewExamResponse converts an Exam model into a DTO.
func NewExamResponse(model models.Exam) ExamResponse {
	return ExamResponse{
		ID:        model.ID,
		Name:      model.Name,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewExamResponseSlice converts a slice of exams.
func NewExamResponseSlice(items []models.Exam) []ExamResponse {
	responses := make([]ExamResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewExamResponse(item))
	}
	return responses
}

// NewExamDetailResponse converts an Exam with its associations.
func NewExamDetailResponse(model models.Exam) ExamDetailResponse {
	submissions := make([]SubmissionSummary, 0, len(model.Submissions))
	for _, submission := range model.Submissions {
		submissions = append(submissions, NewSubmissionSummary(submission))
	}

	return ExamDetailResponse{
		ExamResponse: NewExamResponse(model),
		Questions:    NewQuestionResponseSlice(model.Questions),
		Submissions:  submissions,
	}
}

// NewQuestionResponse converts a Question model into a DTO.
func NewQuestionResponse(model models.Question) QuestionResponse {
	rubric := json.RawMessage(model.Rubric)
	if len(rubric) == 0 {
		rubric = json.RawMessage("null")
	}

	return QuestionResponse{
		ID:        model.ID,
		ExamID:    model.ExamID,
		Label:     model.Label,
		MaxMarks:  model.MaxMarks,
		Rubric:    rubric,
		Regions:   NewRegionResponseSlice(model.Regions),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewQuestionResponseSlice converts a slice of questions.
func NewQuestionResponseSlice(items []models.Question) []QuestionResponse {
	responses := make([]QuestionResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewQuestionResponse(item))
	}
	return responses
}

// NewRegionResponseSlice converts a slice of regions.
func NewRegionResponseSlice(items []models.Region) []RegionResponse {
	responses := make([]RegionResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, RegionResponse{
			ID:         item.ID,
			QuestionID: item.QuestionID,
			PageNumber: item.PageNumber,
			X:          item.X,
			Y:          item.Y,
			W:          item.W,
			H:          item.H,
		})
	}
	return responses
}
