package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/supermarks-api/internal/dto"
	"github.com/noah-isme/supermarks-api/internal/grading"
	"github.com/noah-isme/supermarks-api/internal/models"
	"github.com/noah-isme/supermarks-api/internal/pipeline"
	"github.com/noah-isme/supermarks-api/internal/repository"
)

var (
	// ErrExamNotFound indicates the exam does not exist.
	ErrExamNotFound = errors.New("exam not found")
	// ErrQuestionNotFound indicates the question does not exist or belongs to another exam.
	ErrQuestionNotFound = errors.New("question not found")
)

// ExamService manages exams, their questions and answer regions.
type ExamService interface {
	Create(ctx context.Context, payload dto.ExamCreateRequest) (dto.ExamResponse, error)
	List(ctx context.Context) ([]dto.ExamResponse, error)
	Get(ctx context.Context, id uint) (dto.ExamDetailResponse, error)
	CreateQuestion(ctx context.Context, examID uint, payload dto.QuestionCreateRequest) (dto.QuestionResponse, error)
	ListQuestions(ctx context.Context, examID uint) ([]dto.QuestionResponse, error)
	UpdateQuestion(ctx context.Context, examID, questionID uint, payload dto.QuestionUpdateRequest) (dto.QuestionResponse, error)
	DeleteQuestion(ctx context.Context, examID, questionID uint) error
	ReplaceRegions(ctx context.Context, questionID uint, payload dto.RegionsReplaceRequest) (dto.QuestionResponse, error)
}

type examService struct {
	repo      repository.ExamRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewExamService constructs an ExamService.
func NewExamService(repo repository.ExamRepository, validate *validator.Validate, logger zerolog.Logger) ExamService {
	return &examService{
		repo:      repo,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "exam_service").Logger(),
	}
}

func (s *examService) Create(ctx context.Context, payload dto.ExamCreateRequest) (dto.ExamResponse, error) {
	payload.Name = s.clean(payload.Name)
	if err := s.validator.Struct(payload); err != nil {
		return dto.ExamResponse{}, err
	}

	exam := models.Exam{Name: payload.Name}
	if err := s.repo.Create(ctx, &exam); err != nil {
		return dto.ExamResponse{}, err
	}

	s.logger.Info().Uint("exam_id", exam.ID).Msg("exam created")
	return dto.NewExamResponse(exam), nil
}

func (s *examService) List(ctx context.Context) ([]dto.ExamResponse, error) {
	exams, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewExamResponseSlice(exams), nil
}

func (s *examService) Get(ctx context.Context, id uint) (dto.ExamDetailResponse, error) {
	exam, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExamDetailResponse{}, ErrExamNotFound
		}
		return dto.ExamDetailResponse{}, err
	}
	return dto.NewExamDetailResponse(exam), nil
}

func (s *examService) CreateQuestion(ctx context.Context, examID uint, payload dto.QuestionCreateRequest) (dto.QuestionResponse, error) {
	payload.Label = s.clean(payload.Label)
	if err := s.validator.Struct(payload); err != nil {
		return dto.QuestionResponse{}, err
	}

	if err := s.ensureExam(ctx, examID); err != nil {
		return dto.QuestionResponse{}, err
	}

	rubric, err := rubricDocument(payload.Rubric, payload.MaxMarks)
	if err != nil {
		return dto.QuestionResponse{}, err
	}

	question := models.Question{
		ExamID:   examID,
		Label:    payload.Label,
		MaxMarks: payload.MaxMarks,
		Rubric:   rubric,
	}
	if err := s.repo.CreateQuestion(ctx, &question); err != nil {
		return dto.QuestionResponse{}, err
	}

	s.logger.Info().Uint("exam_id", examID).Uint("question_id", question.ID).Msg("question created")
	return dto.NewQuestionResponse(question), nil
}

func (s *examService) ListQuestions(ctx context.Context, examID uint) ([]dto.QuestionResponse, error) {
	if err := s.ensureExam(ctx, examID); err != nil {
		return nil, err
	}

	questions, err := s.repo.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	return dto.NewQuestionResponseSlice(questions), nil
}

func (s *examService) UpdateQuestion(ctx context.Context, examID, questionID uint, payload dto.QuestionUpdateRequest) (dto.QuestionResponse, error) {
	if payload.Label != nil {
		cleaned := s.clean(*payload.Label)
		payload.Label = &cleaned
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.QuestionResponse{}, err
	}

	question, err := s.question(ctx, examID, questionID)
	if err != nil {
		return dto.QuestionResponse{}, err
	}

	if payload.Label != nil {
		question.Label = *payload.Label
	}
	if payload.MaxMarks != nil {
		question.MaxMarks = *payload.MaxMarks
	}
	if len(payload.Rubric) > 0 {
		rubric, err := rubricDocument(payload.Rubric, question.MaxMarks)
		if err != nil {
			return dto.QuestionResponse{}, err
		}
		question.Rubric = rubric
	}

	if err := s.repo.UpdateQuestion(ctx, &question); err != nil {
		return dto.QuestionResponse{}, err
	}
	return dto.NewQuestionResponse(question), nil
}

func (s *examService) DeleteQuestion(ctx context.Context, examID, questionID uint) error {
	if _, err := s.question(ctx, examID, questionID); err != nil {
		return err
	}

	if err := s.repo.DeleteQuestion(ctx, questionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return err
	}

	s.logger.Info().Uint("exam_id", examID).Uint("question_id", questionID).Msg("question deleted")
	return nil
}

func (s *examService) ReplaceRegions(ctx context.Context, questionID uint, payload dto.RegionsReplaceRequest) (dto.QuestionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.QuestionResponse{}, err
	}

	question, err := s.repo.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuestionResponse{}, ErrQuestionNotFound
		}
		return dto.QuestionResponse{}, err
	}

	regions := make([]models.Region, 0, len(payload.Regions))
	for i, input := range payload.Regions {
		region := models.Region{
			PageNumber: input.PageNumber,
			X:          input.X,
			Y:          input.Y,
			W:          input.W,
			H:          input.H,
		}
		if err := region.Validate(); err != nil {
			return dto.QuestionResponse{}, fmt.Errorf("%w: region %d: %v", pipeline.ErrValidation, i, err)
		}
		regions = append(regions, region)
	}

	stored, err := s.repo.ReplaceRegions(ctx, questionID, regions)
	if err != nil {
		return dto.QuestionResponse{}, err
	}
	question.Regions = stored

	s.logger.Info().Uint("question_id", questionID).Int("regions", len(stored)).Msg("regions replaced")
	return dto.NewQuestionResponse(question), nil
}

func (s *examService) ensureExam(ctx context.Context, examID uint) error {
	if _, err := s.repo.GetByID(ctx, examID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrExamNotFound
		}
		return err
	}
	return nil
}

func (s *examService) question(ctx context.Context, examID, questionID uint) (models.Question, error) {
	question, err := s.repo.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Question{}, ErrQuestionNotFound
		}
		return models.Question{}, err
	}
	if question.ExamID != examID {
		return models.Question{}, ErrQuestionNotFound
	}
	return question, nil
}

func (s *examService) clean(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

// rubricDocument validates a supplied rubric or builds the default one for maxMarks.
func rubricDocument(raw json.RawMessage, maxMarks int) (datatypes.JSON, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		encoded, err := json.Marshal(grading.DefaultRubric(maxMarks))
		if err != nil {
			return nil, err
		}
		return datatypes.JSON(encoded), nil
	}

	if err := grading.ValidateRubric(trimmed); err != nil {
		return nil, err
	}
	return datatypes.JSON(append([]byte(nil), trimmed...)), nil
}
