package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/supermarks-api/internal/dto"
	"github.com/noah-isme/supermarks-api/internal/grading"
	"github.com/noah-isme/supermarks-api/internal/models"
	"github.com/noah-isme/supermarks-api/internal/observability"
	"github.com/noah-isme/supermarks-api/internal/ocr"
	"github.com/noah-isme/supermarks-api/internal/pipeline"
	"github.com/noah-isme/supermarks-api/internal/repository"
	"github.com/noah-isme/supermarks-api/internal/storage"
)

// ErrArtifactNotFound indicates a page or crop image has not been built.
var ErrArtifactNotFound = errors.New("artifact not found")

// Default provider names used when a request does not pick one.
const (
	DefaultOCRProvider = ocr.StubName
	DefaultGrader      = grading.RuleBasedName
)

// PipelineService runs the submission stages and serves their artifacts.
type PipelineService interface {
	BuildPages(ctx context.Context, submissionID uint) ([]models.SubmissionPage, error)
	BuildCrops(ctx context.Context, submissionID uint) ([]models.AnswerCrop, error)
	Transcribe(ctx context.Context, submissionID uint, provider string) ([]models.Transcription, error)
	Grade(ctx context.Context, submissionID uint, grader string) ([]models.GradeResult, error)
	PageImage(ctx context.Context, submissionID uint, pageNumber int) ([]byte, error)
	CropImage(ctx context.Context, submissionID, questionID uint) ([]byte, error)
	Results(ctx context.Context, submissionID uint) (dto.ResultsResponse, error)
}

// PipelineDependencies groups the collaborators of the pipeline service.
type PipelineDependencies struct {
	Repo      repository.PipelineRepository
	Store     storage.Store
	Pages     *pipeline.PageBuilder
	OCR       *ocr.Registry
	Graders   *grading.Registry
	Locker    pipeline.Locker
	Publisher pipeline.Publisher
	Logger    zerolog.Logger
}

type pipelineService struct {
	repo      repository.PipelineRepository
	store     storage.Store
	pages     *pipeline.PageBuilder
	ocr       *ocr.Registry
	graders   *grading.Registry
	locker    pipeline.Locker
	publisher pipeline.Publisher
	janitor   generationJanitor
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// stageOutcome summarises a committed stage run for logs and events.
type stageOutcome struct {
	artifacts  int
	generation string
	provider   string
}

// NewPipelineService constructs a PipelineService. Missing optional collaborators fall back to
// an in-process locker, a PDF-less page builder and a discarding publisher.
func NewPipelineService(deps PipelineDependencies) PipelineService {
	if deps.Pages == nil {
		deps.Pages = pipeline.NewPageBuilder(nil, 0)
	}
	if deps.Locker == nil {
		deps.Locker = pipeline.NewMemoryLocker(0)
	}
	if deps.Publisher == nil {
		deps.Publisher = pipeline.NopPublisher{}
	}
	if deps.OCR == nil {
		deps.OCR = ocr.NewRegistry()
		deps.OCR.Register(ocr.StubName, func() (ocr.Provider, error) { return ocr.Stub{}, nil })
	}
	if deps.Graders == nil {
		deps.Graders = grading.DefaultRegistry()
	}

	logger := deps.Logger.With().Str("component", "pipeline_service").Logger()
	return &pipelineService{
		repo:      deps.Repo,
		store:     deps.Store,
		pages:     deps.Pages,
		ocr:       deps.OCR,
		graders:   deps.Graders,
		locker:    deps.Locker,
		publisher: deps.Publisher,
		janitor:   generationJanitor{store: deps.Store, logger: logger},
		logger:    logger,
		tracer:    otel.Tracer("github.com/noah-isme/supermarks-api/internal/service/pipeline"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *pipelineService) BuildPages(ctx context.Context, submissionID uint) ([]models.SubmissionPage, error) {
	var rows []models.SubmissionPage
	err := s.run(ctx, pipeline.StagePages, submissionID, func(ctx context.Context, submission models.Submission) (stageOutcome, error) {
		files, err := s.repo.ListFiles(ctx, submission.ID)
		if err != nil {
			return stageOutcome{}, err
		}

		sources := make([]pipeline.SourceFile, 0, len(files))
		for _, file := range files {
			data, err := s.store.Read(ctx, file.StoredPath)
			if err != nil {
				return stageOutcome{}, fmt.Errorf("read upload %s: %w", file.OriginalFilename, err)
			}
			sources = append(sources, pipeline.SourceFile{Kind: file.Kind, Name: file.OriginalFilename, Data: data})
		}

		images, err := s.pages.Build(ctx, submission.ID, sources)
		if err != nil {
			return stageOutcome{}, err
		}

		previous, err := s.repo.ListPages(ctx, submission.ID)
		if err != nil {
			return stageOutcome{}, err
		}

		generation := s.newID()
		built := make([]models.SubmissionPage, 0, len(images))
		for _, page := range images {
			path, err := s.store.Write(ctx, storage.Key{
				Kind:       storage.KindPage,
				OwnerID:    submission.ID,
				Generation: generation,
				Name:       storage.PageName(page.Number),
			}, page.PNG)
			if err != nil {
				s.janitor.abandon(ctx, storage.KindPage, submission.ID, generation)
				return stageOutcome{}, fmt.Errorf("store page %d: %w", page.Number, err)
			}
			built = append(built, models.SubmissionPage{
				SubmissionID: submission.ID,
				PageNumber:   page.Number,
				ImagePath:    path,
				Width:        page.Width,
				Height:       page.Height,
				Generation:   generation,
			})
		}

		if err := s.repo.ReplacePages(ctx, submission.ID, built, pipeline.StagePages.Completes()); err != nil {
			s.janitor.abandon(ctx, storage.KindPage, submission.ID, generation)
			return stageOutcome{}, err
		}

		stale := make([]string, 0, len(previous))
		for _, page := range previous {
			stale = append(stale, page.Generation)
		}
		s.janitor.prune(ctx, storage.KindPage, submission.ID, generation, stale)

		rows = built
		return stageOutcome{artifacts: len(built), generation: generation}, nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *pipelineService) BuildCrops(ctx context.Context, submissionID uint) ([]models.AnswerCrop, error) {
	var rows []models.AnswerCrop
	err := s.run(ctx, pipeline.StageCrops, submissionID, func(ctx context.Context, submission models.Submission) (stageOutcome, error) {
		questions, err := s.repo.ListQuestions(ctx, submission.ExamID)
		if err != nil {
			return stageOutcome{}, err
		}

		stored, err := s.repo.ListPages(ctx, submission.ID)
		if err != nil {
			return stageOutcome{}, err
		}
		if len(stored) == 0 {
			return stageOutcome{}, pipeline.MissingArtifacts(pipeline.StageCrops, submission.ID, 0, "no pages stored")
		}

		pages := make([]pipeline.Page, 0, len(stored))
		for _, page := range stored {
			data, err := s.store.Read(ctx, page.ImagePath)
			if err != nil {
				return stageOutcome{}, fmt.Errorf("read page %d: %w", page.PageNumber, err)
			}
			img, err := pipeline.DecodeImage(data)
			if err != nil {
				return stageOutcome{}, fmt.Errorf("decode page %d: %w", page.PageNumber, err)
			}
			pages = append(pages, pipeline.Page{Number: page.PageNumber, Image: img})
		}

		crops, err := pipeline.BuildCrops(ctx, submission.ID, pages, questions)
		if err != nil {
			return stageOutcome{}, err
		}

		previous, err := s.repo.ListCrops(ctx, submission.ID)
		if err != nil {
			return stageOutcome{}, err
		}

		generation := s.newID()
		built := make([]models.AnswerCrop, 0, len(crops))
		for _, crop := range crops {
			path, err := s.store.Write(ctx, storage.Key{
				Kind:       storage.KindCrop,
				OwnerID:    submission.ID,
				Generation: generation,
				Name:       storage.CropName(crop.QuestionID),
			}, crop.PNG)
			if err != nil {
				s.janitor.abandon(ctx, storage.KindCrop, submission.ID, generation)
				return stageOutcome{}, fmt.Errorf("store crop for question %d: %w", crop.QuestionID, err)
			}
			built = append(built, models.AnswerCrop{
				SubmissionID: submission.ID,
				QuestionID:   crop.QuestionID,
				ImagePath:    path,
				Width:        crop.Width,
				Height:       crop.Height,
				Placeholder:  crop.Placeholder,
				Generation:   generation,
			})
		}

		if err := s.repo.ReplaceCrops(ctx, submission.ID, built, pipeline.StageCrops.Completes()); err != nil {
			s.janitor.abandon(ctx, storage.KindCrop, submission.ID, generation)
			return stageOutcome{}, err
		}

		stale := make([]string, 0, len(previous))
		for _, crop := range previous {
			stale = append(stale, crop.Generation)
		}
		s.janitor.prune(ctx, storage.KindCrop, submission.ID, generation, stale)

		rows = built
		return stageOutcome{artifacts: len(built), generation: generation}, nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *pipelineService) Transcribe(ctx context.Context, submissionID uint, providerName string) ([]models.Transcription, error) {
	if providerName == "" {
		providerName = DefaultOCRProvider
	}

	var rows []models.Transcription
	err := s.run(ctx, pipeline.StageTranscribe, submissionID, func(ctx context.Context, submission models.Submission) (stageOutcome, error) {
		provider, err := s.ocr.Resolve(providerName)
		if err != nil {
			return stageOutcome{}, s.providerError(pipeline.StageTranscribe, submission.ID, 0, err)
		}

		questions, err := s.repo.ListQuestions(ctx, submission.ExamID)
		if err != nil {
			return stageOutcome{}, err
		}
		crops, err := s.repo.ListCrops(ctx, submission.ID)
		if err != nil {
			return stageOutcome{}, err
		}
		byQuestion := make(map[uint]models.AnswerCrop, len(crops))
		for _, crop := range crops {
			byQuestion[crop.QuestionID] = crop
		}

		built := make([]models.Transcription, 0, len(questions))
		for _, question := range questions {
			crop, ok := byQuestion[question.ID]
			if !ok {
				return stageOutcome{}, pipeline.MissingArtifacts(pipeline.StageTranscribe, submission.ID, question.ID, "no crop for question")
			}

			if crop.Placeholder {
				built = append(built, models.Transcription{
					SubmissionID: submission.ID,
					QuestionID:   question.ID,
					Provider:     provider.Name(),
					NoAnswer:     true,
					Raw:          datatypes.JSONMap{"reason": "no answer regions"},
				})
				continue
			}

			data, err := s.store.Read(ctx, crop.ImagePath)
			if err != nil {
				return stageOutcome{}, fmt.Errorf("read crop for question %d: %w", question.ID, err)
			}

			result, err := s.transcribeOne(ctx, provider, ocr.Image{
				QuestionID: question.ID,
				PNG:        data,
				Width:      crop.Width,
				Height:     crop.Height,
			})
			if err != nil {
				return stageOutcome{}, s.providerError(pipeline.StageTranscribe, submission.ID, question.ID, err)
			}

			confidence := ocr.ClampConfidence(result.Confidence)
			if confidence != result.Confidence {
				s.logger.Warn().
					Uint("submission_id", submission.ID).
					Uint("question_id", question.ID).
					Str("provider", provider.Name()).
					Float64("raw_confidence", result.Confidence).
					Float64("confidence", confidence).
					Msg("provider confidence clamped")
			}

			built = append(built, models.Transcription{
				SubmissionID: submission.ID,
				QuestionID:   question.ID,
				Provider:     provider.Name(),
				Text:         result.Text,
				Confidence:   confidence,
				Raw:          datatypes.JSONMap(result.Raw),
			})
		}

		if err := s.repo.ReplaceTranscriptions(ctx, submission.ID, built, pipeline.StageTranscribe.Completes()); err != nil {
			return stageOutcome{}, err
		}

		rows = built
		return stageOutcome{artifacts: len(built), provider: provider.Name()}, nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *pipelineService) Grade(ctx context.Context, submissionID uint, graderName string) ([]models.GradeResult, error) {
	if graderName == "" {
		graderName = DefaultGrader
	}

	var rows []models.GradeResult
	err := s.run(ctx, pipeline.StageGrade, submissionID, func(ctx context.Context, submission models.Submission) (stageOutcome, error) {
		grader, err := s.graders.Resolve(graderName)
		if err != nil {
			return stageOutcome{}, s.providerError(pipeline.StageGrade, submission.ID, 0, err)
		}

		questions, err := s.repo.ListQuestions(ctx, submission.ExamID)
		if err != nil {
			return stageOutcome{}, err
		}
		transcriptions, err := s.repo.ListTranscriptions(ctx, submission.ID)
		if err != nil {
			return stageOutcome{}, err
		}
		byQuestion := make(map[uint]models.Transcription, len(transcriptions))
		for _, row := range transcriptions {
			byQuestion[row.QuestionID] = row
		}

		built := make([]models.GradeResult, 0, len(questions))
		for _, question := range questions {
			transcription, ok := byQuestion[question.ID]
			if !ok {
				return stageOutcome{}, pipeline.MissingArtifacts(pipeline.StageGrade, submission.ID, question.ID, "no transcription for question")
			}

			rubric, err := grading.ParseRubric(question.Rubric, question.MaxMarks)
			if err != nil {
				return stageOutcome{}, &pipeline.StageError{
					Err:          err,
					Stage:        pipeline.StageGrade,
					SubmissionID: submission.ID,
					QuestionID:   question.ID,
				}
			}

			outcome, err := s.gradeOne(ctx, grader, grading.Input{
				QuestionID: question.ID,
				Text:       transcription.Text,
				NoAnswer:   transcription.NoAnswer,
				Rubric:     rubric,
				MaxMarks:   question.MaxMarks,
			})
			if err != nil {
				return stageOutcome{}, s.providerError(pipeline.StageGrade, submission.ID, question.ID, err)
			}

			marks, clamped := grading.Clamp(outcome.Marks, question.MaxMarks)
			raw := outcome.Marks
			if math.IsNaN(raw) || math.IsInf(raw, 0) {
				// Non-finite values cannot be stored or encoded as JSON.
				raw = marks
			}
			if clamped {
				s.logger.Warn().
					Uint("submission_id", submission.ID).
					Uint("question_id", question.ID).
					Float64("raw_marks", outcome.Marks).
					Float64("marks", marks).
					Msg("grader marks clamped")
			}

			built = append(built, models.GradeResult{
				SubmissionID: submission.ID,
				QuestionID:   question.ID,
				Grader:       grader.Name(),
				MarksAwarded: marks,
				MaxMarks:     question.MaxMarks,
				RawMarks:     raw,
				Clamped:      clamped,
				Breakdown:    datatypes.JSONMap(outcome.Breakdown),
				Feedback:     datatypes.JSONMap(outcome.Feedback),
			})
		}

		if err := s.repo.ReplaceGrades(ctx, submission.ID, built, pipeline.StageGrade.Completes()); err != nil {
			return stageOutcome{}, err
		}

		rows = built
		return stageOutcome{artifacts: len(built), provider: grader.Name()}, nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *pipelineService) PageImage(ctx context.Context, submissionID uint, pageNumber int) ([]byte, error) {
	if _, err := s.submission(ctx, "", submissionID); err != nil {
		return nil, err
	}

	page, err := s.repo.GetPage(ctx, submissionID, pageNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("page %d: %w", pageNumber, ErrArtifactNotFound)
		}
		return nil, err
	}
	return s.readArtifact(ctx, page.ImagePath)
}

func (s *pipelineService) CropImage(ctx context.Context, submissionID, questionID uint) ([]byte, error) {
	if _, err := s.submission(ctx, "", submissionID); err != nil {
		return nil, err
	}

	crop, err := s.repo.GetCrop(ctx, submissionID, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("crop for question %d: %w", questionID, ErrArtifactNotFound)
		}
		return nil, err
	}
	return s.readArtifact(ctx, crop.ImagePath)
}

func (s *pipelineService) Results(ctx context.Context, submissionID uint) (dto.ResultsResponse, error) {
	submission, err := s.submission(ctx, "", submissionID)
	if err != nil {
		return dto.ResultsResponse{}, err
	}

	questions, err := s.repo.ListQuestions(ctx, submission.ExamID)
	if err != nil {
		return dto.ResultsResponse{}, err
	}
	transcriptions, err := s.repo.ListTranscriptions(ctx, submissionID)
	if err != nil {
		return dto.ResultsResponse{}, err
	}
	grades, err := s.repo.ListGrades(ctx, submissionID)
	if err != nil {
		return dto.ResultsResponse{}, err
	}

	transcriptionByQuestion := make(map[uint]models.Transcription, len(transcriptions))
	for _, row := range transcriptions {
		transcriptionByQuestion[row.QuestionID] = row
	}
	gradeByQuestion := make(map[uint]models.GradeResult, len(grades))
	for _, row := range grades {
		gradeByQuestion[row.QuestionID] = row
	}

	response := dto.ResultsResponse{
		SubmissionID: submission.ID,
		StudentName:  submission.StudentName,
		Status:       string(submission.Status),
		Questions:    make([]dto.QuestionResult, 0, len(questions)),
	}
	for _, question := range questions {
		result := dto.QuestionResult{
			QuestionID: question.ID,
			Label:      question.Label,
			MaxMarks:   question.MaxMarks,
		}
		if row, ok := transcriptionByQuestion[question.ID]; ok {
			converted := dto.NewTranscriptionResponse(row)
			result.Transcription = &converted
		}
		if row, ok := gradeByQuestion[question.ID]; ok {
			converted := dto.NewGradeResponse(row)
			result.Grade = &converted
			response.TotalAwarded += row.MarksAwarded
		}
		response.TotalMax += question.MaxMarks
		response.Questions = append(response.Questions, result)
	}

	return response, nil
}

// run wraps one stage body with the submission lock, the transition check, metrics, tracing and
// the completion event.
func (s *pipelineService) run(ctx context.Context, stage pipeline.Stage, submissionID uint, body func(context.Context, models.Submission) (stageOutcome, error)) error {
	ctx, span := s.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()
	span.SetAttributes(
		attribute.Int("submission.id", int(submissionID)),
		attribute.String("pipeline.stage", string(stage)),
	)

	correlationID := observability.CorrelationIDFromContext(ctx)
	logger := s.logger
	if correlationID != "" {
		logger = s.logger.With().Str("correlation_id", correlationID).Logger()
	}

	start := time.Now()
	submission, outcome, err := s.runLocked(ctx, stage, submissionID, body)
	elapsed := time.Since(start)
	observability.StageDuration().WithLabelValues(string(stage)).Observe(elapsed.Seconds())

	if err != nil {
		err = withStage(stage, submissionID, err)
		reason := pipeline.Reason(err)
		observability.StageFailures().WithLabelValues(string(stage), reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)

		event := logger.Warn()
		if reason == "internal" {
			event = logger.Error()
		}
		event.Err(err).
			Uint("submission_id", submissionID).
			Str("stage", string(stage)).
			Str("reason", reason).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("stage failed")
		return err
	}

	span.SetAttributes(attribute.Int("pipeline.artifacts", outcome.artifacts))
	span.SetStatus(codes.Ok, "committed")

	logger.Info().
		Uint("submission_id", submissionID).
		Str("stage", string(stage)).
		Str("generation", outcome.generation).
		Str("provider", outcome.provider).
		Int("artifacts", outcome.artifacts).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("stage completed")

	event := pipeline.StageCompleted{
		SubmissionID:  submissionID,
		ExamID:        submission.ExamID,
		Stage:         stage,
		Status:        string(stage.Completes()),
		ArtifactCount: outcome.artifacts,
		Generation:    outcome.generation,
		Provider:      outcome.provider,
		CorrelationID: correlationID,
		CompletedAt:   s.now().UTC(),
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn().Err(err).Uint("submission_id", submissionID).Str("stage", string(stage)).Msg("failed to publish stage event")
	}
	return nil
}

func (s *pipelineService) runLocked(ctx context.Context, stage pipeline.Stage, submissionID uint, body func(context.Context, models.Submission) (stageOutcome, error)) (models.Submission, stageOutcome, error) {
	if _, err := s.submission(ctx, stage, submissionID); err != nil {
		return models.Submission{}, stageOutcome{}, err
	}

	release, err := s.locker.Acquire(ctx, submissionID)
	if err != nil {
		return models.Submission{}, stageOutcome{}, err
	}
	defer release()

	// Status may have moved while waiting for the lock.
	submission, err := s.submission(ctx, stage, submissionID)
	if err != nil {
		return models.Submission{}, stageOutcome{}, err
	}
	if err := pipeline.CheckTransition(stage, submission); err != nil {
		return submission, stageOutcome{}, err
	}

	outcome, err := body(ctx, submission)
	return submission, outcome, err
}

// withStage attaches the stage and submission to failures that carry no context of their own.
func withStage(stage pipeline.Stage, submissionID uint, err error) error {
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		if stageErr.Stage == "" {
			stageErr.Stage = stage
		}
		return err
	}
	return &pipeline.StageError{Err: err, Stage: stage, SubmissionID: submissionID}
}

func (s *pipelineService) submission(ctx context.Context, stage pipeline.Stage, submissionID uint) (models.Submission, error) {
	submission, err := s.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, &pipeline.StageError{Err: ErrSubmissionNotFound, Stage: stage, SubmissionID: submissionID}
		}
		return models.Submission{}, err
	}
	return submission, nil
}

func (s *pipelineService) transcribeOne(ctx context.Context, provider ocr.Provider, image ocr.Image) (ocr.Result, error) {
	result, err := provider.Transcribe(ctx, image)
	observability.ProviderCalls().WithLabelValues("ocr", provider.Name(), outcomeLabel(err)).Inc()
	return result, err
}

func (s *pipelineService) gradeOne(ctx context.Context, grader grading.Grader, input grading.Input) (grading.Outcome, error) {
	outcome, err := grader.Grade(ctx, input)
	observability.ProviderCalls().WithLabelValues("grader", grader.Name(), outcomeLabel(err)).Inc()
	return outcome, err
}

// providerError attaches stage context and any install hint to a provider failure.
func (s *pipelineService) providerError(stage pipeline.Stage, submissionID, questionID uint, err error) error {
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return err
	}
	return &pipeline.StageError{
		Err:          err,
		Stage:        stage,
		SubmissionID: submissionID,
		QuestionID:   questionID,
		Hint:         pipeline.HintFor(err),
	}
}

func (s *pipelineService) readArtifact(ctx context.Context, path string) ([]byte, error) {
	data, err := s.store.Read(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", path, ErrArtifactNotFound)
		}
		return nil, err
	}
	return data, nil
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
