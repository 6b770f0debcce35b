package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/supermarks-api/internal/dto"
	"github.com/noah-isme/supermarks-api/internal/models"
	"github.com/noah-isme/supermarks-api/internal/observability"
	"github.com/noah-isme/supermarks-api/internal/pipeline"
	"github.com/noah-isme/supermarks-api/internal/repository"
	"github.com/noah-isme/supermarks-api/internal/storage"
)

// AnswerKeyService captures an exam's answer key and renders it to pages for region authoring.
type AnswerKeyService interface {
	Upload(ctx context.Context, examID uint, files []*multipart.FileHeader) (dto.KeyUploadResponse, error)
	ListFiles(ctx context.Context, examID uint) ([]models.ExamKeyFile, error)
	BuildPages(ctx context.Context, examID uint) ([]models.ExamKeyPage, error)
	ListPages(ctx context.Context, examID uint) ([]models.ExamKeyPage, error)
	PageImage(ctx context.Context, examID uint, pageNumber int) ([]byte, error)
}

// AnswerKeyDependencies groups the collaborators of the answer key service.
type AnswerKeyDependencies struct {
	Repo        repository.AnswerKeyRepository
	Exams       repository.ExamRepository
	Store       storage.Store
	Pages       *pipeline.PageBuilder
	Locker      pipeline.Locker
	UploadMaxMB int
	Logger      zerolog.Logger
}

type answerKeyService struct {
	repo    repository.AnswerKeyRepository
	exams   repository.ExamRepository
	store   storage.Store
	pages   *pipeline.PageBuilder
	locker  pipeline.Locker
	uploads uploadPolicy
	janitor generationJanitor
	logger  zerolog.Logger
	tracer  trace.Tracer
	newID   func() string
}

// NewAnswerKeyService constructs an AnswerKeyService. The locker must not be shared with
// submission stages since both key on numeric ids.
func NewAnswerKeyService(deps AnswerKeyDependencies) AnswerKeyService {
	if deps.Pages == nil {
		deps.Pages = pipeline.NewPageBuilder(nil, 0)
	}
	if deps.Locker == nil {
		deps.Locker = pipeline.NewMemoryLocker(0)
	}
	if deps.UploadMaxMB <= 0 {
		deps.UploadMaxMB = 25
	}

	logger := deps.Logger.With().Str("component", "answer_key_service").Logger()
	return &answerKeyService{
		repo:    deps.Repo,
		exams:   deps.Exams,
		store:   deps.Store,
		pages:   deps.Pages,
		locker:  deps.Locker,
		uploads: uploadPolicy{maxSize: int64(deps.UploadMaxMB) * 1024 * 1024},
		janitor: generationJanitor{store: deps.Store, logger: logger},
		logger:  logger,
		tracer:  otel.Tracer("github.com/noah-isme/supermarks-api/internal/service/answer_key"),
		newID:   uuid.NewString,
	}
}

func (s *answerKeyService) Upload(ctx context.Context, examID uint, files []*multipart.FileHeader) (dto.KeyUploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "answer_key.upload")
	defer span.End()
	span.SetAttributes(
		attribute.Int("exam.id", int(examID)),
		attribute.Int("upload.file_count", len(files)),
	)

	if err := s.ensureExam(ctx, examID); err != nil {
		return dto.KeyUploadResponse{}, err
	}
	if len(files) == 0 {
		observability.UploadRejected().WithLabelValues("empty").Inc()
		return dto.KeyUploadResponse{}, fmt.Errorf("%w: at least one file is required", pipeline.ErrValidation)
	}

	accepted := make([]acceptedFile, 0, len(files))
	for _, header := range files {
		file, err := s.uploads.accept(header)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "file rejected")
			return dto.KeyUploadResponse{}, err
		}
		accepted = append(accepted, file)
	}

	generation := s.newID()
	rows := make([]models.ExamKeyFile, 0, len(accepted))
	for i, file := range accepted {
		path, err := s.store.Write(ctx, storage.Key{
			Kind:       storage.KindKeyUpload,
			OwnerID:    examID,
			Generation: generation,
			Name:       fmt.Sprintf("%02d-%s", i+1, file.storedName),
		}, file.data)
		if err != nil {
			s.janitor.abandon(ctx, storage.KindKeyUpload, examID, generation)
			span.RecordError(err)
			span.SetStatus(codes.Error, "storage failed")
			return dto.KeyUploadResponse{}, fmt.Errorf("store answer key %s: %w", file.originalName, err)
		}
		rows = append(rows, models.ExamKeyFile{
			ExamID:           examID,
			Kind:             file.kind,
			OriginalFilename: file.originalName,
			StoredPath:       path,
			ContentType:      file.contentType,
			SizeBytes:        int64(len(file.data)),
			Checksum:         file.checksum,
		})
	}

	if err := s.repo.AddFiles(ctx, rows); err != nil {
		s.janitor.abandon(ctx, storage.KindKeyUpload, examID, generation)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.KeyUploadResponse{}, err
	}

	for _, file := range accepted {
		observability.UploadFiles().WithLabelValues(file.kind).Inc()
	}
	span.SetStatus(codes.Ok, "stored")

	s.logger.Info().Uint("exam_id", examID).Int("files", len(rows)).Msg("answer key uploaded")

	return dto.KeyUploadResponse{
		ExamID:   examID,
		Uploaded: len(rows),
		Files:    dto.NewKeyFileResponseSlice(rows),
	}, nil
}

func (s *answerKeyService) ListFiles(ctx context.Context, examID uint) ([]models.ExamKeyFile, error) {
	if err := s.ensureExam(ctx, examID); err != nil {
		return nil, err
	}
	return s.repo.ListFiles(ctx, examID)
}

// BuildPages renders every key file into a fresh generation of pages and replaces the previous
// set. Rebuilding is always allowed so that files uploaded later are picked up.
func (s *answerKeyService) BuildPages(ctx context.Context, examID uint) ([]models.ExamKeyPage, error) {
	ctx, span := s.tracer.Start(ctx, "answer_key.build_pages")
	defer span.End()
	span.SetAttributes(attribute.Int("exam.id", int(examID)))

	logger := s.logger
	if correlationID := observability.CorrelationIDFromContext(ctx); correlationID != "" {
		logger = s.logger.With().Str("correlation_id", correlationID).Logger()
	}

	start := time.Now()
	rows, err := s.buildPages(ctx, examID)
	elapsed := time.Since(start)
	observability.StageDuration().WithLabelValues(string(pipeline.StageKeyPages)).Observe(elapsed.Seconds())

	if err != nil {
		reason := pipeline.Reason(err)
		if !errors.Is(err, ErrExamNotFound) {
			observability.StageFailures().WithLabelValues(string(pipeline.StageKeyPages), reason).Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		logger.Warn().Err(err).Uint("exam_id", examID).Str("reason", reason).Msg("answer key build failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "committed")
	logger.Info().
		Uint("exam_id", examID).
		Int("pages", len(rows)).
		Int("dpi", s.pages.DPI()).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("answer key pages built")
	return rows, nil
}

func (s *answerKeyService) buildPages(ctx context.Context, examID uint) ([]models.ExamKeyPage, error) {
	if err := s.ensureExam(ctx, examID); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, examID)
	if err != nil {
		if errors.Is(err, pipeline.ErrSubmissionBusy) {
			return nil, s.keyError(examID, pipeline.ErrExamBusy, "another answer key build is running")
		}
		return nil, s.keyError(examID, err, "")
	}
	defer release()

	files, err := s.repo.ListFiles(ctx, examID)
	if err != nil {
		return nil, s.keyError(examID, err, "")
	}

	sources := make([]pipeline.SourceFile, 0, len(files))
	for _, file := range files {
		data, err := s.store.Read(ctx, file.StoredPath)
		if err != nil {
			return nil, s.keyError(examID, err, fmt.Sprintf("read key file %s", file.OriginalFilename))
		}
		sources = append(sources, pipeline.SourceFile{Kind: file.Kind, Name: file.OriginalFilename, Data: data})
	}

	images, err := s.pages.BuildKey(ctx, examID, sources)
	if err != nil {
		return nil, err
	}

	previous, err := s.repo.ListPages(ctx, examID)
	if err != nil {
		return nil, s.keyError(examID, err, "")
	}

	generation := s.newID()
	built := make([]models.ExamKeyPage, 0, len(images))
	for _, page := range images {
		path, err := s.store.Write(ctx, storage.Key{
			Kind:       storage.KindKeyPage,
			OwnerID:    examID,
			Generation: generation,
			Name:       storage.PageName(page.Number),
		}, page.PNG)
		if err != nil {
			s.janitor.abandon(ctx, storage.KindKeyPage, examID, generation)
			return nil, s.keyError(examID, err, fmt.Sprintf("store key page %d", page.Number))
		}
		built = append(built, models.ExamKeyPage{
			ExamID:     examID,
			PageNumber: page.Number,
			ImagePath:  path,
			Width:      page.Width,
			Height:     page.Height,
			Generation: generation,
		})
	}

	if err := s.repo.ReplacePages(ctx, examID, built); err != nil {
		s.janitor.abandon(ctx, storage.KindKeyPage, examID, generation)
		return nil, s.keyError(examID, err, "")
	}

	stale := make([]string, 0, len(previous))
	for _, page := range previous {
		stale = append(stale, page.Generation)
	}
	s.janitor.prune(ctx, storage.KindKeyPage, examID, generation, stale)

	return built, nil
}

func (s *answerKeyService) ListPages(ctx context.Context, examID uint) ([]models.ExamKeyPage, error) {
	if err := s.ensureExam(ctx, examID); err != nil {
		return nil, err
	}
	return s.repo.ListPages(ctx, examID)
}

func (s *answerKeyService) PageImage(ctx context.Context, examID uint, pageNumber int) ([]byte, error) {
	if err := s.ensureExam(ctx, examID); err != nil {
		return nil, err
	}

	page, err := s.repo.GetPage(ctx, examID, pageNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("key page %d: %w", pageNumber, ErrArtifactNotFound)
		}
		return nil, err
	}

	data, err := s.store.Read(ctx, page.ImagePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", page.ImagePath, ErrArtifactNotFound)
		}
		return nil, err
	}
	return data, nil
}

func (s *answerKeyService) ensureExam(ctx context.Context, examID uint) error {
	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrExamNotFound
		}
		return err
	}
	return nil
}

func (s *answerKeyService) keyError(examID uint, err error, detail string) error {
	return &pipeline.StageError{Err: err, Stage: pipeline.StageKeyPages, ExamID: examID, Detail: detail}
}
