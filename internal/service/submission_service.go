package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
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

var (
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = pipeline.ErrSubmissionNotFound
	// ErrUploadTooLarge indicates a file exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the detected MIME type is not a PDF or supported image.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
)

// SubmissionService stores answer scripts and exposes their state.
type SubmissionService interface {
	Upload(ctx context.Context, examID uint, payload dto.SubmissionUploadRequest, files []*multipart.FileHeader) (dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint) (dto.SubmissionResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	exams       repository.ExamRepository
	store       storage.Store
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	uploads     uploadPolicy
	tracer      trace.Tracer
	newID       func() string
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(subRepo repository.SubmissionRepository, examRepo repository.ExamRepository, store storage.Store, validate *validator.Validate, maxSizeMB int, logger zerolog.Logger) SubmissionService {
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	return &submissionService{
		submissions: subRepo,
		exams:       examRepo,
		store:       store,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "submission_service").Logger(),
		uploads:     uploadPolicy{maxSize: int64(maxSizeMB) * 1024 * 1024},
		tracer:      otel.Tracer("github.com/noah-isme/supermarks-api/internal/service/submission"),
		newID:       uuid.NewString,
	}
}

func (s *submissionService) Upload(ctx context.Context, examID uint, payload dto.SubmissionUploadRequest, files []*multipart.FileHeader) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.upload")
	defer span.End()
	span.SetAttributes(
		attribute.Int("submission.exam_id", int(examID)),
		attribute.Int("upload.file_count", len(files)),
		attribute.Int64("upload.max_bytes", s.uploads.maxSize),
	)

	payload.StudentName = strings.TrimSpace(s.sanitizer.Sanitize(payload.StudentName))
	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.SubmissionResponse{}, err
	}

	if len(files) == 0 {
		observability.UploadRejected().WithLabelValues("empty").Inc()
		err := fmt.Errorf("%w: at least one file is required", pipeline.ErrValidation)
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.SubmissionResponse{}, err
	}

	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrExamNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	accepted := make([]acceptedFile, 0, len(files))
	for _, header := range files {
		file, err := s.uploads.accept(header)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "file rejected")
			return dto.SubmissionResponse{}, err
		}
		accepted = append(accepted, file)
	}

	generation := s.newID()
	rows := make([]models.SubmissionFile, 0, len(accepted))
	for i, file := range accepted {
		key := storage.Key{
			Kind:       storage.KindUpload,
			OwnerID:    examID,
			Generation: generation,
			Name:       fmt.Sprintf("%02d-%s", i+1, file.storedName),
		}
		stored, err := s.store.Write(ctx, key, file.data)
		if err != nil {
			s.discard(ctx, key.Prefix())
			observability.UploadRejected().WithLabelValues("storage").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "storage failed")
			return dto.SubmissionResponse{}, fmt.Errorf("store %s: %w", file.originalName, err)
		}
		rows = append(rows, models.SubmissionFile{
			Kind:             file.kind,
			OriginalFilename: file.originalName,
			StoredPath:       stored,
			ContentType:      file.contentType,
			SizeBytes:        int64(len(file.data)),
			Checksum:         file.checksum,
		})
	}

	submission := models.Submission{
		ExamID:      examID,
		StudentName: payload.StudentName,
		Status:      models.SubmissionStatusUploaded,
	}
	if err := s.submissions.Create(ctx, &submission, rows); err != nil {
		s.discard(ctx, storage.Prefix(storage.KindUpload, examID, generation))
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.SubmissionResponse{}, err
	}

	for _, file := range accepted {
		observability.UploadFiles().WithLabelValues(file.kind).Inc()
	}
	span.SetAttributes(attribute.Int("submission.id", int(submission.ID)))
	span.SetStatus(codes.Ok, "stored")

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("exam_id", examID).
		Int("files", len(rows)).
		Msg("submission uploaded")

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Get(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) discard(ctx context.Context, prefix string) {
	if err := s.store.DeletePrefix(context.WithoutCancel(ctx), prefix); err != nil {
		s.logger.Warn().Err(err).Str("prefix", prefix).Msg("failed to remove rejected upload")
	}
}
