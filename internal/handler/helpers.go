package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/supermarks-api/internal/middleware"
	"github.com/noah-isme/supermarks-api/internal/pipeline"
	"github.com/noah-isme/supermarks-api/internal/service"
	"github.com/noah-isme/supermarks-api/internal/utils"
)

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := strings.TrimSpace(c.Params(name))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(parsed), nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// stageErrorDetails exposes the structured context of a stage failure to API clients.
func stageErrorDetails(err error) fiber.Map {
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		if hint := pipeline.HintFor(err); hint != "" {
			return fiber.Map{"reason": pipeline.Reason(err), "hint": hint}
		}
		return fiber.Map{"reason": pipeline.Reason(err)}
	}

	details := fiber.Map{"reason": pipeline.Reason(err)}
	if stageErr.ExamID != 0 {
		details["exam_id"] = stageErr.ExamID
	}
	if stageErr.SubmissionID != 0 || stageErr.ExamID == 0 {
		details["submission_id"] = stageErr.SubmissionID
	}
	if stageErr.Stage != "" {
		details["stage"] = stageErr.Stage
	}
	if stageErr.QuestionID != 0 {
		details["question_id"] = stageErr.QuestionID
	}
	if stageErr.PageNumber != 0 {
		details["page_number"] = stageErr.PageNumber
	}
	if hint := pipeline.HintFor(err); hint != "" {
		details["hint"] = hint
	}
	return details
}

// handleError maps domain errors to HTTP responses. Unknown errors are logged; stage failures
// keep their context, anything else is hidden behind a generic message.
func handleError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case errors.Is(err, service.ErrExamNotFound),
		errors.Is(err, service.ErrQuestionNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrArtifactNotFound):
		return utils.SendErrorWithDetails(c, fiber.StatusNotFound, err.Error(), stageErrorDetails(err))
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrUploadTypeNotAllowed):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, pipeline.ErrValidation),
		errors.Is(err, pipeline.ErrUnsupportedFileCombination),
		errors.Is(err, pipeline.ErrNoFilesUploaded),
		errors.Is(err, pipeline.ErrPageOutOfRange),
		errors.Is(err, pipeline.ErrUnknownProvider):
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, err.Error(), stageErrorDetails(err))
	case errors.Is(err, pipeline.ErrPrerequisiteMissing),
		errors.Is(err, pipeline.ErrSubmissionBusy),
		errors.Is(err, pipeline.ErrExamBusy):
		return utils.SendErrorWithDetails(c, fiber.StatusConflict, err.Error(), stageErrorDetails(err))
	case errors.Is(err, pipeline.ErrConversionUnavailable),
		errors.Is(err, pipeline.ErrProviderUnavailable):
		message := err.Error()
		if hint := pipeline.HintFor(err); hint != "" {
			message = hint
		}
		return utils.SendErrorWithDetails(c, fiber.StatusServiceUnavailable, message, stageErrorDetails(err))
	case errors.Is(err, pipeline.ErrNotImplemented):
		return utils.SendErrorWithDetails(c, fiber.StatusNotImplemented, err.Error(), stageErrorDetails(err))
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			return utils.SendErrorWithDetails(c, fiber.StatusInternalServerError, err.Error(), stageErrorDetails(err))
		}
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
