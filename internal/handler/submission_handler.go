package handler

import (
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/supermarks-api/internal/dto"
	"github.com/noah-isme/supermarks-api/internal/service"
	"github.com/noah-isme/supermarks-api/internal/utils"
)

// SubmissionHandler manages submission upload and lookup endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// RegisterExamRoutes attaches the upload route to the /exams group.
func (h *SubmissionHandler) RegisterExamRoutes(router fiber.Router) {
	router.Post("/:id/submissions", h.upload)
}

// Register attaches the routes to the /submissions group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)
}

func (h *SubmissionHandler) upload(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form is required")
	}

	payload := dto.SubmissionUploadRequest{StudentName: firstValue(form, "student_name")}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}

	submission, err := h.service.Upload(c.UserContext(), examID, payload, files)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("submission_id", submission.ID).
		Uint("exam_id", examID).
		Int("files", len(submission.Files)).
		Msg("submission received")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission created", submission)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submission retrieved", submission)
}

func firstValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}
