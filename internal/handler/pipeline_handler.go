package handler

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/supermarks-api/internal/dto"
	"github.com/noah-isme/supermarks-api/internal/models"
	"github.com/noah-isme/supermarks-api/internal/service"
	"github.com/noah-isme/supermarks-api/internal/utils"
)

// PipelineHandler exposes the stage endpoints and the artifacts they produce.
type PipelineHandler struct {
	service service.PipelineService
	logger  zerolog.Logger
}

// NewPipelineHandler constructs a PipelineHandler.
func NewPipelineHandler(service service.PipelineService, logger zerolog.Logger) *PipelineHandler {
	return &PipelineHandler{
		service: service,
		logger:  logger.With().Str("component", "pipeline_handler").Logger(),
	}
}

// Register attaches the routes to the /submissions group.
func (h *PipelineHandler) Register(router fiber.Router) {
	router.Post("/:id/build-pages", h.buildPages)
	router.Post("/:id/build-crops", h.buildCrops)
	router.Post("/:id/transcribe", h.transcribe)
	router.Post("/:id/grade", h.grade)
	router.Get("/:id/pages/:page", h.pageImage)
	router.Get("/:id/crops/:questionID", h.cropImage)
	router.Get("/:id/results", h.results)
}

func (h *PipelineHandler) buildPages(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	pages, err := h.service.BuildPages(c.UserContext(), id)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "pages built", dto.StageResponse{
		SubmissionID: id,
		Status:       string(models.SubmissionStatusPagesReady),
		Pages:        dto.NewPageResponseSlice(id, pages),
	})
}

func (h *PipelineHandler) buildCrops(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	crops, err := h.service.BuildCrops(c.UserContext(), id)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "crops built", dto.StageResponse{
		SubmissionID: id,
		Status:       string(models.SubmissionStatusCropsReady),
		Crops:        dto.NewCropResponseSlice(crops),
	})
}

func (h *PipelineHandler) transcribe(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	provider := strings.TrimSpace(c.Query("provider", service.DefaultOCRProvider))
	rows, err := h.service.Transcribe(c.UserContext(), id, provider)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "transcription complete", dto.StageResponse{
		SubmissionID:   id,
		Status:         string(models.SubmissionStatusTranscribed),
		Transcriptions: dto.NewTranscriptionResponseSlice(rows),
	})
}

func (h *PipelineHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	grader := strings.TrimSpace(c.Query("grader", service.DefaultGrader))
	rows, err := h.service.Grade(c.UserContext(), id, grader)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "grading complete", dto.StageResponse{
		SubmissionID: id,
		Status:       string(models.SubmissionStatusGraded),
		Grades:       dto.NewGradeResponseSlice(rows),
	})
}

func (h *PipelineHandler) pageImage(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	page, err := strconv.Atoi(c.Params("page"))
	if err != nil || page < 1 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}

	data, err := h.service.PageImage(c.UserContext(), id, page)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendImage(c, "image/png", data)
}

func (h *PipelineHandler) cropImage(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	questionID, err := parseUintParam(c, "questionID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	data, err := h.service.CropImage(c.UserContext(), id, questionID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendImage(c, "image/png", data)
}

func (h *PipelineHandler) results(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	results, err := h.service.Results(c.UserContext(), id)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "results retrieved", results)
}
