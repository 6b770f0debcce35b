package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/supermarks-api/internal/dto"
	"github.com/noah-isme/supermarks-api/internal/service"
	"github.com/noah-isme/supermarks-api/internal/utils"
)

// AnswerKeyHandler serves answer key upload and page rendering endpoints.
type AnswerKeyHandler struct {
	service service.AnswerKeyService
	logger  zerolog.Logger
}

// NewAnswerKeyHandler builds an answer key handler instance.
func NewAnswerKeyHandler(service service.AnswerKeyService, logger zerolog.Logger) *AnswerKeyHandler {
	return &AnswerKeyHandler{
		service: service,
		logger:  logger.With().Str("component", "answer_key_handler").Logger(),
	}
}

// Register attaches the routes to the /exams group.
func (h *AnswerKeyHandler) Register(router fiber.Router) {
	router.Post("/:id/key/upload", h.upload)
	router.Get("/:id/key/files", h.listFiles)
	router.Post("/:id/key/build-pages", h.buildPages)
	router.Get("/:id/key/pages", h.listPages)
	router.Get("/:id/key/pages/:page", h.pageImage)
}

func (h *AnswerKeyHandler) upload(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form is required")
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}

	result, err := h.service.Upload(c.UserContext(), examID, files)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().Uint("exam_id", examID).Int("files", result.Uploaded).Msg("answer key received")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "answer key uploaded", result)
}

func (h *AnswerKeyHandler) listFiles(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	files, err := h.service.ListFiles(c.UserContext(), examID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "answer key files retrieved", dto.NewKeyFileResponseSlice(files))
}

func (h *AnswerKeyHandler) buildPages(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	pages, err := h.service.BuildPages(c.UserContext(), examID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "answer key pages built", dto.NewKeyPagesResponse(examID, pages))
}

func (h *AnswerKeyHandler) listPages(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	pages, err := h.service.ListPages(c.UserContext(), examID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "answer key pages retrieved", dto.NewKeyPagesResponse(examID, pages))
}

func (h *AnswerKeyHandler) pageImage(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	page, err := strconv.Atoi(c.Params("page"))
	if err != nil || page < 1 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}

	data, err := h.service.PageImage(c.UserContext(), examID, page)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendImage(c, "image/png", data)
}
