package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/supermarks-api/internal/config"
	"github.com/noah-isme/supermarks-api/internal/grading"
	"github.com/noah-isme/supermarks-api/internal/handler"
	"github.com/noah-isme/supermarks-api/internal/models"
	"github.com/noah-isme/supermarks-api/internal/ocr"
	"github.com/noah-isme/supermarks-api/internal/pipeline"
	"github.com/noah-isme/supermarks-api/internal/repository"
	"github.com/noah-isme/supermarks-api/internal/router"
	"github.com/noah-isme/supermarks-api/internal/service"
	"github.com/noah-isme/supermarks-api/internal/storage"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

type testApp struct {
	app   *fiber.App
	db    *gorm.DB
	store *switchableStore
}

// switchableStore fails reads on demand so handlers can be exercised against storage faults.
type switchableStore struct {
	storage.Store
	readErr error
}

func (s *switchableStore) Read(ctx context.Context, rel string) ([]byte, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.Store.Read(ctx, rel)
}

func setupApp(t *testing.T, role string) *testApp {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	log := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	local, err := storage.NewLocal(t.TempDir(), log)
	require.NoError(t, err)
	store := &switchableStore{Store: local}

	providers := ocr.NewRegistry()
	providers.Register(ocr.StubName, func() (ocr.Provider, error) { return ocr.Stub{}, nil })
	providers.Register("absent", func() (ocr.Provider, error) {
		return nil, ocr.Unavailable("absent", "engine not installed", "install the absent engine")
	})

	examRepo := repository.NewExamRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	examService := service.NewExamService(examRepo, validate, log)
	submissionService := service.NewSubmissionService(submissionRepo, examRepo, store, validate, 5, log)
	pipelineService := service.NewPipelineService(service.PipelineDependencies{
		Repo:    repository.NewPipelineRepository(db),
		Store:   store,
		OCR:     providers,
		Graders: grading.DefaultRegistry(),
		Locker:  pipeline.NewMemoryLocker(50 * time.Millisecond),
		Logger:  log,
	})
	answerKeyService := service.NewAnswerKeyService(service.AnswerKeyDependencies{
		Repo:   repository.NewAnswerKeyRepository(db),
		Exams:  examRepo,
		Store:  store,
		Locker: pipeline.NewMemoryLocker(50 * time.Millisecond),
		Logger: log,
	})

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		ExamHandler:       handler.NewExamHandler(examService, log),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, log),
		PipelineHandler:   handler.NewPipelineHandler(pipelineService, log),
		AnswerKeyHandler:  handler.NewAnswerKeyHandler(answerKeyService, log),
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", uint(1))
			c.Locals("user_role", role)
			return c.Next()
		},
	})

	return &testApp{app: app, db: db, store: store}
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}) (*http.Response, apiResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return a.send(t, req)
}

func (a *testApp) send(t *testing.T, req *http.Request) (*http.Response, apiResponse) {
	t.Helper()

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)

	var decoded apiResponse
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func (a *testApp) upload(t *testing.T, examID uint, studentName string, files map[string][]byte) (*http.Response, apiResponse) {
	t.Helper()
	return a.multipart(t, fmt.Sprintf("/api/v1/exams/%d/submissions", examID), map[string]string{"student_name": studentName}, files)
}

func (a *testApp) multipart(t *testing.T, path string, fields map[string]string, files map[string][]byte) (*http.Response, apiResponse) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for name, data := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	return a.send(t, req)
}

func decodeData(t *testing.T, body apiResponse, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body.Data, target))
}

func decodeDetails(t *testing.T, body apiResponse) map[string]interface{} {
	t.Helper()
	details := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(body.Details, &details))
	return details
}

func pagePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	data, err := pipeline.EncodePNG(imaging.New(width, height, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	require.NoError(t, err)
	return data
}
