package handler_test

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/supermarks-api/internal/dto"
	"github.com/noah-isme/supermarks-api/internal/models"
)

// seedSubmission creates an exam with one five mark question covering a 300x100 box of a
// 1000x500 page, and uploads a single page for it.
func seedSubmission(t *testing.T, a *testApp) (dto.QuestionResponse, dto.SubmissionResponse) {
	t.Helper()

	exam := createExam(t, a, "Biology")
	question := createQuestion(t, a, exam.ID, map[string]interface{}{"label": "Q1", "max_marks": 5})
	resp, body := a.do(t, http.MethodPut, fmt.Sprintf("/api/v1/questions/%d/regions", question.ID), map[string]interface{}{
		"regions": []map[string]interface{}{{"page_number": 1, "x": 0.1, "y": 0.1, "w": 0.3, "h": 0.2}},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)

	resp, body = a.upload(t, exam.ID, "Ada", map[string][]byte{"page.png": pagePNG(t, 1000, 500)})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)
	var submission dto.SubmissionResponse
	decodeData(t, body, &submission)
	return question, submission
}

func stagePath(submissionID uint, suffix string) string {
	return fmt.Sprintf("/api/v1/submissions/%d/%s", submissionID, suffix)
}

func TestPipelineHandlerRunsAllStages(t *testing.T) {
	a := setupApp(t, "examiner")
	question, submission := seedSubmission(t, a)

	resp, body := a.do(t, http.MethodPost, stagePath(submission.ID, "build-pages"), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)
	var pages dto.StageResponse
	decodeData(t, body, &pages)
	require.Equal(t, string(models.SubmissionStatusPagesReady), pages.Status)
	require.Len(t, pages.Pages, 1)
	require.Equal(t, 1000, pages.Pages[0].Width)
	require.Equal(t, stagePath(submission.ID, "pages/1"), pages.Pages[0].ImageURL)

	resp, body = a.do(t, http.MethodPost, stagePath(submission.ID, "build-crops"), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)
	var crops dto.StageResponse
	decodeData(t, body, &crops)
	require.Len(t, crops.Crops, 1)
	require.Equal(t, question.ID, crops.Crops[0].QuestionID)
	require.Equal(t, 300, crops.Crops[0].Width)
	require.Equal(t, 100, crops.Crops[0].Height)

	resp, body = a.do(t, http.MethodPost, stagePath(submission.ID, "transcribe?provider=stub"), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)
	var transcriptions dto.StageResponse
	decodeData(t, body, &transcriptions)
	require.Len(t, transcriptions.Transcriptions, 1)
	require.Equal(t, "stub", transcriptions.Transcriptions[0].Provider)

	resp, body = a.do(t, http.MethodPost, stagePath(submission.ID, "grade"), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)
	var grades dto.StageResponse
	decodeData(t, body, &grades)
	require.Equal(t, string(models.SubmissionStatusGraded), grades.Status)
	require.Len(t, grades.Grades, 1)
	require.Equal(t, 5, grades.Grades[0].MaxMarks)

	resp, body = a.do(t, http.MethodGet, stagePath(submission.ID, "results"), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var results dto.ResultsResponse
	decodeData(t, body, &results)
	require.Equal(t, string(models.SubmissionStatusGraded), results.Status)
	require.Equal(t, 5, results.TotalMax)
	require.Len(t, results.Questions, 1)
	require.NotNil(t, results.Questions[0].Grade)
}

func TestPipelineHandlerServesPNGArtifacts(t *testing.T) {
	a := setupApp(t, "examiner")
	question, submission := seedSubmission(t, a)

	for _, stage := range []string{"build-pages", "build-crops"} {
		resp, body := a.do(t, http.MethodPost, stagePath(submission.ID, stage), nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)
	}

	resp, err := a.app.Test(httptest.NewRequest(http.MethodGet, stagePath(submission.ID, fmt.Sprintf("crops/%d", question.ID)), nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 300, img.Bounds().Dx())
	require.Equal(t, 100, img.Bounds().Dy())

	resp, err = a.app.Test(httptest.NewRequest(http.MethodGet, stagePath(submission.ID, "pages/1"), nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))

	resp, _ = a.do(t, http.MethodGet, stagePath(submission.ID, "pages/7"), nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = a.do(t, http.MethodGet, stagePath(submission.ID, "pages/0"), nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPipelineHandlerMapsStageErrors(t *testing.T) {
	a := setupApp(t, "examiner")
	_, submission := seedSubmission(t, a)

	resp, body := a.do(t, http.MethodPost, stagePath(submission.ID, "build-crops"), nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, "prerequisite_missing", decodeDetails(t, body)["reason"])

	for _, stage := range []string{"build-pages", "build-crops"} {
		resp, body = a.do(t, http.MethodPost, stagePath(submission.ID, stage), nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)
	}

	resp, body = a.do(t, http.MethodPost, stagePath(submission.ID, "transcribe?provider=martian"), nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "unknown_provider", decodeDetails(t, body)["reason"])

	resp, body = a.do(t, http.MethodPost, stagePath(submission.ID, "transcribe?provider=absent"), nil)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "install the absent engine", body.Message)
	require.Equal(t, "provider_unavailable", decodeDetails(t, body)["reason"])

	resp, body = a.do(t, http.MethodPost, stagePath(submission.ID, "grade"), nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, body = a.do(t, http.MethodPost, stagePath(submission.ID, "transcribe"), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)

	resp, body = a.do(t, http.MethodPost, stagePath(submission.ID, "grade?grader=llm"), nil)
	require.Equal(t, fiber.StatusNotImplemented, resp.StatusCode)
	require.Equal(t, "not_implemented", decodeDetails(t, body)["reason"])

	resp, body = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/submissions/%d", submission.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var current dto.SubmissionResponse
	decodeData(t, body, &current)
	require.Equal(t, string(models.SubmissionStatusTranscribed), current.Status)

	resp, body = a.do(t, http.MethodPost, stagePath(999, "build-pages"), nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", decodeDetails(t, body)["reason"])
}

func TestPipelineHandlerReportsStorageFaultWithContext(t *testing.T) {
	a := setupApp(t, "examiner")
	_, submission := seedSubmission(t, a)
	a.store.readErr = io.ErrUnexpectedEOF

	resp, body := a.do(t, http.MethodPost, stagePath(submission.ID, "build-pages"), nil)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, body.Message, "stage pages")
	require.Contains(t, body.Message, "page.png")

	details := decodeDetails(t, body)
	require.Equal(t, "internal", details["reason"])
	require.Equal(t, "pages", details["stage"])
	require.EqualValues(t, submission.ID, details["submission_id"])

	a.store.readErr = nil
	resp, body = a.do(t, http.MethodPost, stagePath(submission.ID, "build-pages"), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)
}

func TestViewerCannotRunStages(t *testing.T) {
	a := setupApp(t, "viewer")

	resp, _ := a.do(t, http.MethodPost, stagePath(1, "build-pages"), nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
