package handler_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/supermarks-api/internal/dto"
	"github.com/noah-isme/supermarks-api/internal/models"
)

func TestSubmissionHandlerUploadAndFetch(t *testing.T) {
	a := setupApp(t, "examiner")
	exam := createExam(t, a, "Biology")

	resp, body := a.upload(t, exam.ID, "Ada Lovelace", map[string][]byte{"scan.png": pagePNG(t, 200, 100)})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)

	var created dto.SubmissionResponse
	decodeData(t, body, &created)
	require.Equal(t, exam.ID, created.ExamID)
	require.Equal(t, "Ada Lovelace", created.StudentName)
	require.Equal(t, string(models.SubmissionStatusUploaded), created.Status)
	require.Len(t, created.Files, 1)
	require.Equal(t, models.FileKindImage, created.Files[0].Kind)
	require.Equal(t, "scan.png", created.Files[0].OriginalFilename)

	resp, body = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/submissions/%d", created.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var fetched dto.SubmissionResponse
	decodeData(t, body, &fetched)
	require.Equal(t, created.ID, fetched.ID)
	require.Empty(t, fetched.Pages)

	resp, body = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/exams/%d", exam.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var detail dto.ExamDetailResponse
	decodeData(t, body, &detail)
	require.Len(t, detail.Submissions, 1)
}

func TestSubmissionHandlerRejectsBadUploads(t *testing.T) {
	a := setupApp(t, "examiner")
	exam := createExam(t, a, "Biology")

	resp, _ := a.upload(t, exam.ID, "Ada", map[string][]byte{"notes.txt": []byte("just some text, not a scan")})
	require.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)

	resp, _ = a.upload(t, exam.ID, "", map[string][]byte{"scan.png": pagePNG(t, 20, 20)})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = a.upload(t, exam.ID, "Ada", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = a.upload(t, 999, "Ada", map[string][]byte{"scan.png": pagePNG(t, 20, 20)})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = a.do(t, http.MethodGet, "/api/v1/submissions/999", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
