package handler_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/supermarks-api/internal/dto"
)

func createExam(t *testing.T, a *testApp, name string) dto.ExamResponse {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/api/v1/exams", map[string]string{"name": name})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var exam dto.ExamResponse
	decodeData(t, body, &exam)
	return exam
}

func createQuestion(t *testing.T, a *testApp, examID uint, payload map[string]interface{}) dto.QuestionResponse {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exams/%d/questions", examID), payload)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)

	var question dto.QuestionResponse
	decodeData(t, body, &question)
	return question
}

func TestExamHandlerLifecycle(t *testing.T) {
	a := setupApp(t, "examiner")

	exam := createExam(t, a, "Biology Midterm")
	require.NotZero(t, exam.ID)
	require.Equal(t, "Biology Midterm", exam.Name)

	question := createQuestion(t, a, exam.ID, map[string]interface{}{"label": "Q1", "max_marks": 5})
	require.Equal(t, exam.ID, question.ExamID)
	require.Equal(t, 5, question.MaxMarks)
	require.Contains(t, string(question.Rubric), "total_marks")

	resp, body := a.do(t, http.MethodPut, fmt.Sprintf("/api/v1/questions/%d/regions", question.ID), map[string]interface{}{
		"regions": []map[string]interface{}{
			{"page_number": 1, "x": 0.1, "y": 0.1, "w": 0.3, "h": 0.2},
			{"page_number": 2, "x": 0, "y": 0, "w": 1, "h": 0.5},
		},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)
	var withRegions dto.QuestionResponse
	decodeData(t, body, &withRegions)
	require.Len(t, withRegions.Regions, 2)

	resp, body = a.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/exams/%d/questions/%d", exam.ID, question.ID), map[string]interface{}{"label": "Question 1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)
	var updated dto.QuestionResponse
	decodeData(t, body, &updated)
	require.Equal(t, "Question 1", updated.Label)
	require.Len(t, updated.Regions, 2)

	resp, body = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/exams/%d", exam.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var detail dto.ExamDetailResponse
	decodeData(t, body, &detail)
	require.Len(t, detail.Questions, 1)
	require.Empty(t, detail.Submissions)

	resp, _ = a.do(t, http.MethodGet, "/api/v1/exams", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = a.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/exams/%d/questions/%d", exam.ID, question.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/exams/%d/questions", exam.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var remaining []dto.QuestionResponse
	decodeData(t, body, &remaining)
	require.Empty(t, remaining)
}

func TestExamHandlerValidation(t *testing.T) {
	a := setupApp(t, "examiner")

	resp, body := a.do(t, http.MethodPost, "/api/v1/exams", map[string]string{"name": ""})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.False(t, body.Success)

	exam := createExam(t, a, "Physics")
	question := createQuestion(t, a, exam.ID, map[string]interface{}{"label": "Q1", "max_marks": 4})

	resp, _ = a.do(t, http.MethodPut, fmt.Sprintf("/api/v1/questions/%d/regions", question.ID), map[string]interface{}{
		"regions": []map[string]interface{}{{"page_number": 1, "x": 0.8, "y": 0, "w": 0.5, "h": 0.5}},
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exams/%d/questions", exam.ID), map[string]interface{}{
		"label": "Q2", "max_marks": 4, "rubric": map[string]interface{}{"criteria": "not a list"},
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestExamHandlerNotFound(t *testing.T) {
	a := setupApp(t, "examiner")

	resp, body := a.do(t, http.MethodGet, "/api/v1/exams/999", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.False(t, body.Success)

	resp, _ = a.do(t, http.MethodGet, "/api/v1/exams/abc", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPut, "/api/v1/questions/999/regions", map[string]interface{}{"regions": []interface{}{}})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestViewerCannotWrite(t *testing.T) {
	a := setupApp(t, "viewer")

	resp, _ := a.do(t, http.MethodPost, "/api/v1/exams", map[string]string{"name": "Chemistry"})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = a.do(t, http.MethodGet, "/api/v1/exams", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestHealthIsPublic(t *testing.T) {
	a := setupApp(t, "")

	resp, body := a.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, body.Success)
	require.Equal(t, "Test", resp.Header.Get("X-Application"))
}
