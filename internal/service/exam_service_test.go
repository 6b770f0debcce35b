package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/supermarks-api/internal/dto"
	"github.com/noah-isme/supermarks-api/internal/models"
	"github.com/noah-isme/supermarks-api/internal/pipeline"
	"github.com/noah-isme/supermarks-api/internal/repository"
)

func newExamService(t *testing.T) ExamService {
	t.Helper()
	return NewExamService(repository.NewExamRepository(newTestDB(t)), testValidator(), testLogger())
}

func TestExamServiceCreatesExamWithSanitizedName(t *testing.T) {
	svc := newExamService(t)

	exam, err := svc.Create(context.Background(), dto.ExamCreateRequest{Name: "  <b>Physics</b> final "})
	require.NoError(t, err)
	require.NotZero(t, exam.ID)
	require.Equal(t, "Physics final", exam.Name)

	_, err = svc.Create(context.Background(), dto.ExamCreateRequest{Name: "<script></script>"})
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}

func TestExamServiceStoresDefaultRubric(t *testing.T) {
	svc := newExamService(t)
	ctx := context.Background()
	exam, err := svc.Create(ctx, dto.ExamCreateRequest{Name: "Chemistry"})
	require.NoError(t, err)

	question, err := svc.CreateQuestion(ctx, exam.ID, dto.QuestionCreateRequest{Label: "Q1", MaxMarks: 6})
	require.NoError(t, err)

	var rubric map[string]interface{}
	require.NoError(t, json.Unmarshal(question.Rubric, &rubric))
	require.Equal(t, 6.0, rubric["total_marks"])
	require.Equal(t, []interface{}{}, rubric["criteria"])
	require.Equal(t, "", rubric["answer_key"])
	require.Equal(t, "", rubric["model_solution"])
}

func TestExamServiceRejectsInvalidRubric(t *testing.T) {
	svc := newExamService(t)
	ctx := context.Background()
	exam, err := svc.Create(ctx, dto.ExamCreateRequest{Name: "Chemistry"})
	require.NoError(t, err)

	_, err = svc.CreateQuestion(ctx, exam.ID, dto.QuestionCreateRequest{
		Label:    "Q1",
		MaxMarks: 4,
		Rubric:   json.RawMessage(`{"criteria": [{"desc": "no marks"}]}`),
	})
	require.ErrorIs(t, err, pipeline.ErrValidation)

	questions, err := svc.ListQuestions(ctx, exam.ID)
	require.NoError(t, err)
	require.Empty(t, questions)
}

func TestExamServiceQuestionLifecycle(t *testing.T) {
	svc := newExamService(t)
	ctx := context.Background()
	exam, err := svc.Create(ctx, dto.ExamCreateRequest{Name: "History"})
	require.NoError(t, err)
	other, err := svc.Create(ctx, dto.ExamCreateRequest{Name: "Geography"})
	require.NoError(t, err)

	question, err := svc.CreateQuestion(ctx, exam.ID, dto.QuestionCreateRequest{Label: "Q1", MaxMarks: 2})
	require.NoError(t, err)

	label := "Q1a"
	marks := 3
	updated, err := svc.UpdateQuestion(ctx, exam.ID, question.ID, dto.QuestionUpdateRequest{Label: &label, MaxMarks: &marks})
	require.NoError(t, err)
	require.Equal(t, "Q1a", updated.Label)
	require.Equal(t, 3, updated.MaxMarks)

	_, err = svc.UpdateQuestion(ctx, other.ID, question.ID, dto.QuestionUpdateRequest{Label: &label})
	require.ErrorIs(t, err, ErrQuestionNotFound)

	_, err = svc.CreateQuestion(ctx, 999, dto.QuestionCreateRequest{Label: "Q9", MaxMarks: 1})
	require.ErrorIs(t, err, ErrExamNotFound)

	require.NoError(t, svc.DeleteQuestion(ctx, exam.ID, question.ID))
	require.ErrorIs(t, svc.DeleteQuestion(ctx, exam.ID, question.ID), ErrQuestionNotFound)

	detail, err := svc.Get(ctx, exam.ID)
	require.NoError(t, err)
	require.Empty(t, detail.Questions)
}

func TestExamServiceReplaceRegionsIsAllOrNothing(t *testing.T) {
	svc := newExamService(t)
	ctx := context.Background()
	exam, err := svc.Create(ctx, dto.ExamCreateRequest{Name: "Maths"})
	require.NoError(t, err)
	question, err := svc.CreateQuestion(ctx, exam.ID, dto.QuestionCreateRequest{Label: "Q1", MaxMarks: 5})
	require.NoError(t, err)

	saved, err := svc.ReplaceRegions(ctx, question.ID, dto.RegionsReplaceRequest{Regions: []dto.RegionInput{
		{PageNumber: 1, X: 0.1, Y: 0.1, W: 0.3, H: 0.2},
		{PageNumber: 2, X: 0, Y: 0, W: 1, H: 0.5},
	}})
	require.NoError(t, err)
	require.Len(t, saved.Regions, 2)
	require.Equal(t, 1, saved.Regions[0].PageNumber)
	require.Equal(t, 2, saved.Regions[1].PageNumber)

	_, err = svc.ReplaceRegions(ctx, question.ID, dto.RegionsReplaceRequest{Regions: []dto.RegionInput{
		{PageNumber: 1, X: 0.1, Y: 0.1, W: 0.3, H: 0.2},
		{PageNumber: 1, X: 0.8, Y: 0.1, W: 0.3, H: 0.2},
	}})
	require.ErrorIs(t, err, pipeline.ErrValidation)

	questions, err := svc.ListQuestions(ctx, exam.ID)
	require.NoError(t, err)
	require.Len(t, questions[0].Regions, 2)
	require.Equal(t, 2, questions[0].Regions[1].PageNumber)

	cleared, err := svc.ReplaceRegions(ctx, question.ID, dto.RegionsReplaceRequest{})
	require.NoError(t, err)
	require.Empty(t, cleared.Regions)

	_, err = svc.ReplaceRegions(ctx, 999, dto.RegionsReplaceRequest{})
	require.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestExamServiceDetailListsSubmissions(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewExamRepository(db)
	svc := NewExamService(repo, testValidator(), testLogger())
	ctx := context.Background()

	exam, err := svc.Create(ctx, dto.ExamCreateRequest{Name: "Art"})
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.Submission{ExamID: exam.ID, StudentName: "Grace", Status: models.SubmissionStatusUploaded}).Error)

	detail, err := svc.Get(ctx, exam.ID)
	require.NoError(t, err)
	require.Len(t, detail.Submissions, 1)
	require.Equal(t, "Grace", detail.Submissions[0].StudentName)

	_, err = svc.Get(ctx, 999)
	require.ErrorIs(t, err, ErrExamNotFound)
}
