package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/supermarks-api/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func seedSubmission(t *testing.T, db *gorm.DB) (models.Exam, models.Submission) {
	t.Helper()
	exam := models.Exam{Name: "Algebra midterm"}
	require.NoError(t, db.Create(&exam).Error)

	repo := NewSubmissionRepository(db)
	submission := models.Submission{ExamID: exam.ID, StudentName: "Ada", Status: models.SubmissionStatusUploaded}
	files := []models.SubmissionFile{
		{Kind: models.FileKindImage, OriginalFilename: "b.png", StoredPath: "uploads/1/x/002-b.png"},
		{Kind: models.FileKindImage, OriginalFilename: "a.png", StoredPath: "uploads/1/x/001-a.png"},
	}
	require.NoError(t, repo.Create(context.Background(), &submission, files))
	return exam, submission
}

func TestSubmissionRepositoryKeepsUploadOrder(t *testing.T) {
	db := newTestDB(t)
	_, submission := seedSubmission(t, db)

	loaded, err := NewSubmissionRepository(db).GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Files, 2)
	require.Equal(t, "b.png", loaded.Files[0].OriginalFilename)
	require.Equal(t, "a.png", loaded.Files[1].OriginalFilename)
}

func TestReplacePagesSwapsRowsAndStatus(t *testing.T) {
	db := newTestDB(t)
	_, submission := seedSubmission(t, db)
	repo := NewPipelineRepository(db)
	ctx := context.Background()

	first := []models.SubmissionPage{
		{SubmissionID: submission.ID, PageNumber: 1, ImagePath: "p/1", Width: 10, Height: 10, Generation: "g1"},
		{SubmissionID: submission.ID, PageNumber: 2, ImagePath: "p/2", Width: 10, Height: 10, Generation: "g1"},
	}
	require.NoError(t, repo.ReplacePages(ctx, submission.ID, first, models.SubmissionStatusPagesReady))

	second := []models.SubmissionPage{
		{SubmissionID: submission.ID, PageNumber: 1, ImagePath: "p/1b", Width: 20, Height: 20, Generation: "g2"},
	}
	require.NoError(t, repo.ReplacePages(ctx, submission.ID, second, models.SubmissionStatusPagesReady))

	pages, err := repo.ListPages(ctx, submission.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, "g2", pages[0].Generation)

	loaded, err := repo.GetSubmission(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusPagesReady, loaded.Status)

	page, err := repo.GetPage(ctx, submission.ID, 1)
	require.NoError(t, err)
	require.Equal(t, "p/1b", page.ImagePath)

	_, err = repo.GetPage(ctx, submission.ID, 2)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReplaceWithNoRowsStillAdvancesStatus(t *testing.T) {
	db := newTestDB(t)
	_, submission := seedSubmission(t, db)
	repo := NewPipelineRepository(db)

	require.NoError(t, repo.ReplaceCrops(context.Background(), submission.ID, nil, models.SubmissionStatusCropsReady))

	loaded, err := repo.GetSubmission(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusCropsReady, loaded.Status)
}

func TestReplaceRollsBackOnInsertFailure(t *testing.T) {
	db := newTestDB(t)
	_, submission := seedSubmission(t, db)
	repo := NewPipelineRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceCrops(ctx, submission.ID, []models.AnswerCrop{
		{SubmissionID: submission.ID, QuestionID: 1, ImagePath: "c/1", Width: 1, Height: 1, Generation: "g1"},
	}, models.SubmissionStatusCropsReady))

	duplicate := []models.AnswerCrop{
		{SubmissionID: submission.ID, QuestionID: 2, ImagePath: "c/2", Width: 1, Height: 1, Generation: "g2"},
		{SubmissionID: submission.ID, QuestionID: 2, ImagePath: "c/2", Width: 1, Height: 1, Generation: "g2"},
	}
	require.Error(t, repo.ReplaceCrops(ctx, submission.ID, duplicate, models.SubmissionStatusGraded))

	crops, err := repo.ListCrops(ctx, submission.ID)
	require.NoError(t, err)
	require.Len(t, crops, 1)
	require.Equal(t, "g1", crops[0].Generation)

	loaded, err := repo.GetSubmission(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusCropsReady, loaded.Status)
}

func TestReplaceUnknownSubmission(t *testing.T) {
	db := newTestDB(t)
	repo := NewPipelineRepository(db)

	err := repo.ReplaceGrades(context.Background(), 999, nil, models.SubmissionStatusGraded)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestExamRepositoryRegionsAndQuestions(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	ctx := context.Background()

	exam := models.Exam{Name: "Physics"}
	require.NoError(t, repo.Create(ctx, &exam))

	question := models.Question{ExamID: exam.ID, Label: "Q1", MaxMarks: 5}
	require.NoError(t, repo.CreateQuestion(ctx, &question))

	regions, err := repo.ReplaceRegions(ctx, question.ID, []models.Region{
		{PageNumber: 2, X: 0, Y: 0, W: 0.5, H: 0.5},
		{PageNumber: 1, X: 0.5, Y: 0.5, W: 0.5, H: 0.5},
	})
	require.NoError(t, err)
	require.Len(t, regions, 2)

	loaded, err := repo.GetQuestion(ctx, question.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Regions, 2)
	require.Equal(t, 2, loaded.Regions[0].PageNumber, "regions keep insertion order")

	_, err = repo.ReplaceRegions(ctx, question.ID, nil)
	require.NoError(t, err)
	loaded, err = repo.GetQuestion(ctx, question.ID)
	require.NoError(t, err)
	require.Empty(t, loaded.Regions)

	require.NoError(t, repo.DeleteQuestion(ctx, question.ID))
	require.ErrorIs(t, repo.DeleteQuestion(ctx, question.ID), gorm.ErrRecordNotFound)

	detail, err := repo.GetByID(ctx, exam.ID)
	require.NoError(t, err)
	require.Empty(t, detail.Questions)
}
