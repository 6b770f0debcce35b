package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/supermarks-api/internal/models"
)

// PipelineRepository persists stage artifacts. Every Replace call swaps the submission's rows of
// one kind and sets its status in a single transaction, status last.
type PipelineRepository interface {
	GetSubmission(ctx context.Context, id uint) (models.Submission, error)
	ListFiles(ctx context.Context, submissionID uint) ([]models.SubmissionFile, error)
	ListQuestions(ctx context.Context, examID uint) ([]models.Question, error)
	ListPages(ctx context.Context, submissionID uint) ([]models.SubmissionPage, error)
	GetPage(ctx context.Context, submissionID uint, pageNumber int) (models.SubmissionPage, error)
	ListCrops(ctx context.Context, submissionID uint) ([]models.AnswerCrop, error)
	GetCrop(ctx context.Context, submissionID, questionID uint) (models.AnswerCrop, error)
	ListTranscriptions(ctx context.Context, submissionID uint) ([]models.Transcription, error)
	ListGrades(ctx context.Context, submissionID uint) ([]models.GradeResult, error)
	ReplacePages(ctx context.Context, submissionID uint, pages []models.SubmissionPage, status models.SubmissionStatus) error
	ReplaceCrops(ctx context.Context, submissionID uint, crops []models.AnswerCrop, status models.SubmissionStatus) error
	ReplaceTranscriptions(ctx context.Context, submissionID uint, rows []models.Transcription, status models.SubmissionStatus) error
	ReplaceGrades(ctx context.Context, submissionID uint, rows []models.GradeResult, status models.SubmissionStatus) error
}

type pipelineRepository struct {
	db *gorm.DB
}

// NewPipelineRepository instantiates the repository.
func NewPipelineRepository(db *gorm.DB) PipelineRepository {
	return &pipelineRepository{db: db}
}

func (r *pipelineRepository) GetSubmission(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *pipelineRepository) ListFiles(ctx context.Context, submissionID uint) ([]models.SubmissionFile, error) {
	var files []models.SubmissionFile
	if err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).Order("id ASC").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *pipelineRepository) ListQuestions(ctx context.Context, examID uint) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.WithContext(ctx).
		Preload("Regions", orderedRegions).
		Where("exam_id = ?", examID).
		Order("id ASC").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *pipelineRepository) ListPages(ctx context.Context, submissionID uint) ([]models.SubmissionPage, error) {
	var pages []models.SubmissionPage
	if err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).Order("page_number ASC").Find(&pages).Error; err != nil {
		return nil, err
	}
	return pages, nil
}

func (r *pipelineRepository) GetPage(ctx context.Context, submissionID uint, pageNumber int) (models.SubmissionPage, error) {
	var page models.SubmissionPage
	err := r.db.WithContext(ctx).
		Where("submission_id = ? AND page_number = ?", submissionID, pageNumber).
		First(&page).Error
	if err != nil {
		return models.SubmissionPage{}, err
	}
	return page, nil
}

func (r *pipelineRepository) ListCrops(ctx context.Context, submissionID uint) ([]models.AnswerCrop, error) {
	var crops []models.AnswerCrop
	if err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).Order("question_id ASC").Find(&crops).Error; err != nil {
		return nil, err
	}
	return crops, nil
}

func (r *pipelineRepository) GetCrop(ctx context.Context, submissionID, questionID uint) (models.AnswerCrop, error) {
	var crop models.AnswerCrop
	err := r.db.WithContext(ctx).
		Where("submission_id = ? AND question_id = ?", submissionID, questionID).
		First(&crop).Error
	if err != nil {
		return models.AnswerCrop{}, err
	}
	return crop, nil
}

func (r *pipelineRepository) ListTranscriptions(ctx context.Context, submissionID uint) ([]models.Transcription, error) {
	var rows []models.Transcription
	if err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).Order("question_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *pipelineRepository) ListGrades(ctx context.Context, submissionID uint) ([]models.GradeResult, error) {
	var rows []models.GradeResult
	if err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).Order("question_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *pipelineRepository) ReplacePages(ctx context.Context, submissionID uint, pages []models.SubmissionPage, status models.SubmissionStatus) error {
	return r.replace(ctx, submissionID, &models.SubmissionPage{}, status, len(pages), func(tx *gorm.DB) error {
		return tx.Create(&pages).Error
	})
}

func (r *pipelineRepository) ReplaceCrops(ctx context.Context, submissionID uint, crops []models.AnswerCrop, status models.SubmissionStatus) error {
	return r.replace(ctx, submissionID, &models.AnswerCrop{}, status, len(crops), func(tx *gorm.DB) error {
		return tx.Create(&crops).Error
	})
}

func (r *pipelineRepository) ReplaceTranscriptions(ctx context.Context, submissionID uint, rows []models.Transcription, status models.SubmissionStatus) error {
	return r.replace(ctx, submissionID, &models.Transcription{}, status, len(rows), func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

func (r *pipelineRepository) ReplaceGrades(ctx context.Context, submissionID uint, rows []models.GradeResult, status models.SubmissionStatus) error {
	return r.replace(ctx, submissionID, &models.GradeResult{}, status, len(rows), func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

func (r *pipelineRepository) replace(ctx context.Context, submissionID uint, model interface{}, status models.SubmissionStatus, count int, insert func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ?", submissionID).Delete(model).Error; err != nil {
			return err
		}
		if count > 0 {
			if err := insert(tx); err != nil {
				return err
			}
		}
		result := tx.Model(&models.Submission{}).Where("id = ?", submissionID).Update("status", status)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
