package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/supermarks-api/internal/models"
)

// SubmissionRepository defines data operations for submissions and their uploads.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission, files []models.SubmissionFile) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	ListByExam(ctx context.Context, examID uint) ([]models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("submission_files.id ASC") }).
		Preload("Pages", func(db *gorm.DB) *gorm.DB { return db.Order("submission_pages.page_number ASC") })
}

// Create stores the submission and its file rows together.
func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission, files []models.SubmissionFile) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Files", "Pages").Create(submission).Error; err != nil {
			return err
		}
		if len(files) == 0 {
			return nil
		}
		for i := range files {
			files[i].SubmissionID = submission.ID
		}
		if err := tx.Create(&files).Error; err != nil {
			return err
		}
		submission.Files = files
		return nil
	})
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListByExam(ctx context.Context, examID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).Where("exam_id = ?", examID).Order("id ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}
