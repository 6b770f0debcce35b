package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/supermarks-api/internal/models"
)

// AnswerKeyRepository persists an exam's answer key files and rendered pages.
type AnswerKeyRepository interface {
	AddFiles(ctx context.Context, files []models.ExamKeyFile) error
	ListFiles(ctx context.Context, examID uint) ([]models.ExamKeyFile, error)
	ListPages(ctx context.Context, examID uint) ([]models.ExamKeyPage, error)
	GetPage(ctx context.Context, examID uint, pageNumber int) (models.ExamKeyPage, error)
	ReplacePages(ctx context.Context, examID uint, pages []models.ExamKeyPage) error
}

type answerKeyRepository struct {
	db *gorm.DB
}

// NewAnswerKeyRepository instantiates the repository.
func NewAnswerKeyRepository(db *gorm.DB) AnswerKeyRepository {
	return &answerKeyRepository{db: db}
}

func (r *answerKeyRepository) AddFiles(ctx context.Context, files []models.ExamKeyFile) error {
	if len(files) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&files).Error
	})
}

func (r *answerKeyRepository) ListFiles(ctx context.Context, examID uint) ([]models.ExamKeyFile, error) {
	var files []models.ExamKeyFile
	if err := r.db.WithContext(ctx).Where("exam_id = ?", examID).Order("id ASC").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *answerKeyRepository) ListPages(ctx context.Context, examID uint) ([]models.ExamKeyPage, error) {
	var pages []models.ExamKeyPage
	if err := r.db.WithContext(ctx).Where("exam_id = ?", examID).Order("page_number ASC").Find(&pages).Error; err != nil {
		return nil, err
	}
	return pages, nil
}

func (r *answerKeyRepository) GetPage(ctx context.Context, examID uint, pageNumber int) (models.ExamKeyPage, error) {
	var page models.ExamKeyPage
	err := r.db.WithContext(ctx).
		Where("exam_id = ? AND page_number = ?", examID, pageNumber).
		First(&page).Error
	if err != nil {
		return models.ExamKeyPage{}, err
	}
	return page, nil
}

// ReplacePages swaps the exam's key pages in one transaction.
func (r *answerKeyRepository) ReplacePages(ctx context.Context, examID uint, pages []models.ExamKeyPage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exam_id = ?", examID).Delete(&models.ExamKeyPage{}).Error; err != nil {
			return err
		}
		if len(pages) == 0 {
			return nil
		}
		return tx.Create(&pages).Error
	})
}
