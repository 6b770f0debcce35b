package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/supermarks-api/internal/models"
)

// ExamRepository defines data operations for exams, questions and regions.
type ExamRepository interface {
	Create(ctx context.Context, exam *models.Exam) error
	List(ctx context.Context) ([]models.Exam, error)
	GetByID(ctx context.Context, id uint) (models.Exam, error)
	CreateQuestion(ctx context.Context, question *models.Question) error
	ListQuestions(ctx context.Context, examID uint) ([]models.Question, error)
	GetQuestion(ctx context.Context, id uint) (models.Question, error)
	UpdateQuestion(ctx context.Context, question *models.Question) error
	DeleteQuestion(ctx context.Context, id uint) error
	ReplaceRegions(ctx context.Context, questionID uint, regions []models.Region) ([]models.Region, error)
}

type examRepository struct {
	db *gorm.DB
}

// NewExamRepository instantiates the repository.
func NewExamRepository(db *gorm.DB) ExamRepository {
	return &examRepository{db: db}
}

func orderedRegions(db *gorm.DB) *gorm.DB {
	return db.Order("regions.id ASC")
}

func (r *examRepository) Create(ctx context.Context, exam *models.Exam) error {
	return r.db.WithContext(ctx).Create(exam).Error
}

func (r *examRepository) List(ctx context.Context) ([]models.Exam, error) {
	var exams []models.Exam
	if err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&exams).Error; err != nil {
		return nil, err
	}
	return exams, nil
}

func (r *examRepository) GetByID(ctx context.Context, id uint) (models.Exam, error) {
	var exam models.Exam
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("questions.id ASC") }).
		Preload("Questions.Regions", orderedRegions).
		Preload("Submissions", func(db *gorm.DB) *gorm.DB { return db.Order("submissions.id ASC") }).
		First(&exam, id).Error
	if err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func (r *examRepository) CreateQuestion(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

func (r *examRepository) ListQuestions(ctx context.Context, examID uint) ([]models.Question, error) {
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

func (r *examRepository) GetQuestion(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).Preload("Regions", orderedRegions).First(&question, id).Error; err != nil {
		return models.Question{}, err
	}
	return question, nil
}

func (r *examRepository) UpdateQuestion(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Omit("Regions").Save(question).Error
}

// DeleteQuestion removes the question and its regions. Artifacts keyed by the question stay.
func (r *examRepository) DeleteQuestion(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", id).Delete(&models.Region{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Question{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *examRepository) ReplaceRegions(ctx context.Context, questionID uint, regions []models.Region) ([]models.Region, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", questionID).Delete(&models.Region{}).Error; err != nil {
			return err
		}
		if len(regions) == 0 {
			return nil
		}
		for i := range regions {
			regions[i].ID = 0
			regions[i].QuestionID = questionID
		}
		return tx.Create(&regions).Error
	})
	if err != nil {
		return nil, err
	}
	return regions, nil
}
