package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/degun-osint/brainnotfound-go-api/internal/models"
)

// QuizRepository defines data operations for quizzes.
type QuizRepository interface {
	GetByID(ctx context.Context, id uint) (models.Quiz, error)
	Update(ctx context.Context, quiz *models.Quiz) error
}

type quizRepository struct {
	db *gorm.DB
}

// NewQuizRepository instantiates the repository.
func NewQuizRepository(db *gorm.DB) QuizRepository {
	return &quizRepository{db: db}
}

func (r *quizRepository) GetByID(ctx context.Context, id uint) (models.Quiz, error) {
	var quiz models.Quiz
	if err := r.db.WithContext(ctx).Model(&models.Quiz{}).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&quiz, id).Error; err != nil {
		return models.Quiz{}, err
	}

	return quiz, nil
}

func (r *quizRepository) Update(ctx context.Context, quiz *models.Quiz) error {
	return r.db.WithContext(ctx).Save(quiz).Error
}
