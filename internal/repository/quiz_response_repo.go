package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/degun-osint/brainnotfound-go-api/internal/models"
)

// QuizResponseRepository defines data operations for quiz responses and
// their answers.
type QuizResponseRepository interface {
	GetByID(ctx context.Context, id uint) (models.QuizResponse, error)
	ListByQuiz(ctx context.Context, quizID uint) ([]models.QuizResponse, error)
	Create(ctx context.Context, response *models.QuizResponse) error
	Update(ctx context.Context, response *models.QuizResponse) error
	UpdateAnswer(ctx context.Context, answer *models.Answer) error
}

type quizResponseRepository struct {
	db *gorm.DB
}

// NewQuizResponseRepository instantiates the repository.
func NewQuizResponseRepository(db *gorm.DB) QuizResponseRepository {
	return &quizResponseRepository{db: db}
}

func (r *quizResponseRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.QuizResponse{}).
		Preload("Quiz").
		Preload("Quiz.Questions").
		Preload("Answers").
		Preload("Answers.Question")
}

func (r *quizResponseRepository) GetByID(ctx context.Context, id uint) (models.QuizResponse, error) {
	var response models.QuizResponse
	if err := r.baseQuery(ctx).First(&response, id).Error; err != nil {
		return models.QuizResponse{}, err
	}

	return response, nil
}

func (r *quizResponseRepository) ListByQuiz(ctx context.Context, quizID uint) ([]models.QuizResponse, error) {
	var responses []models.QuizResponse
	if err := r.baseQuery(ctx).
		Where("quiz_id = ?", quizID).
		Order("submitted_at ASC").
		Find(&responses).Error; err != nil {
		return nil, err
	}

	return responses, nil
}

func (r *quizResponseRepository) Create(ctx context.Context, response *models.QuizResponse) error {
	return r.db.WithContext(ctx).Create(response).Error
}

func (r *quizResponseRepository) Update(ctx context.Context, response *models.QuizResponse) error {
	return r.db.WithContext(ctx).Save(response).Error
}

func (r *quizResponseRepository) UpdateAnswer(ctx context.Context, answer *models.Answer) error {
	return r.db.WithContext(ctx).Save(answer).Error
}
