package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/degun-osint/brainnotfound-go-api/internal/models"
)

// InterviewRepository defines data operations for interviews, sessions and
// their conversation history.
type InterviewRepository interface {
	GetInterview(ctx context.Context, id uint) (models.Interview, error)
	GetSession(ctx context.Context, id uint) (models.InterviewSession, error)
	CreateSession(ctx context.Context, session *models.InterviewSession) error
	UpdateSession(ctx context.Context, session *models.InterviewSession) error
	AppendMessage(ctx context.Context, message *models.InterviewMessage) error
	SaveCriterionScore(ctx context.Context, score *models.CriterionScore) error
	DeleteCriterionScores(ctx context.Context, sessionID uint) error
}

type interviewRepository struct {
	db *gorm.DB
}

// NewInterviewRepository instantiates the repository.
func NewInterviewRepository(db *gorm.DB) InterviewRepository {
	return &interviewRepository{db: db}
}

func (r *interviewRepository) GetInterview(ctx context.Context, id uint) (models.Interview, error) {
	var interview models.Interview
	if err := r.db.WithContext(ctx).Model(&models.Interview{}).
		Preload("Criteria", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&interview, id).Error; err != nil {
		return models.Interview{}, err
	}

	return interview, nil
}

func (r *interviewRepository) GetSession(ctx context.Context, id uint) (models.InterviewSession, error) {
	var session models.InterviewSession
	if err := r.db.WithContext(ctx).Model(&models.InterviewSession{}).
		Preload("Interview").
		Preload("Interview.Criteria", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Scores").
		First(&session, id).Error; err != nil {
		return models.InterviewSession{}, err
	}

	return session, nil
}

func (r *interviewRepository) CreateSession(ctx context.Context, session *models.InterviewSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *interviewRepository) UpdateSession(ctx context.Context, session *models.InterviewSession) error {
	return r.db.WithContext(ctx).Omit("Interview", "Messages", "Scores").Save(session).Error
}

func (r *interviewRepository) AppendMessage(ctx context.Context, message *models.InterviewMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *interviewRepository) SaveCriterionScore(ctx context.Context, score *models.CriterionScore) error {
	return r.db.WithContext(ctx).Create(score).Error
}

func (r *interviewRepository) DeleteCriterionScores(ctx context.Context, sessionID uint) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.CriterionScore{}).Error
}
