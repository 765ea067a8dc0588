package dto

import (
	"time"

	"github.com/degun-osint/brainnotfound-go-api/internal/models"
)

// StartSessionRequest opens a new interview session.
type StartSessionRequest struct {
	InterviewID uint `json:"interview_id" validate:"required"`
}

// AdvanceSessionRequest carries one student message.
type AdvanceSessionRequest struct {
	Message string `json:"message" validate:"required,min=1,max=8000"`
}

// MessageView is the API view of one conversation turn.
type MessageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CriterionScoreView is the API view of one evaluated criterion.
type CriterionScoreView struct {
	CriterionID uint    `json:"criterion_id"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"max_score"`
	Feedback    string  `json:"feedback,omitempty"`
}

// SessionView is the API view of an interview session.
type SessionView struct {
	ID               uint                 `json:"id"`
	InterviewID      uint                 `json:"interview_id"`
	UserID           uint                 `json:"user_id"`
	Status           string               `json:"status"`
	InteractionCount int                  `json:"interaction_count"`
	MaxInteractions  int                  `json:"max_interactions"`
	StartedAt        time.Time            `json:"started_at"`
	EndedAt          *time.Time           `json:"ended_at,omitempty"`
	EndReason        string               `json:"end_reason,omitempty"`
	TotalScore       float64              `json:"total_score"`
	MaxScore         float64              `json:"max_score"`
	Summary          string               `json:"summary,omitempty"`
	Messages         []MessageView        `json:"messages,omitempty"`
	Scores           []CriterionScoreView `json:"scores,omitempty"`
}

// NewSessionView maps the model to its API view.
func NewSessionView(session models.InterviewSession, includeTranscript bool) SessionView {
	view := SessionView{
		ID:               session.ID,
		InterviewID:      session.InterviewID,
		UserID:           session.UserID,
		Status:           session.Status,
		InteractionCount: session.InteractionCount,
		MaxInteractions:  session.Interview.MaxInteractions,
		StartedAt:        session.StartedAt,
		EndedAt:          session.EndedAt,
		EndReason:        session.EndReason,
		TotalScore:       session.TotalScore,
		MaxScore:         session.MaxScore,
		Summary:          session.Summary,
	}

	if includeTranscript {
		view.Messages = make([]MessageView, 0, len(session.Messages))
		for _, msg := range session.Messages {
			view.Messages = append(view.Messages, MessageView{
				Role:      msg.Role,
				Content:   msg.Content,
				CreatedAt: msg.CreatedAt,
			})
		}
	}

	if len(session.Scores) > 0 {
		view.Scores = make([]CriterionScoreView, 0, len(session.Scores))
		for _, score := range session.Scores {
			view.Scores = append(view.Scores, CriterionScoreView{
				CriterionID: score.CriterionID,
				Name:        score.Criterion.Name,
				Score:       score.Score,
				MaxScore:    score.MaxScore,
				Feedback:    score.Feedback,
			})
		}
	}

	return view
}

// Interview events pushed over the notification channel.
type MessageReceivedEvent struct {
	SessionID        uint   `json:"session_id"`
	Content          string `json:"content"`
	InteractionCount int    `json:"interaction_count"`
	MaxInteractions  int    `json:"max_interactions"`
}

type InterviewEndedEvent struct {
	SessionID uint   `json:"session_id"`
	Reason    string `json:"reason"`
}

type EvaluationStartedEvent struct {
	SessionID     uint `json:"session_id"`
	TotalCriteria int  `json:"total_criteria"`
}

type EvaluationProgressEvent struct {
	SessionID uint    `json:"session_id"`
	Progress  int     `json:"progress"`
	Total     int     `json:"total"`
	Criterion string  `json:"criterion"`
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"max_score"`
}

type EvaluationCompletedEvent struct {
	SessionID  uint    `json:"session_id"`
	TotalScore float64 `json:"total_score"`
	MaxScore   float64 `json:"max_score"`
	Percentage float64 `json:"percentage"`
}

type EvaluationErrorEvent struct {
	SessionID uint   `json:"session_id"`
	Error     string `json:"error"`
}
