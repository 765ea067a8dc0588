package dto

import (
	"time"

	"github.com/degun-osint/brainnotfound-go-api/internal/models"
)

// SubmittedAnswer is one answer included in a quiz submission.
type SubmittedAnswer struct {
	QuestionID       uint   `json:"question_id" validate:"required"`
	SelectedOptions  []int  `json:"selected_options"`
	Text             string `json:"text"`
	TimeSpentSeconds int    `json:"time_spent_seconds" validate:"gte=0"`
	FocusLostCount   int    `json:"focus_lost_count" validate:"gte=0"`
}

// FocusEvent is one telemetry event captured by the exam frontend.
type FocusEvent struct {
	QuestionID uint   `json:"question_id,omitempty"`
	EventType  string `json:"event_type"`
	Timestamp  string `json:"timestamp,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// SubmitQuizRequest carries a full quiz submission.
type SubmitQuizRequest struct {
	QuizID      uint              `json:"quiz_id" validate:"required"`
	StartedAt   *time.Time        `json:"started_at"`
	Answers     []SubmittedAnswer `json:"answers" validate:"required,dive"`
	FocusEvents []FocusEvent      `json:"focus_events"`
}

// AnswerResult is the per-item view of a graded answer.
type AnswerResult struct {
	ID          uint    `json:"id"`
	QuestionID  uint    `json:"question_id"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"max_score"`
	Feedback    string  `json:"feedback,omitempty"`
	AutoAwarded bool    `json:"auto_awarded,omitempty"`
}

// QuizResponseView is the API view of a quiz response and its grading state.
type QuizResponseView struct {
	ID              uint           `json:"id"`
	QuizID          uint           `json:"quiz_id"`
	UserID          uint           `json:"user_id"`
	GradingStatus   string         `json:"grading_status"`
	GradingProgress int            `json:"grading_progress"`
	GradingTotal    int            `json:"grading_total"`
	TotalScore      float64        `json:"total_score"`
	MaxScore        float64        `json:"max_score"`
	IsLate          bool           `json:"is_late"`
	SubmittedAt     time.Time      `json:"submitted_at"`
	Answers         []AnswerResult `json:"answers,omitempty"`
}

// NewQuizResponseView maps the model to its API view.
func NewQuizResponseView(response models.QuizResponse, includeAnswers bool) QuizResponseView {
	view := QuizResponseView{
		ID:              response.ID,
		QuizID:          response.QuizID,
		UserID:          response.UserID,
		GradingStatus:   response.GradingStatus,
		GradingProgress: response.GradingProgress,
		GradingTotal:    response.GradingTotal,
		TotalScore:      response.TotalScore,
		MaxScore:        response.MaxScore,
		IsLate:          response.IsLate,
		SubmittedAt:     response.SubmittedAt,
	}

	if includeAnswers {
		view.Answers = make([]AnswerResult, 0, len(response.Answers))
		for _, answer := range response.Answers {
			view.Answers = append(view.Answers, AnswerResult{
				ID:          answer.ID,
				QuestionID:  answer.QuestionID,
				Score:       answer.Score,
				MaxScore:    answer.MaxScore,
				Feedback:    answer.Feedback,
				AutoAwarded: answer.AutoAwarded,
			})
		}
	}

	return view
}

// Grading progress events pushed over the notification channel.
type GradingStartedEvent struct {
	ResponseID uint `json:"response_id"`
	Total      int  `json:"total"`
}

type GradingProgressEvent struct {
	ResponseID uint    `json:"response_id"`
	Progress   int     `json:"progress"`
	Total      int     `json:"total"`
	Question   string  `json:"question"`
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"max_score"`
}

type GradingCompletedEvent struct {
	ResponseID uint    `json:"response_id"`
	TotalScore float64 `json:"total_score"`
	MaxScore   float64 `json:"max_score"`
	Percentage float64 `json:"percentage"`
}

type GradingErrorEvent struct {
	ResponseID uint   `json:"response_id"`
	Error      string `json:"error"`
}
