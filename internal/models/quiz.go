package models

import (
	"time"

	"gorm.io/datatypes"
)

// Grading lifecycle of a quiz response. Status only moves forward
// (pending -> grading -> completed/error); an explicit re-grade request
// resets a finished response back to pending.
const (
	GradingStatusPending   = "pending"
	GradingStatusGrading   = "grading"
	GradingStatusCompleted = "completed"
	GradingStatusError     = "error"
)

// Question kinds.
const (
	QuestionTypeChoice = "mcq"
	QuestionTypeOpen   = "open"
)

// Quiz is a set of questions assigned to students.
type Quiz struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	TenantID         uint           `gorm:"index" json:"tenant_id"`
	Title            string         `gorm:"size:200;not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	IsActive         bool           `gorm:"default:true" json:"is_active"`
	TimeLimitMinutes int            `json:"time_limit_minutes"`
	GradingSeverity  string         `gorm:"size:20;default:moderate" json:"grading_severity"`
	GradingMoods     datatypes.JSON `json:"grading_moods"`
	CohortAnalysis   datatypes.JSON `json:"cohort_analysis"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Questions        []Question     `gorm:"constraint:OnDelete:CASCADE" json:"questions"`
}

// Question is one gradable item inside a quiz. Choice questions carry their
// options and correct indices; open questions carry the expected answer the
// AI grades against.
type Question struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	QuizID         uint           `gorm:"not null;index" json:"quiz_id"`
	Type           string         `gorm:"size:20;not null" json:"type"`
	Text           string         `gorm:"type:text;not null" json:"text"`
	Points         float64        `gorm:"default:1" json:"points"`
	Position       int            `gorm:"default:0" json:"position"`
	Options        datatypes.JSON `json:"options"`
	CorrectAnswers datatypes.JSON `json:"correct_answers"`
	ExpectedAnswer string         `gorm:"type:text" json:"expected_answer"`
}

// QuizResponse is one student's submission of a quiz. It doubles as the
// grading job record: progress counters and status live here.
type QuizResponse struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	QuizID          uint           `gorm:"not null;index" json:"quiz_id"`
	UserID          uint           `gorm:"not null;index" json:"user_id"`
	TotalScore      float64        `gorm:"default:0" json:"total_score"`
	MaxScore        float64        `gorm:"default:0" json:"max_score"`
	StartedAt       *time.Time     `json:"started_at"`
	SubmittedAt     time.Time      `json:"submitted_at"`
	IsLate          bool           `gorm:"default:false" json:"is_late"`
	GradingStatus   string         `gorm:"size:20;default:pending" json:"grading_status"`
	GradingProgress int            `gorm:"default:0" json:"grading_progress"`
	GradingTotal    int            `gorm:"default:0" json:"grading_total"`
	FocusEvents     datatypes.JSON `json:"focus_events"`
	TotalFocusLost  int            `gorm:"default:0" json:"total_focus_lost"`
	AnomalyReport   datatypes.JSON `json:"anomaly_report"`
	AdminComment    string         `gorm:"type:text" json:"admin_comment"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Quiz            Quiz           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"quiz"`
	Answers         []Answer       `gorm:"constraint:OnDelete:CASCADE" json:"answers"`
}

// IsTerminal reports whether grading has reached a final state.
func (r QuizResponse) IsTerminal() bool {
	return r.GradingStatus == GradingStatusCompleted || r.GradingStatus == GradingStatusError
}

// Answer is one student's answer to one question, with its recorded score
// and the timing telemetry the anomaly detector consumes.
type Answer struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	QuizResponseID   uint           `gorm:"not null;index" json:"quiz_response_id"`
	QuestionID       uint           `gorm:"not null;index" json:"question_id"`
	SelectedOptions  datatypes.JSON `json:"selected_options"`
	AnswerText       string         `gorm:"type:text" json:"answer_text"`
	Score            float64        `gorm:"default:0" json:"score"`
	MaxScore         float64        `gorm:"default:0" json:"max_score"`
	Feedback         string         `gorm:"type:text" json:"feedback"`
	AutoAwarded      bool           `gorm:"default:false" json:"auto_awarded"`
	TimeSpentSeconds int            `json:"time_spent_seconds"`
	FocusLostCount   int            `gorm:"default:0" json:"focus_lost_count"`
	Question         Question       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"question"`
}
