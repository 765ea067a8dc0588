package models

import "time"

// Interview session lifecycle. Once a session leaves in_progress it never
// returns; completed is reached only through an evaluation pass.
const (
	SessionStatusInProgress     = "in_progress"
	SessionStatusEndedByStudent = "ended_by_student"
	SessionStatusEndedByAI      = "ended_by_ai"
	SessionStatusEndedByLimit   = "ended_by_limit"
	SessionStatusEndedByTimeout = "ended_by_timeout"
	SessionStatusEvaluating     = "evaluating"
	SessionStatusCompleted      = "completed"
	SessionStatusError          = "error"
)

// Message roles in an interview conversation.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Interview is an AI persona configuration created by a teacher: the system
// prompt, the conversation limits and the evaluation criteria.
type Interview struct {
	ID                 uint                  `gorm:"primaryKey" json:"id"`
	TenantID           uint                  `gorm:"index" json:"tenant_id"`
	Title              string                `gorm:"size:200;not null" json:"title"`
	Description        string                `gorm:"type:text" json:"description"`
	SystemPrompt       string                `gorm:"type:text;not null" json:"system_prompt"`
	PersonaName        string                `gorm:"size:100" json:"persona_name"`
	PersonaRole        string                `gorm:"size:200" json:"persona_role"`
	StudentObjective   string                `gorm:"type:text" json:"student_objective"`
	IsActive           bool                  `gorm:"default:true" json:"is_active"`
	MaxInteractions    int                   `gorm:"default:30" json:"max_interactions"`
	MaxDurationMinutes int                   `gorm:"default:30" json:"max_duration_minutes"`
	AllowStudentEnd    bool                  `gorm:"default:true" json:"allow_student_end"`
	AICanEnd           bool                  `gorm:"default:true" json:"ai_can_end"`
	OpeningMessage     string                `gorm:"type:text" json:"opening_message"`
	StudentStarts      bool                  `gorm:"default:false" json:"student_starts"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
	Criteria           []EvaluationCriterion `gorm:"constraint:OnDelete:CASCADE" json:"criteria"`
}

// MaxScore sums the criteria point values.
func (i Interview) MaxScore() float64 {
	total := 0.0
	for _, c := range i.Criteria {
		total += c.MaxPoints
	}
	return total
}

// EvaluationCriterion is one axis the evaluation pass scores a session on.
type EvaluationCriterion struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	InterviewID uint    `gorm:"not null;index" json:"interview_id"`
	Name        string  `gorm:"size:100;not null" json:"name"`
	Description string  `gorm:"type:text" json:"description"`
	MaxPoints   float64 `gorm:"default:5" json:"max_points"`
	Position    int     `gorm:"default:0" json:"position"`
	Hints       string  `gorm:"type:text" json:"hints"`
}

// InterviewSession is one student's run through an interview.
type InterviewSession struct {
	ID               uint               `gorm:"primaryKey" json:"id"`
	InterviewID      uint               `gorm:"not null;index" json:"interview_id"`
	UserID           uint               `gorm:"not null;index" json:"user_id"`
	Status           string             `gorm:"size:30;default:in_progress" json:"status"`
	InteractionCount int                `gorm:"default:0" json:"interaction_count"`
	StartedAt        time.Time          `json:"started_at"`
	LastActivityAt   time.Time          `json:"last_activity_at"`
	EndedAt          *time.Time         `json:"ended_at"`
	EndReason        string             `gorm:"size:50" json:"end_reason"`
	TotalScore       float64            `gorm:"default:0" json:"total_score"`
	MaxScore         float64            `gorm:"default:0" json:"max_score"`
	Summary          string             `gorm:"type:text" json:"summary"`
	AdminComment     string             `gorm:"type:text" json:"admin_comment"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	Interview        Interview          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"interview"`
	Messages         []InterviewMessage `gorm:"constraint:OnDelete:CASCADE" json:"messages"`
	Scores           []CriterionScore   `gorm:"constraint:OnDelete:CASCADE" json:"scores"`
}

// IsEnded reports whether the conversation is over (possibly still awaiting
// evaluation).
func (s InterviewSession) IsEnded() bool {
	return s.Status != SessionStatusInProgress
}

// AwaitsEvaluation reports whether the session ended but has not yet been
// scored.
func (s InterviewSession) AwaitsEvaluation() bool {
	switch s.Status {
	case SessionStatusEndedByStudent, SessionStatusEndedByAI,
		SessionStatusEndedByLimit, SessionStatusEndedByTimeout:
		return true
	}
	return false
}

// InterviewMessage is one turn of the conversation.
type InterviewMessage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SessionID      uint      `gorm:"not null;index" json:"session_id"`
	Role           string    `gorm:"size:20;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	TokenCount     int       `gorm:"default:0" json:"token_count"`
	HadEndSignal   bool      `gorm:"default:false" json:"had_end_signal"`
	CreatedAt      time.Time `json:"created_at"`
}

// CriterionScore records the evaluation of one criterion for one session.
// There is exactly one row per (session, criterion) pair.
type CriterionScore struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	SessionID   uint                `gorm:"not null;uniqueIndex:idx_session_criterion" json:"session_id"`
	CriterionID uint                `gorm:"not null;uniqueIndex:idx_session_criterion" json:"criterion_id"`
	Score       float64             `gorm:"not null" json:"score"`
	MaxScore    float64             `gorm:"not null" json:"max_score"`
	Feedback    string              `gorm:"type:text" json:"feedback"`
	CreatedAt   time.Time           `json:"created_at"`
	Criterion   EvaluationCriterion `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"criterion"`
}
