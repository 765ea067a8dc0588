package dto

// Risk levels a classification can produce. Unknown is reserved for the
// could-not-analyze fallback and is never requested from the model.
const (
	RiskLow     = "low"
	RiskMedium  = "medium"
	RiskHigh    = "high"
	RiskUnknown = "unknown"
)

// AnomalyFinding is one structured observation inside a report.
type AnomalyFinding struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// AnomalyReport is the outcome of an anomaly classification, either for one
// submission or for a whole quiz cohort. It is derived data and may be
// regenerated at any time.
type AnomalyReport struct {
	RiskLevel  string           `json:"risk_level"`
	Confidence float64          `json:"confidence"`
	Anomalies  []AnomalyFinding `json:"anomalies"`
	Summary    string           `json:"summary"`
	Error      string           `json:"error,omitempty"`
}

// QuestionStat is per-question telemetry for one submission.
type QuestionStat struct {
	QuestionID       uint    `json:"question_id"`
	Number           int     `json:"number"`
	Type             string  `json:"type"`
	Text             string  `json:"text"`
	Points           float64 `json:"points"`
	TimeSpentSeconds int     `json:"time_spent_seconds"`
	FocusLostCount   int     `json:"focus_lost_count"`
	Score            float64 `json:"score"`
	MaxScore         float64 `json:"max_score"`
	AnswerLength     int     `json:"answer_length,omitempty"`
	AnswerCorrect    *bool   `json:"answer_correct,omitempty"`
}

// ResponseStats is the structured statistics object built for one
// submission, both for the review UI and as AI classification input.
type ResponseStats struct {
	ResponseID         uint           `json:"response_id"`
	QuizTitle          string         `json:"quiz_title"`
	TotalTimeMinutes   float64        `json:"total_time_minutes"`
	TotalFocusLost     int            `json:"total_focus_lost"`
	FocusEvents        []FocusEvent   `json:"focus_events,omitempty"`
	Questions          []QuestionStat `json:"questions"`
	AvgTimePerQuestion float64        `json:"avg_time_per_question"`
	MinTimeSeconds     int            `json:"min_time_seconds"`
	MaxTimeSeconds     int            `json:"max_time_seconds"`
	TotalScore         float64        `json:"total_score"`
	MaxScore           float64        `json:"max_score"`
}

// CohortQuestionStat aggregates one question across all submissions.
type CohortQuestionStat struct {
	QuestionID   uint    `json:"question_id"`
	Number       int     `json:"number"`
	Type         string  `json:"type"`
	Text         string  `json:"text"`
	AvgTime      float64 `json:"avg_time"`
	StdTime      float64 `json:"std_time"`
	AvgScore     float64 `json:"avg_score"`
	FocusEvents  int     `json:"focus_events"`
}

// CohortStudentStat summarises one student inside the cohort analysis.
type CohortStudentStat struct {
	ResponseID           uint    `json:"response_id"`
	UserID               uint    `json:"user_id"`
	TotalDurationSeconds int     `json:"total_duration_seconds"`
	ScorePercent         float64 `json:"score_percent"`
	FocusLost            int     `json:"focus_lost"`
}

// CohortStats is the class-wide statistics object sent for cohort
// classification.
type CohortStats struct {
	QuizID             uint                 `json:"quiz_id"`
	QuizTitle          string               `json:"quiz_title"`
	StudentCount       int                  `json:"student_count"`
	AvgDurationMinutes float64              `json:"avg_duration_minutes"`
	AvgScorePercent    float64              `json:"avg_score_percent"`
	TotalFocusEvents   int                  `json:"total_focus_events"`
	Questions          []CohortQuestionStat `json:"questions"`
	Students           []CohortStudentStat  `json:"students"`
}
