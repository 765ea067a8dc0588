package ai

import (
	"fmt"
	"strings"
)

// TerminationMarker is the reserved token the interview persona emits when it
// considers the conversation naturally concluded. It is stripped from the
// message shown to the student.
const TerminationMarker = "[INTERVIEW_COMPLETE]"

// Severity selects how strictly open answers are graded.
type Severity string

const (
	SeverityGentle   Severity = "gentle"
	SeverityModerate Severity = "moderate"
	SeverityStrict   Severity = "strict"
)

// ParseSeverity validates a severity value coming from configuration.
func ParseSeverity(value string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(value))) {
	case SeverityGentle:
		return SeverityGentle, nil
	case SeverityModerate, "":
		return SeverityModerate, nil
	case SeverityStrict:
		return SeverityStrict, nil
	}
	return "", fmt.Errorf("unknown grading severity %q", value)
}

var severityInstructions = map[Severity]string{
	SeverityGentle:   "Grade generously. Reward partial understanding and award points whenever the core idea is present, even if the wording is clumsy.",
	SeverityModerate: "Grade fairly. Award points proportionally to how much of the expected answer is covered, tolerating minor omissions.",
	SeverityStrict:   "Grade rigorously. Award full points only for complete and precise answers; penalise vagueness and missing elements.",
}

// Mood flavours the tone of AI feedback.
type Mood string

const (
	MoodNeutral      Mood = "neutral"
	MoodJovial       Mood = "jovial"
	MoodTeasing      Mood = "teasing"
	MoodEncouraging  Mood = "encouraging"
	MoodSarcastic    Mood = "sarcastic"
	MoodProfessorial Mood = "professorial"
)

// ParseMood validates a feedback mood value.
func ParseMood(value string) (Mood, error) {
	switch Mood(strings.ToLower(strings.TrimSpace(value))) {
	case MoodNeutral, "":
		return MoodNeutral, nil
	case MoodJovial:
		return MoodJovial, nil
	case MoodTeasing:
		return MoodTeasing, nil
	case MoodEncouraging:
		return MoodEncouraging, nil
	case MoodSarcastic:
		return MoodSarcastic, nil
	case MoodProfessorial:
		return MoodProfessorial, nil
	}
	return "", fmt.Errorf("unknown feedback mood %q", value)
}

var moodDescriptions = map[Mood]string{
	MoodNeutral:      "Keep a neutral, factual tone.",
	MoodJovial:       "Be warm and cheerful in the feedback.",
	MoodTeasing:      "Allow light, good-natured teasing.",
	MoodEncouraging:  "Encourage the student and highlight progress.",
	MoodSarcastic:    "A touch of dry wit is acceptable, never cruelty.",
	MoodProfessorial: "Adopt the register of a seasoned professor.",
}

// GradingPromptInput carries everything needed to grade one open answer.
type GradingPromptInput struct {
	Question       string
	ExpectedAnswer string
	StudentAnswer  string
	MaxPoints      float64
	Severity       Severity
	Moods          []Mood
}

// BuildGradingPrompt renders the open-answer grading prompt. The model must
// answer with a JSON object {"score": float, "feedback": string}.
func BuildGradingPrompt(in GradingPromptInput) string {
	b := strings.Builder{}
	b.WriteString("You are grading a student's answer to an open question.\n\n")
	b.WriteString("## Grading policy\n")
	b.WriteString(severityInstructions[in.Severity])
	if len(in.Moods) > 0 {
		b.WriteString("\n\n## Feedback tone\n")
		for _, mood := range in.Moods {
			if desc, ok := moodDescriptions[mood]; ok {
				b.WriteString(desc)
				b.WriteString(" ")
			}
		}
	}
	b.WriteString("\n\n## Question\n")
	b.WriteString(in.Question)
	b.WriteString("\n\n## Expected answer\n")
	b.WriteString(in.ExpectedAnswer)
	b.WriteString("\n\n## Student answer\n")
	b.WriteString(in.StudentAnswer)
	fmt.Fprintf(&b, "\n\nMaximum points: %g\n", in.MaxPoints)
	b.WriteString(`Respond with a JSON object only: {"score": <0..max>, "feedback": "<2-4 sentences addressed to the student>"}`)
	return b.String()
}

// WrapPersonaPrompt frames the stored persona instructions for a live
// conversation turn, including the termination protocol.
func WrapPersonaPrompt(systemPrompt string) string {
	b := strings.Builder{}
	b.WriteString(systemPrompt)
	b.WriteString("\n\nStay in character for the whole conversation. ")
	b.WriteString("If the conversation has reached its natural conclusion, append the exact marker ")
	b.WriteString(TerminationMarker)
	b.WriteString(" at the very end of your reply. Never mention the marker otherwise.")
	return b.String()
}

// EvaluationPromptInput carries the transcript and criteria for the
// post-interview evaluation pass.
type EvaluationPromptInput struct {
	InterviewTitle   string
	Description      string
	StudentObjective string
	PersonaName      string
	Transcript       string
	CriteriaJSON     string
}

// BuildEvaluationPrompt renders the multi-criteria evaluation prompt. The
// model must answer with {"scores": [{"criterion_id", "score", "feedback"}],
// "summary": string}.
func BuildEvaluationPrompt(in EvaluationPromptInput) string {
	b := strings.Builder{}
	b.WriteString("You are evaluating a student's performance in a simulated interview.\n\n")
	fmt.Fprintf(&b, "## Interview: %s\n%s\n", in.InterviewTitle, in.Description)
	if in.StudentObjective != "" {
		fmt.Fprintf(&b, "\n## Student objective\n%s\n", in.StudentObjective)
	}
	fmt.Fprintf(&b, "\n## Transcript (persona: %s)\n%s\n", in.PersonaName, in.Transcript)
	b.WriteString("\n## Evaluation criteria\n")
	b.WriteString(in.CriteriaJSON)
	b.WriteString("\n\nScore every criterion between 0 and its max_points. ")
	b.WriteString(`Respond with JSON only: {"scores": [{"criterion_id": <id>, "score": <float>, "feedback": "<text>"}], "summary": "<overall assessment>"}`)
	return b.String()
}

// BuildOpeningMessagePrompt asks the model to produce the persona's first
// message of a session.
func BuildOpeningMessagePrompt(systemPrompt string) string {
	b := strings.Builder{}
	b.WriteString("Below are the instructions for a roleplay persona.\n\n")
	b.WriteString(systemPrompt)
	b.WriteString("\n\nWrite the persona's opening message to the student: greet them and set the scene in at most four sentences. Reply with the message only.")
	return b.String()
}

// BuildAnomalyPrompt renders the classification prompt over submission
// telemetry. The model must answer with {"risk_level", "confidence",
// "anomalies", "summary"}.
func BuildAnomalyPrompt(statsJSON string) string {
	b := strings.Builder{}
	b.WriteString("You analyse quiz-taking telemetry for signs of academic dishonesty.\n\n")
	b.WriteString("## Submission statistics\n")
	b.WriteString(statsJSON)
	b.WriteString("\n\nConsider answer timing, focus losses and flagged events. Be conservative: fast answers alone are weak evidence. ")
	b.WriteString(`Respond with JSON only: {"risk_level": "low"|"medium"|"high", "confidence": <0..1>, "anomalies": [{"type": "<kind>", "detail": "<text>"}], "summary": "<text>"}`)
	return b.String()
}

// BuildCohortAnomalyPrompt renders the class-wide classification prompt.
func BuildCohortAnomalyPrompt(statsJSON string) string {
	b := strings.Builder{}
	b.WriteString("You analyse class-wide quiz telemetry for collusion or anomaly patterns.\n\n")
	b.WriteString("## Cohort statistics\n")
	b.WriteString(statsJSON)
	b.WriteString("\n\nLook for correlated timing, shared wording hints in the aggregates and outlier students. ")
	b.WriteString(`Respond with JSON only: {"risk_level": "low"|"medium"|"high", "confidence": <0..1>, "anomalies": [{"type": "<kind>", "detail": "<text>"}], "summary": "<text>"}`)
	return b.String()
}
