package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/degun-osint/brainnotfound-go-api/internal/dispatch"
	"github.com/degun-osint/brainnotfound-go-api/internal/dto"
	"github.com/degun-osint/brainnotfound-go-api/internal/models"
	"github.com/degun-osint/brainnotfound-go-api/internal/repository"
	"github.com/degun-osint/brainnotfound-go-api/pkg/ai"
	"github.com/degun-osint/brainnotfound-go-api/pkg/tokencount"
)

// Interview event names pushed over the notification channel.
const (
	EventMessageReceived     = "message_received"
	EventInterviewEnded      = "interview_ended"
	EventEvaluationStarted   = "evaluation_started"
	EventEvaluationProgress  = "evaluation_progress"
	EventEvaluationCompleted = "evaluation_completed"
	EventEvaluationError     = "evaluation_error"
)

// contextTokenBudget caps how much conversation history is replayed to the
// model on each turn. The system prompt always fits; history is filled from
// the most recent message backwards.
const contextTokenBudget = 8000

// End reasons recorded on the session.
const (
	EndReasonStudent = "student_request"
	EndReasonAI      = "ai_decision"
	EndReasonLimit   = "interaction_limit"
	EndReasonTimeout = "duration_timeout"
)

// technicalFallbackReply is stored as the assistant turn when the completion
// gateway fails mid-conversation, so the session survives a model outage.
const technicalFallbackReply = "I am sorry, I am having a technical issue on my side. Could you repeat that in a moment?"

// ErrSessionClosed is returned when a message arrives for an ended session.
var ErrSessionClosed = errors.New("interview session is closed")

// ErrStudentEndNotAllowed is returned when the interview configuration does
// not let students end the conversation themselves.
var ErrStudentEndNotAllowed = errors.New("students may not end this interview")

// ErrInterviewInactive is returned when starting a session on a disabled
// interview.
var ErrInterviewInactive = errors.New("interview is not active")

// InterviewService runs live interview sessions and their post-conversation
// evaluation.
type InterviewService interface {
	Start(ctx context.Context, userID, interviewID uint) (dto.SessionView, error)
	Advance(ctx context.Context, sessionID uint, req dto.AdvanceSessionRequest) (dto.SessionView, error)
	EndByStudent(ctx context.Context, sessionID uint) (dto.SessionView, error)
	GetSession(ctx context.Context, sessionID uint) (dto.SessionView, error)
	RequestEvaluation(ctx context.Context, sessionID uint) error
}

type interviewService struct {
	interviews repository.InterviewRepository
	completer  ai.Completer
	dispatcher *dispatch.Dispatcher
	notifier   Notifier
	quota      QuotaService
	tokens     *tokencount.Estimator
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
	now        func() time.Time
}

// NewInterviewService instantiates the conversation engine.
func NewInterviewService(
	interviews repository.InterviewRepository,
	completer ai.Completer,
	dispatcher *dispatch.Dispatcher,
	notifier Notifier,
	quota QuotaService,
	tokens *tokencount.Estimator,
	logger zerolog.Logger,
) InterviewService {
	return &interviewService{
		interviews: interviews,
		completer:  completer,
		dispatcher: dispatcher,
		notifier:   notifier,
		quota:      quota,
		tokens:     tokens,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logger.With().Str("component", "interview").Logger(),
		now:        time.Now,
	}
}

func (s *interviewService) Start(ctx context.Context, userID, interviewID uint) (dto.SessionView, error) {
	interview, err := s.interviews.GetInterview(ctx, interviewID)
	if err != nil {
		return dto.SessionView{}, fmt.Errorf("failed to load interview %d: %w", interviewID, err)
	}
	if !interview.IsActive {
		return dto.SessionView{}, ErrInterviewInactive
	}

	if err := s.quota.Consume(ctx, interview.TenantID, ActionInterview); err != nil {
		return dto.SessionView{}, err
	}

	now := s.now()
	session := models.InterviewSession{
		InterviewID:    interview.ID,
		UserID:         userID,
		Status:         models.SessionStatusInProgress,
		StartedAt:      now,
		LastActivityAt: now,
		MaxScore:       interview.MaxScore(),
	}
	if err := s.interviews.CreateSession(ctx, &session); err != nil {
		s.quota.Refund(ctx, interview.TenantID, ActionInterview)
		return dto.SessionView{}, fmt.Errorf("failed to create session: %w", err)
	}

	if !interview.StudentStarts {
		opening, err := s.openingMessage(ctx, interview)
		if err != nil {
			return dto.SessionView{}, err
		}
		message := models.InterviewMessage{
			SessionID:  session.ID,
			Role:       models.MessageRoleAssistant,
			Content:    opening,
			TokenCount: s.tokens.Estimate(opening),
		}
		if err := s.interviews.AppendMessage(ctx, &message); err != nil {
			return dto.SessionView{}, fmt.Errorf("failed to store opening message: %w", err)
		}
	}

	s.logger.Info().
		Uint("session_id", session.ID).
		Uint("interview_id", interview.ID).
		Msg("interview session started")

	return s.GetSession(ctx, session.ID)
}

func (s *interviewService) openingMessage(ctx context.Context, interview models.Interview) (string, error) {
	if interview.OpeningMessage != "" {
		return interview.OpeningMessage, nil
	}

	content, err := s.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{{
			Role:    ai.RoleUser,
			Content: ai.BuildOpeningMessagePrompt(interview.SystemPrompt),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate opening message: %w", err)
	}

	return stripMarker(content), nil
}

func (s *interviewService) Advance(ctx context.Context, sessionID uint, req dto.AdvanceSessionRequest) (dto.SessionView, error) {
	session, err := s.interviews.GetSession(ctx, sessionID)
	if err != nil {
		return dto.SessionView{}, fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}
	if session.IsEnded() {
		return dto.SessionView{}, ErrSessionClosed
	}

	now := s.now()
	interview := session.Interview

	// Timeouts are checked lazily on the next message rather than by a
	// timer. The arriving message is not processed.
	if interview.MaxDurationMinutes > 0 {
		deadline := session.StartedAt.Add(time.Duration(interview.MaxDurationMinutes) * time.Minute)
		if now.After(deadline) {
			if err := s.endSession(ctx, &session, models.SessionStatusEndedByTimeout, EndReasonTimeout); err != nil {
				return dto.SessionView{}, err
			}
			return s.GetSession(ctx, sessionID)
		}
	}

	// At the cap the session ends without another model call.
	if interview.MaxInteractions > 0 && session.InteractionCount >= interview.MaxInteractions {
		if err := s.endSession(ctx, &session, models.SessionStatusEndedByLimit, EndReasonLimit); err != nil {
			return dto.SessionView{}, err
		}
		return s.GetSession(ctx, sessionID)
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(req.Message))
	if content == "" {
		return dto.SessionView{}, fmt.Errorf("message is empty after sanitization")
	}

	userMessage := models.InterviewMessage{
		SessionID:  session.ID,
		Role:       models.MessageRoleUser,
		Content:    content,
		TokenCount: s.tokens.Estimate(content),
	}
	if err := s.interviews.AppendMessage(ctx, &userMessage); err != nil {
		return dto.SessionView{}, fmt.Errorf("failed to store student message: %w", err)
	}
	session.Messages = append(session.Messages, userMessage)

	reply, err := s.completer.Complete(ctx, ai.CompletionRequest{
		System:   ai.WrapPersonaPrompt(interview.SystemPrompt),
		Messages: s.buildContext(session.Messages),
	})
	if err != nil {
		// The student's message is already stored. A persona outage turns
		// into a recoverable in-character reply instead of a failed turn.
		s.logger.Error().Err(err).Uint("session_id", session.ID).Msg("persona reply failed, using fallback")
		reply = technicalFallbackReply
	}

	hadMarker := strings.Contains(reply, ai.TerminationMarker)
	visible := stripMarker(reply)

	assistantMessage := models.InterviewMessage{
		SessionID:    session.ID,
		Role:         models.MessageRoleAssistant,
		Content:      visible,
		TokenCount:   s.tokens.Estimate(visible),
		HadEndSignal: hadMarker,
	}
	if err := s.interviews.AppendMessage(ctx, &assistantMessage); err != nil {
		return dto.SessionView{}, fmt.Errorf("failed to store persona reply: %w", err)
	}

	session.InteractionCount++
	session.LastActivityAt = now
	if err := s.interviews.UpdateSession(ctx, &session); err != nil {
		return dto.SessionView{}, fmt.Errorf("failed to persist session: %w", err)
	}

	s.notifier.Emit(ctx, UserRoom(session.UserID), EventMessageReceived, dto.MessageReceivedEvent{
		SessionID:        session.ID,
		Content:          visible,
		InteractionCount: session.InteractionCount,
		MaxInteractions:  interview.MaxInteractions,
	})

	switch {
	case hadMarker && interview.AICanEnd:
		if err := s.endSession(ctx, &session, models.SessionStatusEndedByAI, EndReasonAI); err != nil {
			return dto.SessionView{}, err
		}
	case interview.MaxInteractions > 0 && session.InteractionCount >= interview.MaxInteractions:
		if err := s.endSession(ctx, &session, models.SessionStatusEndedByLimit, EndReasonLimit); err != nil {
			return dto.SessionView{}, err
		}
	}

	return s.GetSession(ctx, sessionID)
}

func (s *interviewService) EndByStudent(ctx context.Context, sessionID uint) (dto.SessionView, error) {
	session, err := s.interviews.GetSession(ctx, sessionID)
	if err != nil {
		return dto.SessionView{}, fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}
	if session.IsEnded() {
		return dto.SessionView{}, ErrSessionClosed
	}
	if !session.Interview.AllowStudentEnd {
		return dto.SessionView{}, ErrStudentEndNotAllowed
	}

	if err := s.endSession(ctx, &session, models.SessionStatusEndedByStudent, EndReasonStudent); err != nil {
		return dto.SessionView{}, err
	}

	return s.GetSession(ctx, sessionID)
}

func (s *interviewService) GetSession(ctx context.Context, sessionID uint) (dto.SessionView, error) {
	session, err := s.interviews.GetSession(ctx, sessionID)
	if err != nil {
		return dto.SessionView{}, fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}

	return dto.NewSessionView(session, true), nil
}

// RequestEvaluation re-runs the evaluation pass, for example after a
// previous attempt ended in error.
func (s *interviewService) RequestEvaluation(ctx context.Context, sessionID uint) error {
	session, err := s.interviews.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}
	if !session.AwaitsEvaluation() && session.Status != models.SessionStatusError {
		return fmt.Errorf("session %d is not awaiting evaluation", sessionID)
	}

	return s.scheduleEvaluation(ctx, session)
}

// endSession closes the conversation and queues the evaluation job.
func (s *interviewService) endSession(ctx context.Context, session *models.InterviewSession, status, reason string) error {
	now := s.now()
	session.Status = status
	session.EndReason = reason
	session.EndedAt = &now
	session.LastActivityAt = now
	if err := s.interviews.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("failed to close session %d: %w", session.ID, err)
	}

	s.notifier.Emit(ctx, UserRoom(session.UserID), EventInterviewEnded, dto.InterviewEndedEvent{
		SessionID: session.ID,
		Reason:    reason,
	})

	s.logger.Info().
		Uint("session_id", session.ID).
		Str("reason", reason).
		Msg("interview session ended")

	return s.scheduleEvaluation(ctx, *session)
}

func (s *interviewService) scheduleEvaluation(ctx context.Context, session models.InterviewSession) error {
	if len(session.Interview.Criteria) == 0 {
		// Nothing to score; the session completes immediately.
		session.Status = models.SessionStatusCompleted
		if err := s.interviews.UpdateSession(ctx, &session); err != nil {
			return fmt.Errorf("failed to complete session %d: %w", session.ID, err)
		}
		return nil
	}

	err := s.dispatcher.Submit(dispatch.KindEvaluation, session.ID,
		func(jobCtx context.Context) error {
			return s.evaluate(jobCtx, session.ID)
		},
		func(jobCtx context.Context, jobErr error) {
			s.failEvaluation(jobCtx, session.ID, jobErr)
		},
	)
	if err != nil {
		return err
	}

	s.notifier.Emit(ctx, UserRoom(session.UserID), EventEvaluationStarted, dto.EvaluationStartedEvent{
		SessionID:     session.ID,
		TotalCriteria: len(session.Interview.Criteria),
	})

	return nil
}

// evaluate is the background job: one model call over the full transcript,
// scored against every criterion. Replies that reference unknown criteria
// are dropped; scores are clamped into [0, max_points].
func (s *interviewService) evaluate(ctx context.Context, sessionID uint) error {
	session, err := s.interviews.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to reload session %d: %w", sessionID, err)
	}

	session.Status = models.SessionStatusEvaluating
	if err := s.interviews.UpdateSession(ctx, &session); err != nil {
		return fmt.Errorf("failed to mark session evaluating: %w", err)
	}

	interview := session.Interview

	type criterionSpec struct {
		ID          uint    `json:"criterion_id"`
		Name        string  `json:"name"`
		Description string  `json:"description,omitempty"`
		Hints       string  `json:"hints,omitempty"`
		MaxPoints   float64 `json:"max_points"`
	}
	specs := make([]criterionSpec, 0, len(interview.Criteria))
	byID := make(map[uint]models.EvaluationCriterion, len(interview.Criteria))
	for _, criterion := range interview.Criteria {
		specs = append(specs, criterionSpec{
			ID:          criterion.ID,
			Name:        criterion.Name,
			Description: criterion.Description,
			Hints:       criterion.Hints,
			MaxPoints:   criterion.MaxPoints,
		})
		byID[criterion.ID] = criterion
	}
	criteriaJSON, err := json.Marshal(specs)
	if err != nil {
		return fmt.Errorf("failed to encode criteria: %w", err)
	}

	prompt := ai.BuildEvaluationPrompt(ai.EvaluationPromptInput{
		InterviewTitle:   interview.Title,
		Description:      interview.Description,
		StudentObjective: interview.StudentObjective,
		PersonaName:      interview.PersonaName,
		Transcript:       renderTranscript(session.Messages, interview.PersonaName),
		CriteriaJSON:     string(criteriaJSON),
	})

	content, err := s.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{{Role: ai.RoleUser, Content: prompt}},
	})
	if err != nil {
		return fmt.Errorf("failed to get evaluation: %w", err)
	}

	var result struct {
		Scores []struct {
			CriterionID uint    `json:"criterion_id"`
			Score       float64 `json:"score"`
			Feedback    string  `json:"feedback"`
		} `json:"scores"`
		Summary string `json:"summary"`
	}
	if err := ai.DecodeJSON(content, &result); err != nil {
		return fmt.Errorf("unusable evaluation reply: %w", err)
	}

	// Idempotent over retries.
	if err := s.interviews.DeleteCriterionScores(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to clear previous scores: %w", err)
	}

	var total float64
	saved := 0
	for _, entry := range result.Scores {
		criterion, known := byID[entry.CriterionID]
		if !known {
			s.logger.Warn().
				Uint("session_id", session.ID).
				Uint("criterion_id", entry.CriterionID).
				Msg("dropping score for unknown criterion")
			continue
		}

		score := clamp(entry.Score, 0, criterion.MaxPoints)
		record := models.CriterionScore{
			SessionID:   session.ID,
			CriterionID: criterion.ID,
			Score:       score,
			MaxScore:    criterion.MaxPoints,
			Feedback:    entry.Feedback,
		}
		if err := s.interviews.SaveCriterionScore(ctx, &record); err != nil {
			return fmt.Errorf("failed to persist criterion score: %w", err)
		}

		total += score
		saved++

		s.notifier.Emit(ctx, UserRoom(session.UserID), EventEvaluationProgress, dto.EvaluationProgressEvent{
			SessionID: session.ID,
			Progress:  saved,
			Total:     len(interview.Criteria),
			Criterion: criterion.Name,
			Score:     score,
			MaxScore:  criterion.MaxPoints,
		})
	}

	session.TotalScore = total
	session.MaxScore = interview.MaxScore()
	session.Summary = result.Summary
	session.Status = models.SessionStatusCompleted
	if err := s.interviews.UpdateSession(ctx, &session); err != nil {
		return fmt.Errorf("failed to finalize session %d: %w", session.ID, err)
	}

	s.notifier.Emit(ctx, UserRoom(session.UserID), EventEvaluationCompleted, dto.EvaluationCompletedEvent{
		SessionID:  session.ID,
		TotalScore: total,
		MaxScore:   session.MaxScore,
		Percentage: percentage(total, session.MaxScore),
	})

	s.logger.Info().
		Uint("session_id", session.ID).
		Float64("total_score", total).
		Msg("evaluation completed")

	return nil
}

func (s *interviewService) failEvaluation(ctx context.Context, sessionID uint, jobErr error) {
	session, err := s.interviews.GetSession(ctx, sessionID)
	if err != nil {
		s.logger.Error().Err(err).Uint("session_id", sessionID).Msg("failed to load session for error state")
		return
	}

	session.Status = models.SessionStatusError
	if err := s.interviews.UpdateSession(ctx, &session); err != nil {
		s.logger.Error().Err(err).Uint("session_id", sessionID).Msg("failed to persist evaluation error state")
		return
	}

	s.notifier.Emit(ctx, UserRoom(session.UserID), EventEvaluationError, dto.EvaluationErrorEvent{
		SessionID: session.ID,
		Error:     jobErr.Error(),
	})
}

// buildContext selects the conversation slice replayed to the model. It
// walks from the newest message backwards until the token budget is spent,
// so older turns fall away first.
func (s *interviewService) buildContext(messages []models.InterviewMessage) []ai.Message {
	budget := contextTokenBudget
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := messages[i].TokenCount
		if cost == 0 {
			cost = s.tokens.Estimate(messages[i].Content)
		}
		if cost > budget {
			break
		}
		budget -= cost
		start = i
	}

	// The latest student message is always included, whatever its size.
	if start == len(messages) && len(messages) > 0 {
		start = len(messages) - 1
	}

	window := messages[start:]
	out := make([]ai.Message, 0, len(window))
	for _, msg := range window {
		role := ai.RoleUser
		if msg.Role == models.MessageRoleAssistant {
			role = ai.RoleAssistant
		}
		out = append(out, ai.Message{Role: role, Content: msg.Content})
	}
	return out
}

func renderTranscript(messages []models.InterviewMessage, personaName string) string {
	if personaName == "" {
		personaName = "Interviewer"
	}

	b := strings.Builder{}
	for _, msg := range messages {
		speaker := "Student"
		if msg.Role == models.MessageRoleAssistant {
			speaker = personaName
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, msg.Content)
	}
	return b.String()
}

func stripMarker(content string) string {
	return strings.TrimSpace(strings.ReplaceAll(content, ai.TerminationMarker, ""))
}
