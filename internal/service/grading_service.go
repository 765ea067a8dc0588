package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/degun-osint/brainnotfound-go-api/internal/dispatch"
	"github.com/degun-osint/brainnotfound-go-api/internal/dto"
	"github.com/degun-osint/brainnotfound-go-api/internal/models"
	"github.com/degun-osint/brainnotfound-go-api/internal/repository"
	"github.com/degun-osint/brainnotfound-go-api/pkg/ai"
)

// Grading event names pushed over the notification channel.
const (
	EventGradingStarted   = "grading_started"
	EventGradingProgress  = "grading_progress"
	EventGradingCompleted = "grading_completed"
	EventGradingError     = "grading_error"
)

// Suspicion floors applied at submission time. Timings below these are
// physically implausible and get flagged in the telemetry for the anomaly
// detector and the review UI.
const (
	minSecondsPerQuestion = 10
	minSecondsChoice      = 3
	minSecondsOpen        = 10
	maxSecurityEvents     = 5
)

// ErrTerminalState is returned when an operation needs a non-terminal
// grading status.
var ErrTerminalState = errors.New("response already in a terminal grading state")

// ErrRegradeNotAllowed is returned when a re-grade is requested for a
// response that has not finished grading yet.
var ErrRegradeNotAllowed = errors.New("response has not reached a terminal state yet")

// GradingService owns the quiz submission and grading pipeline. Choice
// questions are scored synchronously at submission; open questions are
// graded by a background job that streams progress events.
type GradingService interface {
	Submit(ctx context.Context, userID uint, req dto.SubmitQuizRequest) (dto.QuizResponseView, error)
	StartGrading(ctx context.Context, responseID uint) error
	Regrade(ctx context.Context, responseID uint) error
	GetResponse(ctx context.Context, responseID uint) (dto.QuizResponseView, error)
}

type gradingService struct {
	responses  repository.QuizResponseRepository
	quizzes    repository.QuizRepository
	completer  ai.Completer
	dispatcher *dispatch.Dispatcher
	notifier   Notifier
	quota      QuotaService
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
	now        func() time.Time
}

// NewGradingService instantiates the grading pipeline.
func NewGradingService(
	responses repository.QuizResponseRepository,
	quizzes repository.QuizRepository,
	completer ai.Completer,
	dispatcher *dispatch.Dispatcher,
	notifier Notifier,
	quota QuotaService,
	logger zerolog.Logger,
) GradingService {
	return &gradingService{
		responses:  responses,
		quizzes:    quizzes,
		completer:  completer,
		dispatcher: dispatcher,
		notifier:   notifier,
		quota:      quota,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logger.With().Str("component", "grading").Logger(),
		now:        time.Now,
	}
}

func (s *gradingService) Submit(ctx context.Context, userID uint, req dto.SubmitQuizRequest) (dto.QuizResponseView, error) {
	quiz, err := s.quizzes.GetByID(ctx, req.QuizID)
	if err != nil {
		return dto.QuizResponseView{}, fmt.Errorf("failed to load quiz %d: %w", req.QuizID, err)
	}

	now := s.now()
	questionsByID := make(map[uint]models.Question, len(quiz.Questions))
	for _, question := range quiz.Questions {
		questionsByID[question.ID] = question
	}

	response := models.QuizResponse{
		QuizID:        quiz.ID,
		UserID:        userID,
		StartedAt:     req.StartedAt,
		SubmittedAt:   now,
		GradingStatus: models.GradingStatusPending,
	}

	if quiz.TimeLimitMinutes > 0 && req.StartedAt != nil {
		deadline := req.StartedAt.Add(time.Duration(quiz.TimeLimitMinutes) * time.Minute)
		response.IsLate = now.After(deadline)
	}

	var maxScore float64
	for _, submitted := range req.Answers {
		question, ok := questionsByID[submitted.QuestionID]
		if !ok {
			return dto.QuizResponseView{}, fmt.Errorf("question %d does not belong to quiz %d", submitted.QuestionID, quiz.ID)
		}

		answer := models.Answer{
			QuestionID:       question.ID,
			MaxScore:         question.Points,
			TimeSpentSeconds: submitted.TimeSpentSeconds,
			FocusLostCount:   submitted.FocusLostCount,
		}

		switch question.Type {
		case models.QuestionTypeChoice:
			selected, err := json.Marshal(submitted.SelectedOptions)
			if err != nil {
				return dto.QuizResponseView{}, fmt.Errorf("failed to encode selected options: %w", err)
			}
			answer.SelectedOptions = datatypes.JSON(selected)
			if ChoiceCorrect(question, submitted.SelectedOptions) {
				answer.Score = question.Points
			}
			answer.AutoAwarded = true
		default:
			answer.AnswerText = s.sanitizer.Sanitize(submitted.Text)
		}

		maxScore += question.Points
		// The running total reflects every recorded score, so a response
		// polled mid-grading already carries its choice points.
		response.TotalScore += answer.Score
		response.Answers = append(response.Answers, answer)
	}

	response.MaxScore = maxScore

	events := append([]dto.FocusEvent(nil), req.FocusEvents...)
	flags := suspicionFlags(quiz, req, now)
	events = append(events, flags...)
	response.TotalFocusLost = countFocusLost(req)

	if len(events) > 0 {
		encoded, err := json.Marshal(events)
		if err != nil {
			return dto.QuizResponseView{}, fmt.Errorf("failed to encode focus events: %w", err)
		}
		response.FocusEvents = datatypes.JSON(encoded)
	}

	if err := s.responses.Create(ctx, &response); err != nil {
		return dto.QuizResponseView{}, fmt.Errorf("failed to persist response: %w", err)
	}

	s.logger.Info().
		Uint("response_id", response.ID).
		Uint("quiz_id", quiz.ID).
		Int("flags", len(flags)).
		Msg("quiz submitted")

	return dto.NewQuizResponseView(response, true), nil
}

func (s *gradingService) StartGrading(ctx context.Context, responseID uint) error {
	response, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		return fmt.Errorf("failed to load response %d: %w", responseID, err)
	}

	if response.IsTerminal() {
		return ErrTerminalState
	}
	if response.GradingStatus == models.GradingStatusGrading {
		return dispatch.ErrAlreadyProcessing
	}

	pending := openAnswers(response)

	tenantID := response.Quiz.TenantID
	if len(pending) > 0 {
		if err := s.quota.Consume(ctx, tenantID, ActionCorrection); err != nil {
			return err
		}
	}

	response.GradingStatus = models.GradingStatusGrading
	response.GradingProgress = 0
	response.GradingTotal = len(pending)
	if err := s.responses.Update(ctx, &response); err != nil {
		if len(pending) > 0 {
			s.quota.Refund(ctx, tenantID, ActionCorrection)
		}
		return fmt.Errorf("failed to mark response grading: %w", err)
	}

	err = s.dispatcher.Submit(dispatch.KindGrading, response.ID,
		func(jobCtx context.Context) error {
			return s.grade(jobCtx, response.ID)
		},
		func(jobCtx context.Context, jobErr error) {
			s.failGrading(jobCtx, response.ID, jobErr)
		},
	)
	if err != nil {
		response.GradingStatus = models.GradingStatusPending
		if updateErr := s.responses.Update(ctx, &response); updateErr != nil {
			s.logger.Error().Err(updateErr).Uint("response_id", response.ID).Msg("failed to roll back grading status")
		}
		if len(pending) > 0 {
			s.quota.Refund(ctx, tenantID, ActionCorrection)
		}
		return err
	}

	s.emit(ctx, response, EventGradingStarted, dto.GradingStartedEvent{
		ResponseID: response.ID,
		Total:      len(pending),
	})

	return nil
}

// Regrade resets a finished response's AI-graded answers and runs the
// grading job again. Choice scores are deterministic and are kept as is.
func (s *gradingService) Regrade(ctx context.Context, responseID uint) error {
	response, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		return fmt.Errorf("failed to load response %d: %w", responseID, err)
	}

	if !response.IsTerminal() {
		return ErrRegradeNotAllowed
	}

	for i := range response.Answers {
		if response.Answers[i].Question.Type == models.QuestionTypeChoice {
			continue
		}
		response.Answers[i].Score = 0
		response.Answers[i].Feedback = ""
		response.Answers[i].AutoAwarded = false
		if err := s.responses.UpdateAnswer(ctx, &response.Answers[i]); err != nil {
			return fmt.Errorf("failed to reset answer %d: %w", response.Answers[i].ID, err)
		}
	}

	response.GradingStatus = models.GradingStatusPending
	response.GradingProgress = 0
	response.TotalScore = 0
	for _, answer := range response.Answers {
		response.TotalScore += answer.Score
	}
	if err := s.responses.Update(ctx, &response); err != nil {
		return fmt.Errorf("failed to reset response %d: %w", responseID, err)
	}

	return s.StartGrading(ctx, responseID)
}

func (s *gradingService) GetResponse(ctx context.Context, responseID uint) (dto.QuizResponseView, error) {
	response, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		return dto.QuizResponseView{}, fmt.Errorf("failed to load response %d: %w", responseID, err)
	}

	return dto.NewQuizResponseView(response, true), nil
}

// grade is the background job. One AI call per ungraded open answer, with a
// progress event after each item. A malformed model reply zeroes that item
// and grading continues; only infrastructure errors abort the job.
func (s *gradingService) grade(ctx context.Context, responseID uint) error {
	response, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		return fmt.Errorf("failed to reload response %d: %w", responseID, err)
	}

	severity, err := ai.ParseSeverity(response.Quiz.GradingSeverity)
	if err != nil {
		severity = ai.SeverityModerate
	}
	moods := decodeMoods(response.Quiz.GradingMoods)

	pending := openAnswers(response)
	for index, answer := range pending {
		score, feedback, err := s.gradeAnswer(ctx, answer, severity, moods)
		if err != nil {
			return fmt.Errorf("failed to grade answer %d: %w", answer.ID, err)
		}

		answer.Score = score
		answer.Feedback = feedback
		if err := s.responses.UpdateAnswer(ctx, answer); err != nil {
			return fmt.Errorf("failed to persist answer %d: %w", answer.ID, err)
		}

		response.GradingProgress = index + 1
		if err := s.responses.Update(ctx, &response); err != nil {
			return fmt.Errorf("failed to persist grading progress: %w", err)
		}

		s.emit(ctx, response, EventGradingProgress, dto.GradingProgressEvent{
			ResponseID: response.ID,
			Progress:   index + 1,
			Total:      len(pending),
			Question:   answer.Question.Text,
			Score:      score,
			MaxScore:   answer.MaxScore,
		})
	}

	// Reload so the total includes the freshly persisted answer scores.
	response, err = s.responses.GetByID(ctx, responseID)
	if err != nil {
		return fmt.Errorf("failed to reload response %d: %w", responseID, err)
	}

	var total float64
	for _, answer := range response.Answers {
		total += answer.Score
	}

	response.TotalScore = total
	response.GradingStatus = models.GradingStatusCompleted
	if err := s.responses.Update(ctx, &response); err != nil {
		return fmt.Errorf("failed to finalize response %d: %w", responseID, err)
	}

	s.emit(ctx, response, EventGradingCompleted, dto.GradingCompletedEvent{
		ResponseID: response.ID,
		TotalScore: total,
		MaxScore:   response.MaxScore,
		Percentage: percentage(total, response.MaxScore),
	})

	s.logger.Info().
		Uint("response_id", response.ID).
		Float64("total_score", total).
		Msg("grading completed")

	return nil
}

func (s *gradingService) gradeAnswer(ctx context.Context, answer *models.Answer, severity ai.Severity, moods []ai.Mood) (float64, string, error) {
	if answer.AnswerText == "" {
		return 0, "No answer was provided.", nil
	}

	// Without a reference answer there is nothing to grade against.
	if answer.Question.ExpectedAnswer == "" {
		answer.AutoAwarded = true
		return answer.MaxScore, "Full credit awarded: this question has no reference answer.", nil
	}

	prompt := ai.BuildGradingPrompt(ai.GradingPromptInput{
		Question:       answer.Question.Text,
		ExpectedAnswer: answer.Question.ExpectedAnswer,
		StudentAnswer:  answer.AnswerText,
		MaxPoints:      answer.MaxScore,
		Severity:       severity,
		Moods:          moods,
	})

	content, err := s.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{{Role: ai.RoleUser, Content: prompt}},
	})
	if err != nil {
		return 0, "", err
	}

	var result struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	if err := ai.DecodeJSON(content, &result); err != nil {
		s.logger.Warn().Err(err).Uint("answer_id", answer.ID).Msg("unusable grading reply, scoring zero")
		return 0, "This answer could not be graded automatically. A teacher will review it.", nil
	}

	return clamp(result.Score, 0, answer.MaxScore), result.Feedback, nil
}

// failGrading is the dispatcher finalizer: it forces the response into the
// error state so it never sticks in "grading".
func (s *gradingService) failGrading(ctx context.Context, responseID uint, jobErr error) {
	response, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		s.logger.Error().Err(err).Uint("response_id", responseID).Msg("failed to load response for error state")
		return
	}

	response.GradingStatus = models.GradingStatusError
	if err := s.responses.Update(ctx, &response); err != nil {
		s.logger.Error().Err(err).Uint("response_id", responseID).Msg("failed to persist grading error state")
		return
	}

	s.emit(ctx, response, EventGradingError, dto.GradingErrorEvent{
		ResponseID: response.ID,
		Error:      jobErr.Error(),
	})
}

func (s *gradingService) emit(ctx context.Context, response models.QuizResponse, event string, payload interface{}) {
	s.notifier.Emit(ctx, UserRoom(response.UserID), event, payload)
	s.notifier.Emit(ctx, ResponseRoom(response.ID), event, payload)
}

// ChoiceCorrect applies all-or-nothing set equality between the selected
// option indices and the question's correct indices. Order and duplicates
// are ignored.
func ChoiceCorrect(question models.Question, selected []int) bool {
	var correct []int
	if len(question.CorrectAnswers) > 0 {
		if err := json.Unmarshal(question.CorrectAnswers, &correct); err != nil {
			return false
		}
	}

	correctSet := make(map[int]struct{}, len(correct))
	for _, index := range correct {
		correctSet[index] = struct{}{}
	}
	selectedSet := make(map[int]struct{}, len(selected))
	for _, index := range selected {
		selectedSet[index] = struct{}{}
	}

	if len(correctSet) != len(selectedSet) {
		return false
	}
	for index := range correctSet {
		if _, ok := selectedSet[index]; !ok {
			return false
		}
	}

	return true
}

func openAnswers(response models.QuizResponse) []*models.Answer {
	var pending []*models.Answer
	for i := range response.Answers {
		if response.Answers[i].Question.Type != models.QuestionTypeChoice {
			pending = append(pending, &response.Answers[i])
		}
	}
	return pending
}

func decodeMoods(raw datatypes.JSON) []ai.Mood {
	if len(raw) == 0 {
		return nil
	}

	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}

	var moods []ai.Mood
	for _, value := range values {
		if mood, err := ai.ParseMood(value); err == nil {
			moods = append(moods, mood)
		}
	}
	return moods
}

// suspicionFlags applies the server-side plausibility floors over the
// submitted telemetry.
func suspicionFlags(quiz models.Quiz, req dto.SubmitQuizRequest, now time.Time) []dto.FocusEvent {
	var flags []dto.FocusEvent

	if req.StartedAt != nil && len(req.Answers) > 0 {
		elapsed := int(now.Sub(*req.StartedAt).Seconds())
		floor := minSecondsPerQuestion * len(req.Answers)
		if elapsed >= 0 && elapsed < floor {
			flags = append(flags, dto.FocusEvent{
				EventType: "server_suspicious_flag",
				Detail:    fmt.Sprintf("quiz finished in %ds, below the %ds plausibility floor", elapsed, floor),
			})
		}
	}

	questionTypes := make(map[uint]string, len(quiz.Questions))
	for _, question := range quiz.Questions {
		questionTypes[question.ID] = question.Type
	}

	for _, answer := range req.Answers {
		if answer.TimeSpentSeconds <= 0 {
			continue
		}
		floor := minSecondsOpen
		if questionTypes[answer.QuestionID] == models.QuestionTypeChoice {
			floor = minSecondsChoice
		}
		if answer.TimeSpentSeconds < floor {
			flags = append(flags, dto.FocusEvent{
				QuestionID: answer.QuestionID,
				EventType:  "server_suspicious_flag",
				Detail:     fmt.Sprintf("answered in %ds, below the %ds floor", answer.TimeSpentSeconds, floor),
			})
		}
	}

	securityEvents := 0
	for _, event := range req.FocusEvents {
		if event.EventType != "" && event.EventType != "focus_lost" {
			securityEvents++
		}
	}
	if securityEvents > maxSecurityEvents {
		flags = append(flags, dto.FocusEvent{
			EventType: "server_suspicious_flag",
			Detail:    fmt.Sprintf("%d security events recorded during the attempt", securityEvents),
		})
	}

	return flags
}

func countFocusLost(req dto.SubmitQuizRequest) int {
	total := 0
	for _, event := range req.FocusEvents {
		if event.EventType == "focus_lost" {
			total++
		}
	}
	for _, answer := range req.Answers {
		total += answer.FocusLostCount
	}
	return total
}

func clamp(value, low, high float64) float64 {
	return math.Min(math.Max(value, low), high)
}

func percentage(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return math.Round(score/max*1000) / 10
}
