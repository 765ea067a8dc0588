package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/degun-osint/brainnotfound-go-api/internal/dispatch"
	"github.com/degun-osint/brainnotfound-go-api/internal/dto"
	"github.com/degun-osint/brainnotfound-go-api/internal/models"
	"github.com/degun-osint/brainnotfound-go-api/internal/repository"
	"github.com/degun-osint/brainnotfound-go-api/pkg/ai"
)

// AnomalyService builds telemetry statistics and classifies them for signs
// of cheating. Reports are advisory and never change a score.
type AnomalyService interface {
	ResponseStats(ctx context.Context, responseID uint) (dto.ResponseStats, error)
	AnalyzeResponse(ctx context.Context, responseID uint) (dto.AnomalyReport, error)
	AnalyzeQuiz(ctx context.Context, quizID uint) error
}

type anomalyService struct {
	responses  repository.QuizResponseRepository
	quizzes    repository.QuizRepository
	completer  ai.Completer
	dispatcher *dispatch.Dispatcher
	quota      QuotaService
	logger     zerolog.Logger
}

// NewAnomalyService instantiates the anomaly detector.
func NewAnomalyService(
	responses repository.QuizResponseRepository,
	quizzes repository.QuizRepository,
	completer ai.Completer,
	dispatcher *dispatch.Dispatcher,
	quota QuotaService,
	logger zerolog.Logger,
) AnomalyService {
	return &anomalyService{
		responses:  responses,
		quizzes:    quizzes,
		completer:  completer,
		dispatcher: dispatcher,
		quota:      quota,
		logger:     logger.With().Str("component", "anomaly").Logger(),
	}
}

// ResponseStats assembles the telemetry statistics for one submission.
func (s *anomalyService) ResponseStats(ctx context.Context, responseID uint) (dto.ResponseStats, error) {
	response, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		return dto.ResponseStats{}, fmt.Errorf("failed to load response %d: %w", responseID, err)
	}

	return buildResponseStats(response), nil
}

// AnalyzeResponse classifies one submission. The deterministic heuristics
// always run; the AI classification is layered on top and a failed or
// unusable reply degrades to an unknown-risk report instead of an error.
// The report is persisted on the response.
func (s *anomalyService) AnalyzeResponse(ctx context.Context, responseID uint) (dto.AnomalyReport, error) {
	response, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		return dto.AnomalyReport{}, fmt.Errorf("failed to load response %d: %w", responseID, err)
	}

	stats := buildResponseStats(response)
	heuristics := heuristicFindings(stats)

	report := s.classify(ctx, stats, heuristics)

	encoded, err := json.Marshal(report)
	if err != nil {
		return dto.AnomalyReport{}, fmt.Errorf("failed to encode report: %w", err)
	}
	response.AnomalyReport = datatypes.JSON(encoded)
	if err := s.responses.Update(ctx, &response); err != nil {
		return dto.AnomalyReport{}, fmt.Errorf("failed to persist report: %w", err)
	}

	return report, nil
}

func (s *anomalyService) classify(ctx context.Context, stats dto.ResponseStats, heuristics []dto.AnomalyFinding) dto.AnomalyReport {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return unknownReport(heuristics, err)
	}

	content, err := s.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{{Role: ai.RoleUser, Content: ai.BuildAnomalyPrompt(string(statsJSON))}},
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint("response_id", stats.ResponseID).Msg("classification call failed")
		return unknownReport(heuristics, err)
	}

	var report dto.AnomalyReport
	if err := ai.DecodeJSON(content, &report); err != nil {
		s.logger.Warn().Err(err).Uint("response_id", stats.ResponseID).Msg("unusable classification reply")
		return unknownReport(heuristics, err)
	}

	switch report.RiskLevel {
	case dto.RiskLow, dto.RiskMedium, dto.RiskHigh:
	default:
		report.RiskLevel = dto.RiskUnknown
	}
	report.Confidence = clamp(report.Confidence, 0, 1)
	report.Anomalies = append(heuristics, report.Anomalies...)

	return report
}

// AnalyzeQuiz queues the class-wide analysis. The result lands on the
// quiz's cohort analysis field.
func (s *anomalyService) AnalyzeQuiz(ctx context.Context, quizID uint) error {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		return fmt.Errorf("failed to load quiz %d: %w", quizID, err)
	}

	if err := s.quota.Consume(ctx, quiz.TenantID, ActionClassAnalysis); err != nil {
		return err
	}

	err = s.dispatcher.Submit(dispatch.KindAnalysis, quiz.ID,
		func(jobCtx context.Context) error {
			return s.analyzeCohort(jobCtx, quiz.ID)
		},
		func(jobCtx context.Context, jobErr error) {
			s.failCohort(jobCtx, quiz.ID, jobErr)
		},
	)
	if err != nil {
		s.quota.Refund(ctx, quiz.TenantID, ActionClassAnalysis)
		return err
	}

	return nil
}

func (s *anomalyService) analyzeCohort(ctx context.Context, quizID uint) error {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		return fmt.Errorf("failed to reload quiz %d: %w", quizID, err)
	}

	responses, err := s.responses.ListByQuiz(ctx, quizID)
	if err != nil {
		return fmt.Errorf("failed to list responses for quiz %d: %w", quizID, err)
	}
	if len(responses) == 0 {
		return fmt.Errorf("quiz %d has no submissions to analyse", quizID)
	}

	stats := buildCohortStats(quiz, responses)
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode cohort stats: %w", err)
	}

	content, err := s.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{{Role: ai.RoleUser, Content: ai.BuildCohortAnomalyPrompt(string(statsJSON))}},
	})
	if err != nil {
		return fmt.Errorf("failed to classify cohort: %w", err)
	}

	var report dto.AnomalyReport
	if err := ai.DecodeJSON(content, &report); err != nil {
		return fmt.Errorf("unusable cohort classification reply: %w", err)
	}
	report.Confidence = clamp(report.Confidence, 0, 1)

	encoded, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode cohort report: %w", err)
	}
	quiz.CohortAnalysis = datatypes.JSON(encoded)
	if err := s.quizzes.Update(ctx, &quiz); err != nil {
		return fmt.Errorf("failed to persist cohort report: %w", err)
	}

	s.logger.Info().Uint("quiz_id", quiz.ID).Str("risk", report.RiskLevel).Msg("cohort analysis completed")
	return nil
}

func (s *anomalyService) failCohort(ctx context.Context, quizID uint, jobErr error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		s.logger.Error().Err(err).Uint("quiz_id", quizID).Msg("failed to load quiz for error report")
		return
	}

	report := dto.AnomalyReport{
		RiskLevel: dto.RiskUnknown,
		Summary:   "The class-wide analysis could not be completed.",
		Error:     jobErr.Error(),
	}
	encoded, err := json.Marshal(report)
	if err != nil {
		return
	}
	quiz.CohortAnalysis = datatypes.JSON(encoded)
	if err := s.quizzes.Update(ctx, &quiz); err != nil {
		s.logger.Error().Err(err).Uint("quiz_id", quizID).Msg("failed to persist cohort error report")
	}
}

func unknownReport(heuristics []dto.AnomalyFinding, cause error) dto.AnomalyReport {
	return dto.AnomalyReport{
		RiskLevel: dto.RiskUnknown,
		Anomalies: heuristics,
		Summary:   "The AI classification was unavailable; only deterministic checks were applied.",
		Error:     cause.Error(),
	}
}

// heuristicFindings applies the deterministic plausibility checks over the
// assembled statistics. These mirror the floors applied at submission.
func heuristicFindings(stats dto.ResponseStats) []dto.AnomalyFinding {
	var findings []dto.AnomalyFinding

	questionCount := len(stats.Questions)
	if questionCount > 0 {
		totalSeconds := int(stats.TotalTimeMinutes * 60)
		floor := minSecondsPerQuestion * questionCount
		if totalSeconds > 0 && totalSeconds < floor {
			findings = append(findings, dto.AnomalyFinding{
				Type:   "implausible_total_time",
				Detail: fmt.Sprintf("whole quiz finished in %ds for %d questions", totalSeconds, questionCount),
			})
		}
	}

	for _, question := range stats.Questions {
		if question.TimeSpentSeconds <= 0 {
			continue
		}
		floor := minSecondsOpen
		if question.Type == models.QuestionTypeChoice {
			floor = minSecondsChoice
		}
		if question.TimeSpentSeconds < floor {
			findings = append(findings, dto.AnomalyFinding{
				Type:   "implausible_answer_time",
				Detail: fmt.Sprintf("question %d answered in %ds", question.Number, question.TimeSpentSeconds),
			})
		}
	}

	securityEvents := 0
	for _, event := range stats.FocusEvents {
		if event.EventType != "" && event.EventType != "focus_lost" {
			securityEvents++
		}
	}
	if securityEvents > maxSecurityEvents {
		findings = append(findings, dto.AnomalyFinding{
			Type:   "security_events",
			Detail: fmt.Sprintf("%d security events recorded during the attempt", securityEvents),
		})
	}

	return findings
}

func buildResponseStats(response models.QuizResponse) dto.ResponseStats {
	stats := dto.ResponseStats{
		ResponseID:     response.ID,
		QuizTitle:      response.Quiz.Title,
		TotalFocusLost: response.TotalFocusLost,
		TotalScore:     response.TotalScore,
		MaxScore:       response.MaxScore,
	}

	if len(response.FocusEvents) > 0 {
		var events []dto.FocusEvent
		if err := json.Unmarshal(response.FocusEvents, &events); err == nil {
			stats.FocusEvents = events
		}
	}

	if response.StartedAt != nil {
		stats.TotalTimeMinutes = math.Round(response.SubmittedAt.Sub(*response.StartedAt).Minutes()*10) / 10
	}

	positions := make(map[uint]int, len(response.Quiz.Questions))
	for i, question := range response.Quiz.Questions {
		positions[question.ID] = i + 1
	}

	totalTime := 0
	minTime := 0
	maxTime := 0
	for i, answer := range response.Answers {
		question := answer.Question
		stat := dto.QuestionStat{
			QuestionID:       question.ID,
			Number:           positions[question.ID],
			Type:             question.Type,
			Text:             question.Text,
			Points:           question.Points,
			TimeSpentSeconds: answer.TimeSpentSeconds,
			FocusLostCount:   answer.FocusLostCount,
			Score:            answer.Score,
			MaxScore:         answer.MaxScore,
		}
		if question.Type == models.QuestionTypeChoice {
			correct := answer.Score >= answer.MaxScore && answer.MaxScore > 0
			stat.AnswerCorrect = &correct
		} else {
			stat.AnswerLength = len(answer.AnswerText)
		}

		totalTime += answer.TimeSpentSeconds
		if i == 0 || answer.TimeSpentSeconds < minTime {
			minTime = answer.TimeSpentSeconds
		}
		if answer.TimeSpentSeconds > maxTime {
			maxTime = answer.TimeSpentSeconds
		}

		stats.Questions = append(stats.Questions, stat)
	}

	if len(response.Answers) > 0 {
		stats.AvgTimePerQuestion = math.Round(float64(totalTime)/float64(len(response.Answers))*10) / 10
		stats.MinTimeSeconds = minTime
		stats.MaxTimeSeconds = maxTime
	}

	if stats.TotalTimeMinutes == 0 && totalTime > 0 {
		stats.TotalTimeMinutes = math.Round(float64(totalTime)/60*10) / 10
	}

	return stats
}

func buildCohortStats(quiz models.Quiz, responses []models.QuizResponse) dto.CohortStats {
	stats := dto.CohortStats{
		QuizID:       quiz.ID,
		QuizTitle:    quiz.Title,
		StudentCount: len(responses),
	}

	type questionAgg struct {
		times  []float64
		scores []float64
		focus  int
	}
	aggregates := make(map[uint]*questionAgg, len(quiz.Questions))
	for _, question := range quiz.Questions {
		aggregates[question.ID] = &questionAgg{}
	}

	var totalDuration, totalScorePercent float64
	for _, response := range responses {
		duration := 0
		for _, answer := range response.Answers {
			duration += answer.TimeSpentSeconds
			if agg, ok := aggregates[answer.QuestionID]; ok {
				agg.times = append(agg.times, float64(answer.TimeSpentSeconds))
				agg.scores = append(agg.scores, answer.Score)
				agg.focus += answer.FocusLostCount
			}
		}

		scorePercent := percentage(response.TotalScore, response.MaxScore)
		totalDuration += float64(duration)
		totalScorePercent += scorePercent
		stats.TotalFocusEvents += response.TotalFocusLost

		stats.Students = append(stats.Students, dto.CohortStudentStat{
			ResponseID:           response.ID,
			UserID:               response.UserID,
			TotalDurationSeconds: duration,
			ScorePercent:         scorePercent,
			FocusLost:            response.TotalFocusLost,
		})
	}

	stats.AvgDurationMinutes = math.Round(totalDuration/float64(len(responses))/60*10) / 10
	stats.AvgScorePercent = math.Round(totalScorePercent/float64(len(responses))*10) / 10

	for i, question := range quiz.Questions {
		agg := aggregates[question.ID]
		stats.Questions = append(stats.Questions, dto.CohortQuestionStat{
			QuestionID:  question.ID,
			Number:      i + 1,
			Type:        question.Type,
			Text:        question.Text,
			AvgTime:     math.Round(mean(agg.times)*10) / 10,
			StdTime:     math.Round(stddev(agg.times)*10) / 10,
			AvgScore:    math.Round(mean(agg.scores)*100) / 100,
			FocusEvents: agg.focus,
		})
	}

	return stats
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - avg) * (v - avg)
	}
	return math.Sqrt(sum / float64(len(values)))
}
