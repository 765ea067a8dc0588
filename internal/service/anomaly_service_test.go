package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/degun-osint/brainnotfound-go-api/internal/dispatch"
	"github.com/degun-osint/brainnotfound-go-api/internal/dto"
	"github.com/degun-osint/brainnotfound-go-api/internal/models"
)

func newAnomalyForTest(t *testing.T, quiz models.Quiz, completer *scriptedCompleter) (*anomalyService, *fakeResponseRepo, *fakeQuizRepo) {
	t.Helper()

	responses := newFakeResponseRepo(quiz)
	quizzes := newFakeQuizRepo(quiz)
	quota, _ := newQuotaForTest(models.Tenant{ID: 1, IsActive: true}, nil)

	dispatcher := dispatch.New(1, testLogger())
	dispatcher.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = dispatcher.Shutdown(ctx)
	})

	svc := NewAnomalyService(responses, quizzes, completer, dispatcher, quota, testLogger()).(*anomalyService)
	return svc, responses, quizzes
}

func seedResponse(t *testing.T, responses *fakeResponseRepo, quiz models.Quiz, userID uint, times []int, scores []float64) uint {
	t.Helper()

	started := time.Now().Add(-30 * time.Minute)
	response := models.QuizResponse{
		QuizID:        quiz.ID,
		UserID:        userID,
		StartedAt:     &started,
		SubmittedAt:   time.Now(),
		GradingStatus: models.GradingStatusCompleted,
	}
	for i, question := range quiz.Questions {
		answer := models.Answer{
			QuestionID:       question.ID,
			Score:            scores[i],
			MaxScore:         question.Points,
			TimeSpentSeconds: times[i],
			AnswerText:       "an answer",
		}
		response.TotalScore += scores[i]
		response.MaxScore += question.Points
		response.Answers = append(response.Answers, answer)
	}
	require.NoError(t, responses.Create(context.Background(), &response))
	return response.ID
}

func TestResponseStatsAggregates(t *testing.T) {
	quiz := testQuiz(t)
	svc, responses, _ := newAnomalyForTest(t, quiz, &scriptedCompleter{})

	responseID := seedResponse(t, responses, quiz, 7, []int{30, 60, 90}, []float64{2, 4, 3})

	stats, err := svc.ResponseStats(context.Background(), responseID)
	require.NoError(t, err)
	require.Equal(t, quiz.Title, stats.QuizTitle)
	require.Len(t, stats.Questions, 3)
	require.Equal(t, 60.0, stats.AvgTimePerQuestion)
	require.Equal(t, 30, stats.MinTimeSeconds)
	require.Equal(t, 90, stats.MaxTimeSeconds)
	require.Equal(t, 9.0, stats.TotalScore)
	require.NotNil(t, stats.Questions[0].AnswerCorrect)
	require.True(t, *stats.Questions[0].AnswerCorrect)
	require.Positive(t, stats.Questions[1].AnswerLength)
}

func TestHeuristicFindingsFlagFastAnswers(t *testing.T) {
	stats := dto.ResponseStats{
		TotalTimeMinutes: 0.2,
		Questions: []dto.QuestionStat{
			{Number: 1, Type: models.QuestionTypeChoice, TimeSpentSeconds: 1},
			{Number: 2, Type: models.QuestionTypeOpen, TimeSpentSeconds: 4},
			{Number: 3, Type: models.QuestionTypeOpen, TimeSpentSeconds: 120},
		},
	}

	findings := heuristicFindings(stats)

	types := make(map[string]int)
	for _, finding := range findings {
		types[finding.Type]++
	}
	require.Equal(t, 1, types["implausible_total_time"])
	require.Equal(t, 2, types["implausible_answer_time"])
}

func TestAnalyzeResponseMergesHeuristicsWithClassification(t *testing.T) {
	quiz := testQuiz(t)
	completer := &scriptedCompleter{replies: []string{
		`{"risk_level": "medium", "confidence": 0.7, "anomalies": [{"type": "pacing", "detail": "uniform timing"}], "summary": "worth a look"}`,
	}}
	svc, responses, _ := newAnomalyForTest(t, quiz, completer)

	responseID := seedResponse(t, responses, quiz, 7, []int{1, 2, 2}, []float64{2, 5, 5})

	report, err := svc.AnalyzeResponse(context.Background(), responseID)
	require.NoError(t, err)
	require.Equal(t, dto.RiskMedium, report.RiskLevel)
	require.Equal(t, 0.7, report.Confidence)

	types := make([]string, 0, len(report.Anomalies))
	for _, finding := range report.Anomalies {
		types = append(types, finding.Type)
	}
	require.Contains(t, types, "implausible_answer_time")
	require.Contains(t, types, "pacing")

	response, err := responses.GetByID(context.Background(), responseID)
	require.NoError(t, err)
	var persisted dto.AnomalyReport
	require.NoError(t, json.Unmarshal(response.AnomalyReport, &persisted))
	require.Equal(t, dto.RiskMedium, persisted.RiskLevel)
}

func TestAnalyzeResponseDegradesToUnknownRisk(t *testing.T) {
	quiz := testQuiz(t)
	completer := &scriptedCompleter{err: errors.New("model unavailable")}
	svc, responses, _ := newAnomalyForTest(t, quiz, completer)

	responseID := seedResponse(t, responses, quiz, 7, []int{1, 60, 60}, []float64{2, 5, 5})

	report, err := svc.AnalyzeResponse(context.Background(), responseID)
	require.NoError(t, err)
	require.Equal(t, dto.RiskUnknown, report.RiskLevel)
	require.NotEmpty(t, report.Error)
	// Deterministic findings survive the classification failure.
	require.NotEmpty(t, report.Anomalies)
}

func TestAnalyzeResponseRejectsInventedRiskLevel(t *testing.T) {
	quiz := testQuiz(t)
	completer := &scriptedCompleter{replies: []string{
		`{"risk_level": "catastrophic", "confidence": 3.5, "anomalies": [], "summary": "dramatic"}`,
	}}
	svc, responses, _ := newAnomalyForTest(t, quiz, completer)

	responseID := seedResponse(t, responses, quiz, 7, []int{30, 60, 60}, []float64{2, 5, 5})

	report, err := svc.AnalyzeResponse(context.Background(), responseID)
	require.NoError(t, err)
	require.Equal(t, dto.RiskUnknown, report.RiskLevel)
	require.Equal(t, 1.0, report.Confidence)
}

func TestAnalyzeQuizStoresCohortReport(t *testing.T) {
	quiz := testQuiz(t)
	completer := &scriptedCompleter{replies: []string{
		`{"risk_level": "low", "confidence": 0.9, "anomalies": [], "summary": "nothing unusual"}`,
	}}
	svc, responses, quizzes := newAnomalyForTest(t, quiz, completer)

	seedResponse(t, responses, quiz, 7, []int{30, 60, 60}, []float64{2, 5, 5})
	seedResponse(t, responses, quiz, 8, []int{40, 70, 50}, []float64{0, 3, 4})

	require.NoError(t, svc.AnalyzeQuiz(context.Background(), quiz.ID))

	require.Eventually(t, func() bool {
		stored, err := quizzes.GetByID(context.Background(), quiz.ID)
		return err == nil && len(stored.CohortAnalysis) > 0
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := quizzes.GetByID(context.Background(), quiz.ID)
	require.NoError(t, err)

	var report dto.AnomalyReport
	require.NoError(t, json.Unmarshal(stored.CohortAnalysis, &report))
	require.Equal(t, dto.RiskLow, report.RiskLevel)
}

func TestAnalyzeQuizFailureRecordsError(t *testing.T) {
	quiz := testQuiz(t)
	completer := &scriptedCompleter{err: errors.New("model unavailable")}
	svc, responses, quizzes := newAnomalyForTest(t, quiz, completer)

	seedResponse(t, responses, quiz, 7, []int{30, 60, 60}, []float64{2, 5, 5})

	require.NoError(t, svc.AnalyzeQuiz(context.Background(), quiz.ID))

	require.Eventually(t, func() bool {
		stored, err := quizzes.GetByID(context.Background(), quiz.ID)
		return err == nil && len(stored.CohortAnalysis) > 0
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := quizzes.GetByID(context.Background(), quiz.ID)
	require.NoError(t, err)

	var report dto.AnomalyReport
	require.NoError(t, json.Unmarshal(stored.CohortAnalysis, &report))
	require.Equal(t, dto.RiskUnknown, report.RiskLevel)
	require.NotEmpty(t, report.Error)
}
