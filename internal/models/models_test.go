package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscriptionActive(t *testing.T) {
	now := time.Date(2026, time.March, 15, 14, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	tomorrow := now.AddDate(0, 0, 1)
	todayMorning := time.Date(2026, time.March, 15, 2, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		tenant Tenant
		want   bool
	}{
		{"active without expiry", Tenant{IsActive: true}, true},
		{"deactivated", Tenant{IsActive: false}, false},
		{"expired yesterday", Tenant{IsActive: true, SubscriptionExpiresAt: &yesterday}, false},
		{"expires tomorrow", Tenant{IsActive: true, SubscriptionExpiresAt: &tomorrow}, true},
		// Expiry is compared against the start of the current day, so a
		// subscription stays valid through its last calendar day.
		{"expires today", Tenant{IsActive: true, SubscriptionExpiresAt: &todayMorning}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.tenant.SubscriptionActive(now))
		})
	}
}

func TestQuizResponseIsTerminal(t *testing.T) {
	require.False(t, QuizResponse{GradingStatus: GradingStatusPending}.IsTerminal())
	require.False(t, QuizResponse{GradingStatus: GradingStatusGrading}.IsTerminal())
	require.True(t, QuizResponse{GradingStatus: GradingStatusCompleted}.IsTerminal())
	require.True(t, QuizResponse{GradingStatus: GradingStatusError}.IsTerminal())
}

func TestSessionAwaitsEvaluation(t *testing.T) {
	ended := []string{
		SessionStatusEndedByStudent,
		SessionStatusEndedByAI,
		SessionStatusEndedByLimit,
		SessionStatusEndedByTimeout,
	}
	for _, status := range ended {
		require.True(t, InterviewSession{Status: status}.AwaitsEvaluation(), status)
		require.True(t, InterviewSession{Status: status}.IsEnded(), status)
	}

	require.False(t, InterviewSession{Status: SessionStatusInProgress}.AwaitsEvaluation())
	require.False(t, InterviewSession{Status: SessionStatusInProgress}.IsEnded())
	require.False(t, InterviewSession{Status: SessionStatusEvaluating}.AwaitsEvaluation())
	require.False(t, InterviewSession{Status: SessionStatusCompleted}.AwaitsEvaluation())
	require.False(t, InterviewSession{Status: SessionStatusError}.AwaitsEvaluation())
}

func TestInterviewMaxScore(t *testing.T) {
	interview := Interview{Criteria: []EvaluationCriterion{
		{MaxPoints: 5},
		{MaxPoints: 2.5},
		{MaxPoints: 10},
	}}
	require.Equal(t, 17.5, interview.MaxScore())
	require.Zero(t, Interview{}.MaxScore())
}
