package ai

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var errTest = errors.New("test failure")

func TestParseSeverity(t *testing.T) {
	cases := []struct {
		input   string
		want    Severity
		wantErr bool
	}{
		{"gentle", SeverityGentle, false},
		{"MODERATE", SeverityModerate, false},
		{" strict ", SeverityStrict, false},
		{"", SeverityModerate, false},
		{"brutal", "", true},
	}
	for _, tc := range cases {
		got, err := ParseSeverity(tc.input)
		if tc.wantErr {
			require.Error(t, err, tc.input)
			continue
		}
		require.NoError(t, err, tc.input)
		require.Equal(t, tc.want, got)
	}
}

func TestParseMood(t *testing.T) {
	got, err := ParseMood("Jovial")
	require.NoError(t, err)
	require.Equal(t, MoodJovial, got)

	got, err = ParseMood("")
	require.NoError(t, err)
	require.Equal(t, MoodNeutral, got)

	_, err = ParseMood("furious")
	require.Error(t, err)
}

func TestBuildGradingPromptIncludesPolicyAndBounds(t *testing.T) {
	prompt := BuildGradingPrompt(GradingPromptInput{
		Question:       "Explain DNS",
		ExpectedAnswer: "Name resolution",
		StudentAnswer:  "It maps names to addresses",
		MaxPoints:      5,
		Severity:       SeverityStrict,
		Moods:          []Mood{MoodEncouraging},
	})

	require.Contains(t, prompt, "Explain DNS")
	require.Contains(t, prompt, "Name resolution")
	require.Contains(t, prompt, severityInstructions[SeverityStrict])
	require.Contains(t, prompt, moodDescriptions[MoodEncouraging])
	require.Contains(t, prompt, "Maximum points: 5")
	require.Contains(t, prompt, `"score"`)
}

func TestWrapPersonaPromptAddsTerminationProtocol(t *testing.T) {
	wrapped := WrapPersonaPrompt("You are a customs officer.")

	require.True(t, strings.HasPrefix(wrapped, "You are a customs officer."))
	require.Contains(t, wrapped, TerminationMarker)
}

func TestBuildEvaluationPromptIncludesCriteria(t *testing.T) {
	prompt := BuildEvaluationPrompt(EvaluationPromptInput{
		InterviewTitle:   "Practice",
		Description:      "A mock interview",
		StudentObjective: "Get the job",
		PersonaName:      "Morgan",
		Transcript:       "Morgan: hello\nStudent: hi\n",
		CriteriaJSON:     `[{"criterion_id": 1, "name": "Clarity", "max_points": 5}]`,
	})

	require.Contains(t, prompt, "Get the job")
	require.Contains(t, prompt, "Morgan: hello")
	require.Contains(t, prompt, `"criterion_id"`)
	require.Contains(t, prompt, `"summary"`)
}
