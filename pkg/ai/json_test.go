package ai

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"plain object", `{"score": 4}`, `{"score": 4}`},
		{"fenced json block", "```json\n{\"score\": 4}\n```", `{"score": 4}`},
		{"fenced without language", "```\n{\"score\": 4}\n```", `{"score": 4}`},
		{"prose around object", `Sure! Here is the grade: {"score": 4} Hope that helps.`, `{"score": 4}`},
		{"surrounding whitespace", "  \n{\"score\": 4}\n  ", `{"score": 4}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CleanJSON(tc.content))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}

	err := DecodeJSON("```json\n{\"score\": 3.5, \"feedback\": \"ok\"}\n```", &out)
	require.NoError(t, err)
	require.Equal(t, 3.5, out.Score)
	require.Equal(t, "ok", out.Feedback)

	err = DecodeJSON("the student deserves full marks", &out)
	require.Error(t, err)
	require.True(t, IsMalformed(err))
	require.False(t, IsTransient(err))
}

func TestErrorClassification(t *testing.T) {
	transient := Transient(errTest)
	require.True(t, IsTransient(transient))
	require.ErrorIs(t, transient, errTest)

	malformed := Malformed(errTest)
	require.True(t, IsMalformed(malformed))
	require.ErrorIs(t, malformed, errTest)
}
