package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateEmpty(t *testing.T) {
	e := NewEstimator()
	require.Zero(t, e.Estimate(""))
}

func TestEstimateGrowsWithLength(t *testing.T) {
	e := NewEstimator()

	short := e.Estimate("hello")
	long := e.Estimate(strings.Repeat("hello world ", 50))

	require.Positive(t, short)
	require.Greater(t, long, short)
}

func TestFallbackEstimate(t *testing.T) {
	require.Equal(t, 1, fallbackEstimate("ab"))
	require.Equal(t, 3, fallbackEstimate(strings.Repeat("a", 12)))
}
