// Package tokencount estimates token counts for context-window budgeting.
//
// It uses tiktoken-go with the cl100k_base encoding, which is a reasonable
// approximation for the chat models this service talks to. When the encoding
// cannot be loaded the estimator falls back to a characters/4 heuristic; both
// paths are monotonic in text length, which is all the truncation logic needs.
package tokencount

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Estimator provides thread-safe token estimation.
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator creates an estimator. Loading the encoding is deferred to the
// first call so construction never fails.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) encoding() *tiktoken.Tiktoken {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.enc = enc
		}
	})
	return e.enc
}

// Estimate returns the approximate token count of text.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if enc := e.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return fallbackEstimate(text)
}

func fallbackEstimate(text string) int {
	// Rough heuristic used by the chat model vendors: ~4 chars per token.
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
