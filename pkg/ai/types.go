package ai

import (
	"context"
	"errors"
	"fmt"
)

// Message is one turn of a conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// Conversation roles accepted by the completion gateway.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest describes a single completion call.
type CompletionRequest struct {
	System    string
	Messages  []Message
	MaxTokens int
}

// Completer is the uniform gateway to a hosted language model.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ErrorKind classifies gateway failures for callers.
type ErrorKind int

const (
	// KindTransient marks network or rate-limit failures. The gateway does
	// not retry; callers decide whether to resubmit the work.
	KindTransient ErrorKind = iota
	// KindMalformed marks model output that did not parse as the expected JSON.
	KindMalformed
)

// Error wraps a gateway failure with its classification.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMalformed:
		return fmt.Sprintf("malformed model output: %v", e.Err)
	default:
		return fmt.Sprintf("transient ai error: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable gateway failure.
func Transient(err error) error {
	return &Error{Kind: KindTransient, Err: err}
}

// Malformed wraps err as an unparsable-output failure.
func Malformed(err error) error {
	return &Error{Kind: KindMalformed, Err: err}
}

// IsTransient reports whether err is a transient gateway failure.
func IsTransient(err error) bool {
	var aiErr *Error
	return errors.As(err, &aiErr) && aiErr.Kind == KindTransient
}

// IsMalformed reports whether err is a malformed-output failure.
func IsMalformed(err error) bool {
	var aiErr *Error
	return errors.As(err, &aiErr) && aiErr.Kind == KindMalformed
}
