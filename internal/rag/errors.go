package rag

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// MaxMessageLen is the longest user message the pipeline accepts.
const MaxMessageLen = 2000

// ValidationError rejects malformed input before any pipeline stage runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// FatalError marks an unrecoverable pipeline failure. A turn that ends in a
// FatalError must not be persisted.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err is a pipeline failure that should abort the
// turn rather than degrade it.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ErrPromptOverBudget is returned when a prompt exceeds the token budget
// even after every context chunk has been dropped.
var ErrPromptOverBudget = errors.New("prompt exceeds token budget after truncation")

// ValidateMessage checks a raw user message against the input rules:
// non-empty after trimming and at most MaxMessageLen characters.
func ValidateMessage(s string) error {
	if strings.TrimSpace(s) == "" {
		return &ValidationError{Field: "message", Message: "message is empty"}
	}
	if len([]rune(s)) > MaxMessageLen {
		return &ValidationError{Field: "message", Message: fmt.Sprintf("message exceeds %d characters", MaxMessageLen)}
	}
	return nil
}

// SanitizeMessage normalizes whitespace and strips control characters from
// a user message. Newlines survive so multi-line questions keep their shape.
func SanitizeMessage(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
