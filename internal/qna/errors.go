package qna

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPersistence wraps any failure writing to or reading from the graph.
	ErrPersistence = errors.New("graph persistence failed")
	ErrNotFound    = errors.New("not found")
)

// ValidationError reports a malformed tree definition.
type ValidationError struct {
	Source string
	TreeID string
	Field  string
	Msg    string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, 3)
	if e.Source != "" {
		parts = append(parts, e.Source)
	}
	if e.TreeID != "" {
		parts = append(parts, "tree "+e.TreeID)
	}
	if e.Field != "" {
		parts = append(parts, e.Field)
	}

	prefix := "invalid question tree"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s (%s)", prefix, strings.Join(parts, ", "))
	}
	return prefix + ": " + e.Msg
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
