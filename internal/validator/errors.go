package validator

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCandidate = errors.New("candidate failed validation")
	ErrInvalidConfig    = errors.New("invalid validator config")
	ErrPhraseTable      = errors.New("invalid phrase table")
)

// ValidationError wraps a failing Result. The repair loop consumes it; it
// is never returned to API callers.
type ValidationError struct {
	Result Result
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: score %.2f with %d errors and %d warnings",
		ErrInvalidCandidate, e.Result.Score, e.Result.ErrorCount(), e.Result.WarningCount())
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidCandidate
}
