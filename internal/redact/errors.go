package redact

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput means the input could not be classified or read. Nothing is written.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPartialWrite means redaction succeeded but an output artifact could not be written.
	ErrPartialWrite = errors.New("partial write failure")
)

// WriteError reports a failed artifact write. Result holds the computed
// redaction so the caller can retry with Engine.WriteArtifacts.
type WriteError struct {
	Path   string
	Err    error
	Result *Result
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

// Unwrap exposes both ErrPartialWrite and the underlying cause.
func (e *WriteError) Unwrap() []error {
	return []error{ErrPartialWrite, e.Err}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
