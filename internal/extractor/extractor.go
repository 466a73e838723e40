// Package extractor asks a language model for sensitive values in content.
//
// The model only reports the values it found; it never reports offsets.
// Locating values in the content is the merger's job, so a model that
// paraphrases or hallucinates cannot corrupt spans.
package extractor

import (
	"context"
	"errors"

	"github.com/dativo-io/masquerade/internal/entity"
)

// ErrDetectionUnavailable means the AI pass could not run (network failure,
// timeout, HTTP error, rate limit, open circuit). Callers degrade to
// pattern-only detection.
var ErrDetectionUnavailable = errors.New("ai detection unavailable")

// Kind selects the prompt family.
type Kind string

const (
	KindText Kind = "text"
	KindCode Kind = "code"
	KindPDF  Kind = "pdf"
)

// Hint describes the content being sent.
type Hint struct {
	Kind     Kind
	Language string
	// Caller keys the per-caller rate limit; usually the scope ID.
	Caller string
}

// Item is one value the model reported.
type Item struct {
	Type       entity.Type `json:"type"`
	Value      string      `json:"value"`
	Confidence float64     `json:"confidence"`
	Category   string      `json:"category"`
}

// Extraction is the parsed result of one AI request.
type Extraction struct {
	Items []Item `json:"items"`
	Model string `json:"model,omitempty"`
	// Malformed is set when the response could not be parsed; Items is empty.
	Malformed bool `json:"malformed,omitempty"`
}

// Extractor finds sensitive values in content.
type Extractor interface {
	Extract(ctx context.Context, content string, hint Hint) (*Extraction, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, content string, hint Hint) (*Extraction, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, content string, hint Hint) (*Extraction, error) {
	return f(ctx, content, hint)
}
