package testutil

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/dativo-io/masquerade/internal/entity"
	"github.com/dativo-io/masquerade/internal/extractor"
)

// FakeExtractor implements extractor.Extractor with canned values. Only
// values that occur in the content are reported, like a well-behaved model.
type FakeExtractor struct {
	Values map[entity.Type][]string
	// Confidence defaults to 0.9.
	Confidence float64
	// Err, when set, is returned from every call.
	Err   error
	calls atomic.Int64
}

// Extract returns the configured values found in content.
func (f *FakeExtractor) Extract(_ context.Context, content string, hint extractor.Hint) (*extractor.Extraction, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}
	conf := f.Confidence
	if conf == 0 {
		conf = 0.9
	}
	out := &extractor.Extraction{Model: "fake-" + string(hint.Kind)}
	for t, values := range f.Values {
		for _, v := range values {
			if strings.Contains(content, v) {
				out.Items = append(out.Items, extractor.Item{Type: t, Value: v, Confidence: conf, Category: string(t)})
			}
		}
	}
	return out, nil
}

// Calls returns how many times Extract ran.
func (f *FakeExtractor) Calls() int { return int(f.calls.Load()) }

// Unavailable returns an extractor that always fails as an unreachable model would.
func Unavailable() *FakeExtractor {
	return &FakeExtractor{Err: extractor.ErrDetectionUnavailable}
}
