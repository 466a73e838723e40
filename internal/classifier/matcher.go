// Package classifier implements regex-based detection of sensitive values
// using Presidio-compatible recognizers.
package classifier

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/masquerade/internal/entity"
	masqotel "github.com/dativo-io/masquerade/internal/otel"
)

var tracer = masqotel.Tracer("github.com/dativo-io/masquerade/internal/classifier")

const (
	// DefaultMinScore is the Presidio-compatible minimum confidence threshold.
	DefaultMinScore = 0.5

	// ContextSimilarityFactor is the boost applied when context words are near a match.
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is how far before and after a match context words are searched.
	ContextWindowChars = 100
)

// Pattern is one compiled recognizer regex.
type Pattern struct {
	Recognizer   string
	Name         string
	Type         entity.Type
	Regex        *regexp.Regexp
	Score        float64
	ContextWords []string

	valueGroup int
	validate   func(string) bool
}

// Matcher runs every enabled recognizer over text. It is safe for concurrent
// use; Register and Reload swap the compiled set under a write lock.
type Matcher struct {
	mu       sync.RWMutex
	defaults []RecognizerConfig
	file     []RecognizerConfig
	runtime  []RecognizerConfig
	patterns []Pattern

	patternFile string
	enabled        []string
	disabled       []string
	minScore       float64
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMinScore overrides the default minimum confidence threshold.
func WithMinScore(score float64) Option {
	return func(m *Matcher) {
		if score > 0 {
			m.minScore = score
		}
	}
}

// WithPatternFile layers recognizers from a YAML or TOML file over the defaults.
// A missing file is skipped.
func WithPatternFile(path string) Option {
	return func(m *Matcher) { m.patternFile = path }
}

// WithEnabledEntities keeps only recognizers for these entity types.
func WithEnabledEntities(entities []string) Option {
	return func(m *Matcher) { m.enabled = entities }
}

// WithDisabledEntities drops recognizers for these entity types.
func WithDisabledEntities(entities []string) Option {
	return func(m *Matcher) { m.disabled = entities }
}

// WithRecognizers registers additional recognizers at construction time.
func WithRecognizers(recs ...RecognizerConfig) Option {
	return func(m *Matcher) { m.runtime = append(m.runtime, recs...) }
}

// NewMatcher builds a matcher from the embedded defaults, the optional pattern
// file and any runtime recognizers, in that order of precedence.
func NewMatcher(opts ...Option) (*Matcher, error) {
	m := &Matcher{minScore: DefaultMinScore}
	for _, o := range opts {
		o(m)
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}
	m.defaults = defaults

	if m.patternFile != "" {
		rf, err := LoadRecognizerFile(m.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if rf != nil {
			m.file = rf.Recognizers
		}
	}

	compiled, err := m.compile(m.file, m.runtime)
	if err != nil {
		return nil, err
	}
	m.patterns = compiled
	return m, nil
}

// MustNewMatcher is like NewMatcher but panics on error.
func MustNewMatcher(opts ...Option) *Matcher {
	m, err := NewMatcher(opts...)
	if err != nil {
		panic(fmt.Sprintf("classifier.NewMatcher: %v", err))
	}
	return m
}

func (m *Matcher) compile(file, runtime []RecognizerConfig) ([]Pattern, error) {
	merged := MergeRecognizers(m.defaults, file, runtime)
	merged = FilterByEntities(merged, m.enabled, m.disabled)
	return CompilePatterns(merged)
}

// Register adds or replaces a recognizer by name. A regex that fails to compile
// returns a *PatternError and leaves the active set unchanged.
func (m *Matcher) Register(rec RecognizerConfig) error {
	if _, err := CompileRecognizer(rec); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	runtime := MergeRecognizers(m.runtime, []RecognizerConfig{rec})
	compiled, err := m.compile(m.file, runtime)
	if err != nil {
		return err
	}
	m.runtime = runtime
	m.patterns = compiled
	log.Debug().Str("recognizer", rec.Name).Str("entity", rec.SupportedEntity).Msg("recognizer_registered")
	return nil
}

// Reload re-reads the pattern file. On error the previous set stays active.
func (m *Matcher) Reload(path string) error {
	rf, err := LoadRecognizerFile(path)
	if err != nil {
		return err
	}
	var file []RecognizerConfig
	if rf != nil {
		file = rf.Recognizers
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	compiled, err := m.compile(file, m.runtime)
	if err != nil {
		return err
	}
	m.file = file
	m.patternFile = path
	m.patterns = compiled
	log.Info().Str("path", path).Int("patterns", len(compiled)).Msg("pattern_file_reloaded")
	return nil
}

// Recognizers returns the names of the active recognizers in evaluation order.
func (m *Matcher) Recognizers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var names []string
	for _, p := range m.patterns {
		if !seen[p.Recognizer] {
			seen[p.Recognizer] = true
			names = append(names, p.Recognizer)
		}
	}
	return names
}

// Match returns every accepted match of every recognizer, ordered by position.
// Matching never fails; a match is dropped when its recognizer's validator
// rejects it or its context-boosted score stays below the minimum.
func (m *Matcher) Match(ctx context.Context, text string) []entity.Finding {
	ctx, span := tracer.Start(ctx, "classifier.match")
	defer span.End()

	m.mu.RLock()
	active := m.patterns
	minScore := m.minScore
	m.mu.RUnlock()

	findings := []entity.Finding{}
	if strings.TrimSpace(text) == "" {
		return findings
	}

	for _, p := range active {
		for _, loc := range p.Regex.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if p.valueGroup > 0 && loc[2*p.valueGroup] >= 0 {
				start, end = loc[2*p.valueGroup], loc[2*p.valueGroup+1]
			}
			value := text[start:end]
			if !p.validate(value) {
				continue
			}
			confidence := enhanceScoreWithContext(text, start, p.Score, p.ContextWords)
			if confidence < minScore {
				continue
			}
			findings = append(findings, entity.Finding{
				Span:       entity.Span{Start: start, End: end},
				Type:       p.Type,
				Value:      value,
				Confidence: min(confidence, 1.0),
				Source:     entity.SourcePattern,
				Recognizer: p.Recognizer,
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Span.Before(findings[j].Span)
	})

	recordFindings(ctx, entity.SourcePattern, len(findings))
	span.SetAttributes(attribute.Int("match.finding_count", len(findings)))
	return findings
}

// enhanceScoreWithContext boosts a score when a context word appears within
// ContextWindowChars of the match, mirroring Presidio's context enhancer.
func enhanceScoreWithContext(text string, position int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return baseScore
	}
	start := max(position-ContextWindowChars, 0)
	end := min(position+ContextWindowChars, len(text))
	window := strings.ToLower(text[start:end])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			return baseScore + ContextSimilarityFactor
		}
	}
	return baseScore
}
