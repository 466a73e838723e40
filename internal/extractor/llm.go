package extractor

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dativo-io/masquerade/internal/llm"
	masqotel "github.com/dativo-io/masquerade/internal/otel"
)

var tracer = masqotel.Tracer("github.com/dativo-io/masquerade/internal/extractor")

// DefaultTimeout bounds one AI extraction call.
const DefaultTimeout = 30 * time.Second

// Models names the model used per content family. Empty Code or
// Multilingual fall back to Default.
type Models struct {
	Default      string
	Code         string
	Multilingual string
}

// LLMExtractor implements Extractor on top of an llm.Provider.
type LLMExtractor struct {
	provider llm.Provider
	models   Models
	timeout  time.Duration
	limiter  *RateLimiter
	breaker  *CircuitBreaker
	markup   *bluemonday.Policy
	maxBytes int
}

// Option configures an LLMExtractor.
type Option func(*LLMExtractor)

// WithTimeout bounds each AI call.
func WithTimeout(d time.Duration) Option {
	return func(e *LLMExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRateLimiter throttles calls.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(e *LLMExtractor) { e.limiter = rl }
}

// WithCircuitBreaker stops calling a failing backend.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(e *LLMExtractor) { e.breaker = cb }
}

// WithMaxBytes truncates prompts longer than n bytes. Zero means unlimited.
func WithMaxBytes(n int) Option {
	return func(e *LLMExtractor) { e.maxBytes = n }
}

// NewLLMExtractor creates an extractor using provider and models.
func NewLLMExtractor(provider llm.Provider, models Models, opts ...Option) *LLMExtractor {
	e := &LLMExtractor{
		provider: provider,
		models:   models,
		timeout:  DefaultTimeout,
		markup:   bluemonday.StrictPolicy(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SelectModel picks the model for content: the code model for source code,
// the multilingual model when most letters are non-ASCII, else the default.
func (e *LLMExtractor) SelectModel(content string, hint Hint) string {
	if hint.Kind == KindCode && e.models.Code != "" {
		return e.models.Code
	}
	if e.models.Multilingual != "" && mostlyNonASCII(content) {
		return e.models.Multilingual
	}
	return e.models.Default
}

// Extract sends content to the model and parses the reply. Transport
// failures return ErrDetectionUnavailable; an unparseable reply returns an
// empty, Malformed extraction and no error.
func (e *LLMExtractor) Extract(ctx context.Context, content string, hint Hint) (*Extraction, error) {
	ctx, span := tracer.Start(ctx, "extractor.extract")
	defer span.End()

	if strings.TrimSpace(content) == "" {
		return &Extraction{}, nil
	}

	model := e.SelectModel(content, hint)
	span.SetAttributes(
		attribute.String("extract.kind", string(hint.Kind)),
		attribute.String("extract.model", model),
	)

	breakerKey := e.provider.Name() + "/" + model
	if e.breaker != nil {
		if err := e.breaker.Check(breakerKey); err != nil {
			recordUnavailable(ctx, "circuit_open")
			return nil, fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
		}
	}
	if !e.limiter.Allow(hint.Caller) {
		recordUnavailable(ctx, "rate_limited")
		return nil, fmt.Errorf("%w: rate limit exceeded", ErrDetectionUnavailable)
	}

	prompt := BuildPrompt(e.prepare(content, hint), hint)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.provider.Generate(callCtx, &llm.Request{
		Model: model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		if e.breaker != nil {
			e.breaker.RecordFailure(breakerKey)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "ai call failed")
		recordUnavailable(ctx, "call_failed")
		return nil, fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
	}
	if e.breaker != nil {
		e.breaker.RecordSuccess(breakerKey)
	}

	items, err := ParseResponse(resp.Content)
	if err != nil {
		log.Warn().Err(err).Str("model", model).Func(masqotel.LogTraceFields(ctx)).Msg("ai_response_unparseable")
		return &Extraction{Model: model, Malformed: true}, nil
	}
	span.SetAttributes(attribute.Int("extract.item_count", len(items)))
	return &Extraction{Items: items, Model: model}, nil
}

// prepare strips markup from HTML sources and applies the size cap. Values
// found in the reduced text still occur verbatim in the original.
func (e *LLMExtractor) prepare(content string, hint Hint) string {
	if hint.Kind == KindCode && (hint.Language == "html" || hint.Language == "xml") {
		content = html.UnescapeString(e.markup.Sanitize(content))
	}
	if e.maxBytes > 0 && len(content) > e.maxBytes {
		cut := e.maxBytes
		for cut > 0 && !utf8RuneStart(content[cut]) {
			cut--
		}
		log.Debug().Int("bytes", len(content)).Int("limit", e.maxBytes).Msg("ai_prompt_truncated")
		content = content[:cut]
	}
	return content
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

func mostlyNonASCII(s string) bool {
	var letters, foreign int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r > unicode.MaxASCII {
			foreign++
		}
	}
	return letters > 0 && foreign*10 > letters*3
}
