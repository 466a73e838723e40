package detect

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/masquerade/internal/entity"
)

// TieBreaker decides whose span and type win when a pattern finding and an
// AI finding describe the same entity. It returns SourcePattern or SourceAI.
type TieBreaker interface {
	Prefer(ctx context.Context, pattern, ai entity.Finding) entity.Source
}

// TableTieBreaker prefers the pattern for fixed-format types and the AI for
// free-form ones. Overrides replace the default for individual types.
type TableTieBreaker struct {
	Overrides map[entity.Type]entity.Source
}

// Prefer implements TieBreaker.
func (t TableTieBreaker) Prefer(_ context.Context, pattern, ai entity.Finding) entity.Source {
	typ := decidingType(pattern, ai)
	if s, ok := t.Overrides[typ]; ok && (s == entity.SourcePattern || s == entity.SourceAI) {
		return s
	}
	if typ.FixedFormat() {
		return entity.SourcePattern
	}
	return entity.SourceAI
}

// decidingType is the more specific of the two types.
func decidingType(pattern, ai entity.Finding) entity.Type {
	if pattern.Type.IsCustom() && !ai.Type.IsCustom() {
		return ai.Type
	}
	return pattern.Type
}

// RegoQuery is the rule a tie-break policy must define.
const RegoQuery = "data.masquerade.tiebreak.prefer"

// RegoTieBreaker evaluates an OPA policy. The policy receives
//
//	input.type, input.fixed_format, input.pattern{value,start,end,confidence}, input.ai{...}
//
// and must set prefer to "pattern" or "ai". Evaluation errors and undefined
// results fall back to the table.
type RegoTieBreaker struct {
	query    rego.PreparedEvalQuery
	fallback TableTieBreaker
}

// NewRegoTieBreaker prepares the policy module at path. data is exposed to
// the policy as its base document.
func NewRegoTieBreaker(ctx context.Context, path string, data map[string]interface{}, fallback TableTieBreaker) (*RegoTieBreaker, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tie-break policy %s: %w", path, err)
	}
	return NewRegoTieBreakerFromModule(ctx, path, string(content), data, fallback)
}

// NewRegoTieBreakerFromModule prepares a policy from source text.
func NewRegoTieBreakerFromModule(ctx context.Context, name, module string, data map[string]interface{}, fallback TableTieBreaker) (*RegoTieBreaker, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	r := rego.New(
		rego.Query(RegoQuery),
		rego.Module(name, module),
		rego.Store(inmem.NewFromObject(data)),
	)
	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing tie-break policy %s: %w", name, err)
	}
	return &RegoTieBreaker{query: pq, fallback: fallback}, nil
}

// Prefer implements TieBreaker.
func (r *RegoTieBreaker) Prefer(ctx context.Context, pattern, ai entity.Finding) entity.Source {
	typ := decidingType(pattern, ai)
	input := map[string]interface{}{
		"type":         string(typ),
		"fixed_format": typ.FixedFormat(),
		"pattern":      findingInput(pattern),
		"ai":           findingInput(ai),
	}
	results, err := r.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		log.Warn().Err(err).Str("entity_type", string(typ)).Msg("tiebreak_policy_failed")
		return r.fallback.Prefer(ctx, pattern, ai)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return r.fallback.Prefer(ctx, pattern, ai)
	}
	switch v, _ := results[0].Expressions[0].Value.(string); v {
	case string(entity.SourcePattern):
		return entity.SourcePattern
	case string(entity.SourceAI):
		return entity.SourceAI
	}
	return r.fallback.Prefer(ctx, pattern, ai)
}

func findingInput(f entity.Finding) map[string]interface{} {
	return map[string]interface{}{
		"value":      f.Value,
		"start":      f.Span.Start,
		"end":        f.Span.End,
		"confidence": f.Confidence,
		"recognizer": f.Recognizer,
	}
}
