// Package detect combines pattern and AI findings into validated,
// non-overlapping entities.
package detect

import (
	"context"
	"sort"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/masquerade/internal/entity"
	masqotel "github.com/dativo-io/masquerade/internal/otel"
)

var tracer = masqotel.Tracer("github.com/dativo-io/masquerade/internal/detect")

// DefaultOverlapThreshold is the share of the shorter span two findings must
// have in common to be treated as one occurrence.
const DefaultOverlapThreshold = 0.5

// Stats describes one merge.
type Stats struct {
	PatternFindings int `json:"pattern_findings"`
	AIFindings      int `json:"ai_findings"`
	FalsePositives  int `json:"false_positives"`
	Deduplicated    int `json:"deduplicated"`
	OverlapsDropped int `json:"overlaps_dropped"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.PatternFindings += o.PatternFindings
	s.AIFindings += o.AIFindings
	s.FalsePositives += o.FalsePositives
	s.Deduplicated += o.Deduplicated
	s.OverlapsDropped += o.OverlapsDropped
}

// Merger validates, deduplicates and orders findings. Safe for concurrent use.
type Merger struct {
	validator        *Validator
	tieBreaker       TieBreaker
	overlapThreshold float64
	falsePositives   atomic.Int64
}

// Option configures a Merger.
type Option func(*Merger)

// WithValidator replaces the default validator.
func WithValidator(v *Validator) Option {
	return func(m *Merger) { m.validator = v }
}

// WithTieBreaker replaces the default table tie-breaker.
func WithTieBreaker(tb TieBreaker) Option {
	return func(m *Merger) { m.tieBreaker = tb }
}

// WithOverlapThreshold sets the dedup overlap ratio (0 < t <= 1).
func WithOverlapThreshold(t float64) Option {
	return func(m *Merger) {
		if t > 0 && t <= 1 {
			m.overlapThreshold = t
		}
	}
}

// NewMerger creates a Merger.
func NewMerger(opts ...Option) *Merger {
	m := &Merger{
		validator:        NewValidator(),
		tieBreaker:       TableTieBreaker{},
		overlapThreshold: DefaultOverlapThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// FalsePositives returns the number of findings rejected by validation since
// the merger was created.
func (m *Merger) FalsePositives() int64 { return m.falsePositives.Load() }

// Validator returns the validator in use.
func (m *Merger) Validator() *Validator { return m.validator }

// Merge resolves findings and groups them into entities ordered by first occurrence.
func (m *Merger) Merge(ctx context.Context, pattern, ai []entity.Finding) ([]entity.Entity, Stats) {
	findings, stats := m.Resolve(ctx, pattern, ai)
	return Group(findings), stats
}

// Resolve returns the surviving findings sorted by position. Invalid findings
// are dropped, a pattern and an AI finding for the same occurrence become one
// finding, custom-typed findings adopt the known type of an identical value,
// and overlaps between the rest are removed.
func (m *Merger) Resolve(ctx context.Context, pattern, ai []entity.Finding) ([]entity.Finding, Stats) {
	ctx, span := tracer.Start(ctx, "detect.resolve")
	defer span.End()

	stats := Stats{PatternFindings: len(pattern), AIFindings: len(ai)}
	pv := m.filterValid(pattern)
	av := m.filterValid(ai)
	stats.FalsePositives = len(pattern) + len(ai) - len(pv) - len(av)
	if stats.FalsePositives > 0 {
		m.falsePositives.Add(int64(stats.FalsePositives))
		recordFalsePositives(ctx, stats.FalsePositives)
	}

	merged := make([]entity.Finding, len(pv), len(pv)+len(av))
	copy(merged, pv)
	patternCount := len(merged)
	for _, a := range av {
		idx := m.bestMatch(merged[:patternCount], a)
		if idx < 0 {
			merged = append(merged, a)
			continue
		}
		merged[idx] = m.combine(ctx, merged[idx], a)
		stats.Deduplicated++
	}

	adoptKnownTypes(merged)

	kept, dropped := sweepOverlaps(merged)
	stats.OverlapsDropped = dropped

	span.SetAttributes(
		attribute.Int("detect.pattern_findings", stats.PatternFindings),
		attribute.Int("detect.ai_findings", stats.AIFindings),
		attribute.Int("detect.false_positives", stats.FalsePositives),
		attribute.Int("detect.kept", len(kept)),
	)
	return kept, stats
}

func (m *Merger) filterValid(in []entity.Finding) []entity.Finding {
	out := make([]entity.Finding, 0, len(in))
	for _, f := range in {
		if m.validator.Valid(f) {
			out = append(out, f)
		}
	}
	return out
}

// bestMatch returns the index of the pattern-derived finding a describes, or -1.
func (m *Merger) bestMatch(candidates []entity.Finding, a entity.Finding) int {
	best, bestRatio := -1, 0.0
	for i, p := range candidates {
		if !entity.Compatible(p.Type, a.Type) || !p.Span.Overlaps(a.Span) {
			continue
		}
		ratio := p.Span.OverlapRatio(a.Span)
		sameValue := entity.Canonicalize(p.Type, p.Value) == entity.Canonicalize(p.Type, a.Value)
		if ratio <= m.overlapThreshold && !sameValue {
			continue
		}
		if ratio > bestRatio {
			best, bestRatio = i, ratio
		}
	}
	return best
}

func (m *Merger) combine(ctx context.Context, p, a entity.Finding) entity.Finding {
	out := a
	if m.tieBreaker.Prefer(ctx, p, a) == entity.SourcePattern {
		out = p
	}
	out.Type = decidingType(p, a)
	out.Confidence = max(p.Confidence, a.Confidence)
	out.Source = p.Source.Combine(a.Source)
	return out
}

// adoptKnownTypes retypes custom-family findings whose value canonicalizes to
// the value of a finding with a known type, so both share one entity.
func adoptKnownTypes(findings []entity.Finding) {
	type key struct {
		t entity.Type
		c string
	}
	known := make(map[key]bool)
	var types []entity.Type
	seenType := make(map[entity.Type]bool)
	for _, f := range findings {
		if f.Type.IsCustom() {
			continue
		}
		known[key{f.Type, entity.Canonicalize(f.Type, f.Value)}] = true
		if !seenType[f.Type] {
			seenType[f.Type] = true
			types = append(types, f.Type)
		}
	}
	for i, f := range findings {
		if !f.Type.IsCustom() {
			continue
		}
		for _, t := range types {
			if known[key{t, entity.Canonicalize(t, f.Value)}] {
				findings[i].Type = t
				break
			}
		}
	}
}

// sweepOverlaps keeps the earliest, then longest, then most confident
// finding of every overlapping group.
func sweepOverlaps(findings []entity.Finding) ([]entity.Finding, int) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Span != b.Span {
			return a.Span.Before(b.Span)
		}
		return a.Confidence > b.Confidence
	})

	kept := make([]entity.Finding, 0, len(findings))
	dropped := 0
	page, reach := -1, 0
	for _, f := range findings {
		if f.Span.Page != page {
			page, reach = f.Span.Page, 0
		}
		if f.Span.Start < reach {
			dropped++
			continue
		}
		kept = append(kept, f)
		reach = f.Span.End
	}
	return kept, dropped
}

// Group collects findings into entities keyed by type and canonical value.
// Entities are ordered by their first occurrence; each entity's Value is the
// surface text of that occurrence.
func Group(findings []entity.Finding) []entity.Entity {
	sorted := make([]entity.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Span.Before(sorted[j].Span) })

	type key struct {
		t entity.Type
		c string
	}
	index := make(map[key]int)
	var out []entity.Entity
	for _, f := range sorted {
		k := key{f.Type, entity.Canonicalize(f.Type, f.Value)}
		if i, ok := index[k]; ok {
			e := &out[i]
			e.Spans = append(e.Spans, f.Span)
			e.Confidence = max(e.Confidence, f.Confidence)
			e.Source = e.Source.Combine(f.Source)
			continue
		}
		index[k] = len(out)
		out = append(out, entity.Entity{
			Value:      f.Value,
			Canonical:  k.c,
			Type:       f.Type,
			Spans:      []entity.Span{f.Span},
			Confidence: f.Confidence,
			Source:     f.Source,
		})
	}
	return out
}
