package redact

import (
	"sort"
	"strings"

	"github.com/dativo-io/masquerade/internal/entity"
)

// Highlight markers used in review copies.
const (
	HighlightOpen  = "⟦"
	HighlightArrow = "→"
	HighlightClose = "⟧"
)

// Replacement substitutes Alias for the bytes covered by Span.
type Replacement struct {
	Span  entity.Span
	Alias string
}

// ReplaceSpans applies non-overlapping replacements to content. Spans are
// byte offsets into content; out-of-range or overlapping spans are skipped.
// It returns the new content and the number of replacements applied.
func ReplaceSpans(content string, reps []Replacement) (string, int) {
	return rewrite(content, reps, func(_, alias string) string { return alias })
}

// HighlightSpans keeps the original text and marks each region as
// ⟦original→alias⟧.
func HighlightSpans(content string, reps []Replacement) string {
	out, _ := rewrite(content, reps, func(original, alias string) string {
		return HighlightOpen + original + HighlightArrow + alias + HighlightClose
	})
	return out
}

func rewrite(content string, reps []Replacement, render func(original, alias string) string) (string, int) {
	sorted := make([]Replacement, len(reps))
	copy(sorted, reps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Span.Before(sorted[j].Span) })

	var b strings.Builder
	b.Grow(len(content))
	pos, applied := 0, 0
	for _, r := range sorted {
		if r.Span.Start < pos || r.Span.End > len(content) || r.Span.Start >= r.Span.End {
			continue
		}
		b.WriteString(content[pos:r.Span.Start])
		b.WriteString(render(content[r.Span.Start:r.Span.End], r.Alias))
		pos = r.Span.End
		applied++
	}
	b.WriteString(content[pos:])
	return b.String(), applied
}

// replacementsByPage splits entity spans into per-page replacement lists.
func replacementsByPage(entities []entity.Entity) map[int][]Replacement {
	out := make(map[int][]Replacement)
	for _, e := range entities {
		for _, s := range e.Spans {
			out[s.Page] = append(out[s.Page], Replacement{Span: s, Alias: e.Alias})
		}
	}
	return out
}
