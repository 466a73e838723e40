package detect

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dativo-io/masquerade/internal/entity"
	"github.com/dativo-io/masquerade/internal/extractor"
)

// Locate turns AI-reported values into spans on one page of content. Every
// occurrence is returned. Exact matches are tried first; when a value has no
// exact occurrence it is matched case-insensitively with flexible whitespace.
// Matches that sit inside a larger word are rejected. Values that cannot be
// found are dropped.
func Locate(content string, page int, items []extractor.Item) []entity.Finding {
	var out []entity.Finding
	for _, it := range items {
		value := strings.TrimSpace(it.Value)
		if value == "" {
			continue
		}
		spans := exactSpans(content, value)
		if len(spans) == 0 {
			spans = fuzzySpans(content, value)
		}
		for _, s := range spans {
			out = append(out, entity.Finding{
				Span:       entity.Span{Page: page, Start: s[0], End: s[1]},
				Type:       it.Type,
				Value:      content[s[0]:s[1]],
				Confidence: it.Confidence,
				Source:     entity.SourceAI,
				Recognizer: "ai:" + it.Category,
			})
		}
	}
	return out
}

func exactSpans(content, value string) [][2]int {
	var spans [][2]int
	for from := 0; from <= len(content)-len(value); {
		i := strings.Index(content[from:], value)
		if i < 0 {
			break
		}
		start := from + i
		end := start + len(value)
		if !insideWord(content, start, end) {
			spans = append(spans, [2]int{start, end})
			from = end
			continue
		}
		_, size := utf8.DecodeRuneInString(content[start:])
		from = start + size
	}
	return spans
}

func fuzzySpans(content, value string) [][2]int {
	fields := strings.Fields(value)
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	re, err := regexp.Compile(`(?i)` + strings.Join(fields, `\s+`))
	if err != nil {
		return nil
	}
	var spans [][2]int
	for _, loc := range re.FindAllStringIndex(content, -1) {
		if !insideWord(content, loc[0], loc[1]) {
			spans = append(spans, [2]int{loc[0], loc[1]})
		}
	}
	return spans
}

// insideWord reports whether [start,end) continues a word on either side,
// e.g. "Ann" inside "Annual".
func insideWord(text string, start, end int) bool {
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		first, _ := utf8.DecodeRuneInString(text[start:end])
		if isWordRune(prev) && isWordRune(first) {
			return true
		}
	}
	if end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		last, _ := utf8.DecodeLastRuneInString(text[start:end])
		if isWordRune(next) && isWordRune(last) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
