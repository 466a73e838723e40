package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dativo-io/masquerade/internal/alias"
	"github.com/dativo-io/masquerade/internal/classifier"
	"github.com/dativo-io/masquerade/internal/extractor"
	"github.com/dativo-io/masquerade/internal/redact"
)

// envelope is the --json output of every command, success or failure.
type envelope struct {
	Success bool        `json:"success"`
	Error   *cliError   `json:"error"`
	Result  interface{} `json:"result"`
}

type cliError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCode names the error kind for machine consumers.
func errorCode(err error) string {
	switch {
	case errors.Is(err, redact.ErrInvalidInput), errors.Is(err, alias.ErrEmptyValue):
		return "invalid_input"
	case errors.Is(err, extractor.ErrDetectionUnavailable):
		return "detection_unavailable"
	case errors.Is(err, classifier.ErrMalformedPattern):
		return "malformed_pattern"
	case errors.Is(err, alias.ErrScopeConflict):
		return "scope_conflict"
	case errors.Is(err, redact.ErrPartialWrite):
		return "partial_write_failure"
	case errors.Is(err, alias.ErrUnknownFormat):
		return "unknown_format"
	default:
		return "internal"
	}
}

// writeEnvelope renders result or err as JSON. A *redact.WriteError still
// carries its computed result.
func writeEnvelope(w io.Writer, result interface{}, err error) error {
	env := envelope{Success: err == nil, Result: result}
	if err != nil {
		env.Error = &cliError{Code: errorCode(err), Message: err.Error()}
		var we *redact.WriteError
		if errors.As(err, &we) && we.Result != nil {
			env.Result = we.Result
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// renderDiff writes a colored character diff between original and redacted.
func renderDiff(w io.Writer, original, redacted string) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, redacted, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	fmt.Fprintln(w, dmp.DiffPrettyText(diffs))
}

// renderSummary writes the human-readable outcome of a redaction.
func renderSummary(w io.Writer, res *redact.Result) {
	mode := "pattern+ai"
	switch {
	case res.Degraded:
		mode = "pattern-only (AI unavailable)"
	case res.Diagnostics.AISkipped:
		mode = "pattern-only"
	}
	fmt.Fprintf(w, "%s | scope %s | %d entities, %d replacements | %s\n",
		res.ContentType, res.ScopeID, len(res.Entities), res.RedactionCount, mode)
	for _, e := range res.Entities {
		fmt.Fprintf(w, "  %-12s %-14s x%d\n", e.Alias, e.Type, e.Occurrences)
	}
	if res.OutputPath != "" {
		fmt.Fprintf(w, "✓ Redacted:    %s\n", res.OutputPath)
	}
	if res.HighlightedPath != "" {
		fmt.Fprintf(w, "✓ Highlighted: %s\n", res.HighlightedPath)
	}
	if res.Degraded && res.Diagnostics.AIError != "" {
		fmt.Fprintf(w, "⚠ %s\n", res.Diagnostics.AIError)
	}
}

// maskSecret keeps the first and last two characters of long values.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return strings.Repeat("*", len(s))
	default:
		return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
	}
}
