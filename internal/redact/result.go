package redact

import (
	"github.com/dativo-io/masquerade/internal/detect"
	"github.com/dativo-io/masquerade/internal/entity"
)

// EntityResult describes one redacted entity.
type EntityResult struct {
	Value       string        `json:"value"`
	Canonical   string        `json:"canonical"`
	Alias       string        `json:"alias"`
	Type        entity.Type   `json:"entity_type"`
	Occurrences int           `json:"occurrences"`
	Spans       []entity.Span `json:"spans"`
	Confidence  float64       `json:"confidence"`
	Source      entity.Source `json:"source"`
}

// Diagnostics explains how a result was produced.
type Diagnostics struct {
	AIError     string       `json:"ai_error,omitempty"`
	AIModel     string       `json:"ai_model,omitempty"`
	AIMalformed bool         `json:"ai_malformed,omitempty"`
	AISkipped   bool         `json:"ai_skipped,omitempty"`
	Detection   detect.Stats `json:"detection"`
}

// Result is the outcome of one redaction.
type Result struct {
	RedactedContent string         `json:"redacted_content"`
	Entities        []EntityResult `json:"entities"`
	RedactionCount  int            `json:"redaction_count"`
	ContentType     ContentType    `json:"content_type"`
	ScopeID         string         `json:"scope_id"`
	Language        string         `json:"language,omitempty"`
	Pages           int            `json:"pages,omitempty"`
	SourcePath      string         `json:"source_path,omitempty"`
	OutputPath      string         `json:"output_path,omitempty"`
	HighlightedPath string         `json:"highlighted_path,omitempty"`
	Degraded        bool           `json:"degraded"`
	Diagnostics     Diagnostics    `json:"diagnostics"`

	artifacts *artifacts
}

// artifacts holds what WriteArtifacts needs to (re)write output files.
type artifacts struct {
	encoding    string
	redacted    []string
	highlighted []string
}

// Aliases returns the entity aliases in first-occurrence order.
func (r *Result) Aliases() []string {
	out := make([]string, len(r.Entities))
	for i, e := range r.Entities {
		out[i] = e.Alias
	}
	return out
}
