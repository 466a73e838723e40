// Package redact dispatches content to the text, code or PDF redaction path
// and replaces detected entities with scope-stable aliases.
package redact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dativo-io/masquerade/internal/alias"
	"github.com/dativo-io/masquerade/internal/classifier"
	"github.com/dativo-io/masquerade/internal/detect"
	"github.com/dativo-io/masquerade/internal/entity"
	"github.com/dativo-io/masquerade/internal/extractor"
	masqotel "github.com/dativo-io/masquerade/internal/otel"
)

var tracer = masqotel.Tracer("github.com/dativo-io/masquerade/internal/redact")

const (
	DefaultOutputSuffix    = "_redacted"
	DefaultHighlightSuffix = "_highlighted"
	DefaultPageWorkers     = 4
	DefaultMaxFileBytes    = 50 << 20
)

// PageSeparator joins redacted PDF pages in Result.RedactedContent.
const PageSeparator = "\f"

// Engine runs detection, alias resolution and replacement for every content type.
type Engine struct {
	matcher   *classifier.Matcher
	extractor extractor.Extractor
	merger    *detect.Merger
	registry  *alias.Registry
	pages     PageReader
	writer    DocumentWriter

	outputSuffix    string
	highlightSuffix string
	pageWorkers     int
	maxFileBytes    int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtractor enables the AI pass. Without it detection is pattern-only.
func WithExtractor(x extractor.Extractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// WithMerger replaces the default merger (validation, tie-break, overlap threshold).
func WithMerger(m *detect.Merger) Option {
	return func(e *Engine) { e.merger = m }
}

// WithPageReader replaces the PDF text reader.
func WithPageReader(r PageReader) Option {
	return func(e *Engine) { e.pages = r }
}

// WithDocumentWriter replaces the PDF writer.
func WithDocumentWriter(w DocumentWriter) Option {
	return func(e *Engine) { e.writer = w }
}

// WithOutputSuffix sets the suffix of redacted output files ("_redacted").
func WithOutputSuffix(s string) Option {
	return func(e *Engine) {
		if s != "" {
			e.outputSuffix = s
		}
	}
}

// WithHighlightSuffix sets the suffix of PDF review copies ("_highlighted").
func WithHighlightSuffix(s string) Option {
	return func(e *Engine) {
		if s != "" {
			e.highlightSuffix = s
		}
	}
}

// WithPageWorkers bounds parallel page detection.
func WithPageWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageWorkers = n
		}
	}
}

// WithMaxFileBytes limits the size of text and code files read.
func WithMaxFileBytes(n int64) Option {
	return func(e *Engine) { e.maxFileBytes = n }
}

// NewEngine creates an engine around a matcher and an alias registry.
func NewEngine(matcher *classifier.Matcher, registry *alias.Registry, opts ...Option) *Engine {
	e := &Engine{
		matcher:         matcher,
		merger:          detect.NewMerger(),
		registry:        registry,
		pages:           PDFReader{},
		writer:          NewTextPDFWriter(),
		outputSuffix:    DefaultOutputSuffix,
		highlightSuffix: DefaultHighlightSuffix,
		pageWorkers:     DefaultPageWorkers,
		maxFileBytes:    DefaultMaxFileBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the alias registry.
func (e *Engine) Registry() *alias.Registry { return e.registry }

// Merger returns the detection merger.
func (e *Engine) Merger() *detect.Merger { return e.merger }

// Redact classifies in and runs the matching redaction path. AI failures
// degrade to pattern-only detection and never fail the call. A failed output
// write returns *WriteError carrying the computed Result.
func (e *Engine) Redact(ctx context.Context, in Input) (*Result, error) {
	class, err := Classify(in)
	if err != nil {
		return nil, err
	}
	scope := in.ScopeID
	if strings.TrimSpace(scope) == "" {
		scope = alias.DefaultScope
	}

	ctx, span := tracer.Start(ctx, "redact.redact",
		trace.WithAttributes(attribute.String("masquerade.content_type", string(class.Type))))
	defer span.End()

	var res *Result
	switch class.Type {
	case TypeText:
		res, err = e.redactText(ctx, in, scope)
	case TypeCode:
		res, err = e.redactCode(ctx, in, class, scope)
	case TypePDF:
		res, err = e.redactPDF(ctx, in, scope)
	default:
		err = invalidInput("unsupported content type %q", class.Type)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(masqotel.RedactionAttributes(string(res.ContentType), scope, len(res.Entities), res.RedactionCount, res.Degraded)...)
	recordRedaction(ctx, res)
	logger := masqotel.ScopeLogger(ctx, log.Logger, scope)
	if res.Degraded {
		logger.Warn().
			Str("content_type", string(res.ContentType)).
			Str("ai_error", res.Diagnostics.AIError).
			Msg("ai_detection_degraded")
	}

	if err := e.WriteArtifacts(ctx, res); err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Info().
		Str("content_type", string(res.ContentType)).
		Int("entity_count", len(res.Entities)).
		Int("redaction_count", res.RedactionCount).
		Bool("degraded", res.Degraded).
		Msg("redaction_completed")
	return res, nil
}

func (e *Engine) redactText(ctx context.Context, in Input, scope string) (*Result, error) {
	content := in.Text
	res := &Result{ContentType: TypeText, ScopeID: scope}
	if in.Kind == KindPath {
		text, _, err := readSource(in.Path, e.maxFileBytes)
		if err != nil {
			return nil, err
		}
		content = text
		res.SourcePath = in.Path
	}
	hint := extractor.Hint{Kind: extractor.KindText, Caller: scope}
	if err := e.redactSingle(ctx, content, hint, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) redactCode(ctx context.Context, in Input, class Classification, scope string) (*Result, error) {
	content := in.Text
	res := &Result{ContentType: TypeCode, ScopeID: scope, Language: class.Language}
	enc := encodingUTF8
	if in.Kind == KindPath {
		text, detected, err := readSource(in.Path, e.maxFileBytes)
		if err != nil {
			return nil, err
		}
		content, enc = text, detected
		res.SourcePath = in.Path
		res.OutputPath = siblingPath(in.Path, e.outputSuffix)
	}
	hint := extractor.Hint{Kind: extractor.KindCode, Language: class.Language, Caller: scope}
	if err := e.redactSingle(ctx, content, hint, res); err != nil {
		return nil, err
	}
	if res.OutputPath != "" {
		res.artifacts = &artifacts{encoding: enc}
	}
	return res, nil
}

// redactSingle fills res for single-part content.
func (e *Engine) redactSingle(ctx context.Context, content string, hint extractor.Hint, res *Result) error {
	d := e.detect(ctx, content, 0, hint)
	entities := detect.Group(d.findings)
	if err := e.assignAliases(ctx, res.ScopeID, entities); err != nil {
		return err
	}
	res.RedactedContent, res.RedactionCount = ReplaceSpans(content, replacementsByPage(entities)[0])
	res.Entities = entityResults(entities)
	d.apply(res)
	return nil
}

func (e *Engine) redactPDF(ctx context.Context, in Input, scope string) (*Result, error) {
	if in.Kind != KindPath {
		return nil, invalidInput("pdf content must be given as a file")
	}
	pages, err := e.pages.Pages(ctx, in.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hint := extractor.Hint{Kind: extractor.KindPDF, Caller: scope}
	detections := make([]detection, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.pageWorkers)
	for i, text := range pages {
		g.Go(func() error {
			detections[i] = e.detect(gctx, text, i, hint)
			return nil
		})
	}
	_ = g.Wait()

	var all detection
	for _, d := range detections {
		all.merge(d)
	}
	// One batch in page/offset order keeps numbering and aliases consistent across pages.
	entities := detect.Group(all.findings)
	if err := e.assignAliases(ctx, scope, entities); err != nil {
		return nil, err
	}

	reps := replacementsByPage(entities)
	redacted := make([]string, len(pages))
	highlighted := make([]string, len(pages))
	count := 0
	for i, text := range pages {
		var n int
		redacted[i], n = ReplaceSpans(text, reps[i])
		highlighted[i] = HighlightSpans(text, reps[i])
		count += n
	}

	res := &Result{
		RedactedContent: strings.Join(redacted, PageSeparator),
		Entities:        entityResults(entities),
		RedactionCount:  count,
		ContentType:     TypePDF,
		ScopeID:         scope,
		Pages:           len(pages),
		SourcePath:      in.Path,
		OutputPath:      siblingPath(in.Path, e.outputSuffix),
		HighlightedPath: siblingPath(in.Path, e.highlightSuffix),
		artifacts:       &artifacts{redacted: redacted, highlighted: highlighted},
	}
	all.apply(res)
	return res, nil
}

// WriteArtifacts writes the output files of res: the redacted sibling of a
// code file, or the redacted and highlighted PDFs. It is safe to call again
// with the Result of a *WriteError.
func (e *Engine) WriteArtifacts(ctx context.Context, res *Result) error {
	if res == nil || res.artifacts == nil {
		return nil
	}
	switch res.ContentType {
	case TypeCode:
		data, err := encodeOutput(res.RedactedContent, res.artifacts.encoding)
		if err == nil {
			err = writeFileAtomic(res.OutputPath, data, fileMode(res.SourcePath))
		}
		if err != nil {
			return &WriteError{Path: res.OutputPath, Err: err, Result: res}
		}
	case TypePDF:
		if err := e.writer.Write(ctx, res.OutputPath, res.artifacts.redacted); err != nil {
			return &WriteError{Path: res.OutputPath, Err: err, Result: res}
		}
		if err := e.writer.Write(ctx, res.HighlightedPath, res.artifacts.highlighted); err != nil {
			return &WriteError{Path: res.HighlightedPath, Err: err, Result: res}
		}
	}
	return nil
}

// detection is the outcome of detecting one page of content.
type detection struct {
	findings  []entity.Finding
	stats     detect.Stats
	aiErr     error
	model     string
	malformed bool
	skipped   bool
}

func (d *detection) merge(o detection) {
	d.findings = append(d.findings, o.findings...)
	d.stats.Add(o.stats)
	if d.aiErr == nil {
		d.aiErr = o.aiErr
	}
	if d.model == "" {
		d.model = o.model
	}
	d.malformed = d.malformed || o.malformed
	d.skipped = d.skipped || o.skipped
}

func (d detection) apply(res *Result) {
	res.Degraded = d.aiErr != nil
	res.Diagnostics = Diagnostics{
		AIModel:     d.model,
		AIMalformed: d.malformed,
		AISkipped:   d.skipped,
		Detection:   d.stats,
	}
	if d.aiErr != nil {
		res.Diagnostics.AIError = d.aiErr.Error()
	}
}

// detect runs the pattern and AI passes concurrently and merges their findings.
func (e *Engine) detect(ctx context.Context, content string, page int, hint extractor.Hint) detection {
	var (
		d          detection
		pattern    []entity.Finding
		extraction *extractor.Extraction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pattern = e.matcher.Match(gctx, content)
		return nil
	})
	switch {
	case e.extractor == nil:
		d.skipped = true
	case strings.TrimSpace(content) == "":
		// nothing to send
	default:
		g.Go(func() error {
			extraction, d.aiErr = e.extractor.Extract(gctx, content, hint)
			return nil
		})
	}
	_ = g.Wait()

	for i := range pattern {
		pattern[i].Span.Page = page
	}
	var ai []entity.Finding
	if d.aiErr != nil {
		if !errors.Is(d.aiErr, extractor.ErrDetectionUnavailable) {
			d.aiErr = fmt.Errorf("%w: %v", extractor.ErrDetectionUnavailable, d.aiErr)
		}
	} else if extraction != nil {
		d.model = extraction.Model
		d.malformed = extraction.Malformed
		ai = detect.Locate(content, page, extraction.Items)
	}

	d.findings, d.stats = e.merger.Resolve(ctx, pattern, ai)
	return d
}

// assignAliases resolves every entity in order under one scope lock.
func (e *Engine) assignAliases(ctx context.Context, scope string, entities []entity.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	reqs := make([]alias.Request, len(entities))
	for i, ent := range entities {
		reqs[i] = alias.Request{Type: ent.Type, Value: ent.Value}
	}
	aliases, err := e.registry.ResolveBatch(ctx, scope, reqs)
	if err != nil {
		return fmt.Errorf("resolving aliases: %w", err)
	}
	for i := range entities {
		entities[i].Alias = aliases[i]
	}
	return nil
}

func entityResults(entities []entity.Entity) []EntityResult {
	out := make([]EntityResult, len(entities))
	for i, ent := range entities {
		out[i] = EntityResult{
			Value:       ent.Value,
			Canonical:   ent.Canonical,
			Alias:       ent.Alias,
			Type:        ent.Type,
			Occurrences: ent.Occurrences(),
			Spans:       ent.Spans,
			Confidence:  ent.Confidence,
			Source:      ent.Source,
		}
	}
	return out
}

// ResolveAlias returns the alias for value in scope, creating it if needed.
func (e *Engine) ResolveAlias(ctx context.Context, scope string, t entity.Type, value string) (string, error) {
	return e.registry.Resolve(ctx, scope, t, value)
}

// ExportMappings encodes a scope's mappings as json, csv or yaml.
func (e *Engine) ExportMappings(ctx context.Context, scope, format string) ([]byte, error) {
	mappings, err := e.registry.Export(ctx, scope)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := alias.Encode(&buf, format, alias.NewExport(scope, mappings)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ClearScope irreversibly removes a scope's mappings.
func (e *Engine) ClearScope(ctx context.Context, scope string) (int, error) {
	return e.registry.Clear(ctx, scope)
}

// RedactConversation redacts messages in order under one scope, so a value
// keeps its alias across the whole conversation.
func (e *Engine) RedactConversation(ctx context.Context, scope string, messages []string) ([]*Result, error) {
	out := make([]*Result, 0, len(messages))
	for i, msg := range messages {
		res, err := e.Redact(ctx, Text(msg).WithScope(scope))
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, res)
	}
	return out, nil
}
