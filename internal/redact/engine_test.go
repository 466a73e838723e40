package redact

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/masquerade/internal/alias"
	"github.com/dativo-io/masquerade/internal/classifier"
	"github.com/dativo-io/masquerade/internal/entity"
	"github.com/dativo-io/masquerade/internal/testutil"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	reg, err := alias.NewRegistry()
	require.NoError(t, err)
	return NewEngine(classifier.MustNewMatcher(), reg, opts...)
}

const scenario = "Email me at john@example.com or call 555-123-4567, john@example.com again"

func TestRedact_EmailPhoneScenario(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Redact(context.Background(), Text(scenario).WithScope("s1"))
	require.NoError(t, err)

	assert.Equal(t, "Email me at [EMAIL_1] or call [PHONE_1], [EMAIL_1] again", res.RedactedContent)
	assert.Equal(t, 3, res.RedactionCount)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, entity.Email, res.Entities[0].Type)
	assert.Equal(t, 2, res.Entities[0].Occurrences)
	assert.Equal(t, entity.Phone, res.Entities[1].Type)
	assert.Equal(t, "[PHONE_1]", res.Entities[1].Alias)
	assert.Equal(t, TypeText, res.ContentType)
	assert.Equal(t, "s1", res.ScopeID)
	assert.False(t, res.Degraded)
	assert.True(t, res.Diagnostics.AISkipped)
}

func TestRedact_CountAtLeastEntities(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Redact(context.Background(), Text("a@x.io b@x.io a@x.io a@x.io"))
	require.NoError(t, err)
	occurrences := 0
	for _, ent := range res.Entities {
		occurrences += ent.Occurrences
	}
	assert.Equal(t, occurrences, res.RedactionCount)
	assert.GreaterOrEqual(t, res.RedactionCount, len(res.Entities))
	assert.Equal(t, []string{"[EMAIL_1]", "[EMAIL_2]"}, res.Aliases())
}

func TestRedact_AliasesStableWithinScope(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.Redact(ctx, Text("first jane@example.com").WithScope("s"))
	require.NoError(t, err)
	res, err := e.Redact(ctx, Text("then john@example.com and jane@example.com").WithScope("s"))
	require.NoError(t, err)
	assert.Equal(t, "then [EMAIL_2] and [EMAIL_1]", res.RedactedContent)

	other, err := e.Redact(ctx, Text("john@example.com").WithScope("other"))
	require.NoError(t, err)
	assert.Equal(t, "[EMAIL_1]", other.RedactedContent)
}

func TestRedact_MergesAIFindings(t *testing.T) {
	fake := &testutil.FakeExtractor{Values: map[entity.Type][]string{
		entity.PersonName: {"John Smith"},
		entity.Email:      {"john@example.com"},
	}}
	e := newTestEngine(t, WithExtractor(fake))

	res, err := e.Redact(context.Background(), Text("John Smith wrote to john@example.com. John Smith said hi"))
	require.NoError(t, err)
	assert.Equal(t, "[PERSON_1] wrote to [EMAIL_1]. [PERSON_1] said hi", res.RedactedContent)
	assert.Equal(t, 3, res.RedactionCount)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, entity.PersonName, res.Entities[0].Type)
	assert.Equal(t, entity.SourceAI, res.Entities[0].Source)
	assert.Equal(t, entity.SourceBoth, res.Entities[1].Source)
	assert.Equal(t, 1, res.Diagnostics.Detection.Deduplicated)
	assert.Equal(t, "fake-text", res.Diagnostics.AIModel)
	assert.Equal(t, 1, fake.Calls())
}

func TestRedact_AIFailureDegrades(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unavailable", testutil.Unavailable().Err},
		{"unexpected error", errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, WithExtractor(&testutil.FakeExtractor{Err: tt.err}))
			res, err := e.Redact(context.Background(), Text(scenario))
			require.NoError(t, err)
			assert.True(t, res.Degraded)
			assert.NotEmpty(t, res.Diagnostics.AIError)
			assert.Equal(t, 3, res.RedactionCount)
		})
	}
}

func TestRedact_BlankContentSkipsExtractor(t *testing.T) {
	fake := testutil.Unavailable()
	e := newTestEngine(t, WithExtractor(fake))
	for _, in := range []string{"", "  \n\t"} {
		res, err := e.Redact(context.Background(), Text(in))
		require.NoError(t, err)
		assert.False(t, res.Degraded, "%q", in)
		assert.Empty(t, res.Diagnostics.AIError)
	}
	assert.Zero(t, fake.Calls())
}

func TestRedact_EmptyInputSucceeds(t *testing.T) {
	e := newTestEngine(t)
	for _, in := range []string{"", "   \n", "nothing sensitive here"} {
		res, err := e.Redact(context.Background(), Text(in))
		require.NoError(t, err)
		assert.Zero(t, res.RedactionCount)
		assert.Empty(t, res.Entities)
		assert.NotNil(t, res.Entities)
		assert.Equal(t, in, res.RedactedContent)
	}
}

func TestRedact_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(binary, []byte{0x00, 0x01, 0x02}, 0o644))

	tests := []struct {
		name string
		in   Input
	}{
		{"binary text", Text("\x00\x01\x02\x03binary")},
		{"missing file", File(filepath.Join(dir, "missing.txt"))},
		{"unknown extension", File(binary)},
		{"pdf hint on text", Text("hello").WithHint(TypePDF)},
		{"directory", File(dir)},
	}
	e := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Redact(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, res)
		})
	}
}

func TestRedact_TextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("ping a@x.io"), 0o644))

	res, err := newTestEngine(t).Redact(context.Background(), Auto(path))
	require.NoError(t, err)
	assert.Equal(t, "ping [EMAIL_1]", res.RedactedContent)
	assert.Equal(t, path, res.SourcePath)
	assert.Empty(t, res.OutputPath)
}

func TestRedact_CodeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.py")
	src := "ADMIN = \"ops@example.com\"\nPHONE = \"555-123-4567\"\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	res, err := newTestEngine(t).Redact(context.Background(), File(path))
	require.NoError(t, err)
	assert.Equal(t, TypeCode, res.ContentType)
	assert.Equal(t, "python", res.Language)
	assert.Equal(t, filepath.Join(dir, "settings_redacted.py"), res.OutputPath)

	out, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "ADMIN = \"[EMAIL_1]\"\nPHONE = \"[PHONE_1]\"\n", string(out))

	original, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, src, string(original), "input must not be modified")

	info, err := os.Stat(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRedact_CodeFileLatin1(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.sql")
	src := []byte("-- Autor: Jos\xe9, jose@example.com\n")
	require.NoError(t, os.WriteFile(path, src, 0o644))

	res, err := newTestEngine(t).Redact(context.Background(), File(path))
	require.NoError(t, err)
	assert.Contains(t, res.RedactedContent, "José")

	out, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("-- Autor: Jos\xe9, [EMAIL_1]\n"), out)
}

func TestRedact_WriteFailureKeepsResult(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.js")
	require.NoError(t, os.WriteFile(path, []byte(`const to = "a@x.io";`), 0o644))
	// A directory in the way makes the rename fail.
	blocker := filepath.Join(dir, "app_redacted.js")
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "child"), 0o755))

	e := newTestEngine(t)
	res, err := e.Redact(ctx, File(path))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrPartialWrite)

	var we *WriteError
	require.ErrorAs(t, err, &we)
	require.NotNil(t, we.Result)
	assert.Equal(t, blocker, we.Path)
	assert.Equal(t, `const to = "[EMAIL_1]";`, we.Result.RedactedContent)

	require.NoError(t, os.RemoveAll(blocker))
	require.NoError(t, e.WriteArtifacts(ctx, we.Result))
	out, err := os.ReadFile(blocker)
	require.NoError(t, err)
	assert.Equal(t, `const to = "[EMAIL_1]";`, string(out))
}

type fakePages struct {
	pages []string
	err   error
}

func (f fakePages) Pages(context.Context, string) ([]string, error) { return f.pages, f.err }

type captureWriter struct {
	mu      sync.Mutex
	written map[string][]string
	err     error
}

func (w *captureWriter) Write(_ context.Context, path string, pages []string) error {
	if w.err != nil {
		return w.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.written == nil {
		w.written = make(map[string][]string)
	}
	w.written[path] = pages
	return nil
}

func emptyPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n"), 0o644))
	return path
}

func TestRedact_PDFCrossPageConsistency(t *testing.T) {
	path := emptyPDF(t)
	pages := fakePages{pages: []string{
		"Owner: jane@example.com",
		"",
		"CC john@example.com and jane@example.com, call 555-123-4567",
	}}
	w := &captureWriter{}
	e := newTestEngine(t, WithPageReader(pages), WithDocumentWriter(w), WithPageWorkers(2))

	res, err := e.Redact(context.Background(), File(path).WithScope("doc"))
	require.NoError(t, err)
	assert.Equal(t, TypePDF, res.ContentType)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 4, res.RedactionCount)
	require.Len(t, res.Entities, 3)
	assert.Equal(t, "[EMAIL_1]", res.Entities[0].Alias)
	assert.Equal(t, 2, res.Entities[0].Occurrences)
	assert.Equal(t, 2, res.Entities[0].Spans[1].Page)

	redacted := w.written[res.OutputPath]
	require.Len(t, redacted, 3)
	assert.Equal(t, "Owner: [EMAIL_1]", redacted[0])
	assert.Equal(t, "CC [EMAIL_2] and [EMAIL_1], call [PHONE_1]", redacted[2])

	highlighted := w.written[res.HighlightedPath]
	require.Len(t, highlighted, 3)
	assert.Equal(t, "Owner: ⟦jane@example.com→[EMAIL_1]⟧", highlighted[0])
	assert.Equal(t, filepath.Join(filepath.Dir(path), "report_highlighted.pdf"), res.HighlightedPath)
	assert.Equal(t, "Owner: [EMAIL_1]\f\fCC [EMAIL_2] and [EMAIL_1], call [PHONE_1]", res.RedactedContent)
}

func TestRedact_PDFReadFailureIsInvalidInput(t *testing.T) {
	e := newTestEngine(t, WithPageReader(fakePages{err: errors.New("not a pdf")}))
	_, err := e.Redact(context.Background(), File(emptyPDF(t)))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRedact_PDFWriteFailure(t *testing.T) {
	w := &captureWriter{err: errors.New("disk full")}
	e := newTestEngine(t, WithPageReader(fakePages{pages: []string{"a@x.io"}}), WithDocumentWriter(w))
	_, err := e.Redact(context.Background(), File(emptyPDF(t)))
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "[EMAIL_1]", we.Result.RedactedContent)

	w.err = nil
	require.NoError(t, e.WriteArtifacts(context.Background(), we.Result))
	assert.Len(t, w.written, 2)
}

func TestRedact_PDFRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "letter.pdf")
	require.NoError(t, NewTextPDFWriter().Write(context.Background(), path, []string{"Contact john@example.com today"}))

	res, err := newTestEngine(t).Redact(context.Background(), File(path))
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)

	pages, err := PDFReader{}.Pages(context.Background(), res.OutputPath)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0], "[EMAIL_1]")
	assert.NotContains(t, pages[0], "john@example.com")

	review, err := PDFReader{}.Pages(context.Background(), res.HighlightedPath)
	require.NoError(t, err)
	assert.Contains(t, review[0], "john@example.com")
}

func TestRedactConversation(t *testing.T) {
	e := newTestEngine(t)
	results, err := e.RedactConversation(context.Background(), "chat", []string{
		"my email is a@x.io",
		"and my colleague is b@x.io",
		"please write to a@x.io",
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "please write to [EMAIL_1]", results[2].RedactedContent)
	assert.Equal(t, "and my colleague is [EMAIL_2]", results[1].RedactedContent)

	_, err = e.RedactConversation(context.Background(), "chat", []string{"ok", "\x00\x01\x02"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngine_ScopeOperations(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.Redact(ctx, Text(scenario).WithScope("s"))
	require.NoError(t, err)

	a, err := e.ResolveAlias(ctx, "s", entity.Email, "john@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, "[EMAIL_1]", a)

	data, err := e.ExportMappings(ctx, "s", "json")
	require.NoError(t, err)
	var ex alias.Export
	require.NoError(t, json.Unmarshal(data, &ex))
	assert.Equal(t, 2, ex.Count)

	n, err := e.ClearScope(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := e.Redact(ctx, Text("call 555-123-4567").WithScope("s"))
	require.NoError(t, err)
	assert.Equal(t, "call [PHONE_1]", res.RedactedContent)
}

func TestRedact_ConcurrentCallsShareAliases(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	var wg sync.WaitGroup
	out := make([]string, 12)
	for i := range out {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Redact(ctx, Text("x@y.io then z@y.io").WithScope("shared"))
			if err != nil {
				t.Error(err)
				return
			}
			out[i] = res.RedactedContent
		}(i)
	}
	wg.Wait()
	for _, got := range out {
		assert.Equal(t, "[EMAIL_1] then [EMAIL_2]", got)
	}
}
