package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/masquerade/internal/entity"
	"github.com/dativo-io/masquerade/internal/extractor"
)

func TestLocate_AllOccurrences(t *testing.T) {
	content := "Ann met John Smith. Later John Smith left."
	findings := Locate(content, 0, []extractor.Item{{Type: entity.PersonName, Value: "John Smith", Confidence: 0.9, Category: "personal_names"}})

	require.Len(t, findings, 2)
	assert.Equal(t, entity.Span{Start: 8, End: 18}, findings[0].Span)
	assert.Equal(t, entity.Span{Start: 26, End: 36}, findings[1].Span)
	assert.Equal(t, entity.SourceAI, findings[0].Source)
	assert.Equal(t, "ai:personal_names", findings[0].Recognizer)
}

func TestLocate_RejectsInsideWord(t *testing.T) {
	content := "Annual report by Ann"
	findings := Locate(content, 0, []extractor.Item{{Type: entity.PersonName, Value: "Ann"}})
	require.Len(t, findings, 1)
	assert.Equal(t, 17, findings[0].Span.Start)
}

func TestLocate_CaseAndWhitespaceFallback(t *testing.T) {
	content := "Signed: JOHN\n  SMITH"
	findings := Locate(content, 3, []extractor.Item{{Type: entity.PersonName, Value: "John Smith"}})
	require.Len(t, findings, 1)
	assert.Equal(t, "JOHN\n  SMITH", findings[0].Value)
	assert.Equal(t, 3, findings[0].Span.Page)
}

func TestLocate_ExactWinsOverFallback(t *testing.T) {
	content := "acme and ACME"
	findings := Locate(content, 0, []extractor.Item{{Type: entity.CompanyName, Value: "ACME"}})
	require.Len(t, findings, 1)
	assert.Equal(t, 9, findings[0].Span.Start)
}

func TestLocate_MissingAndEmptyValues(t *testing.T) {
	findings := Locate("nothing here", 0, []extractor.Item{
		{Type: entity.PersonName, Value: "Ghost"},
		{Type: entity.PersonName, Value: "  "},
	})
	assert.Empty(t, findings)
}

func TestLocate_UnicodeBoundaries(t *testing.T) {
	content := "Grüße an Jürgen, nicht Jürgenson"
	findings := Locate(content, 0, []extractor.Item{{Type: entity.PersonName, Value: "Jürgen"}})
	require.Len(t, findings, 1)
	assert.Equal(t, "Jürgen", content[findings[0].Span.Start:findings[0].Span.End])
}
