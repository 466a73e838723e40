package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/masquerade/internal/entity"
)

func TestParseResponse_ThinkBlockAndDuplicates(t *testing.T) {
	raw := "<think>the user wants names</think>\n" + `{"personal_names": ["Ann Lee", "Ann Lee", " "], "api_keys": ["sk-abc"]}`
	items, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "sk-abc", items[0].Value, "categories are visited in sorted order")
	assert.Equal(t, entity.APIKey, items[0].Type)
	assert.Equal(t, entity.PersonName, items[1].Type)
}

func TestParseResponse_EmptyObject(t *testing.T) {
	items, err := ParseResponse(`{}`)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseResponse_Errors(t *testing.T) {
	_, err := ParseResponse("nothing here")
	require.ErrorIs(t, err, errMalformedResponse)
	_, err = ParseResponse(`{"emails": [1, 2]}`)
	require.ErrorIs(t, err, errMalformedResponse)
}

func TestStripHelpers(t *testing.T) {
	assert.Equal(t, `{"a":[]}`, stripCodeFence("```json\n{\"a\":[]}\n```"))
	assert.Equal(t, "answer", stripThinkBlock("<think>hmm</think>answer"))
	assert.Equal(t, "", stripThinkBlock("<think>never closed"))
	assert.Equal(t, `{"a":1}`, extractJSONObject(`Sure! {"a":1} hope that helps`))
	assert.Equal(t, "", extractJSONObject("no braces"))
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("def f(): pass", Hint{Kind: KindCode, Language: "python"})
	assert.Contains(t, p, "source code")
	assert.Contains(t, p, "python")
	assert.Contains(t, p, `"database_credentials"`)
	assert.NotContains(t, p, `"dates_of_birth"`)

	pdf := BuildPrompt("page", Hint{Kind: KindPDF})
	assert.Contains(t, pdf, "document text")

	fallback := BuildPrompt("x", Hint{Kind: "weird"})
	assert.Contains(t, fallback, `"passwords"`)
}

func TestCategoriesAreAllMapped(t *testing.T) {
	for _, kind := range []Kind{KindText, KindCode, KindPDF} {
		for _, c := range Categories(kind) {
			_, ok := categoryTypes[c]
			assert.True(t, ok, "category %s for %s has no entity type", c, kind)
		}
	}
	assert.Contains(t, SupportedCategories(), "emails")
}
