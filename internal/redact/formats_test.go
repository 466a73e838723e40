package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupportedFormats(t *testing.T) {
	f := SupportedFormats()
	assert.Equal(t, []string{".pdf"}, f.PDF)
	assert.Contains(t, f.Code, ".py")
	assert.Contains(t, f.Code, "dockerfile")
	assert.Contains(t, f.Text, ".md")
	assert.Contains(t, f.Text, "chat messages")
	assert.Equal(t, "typescript", f.Languages[".ts"])
}

func TestParseContentType(t *testing.T) {
	tests := []struct {
		in   string
		want ContentType
		ok   bool
	}{
		{"", "", true},
		{"auto", "", true},
		{"TEXT", TypeText, true},
		{" code ", TypeCode, true},
		{"pdf", TypePDF, true},
		{"docx", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseContentType(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestLanguageFor(t *testing.T) {
	assert.Equal(t, "go", LanguageFor("main.go"))
	assert.Equal(t, "", LanguageFor("notes.txt"))
	assert.Equal(t, "", LanguageFor("a.pdf"))
}
