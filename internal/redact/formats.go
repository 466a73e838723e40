package redact

import (
	"path/filepath"
	"sort"
	"strings"
)

// ContentType is the redaction path an input takes.
type ContentType string

const (
	TypeText    ContentType = "text"
	TypeCode    ContentType = "code"
	TypePDF     ContentType = "pdf"
	TypeUnknown ContentType = "unknown"
)

// ParseContentType maps a user-supplied hint; "" and "auto" mean no hint.
func ParseContentType(s string) (ContentType, bool) {
	switch ContentType(strings.ToLower(strings.TrimSpace(s))) {
	case "", "auto":
		return "", true
	case TypeText:
		return TypeText, true
	case TypeCode:
		return TypeCode, true
	case TypePDF:
		return TypePDF, true
	}
	return "", false
}

var codeExtensions = map[string]string{
	".py":         "python",
	".js":         "javascript",
	".jsx":        "javascript",
	".ts":         "typescript",
	".tsx":        "typescript",
	".java":       "java",
	".cpp":        "cpp",
	".cc":         "cpp",
	".h":          "c",
	".c":          "c",
	".cs":         "csharp",
	".php":        "php",
	".rb":         "ruby",
	".go":         "go",
	".rs":         "rust",
	".swift":      "swift",
	".kt":         "kotlin",
	".scala":      "scala",
	".r":          "r",
	".m":          "matlab",
	".sh":         "bash",
	".ps1":        "powershell",
	".sql":        "sql",
	".html":       "html",
	".htm":        "html",
	".css":        "css",
	".xml":        "xml",
	".json":       "json",
	".yaml":       "yaml",
	".yml":        "yaml",
	".toml":       "toml",
	".ini":        "ini",
	".cfg":        "config",
	".conf":       "config",
	".properties": "config",
	".env":        "env",
	".tf":         "terraform",
	".dockerfile": "dockerfile",
	".docker":     "dockerfile",
}

// Extension-less file names recognized as code.
var codeFileNames = map[string]string{
	"dockerfile": "dockerfile",
	"makefile":   "make",
}

var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".log": true,
	".csv": true,
}

// classifyPath returns the content type and language implied by a file name.
func classifyPath(path string) (ContentType, string) {
	base := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		return TypePDF, ""
	case textExtensions[ext]:
		return TypeText, ""
	}
	if lang, ok := codeExtensions[ext]; ok {
		return TypeCode, lang
	}
	if lang, ok := codeFileNames[base]; ok {
		return TypeCode, lang
	}
	return TypeUnknown, ""
}

// LanguageFor returns the language for a code file name, or "".
func LanguageFor(path string) string {
	if t, lang := classifyPath(path); t == TypeCode {
		return lang
	}
	return ""
}

// Formats lists what each content type accepts.
type Formats struct {
	PDF  []string `json:"pdf"`
	Code []string `json:"code"`
	Text []string `json:"text"`
	// Languages maps code extensions to the language used for AI prompts.
	Languages map[string]string `json:"languages"`
}

// SupportedFormats reports the accepted file extensions per content type.
func SupportedFormats() Formats {
	f := Formats{
		PDF:       []string{".pdf"},
		Languages: make(map[string]string, len(codeExtensions)),
	}
	for ext, lang := range codeExtensions {
		f.Code = append(f.Code, ext)
		f.Languages[ext] = lang
	}
	for name := range codeFileNames {
		f.Code = append(f.Code, name)
	}
	for ext := range textExtensions {
		f.Text = append(f.Text, ext)
	}
	sort.Strings(f.Code)
	sort.Strings(f.Text)
	f.Text = append(f.Text, "plain text", "chat messages", "prompts")
	return f
}
