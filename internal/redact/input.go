package redact

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// InputKind tells whether an Input carries content or names a file.
type InputKind int

const (
	KindText InputKind = iota
	KindPath
)

// Input is a tagged redaction request.
type Input struct {
	Kind InputKind
	Text string
	Path string
	// Hint forces a content type; empty means classify.
	Hint ContentType
	// Language overrides the language derived from a code file name.
	Language string
	ScopeID  string
}

// Text wraps raw content.
func Text(s string) Input {
	return Input{Kind: KindText, Text: s}
}

// File names a file to redact.
func File(path string) Input {
	return Input{Kind: KindPath, Path: path}
}

// Auto treats s as a path when it names an existing regular file and as raw
// text otherwise.
func Auto(s string) Input {
	candidate := strings.TrimSpace(s)
	if candidate != "" && !strings.ContainsAny(candidate, "\n\x00") {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return File(candidate)
		}
	}
	return Text(s)
}

// WithScope returns a copy of in bound to scope.
func (in Input) WithScope(scope string) Input {
	in.ScopeID = scope
	return in
}

// WithHint returns a copy of in with a forced content type.
func (in Input) WithHint(t ContentType) Input {
	in.Hint = t
	return in
}

// WithLanguage returns a copy of in with an explicit code language.
func (in Input) WithLanguage(lang string) Input {
	in.Language = lang
	return in
}

// Classification is the resolved dispatch decision for an Input.
type Classification struct {
	Type     ContentType
	Language string
}

// Classify decides the content type of in. An unknown type is terminal and
// reported as ErrInvalidInput.
func Classify(in Input) (Classification, error) {
	switch in.Kind {
	case KindPath:
		return classifyFile(in)
	case KindText:
		return classifyText(in)
	default:
		return Classification{}, invalidInput("unknown input kind %d", in.Kind)
	}
}

func classifyFile(in Input) (Classification, error) {
	if strings.TrimSpace(in.Path) == "" {
		return Classification{}, invalidInput("empty path")
	}
	info, err := os.Stat(in.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Classification{}, invalidInput("file %s does not exist", in.Path)
		}
		return Classification{}, invalidInput("stat %s: %v", in.Path, err)
	}
	if !info.Mode().IsRegular() {
		return Classification{}, invalidInput("%s is not a regular file", in.Path)
	}

	t, lang := classifyPath(in.Path)
	if in.Hint != "" {
		t = in.Hint
	}
	if in.Language != "" {
		lang = in.Language
	}
	if t == TypeUnknown {
		return Classification{}, invalidInput("unsupported file type %s", in.Path)
	}
	return Classification{Type: t, Language: lang}, nil
}

func classifyText(in Input) (Classification, error) {
	switch in.Hint {
	case TypePDF:
		return Classification{}, invalidInput("pdf content must be given as a file")
	case TypeCode:
		return Classification{Type: TypeCode, Language: in.Language}, nil
	case TypeText:
		return Classification{Type: TypeText}, nil
	}
	if !plausibleText(in.Text) {
		return Classification{}, invalidInput("content is not text")
	}
	return Classification{Type: TypeText}, nil
}

// plausibleText accepts valid UTF-8 without NUL bytes where control
// characters other than tab, newline and carriage return stay under 10%.
func plausibleText(s string) bool {
	if !utf8.ValidString(s) || strings.IndexByte(s, 0) >= 0 {
		return false
	}
	total, control := 0, 0
	for _, r := range s {
		total++
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			control++
		}
	}
	return total == 0 || control*10 < total
}
