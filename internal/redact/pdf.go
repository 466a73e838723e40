package redact

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ledongthuc/pdf"
)

// PageReader extracts the plain text of each page of a document.
type PageReader interface {
	Pages(ctx context.Context, path string) ([]string, error)
}

// DocumentWriter writes one output page per input page.
type DocumentWriter interface {
	Write(ctx context.Context, path string, pages []string) error
}

// PDFReader reads page text with ledongthuc/pdf.
type PDFReader struct{}

// Pages returns the text of every page; pages without content are "".
func (PDFReader) Pages(ctx context.Context, path string) (pages []string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("parsing pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("reading page %d of %s: %w", i, path, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// TextPDFWriter writes plain text as a PDF with the standard Helvetica
// font, one sheet per input page. Long pages spill onto extra sheets.
type TextPDFWriter struct {
	FontSize float64 // points
	Leading  float64 // line height in points
	Margin   float64 // points on every side
}

// NewTextPDFWriter returns a writer with US Letter defaults.
func NewTextPDFWriter() *TextPDFWriter {
	return &TextPDFWriter{FontSize: 10, Leading: 13, Margin: 56}
}

// Write renders pages to path through a temp file and rename.
func (w *TextPDFWriter) Write(_ context.Context, path string, pages []string) error {
	data, err := w.Render(pages)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data, 0o644)
}

// The core fonts are cp1252; these runes have no code point there.
var pdfMarkers = strings.NewReplacer(HighlightOpen, "[[", HighlightClose, "]]", HighlightArrow, " -> ")

// Render builds the PDF bytes.
func (w *TextPDFWriter) Render(pages []string) ([]byte, error) {
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetMargins(w.Margin, w.Margin, w.Margin)
	doc.SetAutoPageBreak(true, w.Margin)
	doc.SetCreator("masquerade", false)
	doc.SetFont("Helvetica", "", w.FontSize)
	tr := doc.UnicodeTranslatorFromDescriptor("cp1252")

	if len(pages) == 0 {
		pages = []string{""}
	}
	for _, page := range pages {
		doc.AddPage()
		text := strings.TrimRight(strings.ReplaceAll(page, "\r\n", "\n"), "\n")
		if text == "" {
			continue
		}
		doc.MultiCell(0, w.Leading, tr(pdfMarkers.Replace(text)), "", "L", false)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// siblingPath returns <dir>/<name><suffix><ext> for path. Dotfiles such as
// ".env" keep their name whole.
func siblingPath(path, suffix string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext == base {
		ext = ""
	}
	return filepath.Join(filepath.Dir(path), strings.TrimSuffix(base, ext)+suffix+ext)
}

func fileMode(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}
