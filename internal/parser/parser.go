package parser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docaudio/internal/document"
)

// ErrUnsupported is returned for files with an extension no parser handles.
var ErrUnsupported = errors.New("unsupported file extension")

// Parser converts raw document bytes into a Document.
type Parser interface {
	Parse(r io.Reader, filename string) (*document.Document, error)
}

// SupportedExtensions lists file extensions that can be narrated.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: true}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// Extractor reads a file from disk and returns its narratable text.
type Extractor struct {
	// FallbackPdftotext lets PDFs fall back to the pdftotext binary when the
	// Go reader fails.
	FallbackPdftotext bool
}

// Extract returns the normalised text of the file at path. Pages or sections
// without text are skipped, so a document with no text at all yields "" and
// no error.
func (e Extractor) Extract(path string) (string, error) {
	doc, err := e.Document(path)
	if err != nil {
		return "", err
	}
	return Normalize(doc.Text()), nil
}

// Document parses the file at path into its section tree.
func (e Extractor) Document(path string) (*document.Document, error) {
	p, err := ForFile(path)
	if err != nil {
		return nil, err
	}
	if pp, ok := p.(*PDFParser); ok {
		pp.FallbackPdftotext = e.FallbackPdftotext
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := p.Parse(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// Extract is Extractor.Extract with the pdftotext fallback enabled.
func Extract(path string) (string, error) {
	return Extractor{FallbackPdftotext: true}.Extract(path)
}

// titleFromName strips the extension from a file name.
func titleFromName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
