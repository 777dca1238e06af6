// Package document extracts plain text from uploaded files.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	// DefaultMaxBytes is the default upload size cap (10 MiB).
	DefaultMaxBytes = 10 * 1024 * 1024

	FileTypePDF  = "pdf"
	FileTypeText = "text"
)

var (
	// ErrUnsupportedFormat is returned for file types the extractor cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorruptDocument is returned when a file cannot be parsed.
	ErrCorruptDocument = errors.New("corrupt document")
	// ErrTooLarge is returned when a file exceeds the size cap.
	ErrTooLarge = errors.New("document too large")
)

// Document is the text extracted from one upload. It is request-scoped.
type Document struct {
	Filename  string
	FileType  string
	Text      string
	PageCount int
	Title     string
	SizeBytes int
}

// Extractor converts raw bytes plus a filename into a Document.
type Extractor struct {
	maxBytes int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxBytes sets the size cap.
func WithMaxBytes(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

// NewExtractor creates an extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the document. Errors are terminal; there is no retry.
func (e *Extractor) Extract(data []byte, filename string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	var fileType string
	switch ext {
	case ".pdf":
		fileType = FileTypePDF
	case ".txt", ".md":
		fileType = FileTypeText
	default:
		return nil, fmt.Errorf("%w: %q (allowed: .pdf, .txt, .md)", ErrUnsupportedFormat, ext)
	}

	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, len(data), e.maxBytes)
	}

	doc := &Document{
		Filename:  filepath.Base(filename),
		FileType:  fileType,
		SizeBytes: len(data),
	}

	switch fileType {
	case FileTypePDF:
		if err := extractPDF(data, doc); err != nil {
			return nil, err
		}
	case FileTypeText:
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: %s is not valid UTF-8 text", ErrCorruptDocument, doc.Filename)
		}
		doc.Text = strings.TrimSpace(string(data))
		doc.PageCount = 1
	}

	return doc, nil
}

// extractPDF collects text per page. Pages that fail to decode are skipped.
// The parser panics on some malformed input, which is reported as corrupt.
func extractPDF(data []byte, doc *Document) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrCorruptDocument, doc.Filename, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptDocument, doc.Filename, err)
	}

	doc.PageCount = reader.NumPage()
	doc.Title = pdfTitle(reader)

	var text strings.Builder
	for i := 1; i <= doc.PageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(pageText) == "" {
			continue
		}
		fmt.Fprintf(&text, "\n--- Page %d ---\n%s\n", i, strings.TrimSpace(pageText))
	}
	doc.Text = strings.TrimSpace(text.String())
	return nil
}

func pdfTitle(reader *pdf.Reader) (title string) {
	defer func() {
		if recover() != nil {
			title = ""
		}
	}()
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return ""
	}
	return strings.TrimSpace(info.Key("Title").Text())
}

// Describe returns a one-line description used in prompts.
func (d *Document) Describe() string {
	return fmt.Sprintf("%s document named %q (%d pages/sections, %d bytes)",
		strings.ToUpper(d.FileType), d.Filename, d.PageCount, d.SizeBytes)
}
