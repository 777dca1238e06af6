package document

import "fmt"

// NoTextPlaceholder is the preview shown when no text could be extracted.
const NoTextPlaceholder = "[no extractable text found in document]"

// Summary is the file_processed record returned to clients.
type Summary struct {
	Filename  string `json:"filename"`
	FileType  string `json:"file_type"`
	PageCount int    `json:"page_count"`
	SizeBytes int    `json:"size_bytes"`
	Title     string `json:"title,omitempty"`
	Summary   string `json:"summary"`
}

// Summary builds the file_processed record with a preview of the leading
// previewChars characters.
func (d *Document) Summary(previewChars int) *Summary {
	preview := NoTextPlaceholder
	if d.Text != "" {
		preview = Preview(d.Text, previewChars)
	}
	return &Summary{
		Filename:  d.Filename,
		FileType:  d.FileType,
		PageCount: d.PageCount,
		SizeBytes: d.SizeBytes,
		Title:     d.Title,
		Summary:   preview,
	}
}

// Preview keeps the leading n characters and appends "..." when text is longer.
func Preview(text string, n int) string {
	runes := []rune(text)
	if n <= 0 || len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

// Truncate keeps the leading n characters and appends a marker recording how
// much was dropped. Text within the bound is returned unchanged.
func Truncate(text string, n int) string {
	runes := []rune(text)
	if n <= 0 || len(runes) <= n {
		return text
	}
	return fmt.Sprintf("%s\n[... truncated: showing %d of %d characters]", string(runes[:n]), n, len(runes))
}
