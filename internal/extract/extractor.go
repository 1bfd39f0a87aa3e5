// Package extract turns document files into page-tagged text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/bunko/internal/models"
)

// Extraction is the text of a document split into pages. TotalPages counts every
// page in the source, including pages dropped by the page limit.
type Extraction struct {
	Pages      []models.Page
	TotalPages int
}

// Text joins the extracted pages with blank lines.
func (x *Extraction) Text() string {
	parts := make([]string, 0, len(x.Pages))
	for _, p := range x.Pages {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Extractor extracts pages from document files, keeping at most maxPages pages.
type Extractor struct {
	maxPages int
}

// NewExtractor returns an Extractor. maxPages <= 0 keeps every page.
func NewExtractor(maxPages int) *Extractor {
	return &Extractor{maxPages: maxPages}
}

// Extract reads the file at path and returns its pages.
func (e *Extractor) Extract(path string) (*Extraction, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts pages from content based on ext, which includes the
// leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (*Extraction, error) {
	return ExtractPages(content, ext, e.maxPages)
}

// ExtractPages splits content into pages according to its format:
// one page per PDF page, spreadsheet sheet, or presentation slide; a single page
// for word-processing documents; form-feed separated pages for plain text.
// Unknown extensions are read as plain text. Empty pages are kept so page
// numbers match the source.
func ExtractPages(content []byte, ext string, maxPages int) (*Extraction, error) {
	var (
		texts []string
		total int
		err   error
	)
	switch strings.ToLower(ext) {
	case ".pdf":
		texts, total, err = extractPDF(content, maxPages)
	case ".docx":
		texts, err = extractDOCX(content)
	case ".odt", ".rtf":
		texts, err = single(extractCat(content))
	case ".xlsx":
		texts, err = extractExcel(content)
	case ".pptx":
		texts, err = extractPPTX(content)
	case ".odp":
		texts, err = extractODP(content)
	case ".ods":
		texts, err = extractODS(content)
	default:
		texts, err = extractPlain(content)
	}
	if err != nil {
		return nil, err
	}
	if total == 0 {
		total = len(texts)
	}
	if maxPages > 0 && len(texts) > maxPages {
		texts = texts[:maxPages]
	}
	pages := make([]models.Page, len(texts))
	for i, t := range texts {
		pages[i] = models.Page{PageNumber: i + 1, Text: t}
	}
	return &Extraction{Pages: pages, TotalPages: total}, nil
}

func single(text string, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text",
	".rtf":  "application/rtf",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odp":  "application/vnd.oasis.opendocument.presentation",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".rst":  "text/x-rst",
}

// Supported reports whether ext has a dedicated extractor.
func Supported(ext string) bool {
	_, ok := contentTypes[strings.ToLower(ext)]
	return ok
}

// ContentType returns the MIME type for ext, or text/plain.
func ContentType(ext string) string {
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "text/plain"
}
