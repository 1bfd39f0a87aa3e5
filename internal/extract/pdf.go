package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns the text of each page, stopping after maxPages pages, and the
// document's page count. Pages without a content stream yield empty text.
func extractPDF(content []byte, maxPages int) ([]string, int, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, 0, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	limit := numPages
	if maxPages > 0 && maxPages < limit {
		limit = maxPages
	}
	pages := make([]string, 0, limit)
	for i := 1; i <= limit; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, 0, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, numPages, nil
}
