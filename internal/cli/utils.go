// Package cli provides output formatting and an API client for the bunko CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/bunko/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

const rule = "─────────────────────────────────────────────────────────"

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes per-document retrieval results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d excerpts in %s in %dms\n\n", len(response.Results), response.DocumentID, response.QueryTime)
	for i, r := range response.Results {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | %s | %s\n", i+1, r.Score, pageRange(r.Chunk.PageStart, r.Chunk.PageEnd), r.Chunk.ID)
		fmt.Fprintf(w, "\n%s\n\n", Truncate(r.Chunk.Text, 400))
	}
	return nil
}

// WriteAnswer writes a chat answer and its sources.
func WriteAnswer(w io.Writer, ans *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, ans)
	}
	fmt.Fprintf(w, "\n%s\n", ans.Answer)
	if ans.ConversationID != "" {
		fmt.Fprintf(w, "\nconversation: %s\n", ans.ConversationID)
	}
	writeCitations(w, "Sources", ans.Sources)
	return nil
}

// WriteSummary writes a document summary and its sources.
func WriteSummary(w io.Writer, sum *models.Summary, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, sum)
	}
	cached := ""
	if sum.Cached {
		cached = " (cached)"
	}
	fmt.Fprintf(w, "\nSummary of %s%s\n\n%s\n", sum.DocumentID, cached, sum.Summary)
	writeCitations(w, "Sources", sum.Sources)
	return nil
}

// WriteComparison writes a two-document comparison.
func WriteComparison(w io.Writer, cmp *models.Comparison, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, cmp)
	}
	fmt.Fprintf(w, "\nComparing %s (A) with %s (B), mode %s\n", cmp.LeftID, cmp.RightID, cmp.Mode)
	fmt.Fprintf(w, "Verdict: %s\n", cmp.Verdict)
	if cmp.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", cmp.Summary)
	}
	if len(cmp.Similarities) > 0 {
		fmt.Fprintln(w, "\nSimilarities:")
		for _, s := range cmp.Similarities {
			fmt.Fprintf(w, "  • %s\n", s)
		}
	}
	if len(cmp.Differences) > 0 {
		fmt.Fprintln(w, "\nDifferences:")
		for _, d := range cmp.Differences {
			fmt.Fprintf(w, "  • %s\n      A: %s\n      B: %s\n", d.Topic, d.Left, d.Right)
		}
	}
	writeCitations(w, "Sources A", cmp.LeftSources)
	writeCitations(w, "Sources B", cmp.RightSources)
	return nil
}

// WriteDocuments writes a document listing.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.Document{}
		}
		return WriteJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents.")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %-40s  %3d pages  %4d chunks  %s\n",
			d.ID, Truncate(d.Title, 40), d.PageCount, d.ChunkCount, d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// WriteCatalogHits writes cross-document catalog hits.
func WriteCatalogHits(w io.Writer, query string, hits []models.CatalogHit, suggestion string, format OutputFormat) error {
	if format == OutputJSON {
		if hits == nil {
			hits = []models.CatalogHit{}
		}
		return WriteJSON(w, map[string]interface{}{"query": query, "hits": hits, "suggestion": suggestion})
	}
	fmt.Fprintf(w, "\nFound %d documents for %q\n", len(hits), query)
	if suggestion != "" && suggestion != query {
		fmt.Fprintf(w, "Did you mean: %s\n", suggestion)
	}
	fmt.Fprintln(w)
	for i, h := range hits {
		fmt.Fprintf(w, "%d. %s  (score %.4f)\n   %s\n", i+1, h.Title, h.Score, h.DocumentID)
		if h.ChunkID != "" {
			fmt.Fprintf(w, "   best chunk: %s\n", h.ChunkID)
		}
	}
	return nil
}

func writeCitations(w io.Writer, heading string, cites []models.Citation) {
	if len(cites) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", heading)
	for i, c := range cites {
		fmt.Fprintf(w, "  [%d] %s (%.3f) %s\n", i+1, pageRange(c.PageStart, c.PageEnd), c.Score, TruncateWords(c.Excerpt, 20))
	}
}

func pageRange(start, end int) string {
	if start == end {
		return fmt.Sprintf("p. %d", start)
	}
	return fmt.Sprintf("pp. %d-%d", start, end)
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
