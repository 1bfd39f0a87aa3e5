package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/internal/policy"
)

const (
	excerptsStart = "<<EXCERPTS>>"
	excerptsEnd   = "<<END>>"
)

const chatRules = `You answer questions about a single document using only the numbered excerpts between <<EXCERPTS>> and <<END>>.
Rules:
1. Base every statement on the excerpts; do not use outside knowledge.
2. Cite the pages you used like [p. 4] or [p. 4-5].
3. If the excerpts do not contain the answer, say that the document does not cover it.
4. Answer in the language of the question.`

const lowConfidenceNote = "The excerpts matched the question only weakly. If they do not answer it, say that the document does not appear to cover this topic instead of guessing."

const compareSystemPrompt = "You compare two documents using only the excerpts provided for each. Respond with a single JSON object and nothing else."

func pageLabel(start, end int) string {
	if start == end {
		return fmt.Sprintf("p. %d", start)
	}
	return fmt.Sprintf("p. %d-%d", start, end)
}

func writeExcerpts(b *strings.Builder, results []models.Result) {
	for i, r := range results {
		fmt.Fprintf(b, "[%d] (%s) %s\n", i+1, pageLabel(r.Chunk.PageStart, r.Chunk.PageEnd), r.Chunk.Text)
	}
}

func chatSystemPrompt(title string, results []models.Result, lowConfidence bool) string {
	var b strings.Builder
	b.WriteString(chatRules)
	if title != "" {
		fmt.Fprintf(&b, "\n\nDocument: %s", title)
	}
	if lowConfidence {
		b.WriteString("\n\n")
		b.WriteString(lowConfidenceNote)
	}
	b.WriteString("\n\n")
	b.WriteString(excerptsStart)
	b.WriteString("\n")
	writeExcerpts(&b, results)
	b.WriteString(excerptsEnd)
	return b.String()
}

func comparePrompt(task string, mode policy.CompareMode, left, right *models.Document, leftResults, rightResults []models.Result) string {
	if strings.TrimSpace(task) == "" {
		task = policy.DefaultCompareTask
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nComparison focus: %s\n", task, mode)
	fmt.Fprintf(&b, "\nDocument A (%s) excerpts:\n", left.Title)
	writeExcerpts(&b, leftResults)
	fmt.Fprintf(&b, "\nDocument B (%s) excerpts:\n", right.Title)
	writeExcerpts(&b, rightResults)
	b.WriteString("\nRespond with JSON in exactly this shape:\n")
	b.WriteString(`{"verdict": "similar|different|mixed|unclear", "similarities": ["..."], ` +
		`"differences": [{"topic": "...", "left": "what A says", "right": "what B says"}], "summary": "..."}`)
	b.WriteString("\nCite pages like [p. 3] inside the strings. Use \"unclear\" when the excerpts are not enough to decide.\n")
	return b.String()
}

const verdictUnclear = "unclear"

var verdicts = map[string]bool{"similar": true, "different": true, "mixed": true, verdictUnclear: true}

type comparisonJSON struct {
	Verdict      string                   `json:"verdict"`
	Similarities []string                 `json:"similarities"`
	Differences  []models.ComparisonPoint `json:"differences"`
	Summary      string                   `json:"summary"`
}

// parseComparison extracts the JSON object from a model response. Anything that
// does not parse yields the unclear verdict with the raw text as the summary.
func parseComparison(raw string) comparisonJSON {
	out := comparisonJSON{Verdict: verdictUnclear}
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end <= start || json.Unmarshal([]byte(raw[start:end+1]), &out) != nil {
		out = comparisonJSON{Verdict: verdictUnclear, Summary: strings.TrimSpace(raw)}
	}
	out.Verdict = strings.ToLower(strings.TrimSpace(out.Verdict))
	if !verdicts[out.Verdict] {
		out.Verdict = verdictUnclear
	}
	if out.Similarities == nil {
		out.Similarities = []string{}
	}
	if out.Differences == nil {
		out.Differences = []models.ComparisonPoint{}
	}
	out.Summary = strings.TrimSpace(out.Summary)
	return out
}
