package summarize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/internal/policy"
	"github.com/hyperjump/bunko/pkg/utils"
)

const mapSystemPrompt = "You extract the key findings of document excerpts. Be concise and factual. " +
	"Use only the excerpt text; never invent numbers."

const mapInstruction = "List up to 3 key findings or claims from the excerpt, plus any quantitative results " +
	"(numbers, percentages, sample sizes), as short bullet points starting with \"- \"."

const reduceSystemPrompt = "You write structured summaries of documents from extracted notes. " +
	"Use only the notes provided and cite page ranges like [p. 3-4] where they support a point."

func pageLabel(start, end int) string {
	if start == end {
		return fmt.Sprintf("p. %d", start)
	}
	return fmt.Sprintf("p. %d-%d", start, end)
}

func singleMapPrompt(c models.Chunk, chunkChars int) string {
	var b strings.Builder
	b.WriteString(mapInstruction)
	b.WriteString("\n\n[")
	b.WriteString(pageLabel(c.PageStart, c.PageEnd))
	b.WriteString("]\n")
	b.WriteString(utils.Clip(c.Text, chunkChars))
	return b.String()
}

func batchMapPrompt(chunks []models.Chunk, chunkChars int) string {
	var b strings.Builder
	b.WriteString("For each excerpt below: ")
	b.WriteString(mapInstruction)
	b.WriteString("\nRespond with a JSON array only, one object per excerpt, in the form ")
	b.WriteString(`[{"id": "<excerpt id>", "summary": "- finding\n- finding"}]`)
	b.WriteString(".\n")
	for _, c := range chunks {
		fmt.Fprintf(&b, "\n[id: %s | %s]\n%s\n", c.ID, pageLabel(c.PageStart, c.PageEnd), utils.Clip(c.Text, chunkChars))
	}
	return b.String()
}

func reducePrompt(maps []models.MapSummary, query string) string {
	var b strings.Builder
	b.WriteString("Write the final summary of the document from the notes below, using these sections:\n")
	b.WriteString("## Key findings\n## Evidence and numbers\n## Limitations\n## Takeaway (one paragraph)\n")
	if q := strings.TrimSpace(query); q != "" && q != policy.DefaultSummaryQuery {
		fmt.Fprintf(&b, "\nFocus the summary on: %s\n", q)
	}
	b.WriteString("\nNotes:\n")
	for _, m := range maps {
		fmt.Fprintf(&b, "\n[%s]\n%s\n", pageLabel(m.PageStart, m.PageEnd), m.Summary)
	}
	return b.String()
}

// bulletText accepts either a JSON string or an array of strings.
type bulletText string

func (t *bulletText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = bulletText(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	for i, item := range list {
		item = strings.TrimSpace(item)
		if !strings.HasPrefix(item, "-") {
			item = "- " + item
		}
		list[i] = item
	}
	*t = bulletText(strings.Join(list, "\n"))
	return nil
}

type batchItem struct {
	ID      string     `json:"id"`
	Summary bulletText `json:"summary"`
}

// parseBatch extracts id → summary pairs from a batched map response. Code fences
// and prose around the JSON array are tolerated; anything unparseable yields an
// empty map so every chunk falls back to an individual call.
func parseBatch(raw string) map[string]string {
	out := make(map[string]string)
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:end+1]), &items); err != nil {
		return out
	}
	for _, rawItem := range items {
		var item batchItem
		if err := json.Unmarshal(rawItem, &item); err != nil {
			continue
		}
		summary := strings.TrimSpace(string(item.Summary))
		if item.ID == "" || summary == "" {
			continue
		}
		out[item.ID] = summary
	}
	return out
}
