package policy

import (
	"math"
	"strings"

	"github.com/hyperjump/bunko/internal/lexical"
	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/pkg/utils"
)

// Clamps for the context appended to follow-up queries.
const (
	PrevUserChars      = 600
	PrevAssistantChars = 900
)

// Oversize retry limits.
const (
	RetryTopK         = 3
	RetryBudgetFactor = 0.6
	RetryHistory      = 4
)

// ChatQuery returns the retrieval query for question. A follow-up question is
// widened with the previous user turn and the previous assistant answer so that
// questions like "explain the second point" still carry content terms.
func ChatQuery(question string, history []models.Message) string {
	if Classify(question, len(history) > 0) != IntentFollowUp {
		return question
	}
	prevUser := lastByRole(history, models.RoleUser)
	prevAssistant := lastByRole(history, models.RoleAssistant)

	parts := []string{question}
	if prevUser != "" {
		parts = append(parts, utils.Clip(prevUser, PrevUserChars))
	}
	if prevAssistant != "" {
		parts = append(parts, utils.Clip(prevAssistant, PrevAssistantChars))
	}
	return strings.Join(parts, "\n")
}

func lastByRole(history []models.Message, role string) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == role {
			return history[i].Content
		}
	}
	return ""
}

// Budget is the full set of size limits for one chat generation attempt.
type Budget struct {
	Search    lexical.Options
	History   []models.Message
	MaxTokens int
}

// Tighten returns the budget for the single retry after an oversized-payload
// failure: top-k at most 3, character budgets at 60%, the last 4 history messages,
// and the lower output cap.
func Tighten(b Budget, retryMaxTokens int) Budget {
	out := b
	out.Search.TopK = min(max(b.Search.TopK, 1), RetryTopK)
	out.Search.MaxChunkChars = scale(b.Search.MaxChunkChars, lexical.DefaultMaxChunkChars)
	out.Search.MaxTotalChars = scale(b.Search.MaxTotalChars, lexical.DefaultMaxTotalChars)
	out.History = TrimHistory(b.History, RetryHistory)
	if retryMaxTokens > 0 && (b.MaxTokens <= 0 || retryMaxTokens < b.MaxTokens) {
		out.MaxTokens = retryMaxTokens
	}
	return out
}

func scale(v, def int) int {
	if v <= 0 {
		v = def
	}
	return max(int(math.Round(float64(v)*RetryBudgetFactor)), 1)
}

// TrimHistory keeps the last n messages.
func TrimHistory(history []models.Message, n int) []models.Message {
	if n <= 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// LowConfidence reports whether no result clears the advisory floor. Without a
// floor only zero-score results (no shared terms) count as low confidence. The
// results are still used; the caller only adjusts its instructions.
func LowConfidence(results []models.Result, floor float64) bool {
	for _, r := range results {
		if r.Score > 0 && r.Score >= floor {
			return false
		}
	}
	return true
}

// Citations turns retrieval results into source metadata with excerpts clipped to
// excerptChars runes.
func Citations(results []models.Result, excerptChars int) []models.Citation {
	out := make([]models.Citation, 0, len(results))
	for _, r := range results {
		out = append(out, models.Citation{
			ChunkID:   r.Chunk.ID,
			PageStart: r.Chunk.PageStart,
			PageEnd:   r.Chunk.PageEnd,
			Score:     r.Score,
			Excerpt:   utils.Clip(r.Chunk.Text, excerptChars),
		})
	}
	return out
}
