package policy

import (
	"sort"
	"strings"

	"github.com/hyperjump/bunko/internal/lexical"
	"github.com/hyperjump/bunko/internal/models"
)

// DefaultSummaryQuery steers summary selection toward findings when no question is given.
const DefaultSummaryQuery = "key findings results conclusion contributions limitations future work abstract"

// Summary selection limits.
const (
	MaxSummaryLexicalHits = 12
	DefaultMaxSelected    = 20
)

// SummaryQuery returns query, or the default findings query when it is blank.
func SummaryQuery(query string) string {
	if strings.TrimSpace(query) == "" {
		return DefaultSummaryQuery
	}
	return query
}

// SelectForSummary picks the chunks to map: the best lexical matches for query
// (at most 12) plus an evenly strided sample of the whole document so sections the
// query misses are still covered. Duplicates are dropped, the set is capped at
// maxSelected, and the result is returned in document order.
func SelectForSummary(idx *lexical.Index, query string, maxSelected int) []models.Chunk {
	if maxSelected <= 0 {
		maxSelected = DefaultMaxSelected
	}
	chunks := idx.Chunks()
	if len(chunks) == 0 {
		return nil
	}

	var lexicalHits []int
	for _, sc := range idx.Rank(SummaryQuery(query)) {
		if len(lexicalHits) >= min(MaxSummaryLexicalHits, maxSelected) || sc.Score <= 0 {
			break
		}
		lexicalHits = append(lexicalHits, sc.Pos)
	}

	// Widen the stride until duplicates with the lexical hits no longer leave the
	// selection short.
	want := min(maxSelected, len(chunks))
	var positions []int
	for k := maxSelected - len(lexicalHits); ; k++ {
		positions = dedupe(chunks, append(append([]int(nil), lexicalHits...), Stride(len(chunks), k)...))
		if len(positions) >= want || k >= len(chunks) {
			break
		}
	}
	if len(positions) > maxSelected {
		positions = positions[:maxSelected]
	}
	sort.Ints(positions)

	out := make([]models.Chunk, len(positions))
	for i, pos := range positions {
		out[i] = chunks[pos]
	}
	return out
}

// dedupe drops positions whose chunk id was already seen, keeping the first.
func dedupe(chunks []models.Chunk, positions []int) []int {
	seen := make(map[string]bool, len(positions))
	out := positions[:0]
	for _, pos := range positions {
		id := chunks[pos].ID
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, pos)
	}
	return out
}

// Stride returns k positions spread evenly over [0, n), always including 0.
// k >= n returns every position.
func Stride(n, k int) []int {
	if n <= 0 || k <= 0 {
		return nil
	}
	if k >= n {
		k = n
	}
	out := make([]int, k)
	for i := range out {
		out[i] = i * n / k
	}
	return out
}
