package lexical

import (
	"sort"
	"strings"

	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/pkg/utils"
)

// Default retrieval parameters.
const (
	DefaultTopK          = 5
	DefaultMaxChunkChars = 1400
	DefaultMaxTotalChars = 9000
)

// Options controls ranked retrieval. Zero values take the defaults; MinScore <= 0
// disables the score floor.
type Options struct {
	TopK          int
	MinScore      float64
	MaxChunkChars int
	MaxTotalChars int
}

func (o Options) withDefaults() Options {
	if o.TopK < 1 {
		o.TopK = DefaultTopK
	}
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = DefaultMaxChunkChars
	}
	if o.MaxTotalChars <= 0 {
		o.MaxTotalChars = DefaultMaxTotalChars
	}
	return o
}

// ScoredChunk is a chunk position with its cosine similarity to a query.
type ScoredChunk struct {
	Pos   int
	Score float64
}

// Rank scores every chunk against query and returns them best first. Ties keep
// document order.
func (idx *Index) Rank(query string) []ScoredChunk {
	q := idx.vectorize(query)
	ranked := make([]ScoredChunk, len(idx.vectors))
	for i, vec := range idx.vectors {
		ranked[i] = ScoredChunk{Pos: i, Score: utils.Dot(q, vec)}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score > ranked[b].Score
	})
	return ranked
}

// Search returns up to TopK chunks ranked by similarity to query, with each excerpt
// clipped to MaxChunkChars and the excerpts together clipped to MaxTotalChars.
// MinScore is advisory: when nothing clears it, the single best chunk is returned
// anyway so a non-empty document never yields an empty result set.
func (idx *Index) Search(query string, opts Options) []models.Result {
	opts = opts.withDefaults()
	ranked := idx.Rank(query)

	results := make([]models.Result, 0, opts.TopK)
	remaining := opts.MaxTotalChars
	for _, sc := range ranked {
		if len(results) >= opts.TopK {
			break
		}
		if opts.MinScore > 0 && sc.Score < opts.MinScore {
			continue
		}
		if remaining <= 0 {
			break
		}
		excerpt := utils.Clip(idx.chunks[sc.Pos].Text, min(opts.MaxChunkChars, remaining))
		if strings.TrimSpace(excerpt) == "" {
			continue
		}
		remaining -= utils.RuneLen(excerpt)
		results = append(results, idx.result(sc, excerpt))
	}
	if len(results) > 0 {
		return results
	}

	limit := min(opts.MaxChunkChars, opts.MaxTotalChars)
	for _, sc := range ranked {
		excerpt := utils.Clip(idx.chunks[sc.Pos].Text, limit)
		if strings.TrimSpace(excerpt) != "" {
			return []models.Result{idx.result(sc, excerpt)}
		}
	}
	return results
}

func (idx *Index) result(sc ScoredChunk, excerpt string) models.Result {
	c := idx.chunks[sc.Pos]
	c.Text = excerpt
	return models.Result{Chunk: c, Score: sc.Score}
}
