// Package summarize implements map-reduce summarization over a document's chunks.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/bunko/internal/cache"
	"github.com/hyperjump/bunko/internal/lexical"
	"github.com/hyperjump/bunko/internal/llm"
	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/internal/policy"
	"github.com/hyperjump/bunko/pkg/utils"
)

// Config controls the map and reduce phases.
type Config struct {
	MapChunkChars   int
	BatchSize       int
	Concurrency     int
	CacheTTL        time.Duration
	CacheMaxEntries int
	MaxSelected     int
	MapMaxTokens    int
	ReduceMaxTokens int
	CitationChars   int
}

// DefaultConfig returns the standard summarization settings.
func DefaultConfig() Config {
	return Config{
		MapChunkChars:   1800,
		BatchSize:       4,
		Concurrency:     2,
		CacheTTL:        time.Hour,
		CacheMaxEntries: 500,
		MaxSelected:     policy.DefaultMaxSelected,
		MapMaxTokens:    700,
		ReduceMaxTokens: 1200,
		CitationChars:   240,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MapChunkChars <= 0 {
		c.MapChunkChars = d.MapChunkChars
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = d.CacheMaxEntries
	}
	if c.MaxSelected <= 0 {
		c.MaxSelected = d.MaxSelected
	}
	if c.MapMaxTokens <= 0 {
		c.MapMaxTokens = d.MapMaxTokens
	}
	if c.ReduceMaxTokens <= 0 {
		c.ReduceMaxTokens = d.ReduceMaxTokens
	}
	if c.CitationChars <= 0 {
		c.CitationChars = d.CitationChars
	}
	return c
}

// MapKey identifies a cached per-chunk map summary.
type MapKey struct {
	Model      string
	ChunkChars int
	ChunkID    string
}

// Summarizer runs select, map, and reduce against a generator.
type Summarizer struct {
	gen    llm.Generator
	cfg    Config
	maps   *cache.Cache[MapKey, string]
	logger *zap.Logger
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Summarizer) { s.logger = l }
}

// WithMapCache replaces the map-summary cache, e.g. to inject a clock in tests.
func WithMapCache(c *cache.Cache[MapKey, string]) Option {
	return func(s *Summarizer) { s.maps = c }
}

// New creates a summarizer.
func New(gen llm.Generator, cfg Config, opts ...Option) *Summarizer {
	cfg = cfg.withDefaults()
	s := &Summarizer{gen: gen, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.maps == nil {
		s.maps = cache.New[MapKey, string](cfg.CacheMaxEntries, cfg.CacheTTL)
	}
	s.logger = utils.LoggerOrNop(s.logger)
	return s
}

// Summarize selects representative chunks of the indexed document, maps each to key
// findings, and reduces them into one structured summary. A document without chunks
// returns models.NoTextMessage without calling the generator. Generation failures
// propagate; map summaries produced before the failure stay cached.
func (s *Summarizer) Summarize(ctx context.Context, idx *lexical.Index, query string) (*models.Summary, error) {
	if idx.Len() == 0 {
		return &models.Summary{Summary: models.NoTextMessage, Sources: []models.Citation{}}, nil
	}
	query = policy.SummaryQuery(query)
	selected := policy.SelectForSummary(idx, query, s.cfg.MaxSelected)

	start := time.Now()
	maps, err := s.mapChunks(ctx, selected)
	if err != nil {
		return nil, fmt.Errorf("map phase: %w", err)
	}
	text, err := s.gen.Generate(ctx, llm.UserPrompt(reduceSystemPrompt, reducePrompt(maps, query), s.cfg.ReduceMaxTokens))
	if err != nil {
		return nil, fmt.Errorf("reduce phase: %w", err)
	}
	s.logger.Debug("summarized document",
		zap.String("doc_id", selected[0].DocID),
		zap.Int("selected", len(selected)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &models.Summary{
		DocumentID: selected[0].DocID,
		Summary:    strings.TrimSpace(text),
		Sources:    s.citations(idx, query, selected),
	}, nil
}

func (s *Summarizer) citations(idx *lexical.Index, query string, selected []models.Chunk) []models.Citation {
	scores := make(map[string]float64, idx.Len())
	for _, sc := range idx.Rank(query) {
		scores[idx.Chunks()[sc.Pos].ID] = sc.Score
	}
	results := make([]models.Result, len(selected))
	for i, c := range selected {
		results[i] = models.Result{Chunk: c, Score: scores[c.ID]}
	}
	return policy.Citations(results, s.cfg.CitationChars)
}

// Forget drops cached map summaries for docID's chunks. Call it when a document's
// chunk set changes.
func (s *Summarizer) Forget(docID string) int {
	prefix := docID + ":"
	return s.maps.DeleteFunc(func(k MapKey) bool { return strings.HasPrefix(k.ChunkID, prefix) })
}

func (s *Summarizer) key(c models.Chunk) MapKey {
	return MapKey{Model: s.gen.Model(), ChunkChars: s.cfg.MapChunkChars, ChunkID: c.ID}
}

// mapChunks returns one map summary per chunk, in input order. Cached chunks are
// skipped; the rest are sent in batches with at most Concurrency batches in flight.
// Map calls run detached from ctx cancellation so their results still reach the
// cache when the caller goes away.
func (s *Summarizer) mapChunks(ctx context.Context, chunks []models.Chunk) ([]models.MapSummary, error) {
	summaries := make([]string, len(chunks))
	var pending []int
	for i, c := range chunks {
		if v, ok := s.maps.Get(s.key(c)); ok {
			summaries[i] = v
			continue
		}
		pending = append(pending, i)
	}
	s.logger.Debug("map phase",
		zap.Int("chunks", len(chunks)),
		zap.Int("cached", len(chunks)-len(pending)),
	)

	detached := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for startIdx := 0; startIdx < len(pending); startIdx += s.cfg.BatchSize {
		batch := pending[startIdx:min(startIdx+s.cfg.BatchSize, len(pending))]
		g.Go(func() error {
			return s.mapBatch(detached, chunks, batch, summaries)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.MapSummary, len(chunks))
	for i, c := range chunks {
		out[i] = models.MapSummary{ChunkID: c.ID, PageStart: c.PageStart, PageEnd: c.PageEnd, Summary: summaries[i]}
	}
	return out, nil
}

// mapBatch fills summaries[i] for every i in batch. Chunks missing from a batched
// response are mapped individually.
func (s *Summarizer) mapBatch(ctx context.Context, chunks []models.Chunk, batch []int, summaries []string) error {
	parsed := map[string]string{}
	if len(batch) > 1 {
		group := make([]models.Chunk, len(batch))
		for j, i := range batch {
			group[j] = chunks[i]
		}
		raw, err := s.gen.Generate(ctx, llm.UserPrompt(mapSystemPrompt, batchMapPrompt(group, s.cfg.MapChunkChars), s.cfg.MapMaxTokens*len(batch)))
		switch {
		case errors.Is(err, llm.ErrPayloadTooLarge):
			s.logger.Debug("batch too large, mapping individually", zap.Int("batch", len(batch)))
		case err != nil:
			return err
		default:
			parsed = parseBatch(raw)
		}
	}

	for _, i := range batch {
		c := chunks[i]
		summary, ok := parsed[c.ID]
		if !ok {
			if len(batch) > 1 {
				s.logger.Debug("batched map result missing, falling back", zap.String("chunk_id", c.ID))
			}
			var err error
			summary, err = s.mapOne(ctx, c)
			if err != nil {
				return err
			}
		}
		summaries[i] = summary
		s.maps.Set(s.key(c), summary)
	}
	return nil
}

func (s *Summarizer) mapOne(ctx context.Context, c models.Chunk) (string, error) {
	out, err := s.gen.Generate(ctx, llm.UserPrompt(mapSystemPrompt, singleMapPrompt(c, s.cfg.MapChunkChars), s.cfg.MapMaxTokens))
	if err != nil {
		return "", fmt.Errorf("map chunk %s: %w", c.ID, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		out = "- (no key findings in this section)"
	}
	return out, nil
}
