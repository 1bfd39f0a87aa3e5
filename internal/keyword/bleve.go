package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/pkg/utils"
)

// titleRecordSuffix marks the per-document record that carries only the title, so
// documents without text are still found by name.
const titleRecordSuffix = ":title"

// deleteBatchSize bounds how many records one delete pass removes.
const deleteBatchSize = 1000

// record is one Bleve document: a chunk, or a document's title record.
type record struct {
	DocID     string `json:"doc_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	PageStart int    `json:"page_start"`
}

// BleveCatalog implements Catalog with Bleve.
type BleveCatalog struct {
	index  bleve.Index
	logger *zap.Logger
	spell  *SpellChecker
	mu     sync.Mutex // serializes replace and delete of one document's records
}

// CatalogOption configures a BleveCatalog.
type CatalogOption func(*BleveCatalog)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) CatalogOption {
	return func(c *BleveCatalog) { c.logger = l }
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "bayes" matches
	// "Bayes" but is not stemmed away from "Bayesian".
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textField)
	docMapping.AddFieldMappingsAt("title", textField)
	docMapping.AddFieldMappingsAt("doc_id", bleve.NewKeywordFieldMapping())
	pageField := bleve.NewNumericFieldMapping()
	pageField.Index = false
	docMapping.AddFieldMappingsAt("page_start", pageField)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveCatalog creates or opens a catalog at path. An existing index is reused;
// remove the directory after changing the mapping to force a rebuild.
func NewBleveCatalog(path string, opts ...CatalogOption) (*BleveCatalog, error) {
	var (
		index bleve.Index
		err   error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		index, err = bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", err)
		}
	} else {
		index, err = bleve.New(path, newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
	}
	c := &BleveCatalog{index: index}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.LoggerOrNop(c.logger)
	c.spell = NewSpellChecker(c)
	return c, nil
}

// IndexDocument implements Catalog.
func (c *BleveCatalog) IndexDocument(ctx context.Context, doc *models.Document, chunks []models.Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.deleteLocked(doc.ID); err != nil {
		return err
	}
	batch := c.index.NewBatch()
	if err := batch.Index(doc.ID+titleRecordSuffix, record{DocID: doc.ID, Title: doc.Title}); err != nil {
		return fmt.Errorf("failed to add title record: %w", err)
	}
	for _, ch := range chunks {
		if err := batch.Index(ch.ID, record{DocID: doc.ID, Title: doc.Title, Content: ch.Text, PageStart: ch.PageStart}); err != nil {
			return fmt.Errorf("failed to add chunk %s: %w", ch.ID, err)
		}
	}
	if err := c.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	c.spell.Invalidate()
	c.logger.Debug("catalog indexed document", zap.String("doc_id", doc.ID), zap.Int("chunks", len(chunks)))
	return nil
}

// DeleteDocument implements Catalog.
func (c *BleveCatalog) DeleteDocument(ctx context.Context, docID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.deleteLocked(docID); err != nil {
		return err
	}
	c.spell.Invalidate()
	return nil
}

func (c *BleveCatalog) deleteLocked(docID string) error {
	for {
		q := bleve.NewTermQuery(docID)
		q.SetField("doc_id")
		req := bleve.NewSearchRequest(q)
		req.Size = deleteBatchSize
		res, err := c.index.Search(req)
		if err != nil {
			return fmt.Errorf("failed to find records of %s: %w", docID, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := c.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := c.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete records of %s: %w", docID, err)
		}
	}
}

// Search implements Catalog. With title or phrase boosts, title and content are
// scored separately and added, multi-term queries are penalized by the square of
// the fraction of terms a record misses, and phrase matches are boosted. Records
// are then grouped per document keeping the best one.
func (c *BleveCatalog) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]models.CatalogHit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []models.CatalogHit{}, nil
	}
	titleBoost, phraseBoost, fuzziness := 1.0, 1.0, 0
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		if opts.FuzzyEnabled {
			fuzziness = 2
			if opts.Fuzziness > 0 {
				fuzziness = opts.Fuzziness
			}
		}
	}

	// Several records of one document may rank ahead of the next document.
	reqSize := max(limit*10, 50)
	records := make(map[string]*scoredRecord)

	if titleBoost <= 1 && phraseBoost <= 1 {
		if err := c.collect(records, buildQuery(query, fuzziness, ""), reqSize, 1); err != nil {
			return nil, err
		}
	} else {
		if err := c.collect(records, buildQuery(query, fuzziness, "title"), reqSize, titleBoost); err != nil {
			return nil, err
		}
		if err := c.collect(records, buildQuery(query, fuzziness, "content"), reqSize, 1); err != nil {
			return nil, err
		}
		terms := tokenizeQuery(query)
		if len(terms) > 1 {
			coverage := c.termCoverage(terms, reqSize, fuzziness)
			phrases := map[string]bool{}
			if phraseBoost > 1 {
				phrases = c.phraseMatches(query, reqSize)
			}
			for id, r := range records {
				matched := max(coverage[id], 1)
				frac := float64(matched) / float64(len(terms))
				r.score *= frac * frac
				if phrases[id] {
					r.score *= phraseBoost
				}
			}
		}
	}
	return groupByDocument(records, limit), nil
}

type scoredRecord struct {
	docID string
	title string
	score float64
}

func (c *BleveCatalog) collect(into map[string]*scoredRecord, q blevequery.Query, size int, boost float64) error {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	req.Fields = []string{"doc_id", "title"}
	res, err := c.index.Search(req)
	if err != nil {
		return fmt.Errorf("Bleve search failed: %w", err)
	}
	for _, hit := range res.Hits {
		r, ok := into[hit.ID]
		if !ok {
			docID, _ := hit.Fields["doc_id"].(string)
			title, _ := hit.Fields["title"].(string)
			r = &scoredRecord{docID: docID, title: title}
			into[hit.ID] = r
		}
		r.score += hit.Score * boost
	}
	return nil
}

func groupByDocument(records map[string]*scoredRecord, limit int) []models.CatalogHit {
	best := make(map[string]models.CatalogHit)
	for id, r := range records {
		if r.docID == "" {
			continue
		}
		chunkID := id
		if strings.HasSuffix(id, titleRecordSuffix) {
			chunkID = ""
		}
		cur, ok := best[r.docID]
		if !ok || r.score > cur.Score || (r.score == cur.Score && cur.ChunkID == "" && chunkID != "") {
			best[r.docID] = models.CatalogHit{DocumentID: r.docID, ChunkID: chunkID, Title: r.title, Score: r.score}
		}
	}
	out := make([]models.CatalogHit, 0, len(best))
	for _, h := range best {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildQuery returns a match query, or with fuzziness > 0 a disjunction of fuzzy
// term queries. An empty field searches all fields.
func buildQuery(query string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(query)
	if fuzziness <= 0 || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// termCoverage counts how many query terms each record matches.
func (c *BleveCatalog) termCoverage(terms []string, size, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		req := bleve.NewSearchRequest(buildQuery(term, fuzziness, ""))
		req.Size = size
		res, err := c.index.Search(req)
		if err != nil {
			c.logger.Debug("term coverage query failed", zap.String("term", term), zap.Error(err))
			continue
		}
		for _, hit := range res.Hits {
			coverage[hit.ID]++
		}
	}
	return coverage
}

// phraseMatches returns the records whose title or content contains the query as a phrase.
func (c *BleveCatalog) phraseMatches(query string, size int) map[string]bool {
	matches := make(map[string]bool)
	for _, field := range []string{"content", "title"} {
		pq := bleve.NewMatchPhraseQuery(query)
		pq.SetField(field)
		req := bleve.NewSearchRequest(pq)
		req.Size = size
		res, err := c.index.Search(req)
		if err != nil {
			continue
		}
		for _, hit := range res.Hits {
			matches[hit.ID] = true
		}
	}
	return matches
}

// Suggest implements Catalog.
func (c *BleveCatalog) Suggest(query string) string {
	return c.spell.Correct(query)
}

// DocCount returns the number of indexed records (chunks plus one title record
// per document).
func (c *BleveCatalog) DocCount() (uint64, error) {
	return c.index.DocCount()
}

// Close closes the index.
func (c *BleveCatalog) Close() error {
	return c.index.Close()
}

// GetTermFrequency returns how many records contain term in any field.
func (c *BleveCatalog) GetTermFrequency(term string) (int, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(term))
	req.Size = 0
	res, err := c.index.Search(req)
	if err != nil {
		return 0, fmt.Errorf("failed to search for term frequency: %w", err)
	}
	return int(res.Total), nil
}

// GetAllTerms returns the unique terms of the title and content fields.
func (c *BleveCatalog) GetAllTerms() ([]string, error) {
	var terms []string
	seen := make(map[string]struct{})
	for _, field := range []string{"content", "title"} {
		dict, err := c.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s terms: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if _, ok := seen[entry.Term]; !ok {
				seen[entry.Term] = struct{}{}
				terms = append(terms, entry.Term)
			}
		}
		_ = dict.Close()
	}
	return terms, nil
}
