// Package library keeps built lexical indexes for documents in memory, loading and
// rebuilding them from storage on first use.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/bunko/internal/lexical"
	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/internal/storage"
	"github.com/hyperjump/bunko/pkg/utils"
)

// ErrDocumentNotFound is returned when a document is neither cached nor stored.
var ErrDocumentNotFound = errors.New("document not found")

// Loader reads persisted documents and chunks.
type Loader interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetChunks(ctx context.Context, docID string) ([]models.Chunk, error)
}

// Entry is a published document: its metadata, chunks, and the index built over
// them. An Entry is immutable apart from its summary slot.
type Entry struct {
	Document *models.Document
	Index    *lexical.Index
	BuiltAt  time.Time

	mu        sync.Mutex
	summaries map[string]*models.Summary
}

// Chunks returns the entry's chunks in document order.
func (e *Entry) Chunks() []models.Chunk {
	return e.Index.Chunks()
}

// Empty reports whether the document has no usable text.
func (e *Entry) Empty() bool {
	return e.Index.Len() == 0
}

// Summary returns the cached summary for query, if any.
func (e *Entry) Summary(query string) (*models.Summary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.summaries[summaryKey(query)]
	return s, ok
}

// StoreSummary caches s for query on this entry. It is dropped with the entry when
// the document is re-ingested.
func (e *Entry) StoreSummary(query string, s *models.Summary) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.summaries == nil {
		e.summaries = make(map[string]*models.Summary)
	}
	e.summaries[summaryKey(query)] = s
}

func summaryKey(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Library maps document id to its published Entry.
type Library struct {
	loader       Loader
	logger       *zap.Logger
	onInvalidate []func(docID string)

	mu      sync.RWMutex
	entries map[string]*Entry
	loads   singleflight.Group
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(lib *Library) { lib.logger = l }
}

// OnInvalidate registers fn to run whenever a document's entry is replaced or removed.
func OnInvalidate(fn func(docID string)) Option {
	return func(lib *Library) { lib.onInvalidate = append(lib.onInvalidate, fn) }
}

// New creates a library backed by loader.
func New(loader Loader, opts ...Option) *Library {
	lib := &Library{
		loader:  loader,
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(lib)
	}
	lib.logger = utils.LoggerOrNop(lib.logger)
	return lib
}

// Get returns the entry for id, loading chunks from storage and building the index
// on a miss. Concurrent misses for the same id share one load.
func (l *Library) Get(ctx context.Context, id string) (*Entry, error) {
	l.mu.RLock()
	e, ok := l.entries[id]
	l.mu.RUnlock()
	if ok {
		return e, nil
	}

	v, err, _ := l.loads.Do(id, func() (interface{}, error) {
		return l.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (l *Library) load(ctx context.Context, id string) (*Entry, error) {
	doc, err := l.loader.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	chunks, err := l.loader.GetChunks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load chunks for %s: %w", id, err)
	}
	e := newEntry(doc, chunks)

	l.mu.Lock()
	defer l.mu.Unlock()
	// A Put that raced with this load wins.
	if existing, ok := l.entries[id]; ok {
		return existing, nil
	}
	l.entries[id] = e
	l.logger.Debug("document loaded",
		zap.String("doc_id", id),
		zap.Int("chunks", len(chunks)),
		zap.Int("vocabulary", e.Index.VocabularySize()),
	)
	return e, nil
}

func newEntry(doc *models.Document, chunks []models.Chunk) *Entry {
	idx := lexical.Build(chunks)
	d := *doc
	d.ChunkCount = idx.Len()
	return &Entry{Document: &d, Index: idx, BuiltAt: time.Now()}
}

// Put builds the index for chunks and then publishes it for doc, replacing any
// previous entry. Readers never observe a partially built index.
func (l *Library) Put(doc *models.Document, chunks []models.Chunk) *Entry {
	e := newEntry(doc, chunks)
	l.mu.Lock()
	l.entries[doc.ID] = e
	l.mu.Unlock()
	l.invalidate(doc.ID)
	return e
}

// Remove drops the cached entry for id.
func (l *Library) Remove(id string) {
	l.mu.Lock()
	delete(l.entries, id)
	l.mu.Unlock()
	l.invalidate(id)
}

// Len returns the number of cached entries.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Library) invalidate(id string) {
	for _, fn := range l.onInvalidate {
		fn(id)
	}
}
