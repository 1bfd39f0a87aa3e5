// Package indexer ingests documents: extraction, page preprocessing, chunking,
// persistence, and publication to the library and the catalog.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/bunko/internal/extract"
	"github.com/hyperjump/bunko/internal/fileid"
	"github.com/hyperjump/bunko/internal/keyword"
	"github.com/hyperjump/bunko/internal/library"
	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/internal/storage"
	"github.com/hyperjump/bunko/pkg/utils"
)

// Config controls chunking and which files are ingested.
type Config struct {
	ChunkTargetChars  int
	ChunkOverlapChars int
	MaxPages          int
	// Extensions limits IngestFile and IngestDirectory; empty allows every file.
	Extensions []string
}

// Result describes one ingested file.
type Result struct {
	Document *models.Document
	// Skipped is set when the file was unchanged since its last ingestion.
	Skipped bool
}

// Indexer writes documents to storage and publishes them for retrieval.
type Indexer struct {
	storage   storage.Storage
	library   *library.Library
	catalog   keyword.Catalog
	chunker   *Chunker
	extractor *extract.Extractor
	exts      []string
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithCatalog also indexes documents in the cross-document catalog.
func WithCatalog(c keyword.Catalog) IndexerOption {
	return func(idx *Indexer) { idx.catalog = c }
}

// NewIndexer creates an indexer that persists to store and publishes to lib.
func NewIndexer(store storage.Storage, lib *library.Library, cfg Config, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		storage:   store,
		library:   lib,
		chunker:   NewChunker(cfg.ChunkTargetChars, cfg.ChunkOverlapChars),
		extractor: extract.NewExtractor(cfg.MaxPages),
		exts:      cfg.Extensions,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.LoggerOrNop(idx.logger)
	return idx
}

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// IngestFile extracts and indexes the file at path. The document ID is derived from
// the absolute path, so re-ingesting replaces the same document. A file with the
// same mtime and size as its stored version is skipped.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (*Result, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if !idx.Allowed(absPath) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	docID := fileid.FileDocID(absPath)
	existing, _ := idx.storage.GetDocument(ctx, docID)
	if unchanged(existing, absPath, info) {
		idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return &Result{Document: existing, Skipped: true}, nil
	}

	x, err := idx.extractor.Extract(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", absPath, err)
	}
	doc := &models.Document{
		ID:          docID,
		Title:       filepath.Base(absPath),
		Path:        absPath,
		ContentType: extract.ContentType(ext),
		Size:        info.Size(),
		Metadata: map[string]interface{}{
			metaKeySourcePath: absPath,
			// Strings avoid JSON float64 precision loss (UnixNano exceeds 53 bits).
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
		},
	}
	if existing != nil {
		doc.CreatedAt = existing.CreatedAt
	}
	if err := idx.index(ctx, doc, x); err != nil {
		return nil, err
	}
	idx.logger.Info("file ingested",
		zap.String("path", absPath),
		zap.String("doc_id", docID),
		zap.Int("pages", doc.Pages),
		zap.Int("chunks", doc.ChunkCount),
	)
	return &Result{Document: doc}, nil
}

// IngestBytes indexes uploaded content. The document ID is derived from the
// content, so uploading the same bytes again replaces the same document.
func (idx *Indexer) IngestBytes(ctx context.Context, name string, content []byte) (*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	x, err := idx.extractor.ExtractBytes(content, ext)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	doc := &models.Document{
		ID:          fileid.ContentDocID(content),
		Title:       filepath.Base(name),
		ContentType: extract.ContentType(ext),
		Size:        int64(len(content)),
		Metadata:    map[string]interface{}{"upload_name": name},
	}
	if existing, err := idx.storage.GetDocument(ctx, doc.ID); err == nil {
		doc.CreatedAt = existing.CreatedAt
	}
	if err := idx.index(ctx, doc, x); err != nil {
		return nil, err
	}
	idx.logger.Info("upload ingested",
		zap.String("name", name),
		zap.String("doc_id", doc.ID),
		zap.Int("chunks", doc.ChunkCount),
	)
	return doc, nil
}

// index chunks the extracted pages, persists the document with its chunks, then
// publishes it to the library and the catalog.
func (idx *Indexer) index(ctx context.Context, doc *models.Document, x *extract.Extraction) error {
	pages := PreprocessPages(x.Pages)
	chunks := idx.chunker.Chunk(doc.ID, pages)
	doc.PageCount = x.TotalPages
	doc.Pages = len(x.Pages)

	if err := idx.storage.UpsertDocument(ctx, doc, chunks); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	idx.library.Put(doc, chunks)
	if len(chunks) == 0 {
		idx.logger.Warn("document has no extractable text", zap.String("doc_id", doc.ID), zap.String("title", doc.Title))
	}

	if idx.catalog != nil {
		// Separators as spaces so "company_profile_2021.pdf" matches "company profile".
		catalogDoc := *doc
		catalogDoc.Title = normalizeTitle(doc.Title)
		if err := idx.catalog.IndexDocument(ctx, &catalogDoc, chunks); err != nil {
			return fmt.Errorf("failed to index catalog: %w", err)
		}
	}
	return nil
}

var titleSeparators = strings.NewReplacer("_", " ", ".", " ", "-", " ")

func normalizeTitle(title string) string {
	return titleSeparators.Replace(title)
}

// unchanged reports whether doc was ingested from absPath with the same mtime and size.
func unchanged(doc *models.Document, absPath string, info os.FileInfo) bool {
	if doc == nil || doc.Metadata == nil || doc.Metadata[metaKeySourcePath] != absPath {
		return false
	}
	return metadataInt64(doc.Metadata, metaKeySourceMtime) == info.ModTime().UnixNano() &&
		metadataInt64(doc.Metadata, metaKeySourceSize) == info.Size()
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	switch n := m[key].(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// IngestDirectory walks dir recursively and ingests every regular file with an
// allowed extension. A file that fails is logged and skipped; the returned error
// joins all failures. n counts files ingested or skipped as unchanged.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	var errs []error
	walkErr := filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !idx.Allowed(path) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, err := idx.IngestFile(ctx, path); err != nil {
			idx.logger.Warn("failed to ingest file", zap.String("path", path), zap.Error(err))
			errs = append(errs, err)
			return nil
		}
		n++
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return n, errors.Join(errs...)
}

// Allowed reports whether path has an extension the indexer ingests.
func (idx *Indexer) Allowed(path string) bool {
	return len(idx.exts) == 0 || extensionAllowed(filepath.Ext(path), idx.exts)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes a document from the catalog, storage, and library.
// It returns library.ErrDocumentNotFound for unknown ids.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	if _, err := idx.storage.GetDocument(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", library.ErrDocumentNotFound, id)
		}
		return fmt.Errorf("failed to get document: %w", err)
	}
	if idx.catalog != nil {
		if err := idx.catalog.DeleteDocument(ctx, id); err != nil {
			return fmt.Errorf("failed to delete from catalog: %w", err)
		}
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	idx.library.Remove(id)
	idx.logger.Info("document deleted", zap.String("doc_id", id))
	return nil
}

// DeleteFile removes the document ingested from path, if any.
func (idx *Indexer) DeleteFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	err = idx.DeleteDocument(ctx, fileid.FileDocID(absPath))
	if errors.Is(err, library.ErrDocumentNotFound) {
		return nil
	}
	return err
}
