package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/bunko/internal/fileid"
	"github.com/hyperjump/bunko/internal/keyword"
	"github.com/hyperjump/bunko/internal/lexical"
	"github.com/hyperjump/bunko/internal/library"
	"github.com/hyperjump/bunko/internal/storage"
)

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".pdf", []string{"pdf"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
	}
	for _, tt := range tests {
		if got := extensionAllowed(tt.ext, tt.allowed); got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

type harness struct {
	idx     *Indexer
	store   storage.Storage
	lib     *library.Library
	catalog *keyword.BleveCatalog
}

func newHarness(t *testing.T, dir string, exts ...string) *harness {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	catalog, err := keyword.NewBleveCatalog(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = catalog.Close() })
	lib := library.New(store)
	cfg := Config{ChunkTargetChars: 40, ChunkOverlapChars: 10, Extensions: exts}
	return &harness{
		idx:     NewIndexer(store, lib, cfg, WithCatalog(catalog)),
		store:   store,
		lib:     lib,
		catalog: catalog,
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

const report = "Solar output rose sharply in January.\fThe turbine study found vibration limits.\fSnow cover reduced yield by nine percent."

func TestIngestFile_createSkipAndUpdate(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir)
	ctx := context.Background()
	path := filepath.Join(dir, "field_report.txt")
	writeFile(t, path, report)

	res, err := h.idx.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.Skipped {
		t.Fatal("first ingestion must not be skipped")
	}
	doc := res.Document
	if doc.ID != fileid.FileDocID(path) {
		t.Errorf("ID = %q, want path-derived id", doc.ID)
	}
	if doc.PageCount != 3 || doc.Pages != 3 {
		t.Errorf("PageCount = %d, Pages = %d, want 3 and 3", doc.PageCount, doc.Pages)
	}
	if doc.ChunkCount == 0 {
		t.Fatal("expected chunks")
	}

	chunks, err := h.store.GetChunks(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if len(chunks) != doc.ChunkCount {
		t.Errorf("stored %d chunks, document says %d", len(chunks), doc.ChunkCount)
	}
	if chunks[len(chunks)-1].PageEnd != 3 {
		t.Errorf("last chunk ends on page %d, want 3", chunks[len(chunks)-1].PageEnd)
	}

	entry, err := h.lib.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("library Get: %v", err)
	}
	if got := entry.Index.Search("snow cover yield", lexical.Options{}); len(got) == 0 || got[0].Chunk.PageEnd != 3 {
		t.Errorf("search results = %+v", got)
	}

	hits, err := h.catalog.Search(ctx, "field report", 5, keyword.DefaultSearchOptions())
	if err != nil {
		t.Fatalf("catalog Search: %v", err)
	}
	if len(hits) == 0 || hits[0].DocumentID != doc.ID {
		t.Errorf("catalog hits = %+v, want normalized title match", hits)
	}

	stored, err := h.store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}

	res, err = h.idx.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("IngestFile again: %v", err)
	}
	if !res.Skipped {
		t.Error("unchanged file should be skipped")
	}

	writeFile(t, path, "Completely new text about geothermal wells.")
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	res, err = h.idx.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("IngestFile after change: %v", err)
	}
	if res.Skipped {
		t.Fatal("changed file must be re-ingested")
	}
	if !res.Document.CreatedAt.Equal(stored.CreatedAt) {
		t.Errorf("CreatedAt changed from %v to %v", stored.CreatedAt, res.Document.CreatedAt)
	}
	entry2, err := h.lib.Get(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if entry2 == entry {
		t.Error("library entry was not replaced")
	}
	if !strings.Contains(entry2.Chunks()[0].Text, "geothermal") {
		t.Errorf("library serves stale chunks: %q", entry2.Chunks()[0].Text)
	}
}

func TestIngestFile_rejectsExtensionAndDirectories(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir, ".pdf", ".txt")
	ctx := context.Background()

	writeFile(t, filepath.Join(dir, "main.go"), "package main")
	if _, err := h.idx.IngestFile(ctx, filepath.Join(dir, "main.go")); err == nil {
		t.Error("expected extension error")
	}
	sub := filepath.Join(dir, "folder.txt")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := h.idx.IngestFile(ctx, sub); err == nil {
		t.Error("expected error for directory")
	}
}

func TestIngestFile_emptyDocument(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir)
	ctx := context.Background()
	path := filepath.Join(dir, "scan.txt")
	writeFile(t, path, "  \f \n\f")

	res, err := h.idx.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.Document.ChunkCount != 0 || res.Document.PageCount != 3 {
		t.Errorf("doc = %+v", res.Document)
	}
	entry, err := h.lib.Get(ctx, res.Document.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !entry.Empty() {
		t.Error("entry should be empty")
	}
	hits, err := h.catalog.Search(ctx, "scan", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("empty document should still be found by title, hits = %+v", hits)
	}
}

func TestIngestBytes_contentAddressed(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir)
	ctx := context.Background()

	a, err := h.idx.IngestBytes(ctx, "upload.txt", []byte(report))
	if err != nil {
		t.Fatalf("IngestBytes: %v", err)
	}
	b, err := h.idx.IngestBytes(ctx, "renamed.txt", []byte(report))
	if err != nil {
		t.Fatalf("IngestBytes again: %v", err)
	}
	if a.ID != b.ID || a.ID != fileid.ContentDocID([]byte(report)) {
		t.Errorf("ids %q and %q, want the content id", a.ID, b.ID)
	}
	if b.Title != "renamed.txt" {
		t.Errorf("Title = %q", b.Title)
	}
	n, err := h.store.CountDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountDocuments = %d, want 1", n)
	}
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	h := newHarness(t, dir, ".txt", ".md", ".xlsx")
	writeFile(t, filepath.Join(docs, "a.txt"), "alpha text")
	writeFile(t, filepath.Join(docs, "nested", "b.md"), "beta text")
	writeFile(t, filepath.Join(docs, "nested", "skip.go"), "package skip")
	writeFile(t, filepath.Join(docs, "broken.xlsx"), "not a spreadsheet")

	n, err := h.idx.IngestDirectory(context.Background(), docs)
	if n != 2 {
		t.Errorf("ingested %d files, want 2", n)
	}
	if err == nil || !strings.Contains(err.Error(), "broken.xlsx") {
		t.Errorf("err = %v, want the broken file reported", err)
	}
	count, _ := h.store.CountDocuments(context.Background())
	if count != 2 {
		t.Errorf("CountDocuments = %d, want 2", count)
	}

	if _, err := h.idx.IngestDirectory(context.Background(), filepath.Join(docs, "a.txt")); err == nil {
		t.Error("expected error for a file path")
	}
}

func TestDeleteDocument(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir)
	ctx := context.Background()
	path := filepath.Join(dir, "gone.txt")
	writeFile(t, path, "ephemeral zebra content")
	res, err := h.idx.IngestFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	if err := h.idx.DeleteDocument(ctx, res.Document.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := h.lib.Get(ctx, res.Document.ID); !errors.Is(err, library.ErrDocumentNotFound) {
		t.Errorf("library Get after delete: %v", err)
	}
	if hits, _ := h.catalog.Search(ctx, "zebra", 5, nil); len(hits) != 0 {
		t.Errorf("catalog still has the document: %+v", hits)
	}
	if err := h.idx.DeleteDocument(ctx, res.Document.ID); !errors.Is(err, library.ErrDocumentNotFound) {
		t.Errorf("second delete: %v", err)
	}
	if err := h.idx.DeleteFile(ctx, path); err != nil {
		t.Errorf("DeleteFile of an unknown file: %v", err)
	}
}
