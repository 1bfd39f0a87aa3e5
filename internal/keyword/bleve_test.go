package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/bunko/internal/models"
)

func newTestCatalog(t *testing.T) *BleveCatalog {
	t.Helper()
	c, err := NewBleveCatalog(filepath.Join(t.TempDir(), "catalog"))
	if err != nil {
		t.Fatalf("NewBleveCatalog: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func chunksOf(docID string, texts ...string) []models.Chunk {
	out := make([]models.Chunk, len(texts))
	for i, text := range texts {
		out[i] = models.Chunk{ID: fmt.Sprintf("%s:%d", docID, i), DocID: docID, PageStart: i + 1, PageEnd: i + 1, Text: text}
	}
	return out
}

func indexDoc(t *testing.T, c *BleveCatalog, id, title string, texts ...string) {
	t.Helper()
	doc := &models.Document{ID: id, Title: title}
	if err := c.IndexDocument(context.Background(), doc, chunksOf(id, texts...)); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
}

func TestBleveCatalog_SearchGroupsByDocument(t *testing.T) {
	c := newTestCatalog(t)
	indexDoc(t, c, "doc-a", "Ausvet Monthly Report 17 - May 2023.pdf",
		"This report mentions Omnisyan and other findings.",
		"The Omnisyan rollout is discussed again here.",
	)
	indexDoc(t, c, "doc-b", "Bayes primer.pdf", "The Bayes app is referenced in passing.")

	hits, err := c.Search(context.Background(), "Omnisyan", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %+v, want exactly one document", hits)
	}
	if hits[0].DocumentID != "doc-a" || hits[0].Title != "Ausvet Monthly Report 17 - May 2023.pdf" {
		t.Errorf("hit = %+v", hits[0])
	}
	if hits[0].ChunkID != "doc-a:0" && hits[0].ChunkID != "doc-a:1" {
		t.Errorf("ChunkID = %q, want one of doc-a's chunks", hits[0].ChunkID)
	}

	// Standard analyzer: "bayes" matches "Bayes" without stemming.
	hits, err = c.Search(context.Background(), "bayes", 10, DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 || hits[0].DocumentID != "doc-b" {
		t.Errorf("hits = %+v, want doc-b first", hits)
	}
}

func TestBleveCatalog_TitleOnlyDocument(t *testing.T) {
	c := newTestCatalog(t)
	indexDoc(t, c, "doc-scan", "Scanned invoice archive.pdf")

	hits, err := c.Search(context.Background(), "invoice", 5, DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].DocumentID != "doc-scan" || hits[0].ChunkID != "" {
		t.Errorf("hits = %+v, want the title record of doc-scan", hits)
	}
}

func TestBleveCatalog_TitleBoost(t *testing.T) {
	c := newTestCatalog(t)
	indexDoc(t, c, "doc-body", "notes.pdf", "A short remark about turbines.")
	indexDoc(t, c, "doc-title", "Turbines handbook.pdf", "Maintenance intervals and torque values.")

	hits, err := c.Search(context.Background(), "turbines", 10, &SearchOptions{TitleBoost: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].DocumentID != "doc-title" {
		t.Errorf("hits = %+v, want doc-title first", hits)
	}
}

func TestBleveCatalog_FuzzySearch(t *testing.T) {
	c := newTestCatalog(t)
	indexDoc(t, c, "doc-a", "a.pdf", "Photovoltaic efficiency measurements.")

	hits, err := c.Search(context.Background(), "photovoltaik", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("hits = %+v, want fuzzy match", hits)
	}
}

func TestBleveCatalog_ReindexReplacesChunks(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	indexDoc(t, c, "doc-a", "a.pdf", "oldword one", "oldword two", "oldword three")
	indexDoc(t, c, "doc-a", "a.pdf", "newword only")

	hits, err := c.Search(ctx, "oldword", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("stale chunks still indexed: %+v", hits)
	}
	n, err := c.DocCount()
	if err != nil {
		t.Fatalf("DocCount: %v", err)
	}
	if n != 2 {
		t.Errorf("DocCount = %d, want title record plus one chunk", n)
	}
}

func TestBleveCatalog_DeleteDocument(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	indexDoc(t, c, "doc-a", "a.pdf", "onlyindoca")
	indexDoc(t, c, "doc-b", "b.pdf", "onlyindocb")

	if err := c.DeleteDocument(ctx, "doc-a"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if hits, _ := c.Search(ctx, "onlyindoca", 10, nil); len(hits) != 0 {
		t.Errorf("expected 0 hits after delete, got %+v", hits)
	}
	if hits, _ := c.Search(ctx, "onlyindocb", 10, nil); len(hits) != 1 {
		t.Errorf("other document affected: %+v", hits)
	}
	if err := c.DeleteDocument(ctx, "missing"); err != nil {
		t.Errorf("deleting an unknown document: %v", err)
	}
}

func TestBleveCatalog_SuggestUsesIndexedTerms(t *testing.T) {
	c := newTestCatalog(t)
	indexDoc(t, c, "doc-a", "a.pdf", "Photovoltaic efficiency in cold climates.")

	if got := c.Suggest("efficiancy climates"); got != "efficiency climates" {
		t.Errorf("Suggest = %q", got)
	}
	indexDoc(t, c, "doc-b", "b.pdf", "Geothermal wells.")
	if got := c.Suggest("geothermel"); got != "geothermal" {
		t.Errorf("Suggest after reindex = %q", got)
	}
}

func TestBleveCatalog_EmptyQuery(t *testing.T) {
	c := newTestCatalog(t)
	hits, err := c.Search(context.Background(), "  ", 10, nil)
	if err != nil || len(hits) != 0 {
		t.Errorf("Search(empty) = %+v, %v", hits, err)
	}
}

func TestBleveCatalog_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "catalog")
	c, err := NewBleveCatalog(path)
	if err != nil {
		t.Fatalf("NewBleveCatalog: %v", err)
	}
	indexDoc(t, c, "doc-a", "a.pdf", "uniqueword")
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("index path should exist: %v", err)
	}

	c2, err := NewBleveCatalog(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	hits, err := c2.Search(context.Background(), "uniqueword", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("hits after reopen = %+v", hits)
	}
}
