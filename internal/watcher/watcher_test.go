package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/bunko/internal/indexer"
	"github.com/hyperjump/bunko/internal/models"
)

type fakeIngester struct {
	mu       sync.Mutex
	ingested []string
	deleted  []string
}

func (f *fakeIngester) IngestFile(_ context.Context, path string) (*indexer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, path)
	return &indexer.Result{Document: &models.Document{ID: "doc-" + filepath.Base(path)}}, nil
}

func (f *fakeIngester) DeleteFile(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeIngester) Allowed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".txt")
}

func (f *fakeIngester) counts(path string) (ingested, deleted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.ingested {
		if p == path {
			ingested++
		}
	}
	for _, p := range f.deleted {
		if p == path {
			deleted++
		}
	}
	return ingested, deleted
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, ing Ingester, cfg Config) *Watcher {
	t.Helper()
	if cfg.Debounce == 0 {
		cfg.Debounce = 50 * time.Millisecond
	}
	w := New(ing, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWatcher_SyncsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "old.txt")
	if err := os.WriteFile(existing, []byte("already here"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skip.bin"), []byte{1, 2}, 0o644); err != nil {
		t.Fatal(err)
	}
	ing := &fakeIngester{}
	startWatcher(t, ing, Config{Directories: []string{dir}})

	waitFor(t, func() bool { n, _ := ing.counts(existing); return n == 1 })
	if n, _ := ing.counts(filepath.Join(dir, "skip.bin")); n != 0 {
		t.Errorf("disallowed file ingested %d times", n)
	}
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	startWatcher(t, ing, Config{Directories: []string{dir}, Debounce: 150 * time.Millisecond})
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "note.txt")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(strings.Repeat("x", i+1)), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	waitFor(t, func() bool { n, _ := ing.counts(path); return n >= 1 })
	time.Sleep(300 * time.Millisecond)
	if n, _ := ing.counts(path); n != 1 {
		t.Errorf("ingested %d times, want 1", n)
	}
}

func TestWatcher_RemoveDeletesDocument(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	startWatcher(t, ing, Config{Directories: []string{dir}})

	path := filepath.Join(dir, "gone.txt")
	if err := os.WriteFile(path, []byte("short lived"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { n, _ := ing.counts(path); return n >= 1 })
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { _, n := ing.counts(path); return n == 1 })
}

func TestWatcher_RecursiveNewDirectory(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	startWatcher(t, ing, Config{Directories: []string{dir}, Recursive: true})

	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(sub, "nested.txt")
	if err := os.WriteFile(path, []byte("nested"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { n, _ := ing.counts(path); return n >= 1 })
}

func TestWatcher_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "inbox")
	ing := &fakeIngester{}
	w := startWatcher(t, ing, Config{Directories: []string{root}})

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("inbox not created: %v", err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != filepath.Clean(root) {
		t.Errorf("Directories() = %v", dirs)
	}
}

func TestInDir(t *testing.T) {
	root := filepath.Join("/tmp", "inbox")
	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(root, "a.txt"), true},
		{filepath.Join(root, "x", "b.txt"), true},
		{filepath.Join("/tmp", "inbox2", "c.txt"), false},
		{filepath.Join("/tmp", "other.txt"), false},
	}
	for _, tt := range tests {
		if got := inDir(root, tt.path); got != tt.want {
			t.Errorf("inDir(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := New(&fakeIngester{}, Config{Directories: []string{t.TempDir()}})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
