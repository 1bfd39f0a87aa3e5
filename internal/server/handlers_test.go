package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/bunko/internal/assistant"
	"github.com/hyperjump/bunko/internal/config"
	"github.com/hyperjump/bunko/internal/indexer"
	"github.com/hyperjump/bunko/internal/keyword"
	"github.com/hyperjump/bunko/internal/library"
	"github.com/hyperjump/bunko/internal/llm"
	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/internal/storage"
	"github.com/hyperjump/bunko/internal/summarize"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

type testServer struct {
	srv     *Server
	handler http.Handler
	gen     *llm.MockGenerator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{Storage: config.StorageConfig{
		DatabasePath:   filepath.Join(dir, "db.sqlite"),
		BleveIndexPath: filepath.Join(dir, "bleve"),
	}}
	config.ApplyDefaults(cfg)
	cfg.Ingest.ChunkTargetChars = 60
	cfg.Ingest.ChunkOverlapChars = 10
	cfg.Ingest.Extensions = []string{".txt", ".md"}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	catalog, err := keyword.NewBleveCatalog(cfg.Storage.BleveIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = catalog.Close() })

	gen := llm.NewMockGenerator("test-model")
	sum := summarize.New(gen, summarize.DefaultConfig())
	lib := library.New(store, library.OnInvalidate(func(id string) { sum.Forget(id) }))
	idx := indexer.NewIndexer(store, lib, indexer.Config{
		ChunkTargetChars:  cfg.Ingest.ChunkTargetChars,
		ChunkOverlapChars: cfg.Ingest.ChunkOverlapChars,
		Extensions:        cfg.Ingest.Extensions,
	}, indexer.WithCatalog(catalog))
	asst := assistant.New(lib, gen, sum, assistant.DefaultConfig())

	srv := NewServer(asst, idx, store, cfg,
		WithCatalog(catalog),
		WithLibrary(lib),
		WithWatch(&mockWatchService{dirs: []string{"/tmp/inbox"}}),
		WithModel(gen.Model()),
	)
	return &testServer{srv: srv, handler: srv.Handler(), gen: gen}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	r := httptest.NewRequest(method, path, rd)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func (ts *testServer) upload(t *testing.T, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(uploadField, name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

const solarReport = "Solar output rose sharply in January across all sites.\f" +
	"The turbine study found vibration limits near the coast.\f" +
	"Snow cover reduced photovoltaic yield by nine percent."

func (ts *testServer) uploadReport(t *testing.T) *models.Document {
	t.Helper()
	w := ts.upload(t, "solar-report.txt", solarReport)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status: got %d, body %s", w.Code, w.Body.String())
	}
	var doc models.Document
	decodeBody(t, w, &doc)
	return &doc
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestUploadAndGetDocument(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.uploadReport(t)
	if !strings.HasPrefix(doc.ID, "upl-") {
		t.Errorf("id = %q, want upl- prefix", doc.ID)
	}
	if doc.PageCount != 3 || doc.ChunkCount == 0 {
		t.Errorf("doc = %+v", doc)
	}

	w := ts.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status: got %d", w.Code)
	}
	var got models.Document
	decodeBody(t, w, &got)
	if got.Title != "solar-report.txt" {
		t.Errorf("title = %q", got.Title)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/documents", nil)
	var list struct {
		Documents []models.Document `json:"documents"`
	}
	decodeBody(t, w, &list)
	if len(list.Documents) != 1 || list.Documents[0].ID != doc.ID {
		t.Errorf("list = %+v", list.Documents)
	}
}

func TestUpload_Rejections(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.upload(t, "binary.exe", "MZ"); w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("unsupported extension: got %d", w.Code)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("not multipart"))
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file: got %d", w.Code)
	}
}

func TestDocumentNotFound(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodGet, "/api/v1/documents/missing", nil},
		{http.MethodDelete, "/api/v1/documents/missing", nil},
		{http.MethodPost, "/api/v1/documents/missing/chat", models.ChatRequest{Question: "what?"}},
		{http.MethodPost, "/api/v1/documents/missing/search", models.SearchRequest{Query: "solar"}},
		{http.MethodPost, "/api/v1/documents/missing/summary", nil},
	}
	for _, tt := range tests {
		w := ts.do(t, tt.method, tt.path, tt.body)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: got %d, body %s", tt.method, tt.path, w.Code, w.Body.String())
		}
	}
}

func TestHandleSearch(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.uploadReport(t)

	w := ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/search", models.SearchRequest{Query: "snow cover yield"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	decodeBody(t, w, &resp)
	if len(resp.Results) == 0 || !strings.Contains(resp.Results[0].Chunk.Text, "Snow") {
		t.Errorf("results = %+v", resp.Results)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/search", models.SearchRequest{Query: "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty query: got %d", w.Code)
	}
}

func TestHandleChat(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.uploadReport(t)
	ts.gen.Respond(func(req llm.Request) (string, error) { return "Yield fell nine percent [p. 3].", nil })

	w := ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/chat", models.ChatRequest{Question: "How much did snow reduce yield?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var ans models.Answer
	decodeBody(t, w, &ans)
	if ans.Answer != "Yield fell nine percent [p. 3]." || len(ans.Sources) == 0 {
		t.Errorf("answer = %+v", ans)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/chat", models.ChatRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty question: got %d", w.Code)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+doc.ID+"/chat", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: got %d", rec.Code)
	}
}

func TestHandleChat_GenerationFailureIsBadGateway(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.uploadReport(t)
	ts.gen.Respond(func(req llm.Request) (string, error) { return "", errors.New("provider down") })

	w := ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/chat", models.ChatRequest{Question: "snow?"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status: got %d, body %s", w.Code, w.Body.String())
	}
}

func TestHandleSummary_CachedOnRepeat(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.uploadReport(t)

	w := ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var first models.Summary
	decodeBody(t, w, &first)
	calls := ts.gen.Calls()
	if calls == 0 || first.Cached {
		t.Fatalf("first summary: calls=%d cached=%v", calls, first.Cached)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/summary", models.SummaryRequest{})
	var second models.Summary
	decodeBody(t, w, &second)
	if !second.Cached || second.Summary != first.Summary {
		t.Errorf("second summary = %+v", second)
	}
	if ts.gen.Calls() != calls {
		t.Errorf("repeat summary made %d extra calls", ts.gen.Calls()-calls)
	}
}

func TestHandleCompare(t *testing.T) {
	ts := newTestServer(t)
	left := ts.uploadReport(t)
	w := ts.upload(t, "wind.txt", "Wind turbines showed vibration limits offshore.\fYield grew in winter storms.")
	var right models.Document
	decodeBody(t, w, &right)

	ts.gen.Respond(func(req llm.Request) (string, error) {
		return `{"verdict":"mixed","similarities":["both cover winter"],"differences":[],"summary":"ok"}`, nil
	})
	w = ts.do(t, http.MethodPost, "/api/v1/compare", models.CompareRequest{LeftID: left.ID, RightID: right.ID, Mode: "conclusions"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var cmp models.Comparison
	decodeBody(t, w, &cmp)
	if cmp.Verdict != "mixed" || len(cmp.Similarities) != 1 {
		t.Errorf("comparison = %+v", cmp)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/compare", models.CompareRequest{LeftID: left.ID})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing right id: got %d", w.Code)
	}
}

func TestHandleCatalog(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.uploadReport(t)

	w := ts.do(t, http.MethodGet, "/api/v1/catalog?q=turbine+vibration", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp catalogResponse
	decodeBody(t, w, &resp)
	if len(resp.Hits) != 1 || resp.Hits[0].DocumentID != doc.ID {
		t.Errorf("hits = %+v", resp.Hits)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/catalog?q=turbnie", nil)
	decodeBody(t, w, &resp)
	if resp.Suggestion != "turbine" {
		t.Errorf("suggestion = %q, want turbine", resp.Suggestion)
	}

	if w := ts.do(t, http.MethodGet, "/api/v1/catalog", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing q: got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/catalog?q=x&limit=-1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("negative limit: got %d", w.Code)
	}
}

func TestHandleDeleteDocument(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.uploadReport(t)

	if w := ts.do(t, http.MethodDelete, "/api/v1/documents/"+doc.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: got %d, body %s", w.Code, w.Body.String())
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d", w.Code)
	}
	w := ts.do(t, http.MethodGet, "/api/v1/catalog?q=turbine", nil)
	var resp catalogResponse
	decodeBody(t, w, &resp)
	if len(resp.Hits) != 0 {
		t.Errorf("catalog still has hits: %+v", resp.Hits)
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.uploadReport(t)

	w := ts.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]interface{}
	decodeBody(t, w, &out)
	if out["documents"] != float64(1) {
		t.Errorf("documents = %v", out["documents"])
	}
	if out["loaded_documents"] != float64(1) {
		t.Errorf("loaded_documents = %v", out["loaded_documents"])
	}
	if out["model"] != "test-model" {
		t.Errorf("model = %v", out["model"])
	}
	if _, ok := out["disk_usage_bytes"]; !ok {
		t.Error("disk_usage_bytes missing")
	}
}

func TestHandleWatchDirectoriesList(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	decodeBody(t, w, &out)
	if len(out.Directories) != 1 || out.Directories[0] != "/tmp/inbox" {
		t.Errorf("directories = %v", out.Directories)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", models.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("x: %w", library.ErrDocumentNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", storage.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: boom", assistant.ErrGeneration), http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
