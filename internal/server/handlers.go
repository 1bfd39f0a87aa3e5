package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/bunko/internal/assistant"
	"github.com/hyperjump/bunko/internal/keyword"
	"github.com/hyperjump/bunko/internal/library"
	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/internal/storage"
)

const (
	defaultListLimit    = 50
	defaultCatalogLimit = 10
	uploadField         = "file"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents": docCount,
		"chunks":    chunkCount,
	}
	if s.library != nil {
		resp["loaded_documents"] = s.library.Len()
	}
	if s.catalog != nil {
		if n, err := s.catalog.DocCount(); err == nil {
			resp["catalog_records"] = n
		}
	}
	if s.model != "" {
		resp["model"] = s.model
	}

	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"chunk_target_chars":  s.config.Ingest.ChunkTargetChars,
			"chunk_overlap_chars": s.config.Ingest.ChunkOverlapChars,
			"top_k":               s.config.Retrieval.TopK,
			"min_score":           s.config.Retrieval.MinScore,
			"max_total_chars":     s.config.Retrieval.MaxTotalChars,
			"history_backend":     s.config.History.Backend,
			"database_path":       s.config.Storage.DatabasePath,
			"bleve_index_path":    s.config.Storage.BleveIndexPath,
		}
		usage, err := storage.MeasureUsage(
			s.config.Storage.DatabasePath,
			s.config.Storage.BleveIndexPath,
		)
		if err == nil {
			resp["disk_usage_bytes"] = usage.Total()
			resp["disk_usage"] = usage
		} else {
			s.logger.Warn("status: measure disk usage failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.respondFailure(w, "list documents", err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "offset": offset, "limit": limit})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if s.config != nil && s.config.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("multipart field %q is required", uploadField))
		return
	}
	defer file.Close()

	if !s.indexer.Allowed(header.Filename) {
		s.respondError(w, http.StatusUnsupportedMediaType, "unsupported file type: "+header.Filename)
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	s.logger.Debug("upload request", zap.String("name", header.Filename), zap.Int("bytes", len(content)))
	doc, err := s.indexer.IngestBytes(r.Context(), header.Filename, content)
	if err != nil {
		s.respondFailure(w, "upload", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "get document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.indexer.DeleteDocument(r.Context(), id); err != nil {
		s.respondFailure(w, "delete document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.assistant.Search(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondFailure(w, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	ans, err := s.assistant.Ask(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondFailure(w, "chat", err)
		return
	}
	s.respondJSON(w, http.StatusOK, ans)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req models.SummaryRequest
	// The body is optional.
	if r.ContentLength != 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}
	sum, err := s.assistant.Summarize(r.Context(), chi.URLParam(r, "id"), req.Query)
	if err != nil {
		s.respondFailure(w, "summary", err)
		return
	}
	s.respondJSON(w, http.StatusOK, sum)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req models.CompareRequest
	if !s.decode(w, r, &req) {
		return
	}
	cmp, err := s.assistant.Compare(r.Context(), req)
	if err != nil {
		s.respondFailure(w, "compare", err)
		return
	}
	s.respondJSON(w, http.StatusOK, cmp)
}

type catalogResponse struct {
	Query      string              `json:"query"`
	Hits       []models.CatalogHit `json:"hits"`
	Suggestion string              `json:"suggestion,omitempty"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.respondError(w, http.StatusNotImplemented, "catalog not enabled")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := queryInt(r, "limit", defaultCatalogLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := keyword.DefaultSearchOptions()
	if r.URL.Query().Get("fuzzy") == "true" {
		opts.FuzzyEnabled = true
		opts.Fuzziness = 1
	}
	hits, err := s.catalog.Search(r.Context(), q, limit, opts)
	if err != nil {
		s.respondFailure(w, "catalog search", err)
		return
	}
	if hits == nil {
		hits = []models.CatalogHit{}
	}
	resp := catalogResponse{Query: q, Hits: hits}
	if suggestion := s.catalog.Suggest(q); suggestion != "" && suggestion != q {
		resp.Suggestion = suggestion
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

// decode reads a JSON body into v and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, library.ErrDocumentNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, assistant.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
