// Package server provides the HTTP API for bunko.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/bunko/internal/assistant"
	"github.com/hyperjump/bunko/internal/config"
	"github.com/hyperjump/bunko/internal/indexer"
	"github.com/hyperjump/bunko/internal/keyword"
	"github.com/hyperjump/bunko/internal/library"
	"github.com/hyperjump/bunko/internal/storage"
	"github.com/hyperjump/bunko/pkg/utils"
)

// requestTimeout bounds a request. Summaries of long documents make several
// generation calls, so it is well above a typical API timeout.
const requestTimeout = 5 * time.Minute

// WatchService reports the watched inbox directories.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the bunko API.
type Server struct {
	assistant *assistant.Assistant
	indexer   *indexer.Indexer
	storage   storage.Storage
	config    *config.Config
	catalog   keyword.Catalog
	library   *library.Library
	watch     WatchService
	model     string
	logger    *zap.Logger
	server    *http.Server
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithCatalog enables GET /api/v1/catalog.
func WithCatalog(c keyword.Catalog) Option {
	return func(s *Server) { s.catalog = c }
}

// WithLibrary reports loaded documents in the status endpoint.
func WithLibrary(l *library.Library) Option {
	return func(s *Server) { s.library = l }
}

// WithWatch enables GET /api/v1/watch/directories.
func WithWatch(w WatchService) Option {
	return func(s *Server) { s.watch = w }
}

// WithModel names the generation model in the status endpoint.
func WithModel(name string) Option {
	return func(s *Server) { s.model = name }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	asst *assistant.Assistant,
	idx *indexer.Indexer,
	store storage.Storage,
	cfg *config.Config,
	opts ...Option,
) *Server {
	s := &Server{
		assistant: asst,
		indexer:   idx,
		storage:   store,
		config:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.LoggerOrNop(s.logger)
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/catalog", s.handleCatalog)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/compare", s.handleCompare)
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Post("/", s.handleUploadDocument)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDocument)
				r.Delete("/", s.handleDeleteDocument)
				r.Post("/search", s.handleSearch)
				r.Post("/chat", s.handleChat)
				r.Post("/summary", s.handleSummary)
			})
		})
	})
	return r
}

// requestLogger logs each request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
