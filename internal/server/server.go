// Package server provides the HTTP API for otasuke.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/otasuke/internal/chat"
	"github.com/hyperjump/otasuke/internal/config"
	"github.com/hyperjump/otasuke/internal/indexer"
	"github.com/hyperjump/otasuke/internal/models"
	"github.com/hyperjump/otasuke/internal/storage"
	"github.com/hyperjump/otasuke/internal/vector"
	"go.uber.org/zap"
)

// SessionStats reports the size of the session store.
type SessionStats interface {
	Stats() (sessions, turns int)
}

// KnowledgeSearcher runs administrative knowledge lookups.
type KnowledgeSearcher interface {
	Search(ctx context.Context, q *models.KnowledgeQuery) (*models.KnowledgeSearchResponse, error)
}

// KnowledgeIndexer maintains the knowledge base.
type KnowledgeIndexer interface {
	Rebuild(ctx context.Context, dir string) (indexer.Report, error)
	IndexDocument(ctx context.Context, input *models.DocumentInput) ([]*models.KnowledgeChunk, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Deps are the components the server routes requests to.
type Deps struct {
	Pipeline *chat.Pipeline
	Sessions SessionStats
	Searcher KnowledgeSearcher
	Indexer  KnowledgeIndexer
	Storage  storage.Storage
	Vectors  vector.Index
}

// Server is the HTTP server for the otasuke API.
type Server struct {
	deps    Deps
	config  *config.Config
	version string
	logger  *zap.Logger
	limiter *rateLimiter
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.Config, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:    deps,
		config:  cfg,
		version: version,
		logger:  logger,
	}
	if cfg.RateLimit.EnabledOrDefault() && cfg.RateLimit.RequestsPerMinute > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute)
	}
	return s
}

// Router returns the HTTP handler with all middleware and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	}
	r.Use(cors(s.config.Server.CORSOrigins))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.config.Auth.RequireAPIKey {
			r.Use(apiKeyAuth(s.config.Auth.Header, s.config.Auth.APIKeys))
		}
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}

		r.Post("/chat", s.handleChat)
		r.Get("/conversation/{session_id}", s.handleGetConversation)
		r.Delete("/conversation/{session_id}", s.handleClearConversation)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Get("/sessions", s.handleSessions)
			r.Post("/knowledge/search", s.handleKnowledgeSearch)
			r.Post("/knowledge/rebuild", s.handleKnowledgeRebuild)
			r.Post("/documents", s.handleIndexDocument)
			r.Get("/documents/{id}", s.handleGetDocument)
			r.Delete("/documents/{id}", s.handleDeleteDocument)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops. A graceful Stop is not an error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
