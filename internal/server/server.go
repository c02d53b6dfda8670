// Package server provides the HTTP API of the facet search service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/facetsearch/internal/app"
	"github.com/hyperjump/facetsearch/internal/metrics"
)

// DirectoryLister reports the directories being watched for new records.
type DirectoryLister interface {
	Directories() []string
}

// Server is the HTTP server of the search API.
type Server struct {
	app    *app.Components
	watch  DirectoryLister
	logger *zap.Logger
	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithWatch exposes the directories of w on /api/v1/watch/directories.
func WithWatch(w DirectoryLister) Option {
	return func(s *Server) { s.watch = w }
}

// NewServer creates a server over the wired application.
func NewServer(c *app.Components, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{app: c, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// root is the mount point of pretty url searches, always slash terminated.
func (s *Server) root() string {
	root := s.app.Config.Server.Root
	if root == "" {
		root = "/search/"
	}
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root
}

// Handler returns the routes of the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metrics.Middleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Get(s.root()+"*", s.handlePrettySearch)
	r.Post("/api/v1/documents", s.handleIndexDocuments)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
	r.Delete("/api/v1/cache", s.handleFlushCache)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/watch/directories", s.handleWatchDirectories)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	cfg := s.app.Config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("root", s.root()))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
