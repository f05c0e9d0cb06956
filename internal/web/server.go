// Package web provides the HTTP API for validating and ingesting regulatory
// data files.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/regdata-io/cmsload/internal/catalog"
	"github.com/regdata-io/cmsload/internal/config"
	"github.com/regdata-io/cmsload/internal/ingest"
	"github.com/regdata-io/cmsload/internal/logging"
	"github.com/regdata-io/cmsload/internal/store"
	"github.com/regdata-io/cmsload/internal/web/middleware"
)

// pendingUpload is a validated file waiting in the temp directory for its
// ingest call.
type pendingUpload struct {
	Path       string
	FileName   string
	FileHash   string
	SourceCode string
	Created    time.Time
}

// Server is the HTTP server for the ingestion API.
type Server struct {
	st     *store.Store
	cat    catalog.Catalog
	orch   *ingest.Orchestrator
	cfg    *config.Config
	router *chi.Mux
	server *http.Server

	mu      sync.Mutex
	pending map[string]pendingUpload
}

// NewServer creates a Server wired to the given store, catalog and
// orchestrator.
func NewServer(st *store.Store, cat catalog.Catalog, orch *ingest.Orchestrator, cfg *config.Config) *Server {
	s := &Server{
		st:      st,
		cat:     cat,
		orch:    orch,
		cfg:     cfg,
		router:  chi.NewRouter(),
		pending: make(map[string]pendingUpload),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/sources", s.handleListSources)
		r.Get("/sources/{sourceCode}/columns", s.handleSourceColumns)
		r.Get("/sources/{sourceCode}/versions", s.handleSourceVersions)

		r.Post("/upload/{sourceCode}/validate", s.handleValidate)
		r.Post("/upload/{sourceCode}/ingest", s.handleIngest)

		r.Get("/versions/{versionID}/logs", s.handleVersionLogs)
		r.Post("/versions/{versionID}/current", s.handleMakeCurrent)
	})
}

// Start runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	sweepDone := make(chan struct{})
	go s.sweepPending(ctx, sweepDone)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	<-sweepDone
	return err
}

// sweepPending removes validated uploads that were never ingested.
func (s *Server) sweepPending(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.Upload.TempFileMaxAge)
			s.mu.Lock()
			for id, up := range s.pending {
				if up.Created.Before(cutoff) {
					os.Remove(up.Path)
					delete(s.pending, id)
					logging.FromContext(ctx).Info("swept stale upload",
						"upload_id", id, "source", up.SourceCode, "file", up.FileName)
				}
			}
			s.mu.Unlock()
		}
	}
}

// takePending removes and returns the pending upload for id.
func (s *Server) takePending(id string) (pendingUpload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	return up, ok
}

func (s *Server) addPending(id string, up pendingUpload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = up
}

// tempDir resolves where pending uploads are stored.
func (s *Server) tempDir() string {
	if s.cfg.Upload.TempDir != "" {
		return s.cfg.Upload.TempDir
	}
	return filepath.Join(os.TempDir(), "cmsload-uploads")
}

var (
	errBadRequest      = errors.New("bad request")
	errUploadNotFound  = errors.New("upload not found or expired")
	errVersionNotFound = errors.New("version not found")
)

func badRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}
