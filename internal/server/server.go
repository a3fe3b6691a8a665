package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/export"
	"github.com/joseph-ayodele/docproc/internal/ingest"
	"github.com/joseph-ayodele/docproc/internal/queue"
	"github.com/joseph-ayodele/docproc/internal/repository"
)

// Server exposes the upload, status, export and DLQ-inspection endpoints.
// Everything behind /api/v1 requires the configured API key.
type Server struct {
	logger  *slog.Logger
	gateway *ingest.Gateway
	docs    repository.DocumentRepository
	export  *export.Service
	dlq     *queue.DeadLetter
	cfg     common.ServerConfig
	upload  common.UploadConfig
}

func New(logger *slog.Logger, gateway *ingest.Gateway, docs repository.DocumentRepository, exportSvc *export.Service, dlq *queue.DeadLetter, cfg common.ServerConfig, upload common.UploadConfig) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:  logger,
		gateway: gateway,
		docs:    docs,
		export:  exportSvc,
		dlq:     dlq,
		cfg:     cfg,
		upload:  upload,
	}
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthcheck", s.handleHealthcheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/documents", s.handleUpload)
		r.Get("/documents/export", s.handleExport)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Get("/documents/{id}/status", s.handleGetStatus)
		r.Get("/dlq", s.handleListDLQ)
	})

	return r
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "healthy"})
}

// requireAPIKey rejects requests without the configured X-API-Key header.
// An empty configured key disables the check (local development).
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("X-API-Key") != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
