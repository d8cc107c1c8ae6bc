package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eeslabs/embedding-core/internal/observability"
	"github.com/eeslabs/embedding-core/internal/registry"
	"github.com/eeslabs/embedding-core/internal/repository"
	"github.com/eeslabs/embedding-core/internal/service"
	"github.com/eeslabs/embedding-core/internal/sync"
)

// Server holds every collaborator the routes in spec.md §6 bind to.
type Server struct {
	service     *service.Service
	repo        *repository.Repository
	registry    *registry.Registry
	directories *sync.DirectoryStore
	jobs        *sync.JobStore
	engine      *sync.Engine
	logger      observability.Logger
}

// NewServer wires a Server from the Core's components. Any of registry,
// directories, jobs, and engine may be nil, in which case the routes that
// depend on them respond 503 rather than panicking — this lets cmd/server
// stand up the embeddings/search surface even when directory sync or the
// model registry aren't configured.
func NewServer(svc *service.Service, repo *repository.Repository, reg *registry.Registry, directories *sync.DirectoryStore, jobs *sync.JobStore, engine *sync.Engine, logger observability.Logger) *Server {
	return &Server{
		service:     svc,
		repo:        repo,
		registry:    reg,
		directories: directories,
		jobs:        jobs,
		engine:      engine,
		logger:      logger,
	}
}

// Routes builds the chi router spec.md §6 describes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/embeddings", func(r chi.Router) {
		r.Post("/", s.handleCreateEmbedding)
		r.Post("/batch", s.handleCreateBatchEmbeddings)
		r.Get("/", s.handleListEmbeddings)
		r.Get("/{uri}", s.handleGetEmbeddingByURI)
		r.Delete("/{id}", s.handleDeleteEmbedding)
	})

	r.Post("/search", s.handleSearch)

	r.Route("/models", func(r chi.Router) {
		r.Post("/compatibility", s.handleCheckCompatibility)
		r.Post("/migrate", s.handleMigrate)
		r.Get("/task-types", s.handleGetTaskTypes)
		r.Post("/", s.handleCreateModel)
		r.Get("/", s.handleListModels)
		r.Get("/{id}", s.handleGetModel)
		r.Post("/{id}/activate", s.handleActivateModel)
		r.Delete("/{id}", s.handleDeleteModel)
	})

	r.Route("/providers", func(r chi.Router) {
		r.Post("/", s.handleCreateProvider)
		r.Get("/", s.handleListProviders)
		r.Get("/{id}", s.handleGetProvider)
		r.Delete("/{id}", s.handleDeleteProvider)
	})

	r.Route("/upload-directories", func(r chi.Router) {
		r.Post("/", s.handleRegisterDirectory)
		r.Get("/", s.handleListDirectories)
		r.Get("/{id}", s.handleGetDirectory)
		r.Delete("/{id}", s.handleDeleteDirectory)
		r.Post("/{id}/sync", s.handleStartSync)
		r.Get("/{id}/sync/stream", s.handleSyncStream)
		r.Get("/{id}/sync/jobs", s.handleListJobs)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request", observability.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.logger, map[string]any{"status": "ok"}, http.StatusOK)
}

func unavailable(w http.ResponseWriter, logger observability.Logger, component string) {
	respondError(w, logger, component+" is not configured", http.StatusServiceUnavailable)
}
