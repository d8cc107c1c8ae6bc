// Command server runs the embedding core's HTTP API: it wires the
// Provider Abstraction, Storage Engine, Embedding Repository, Application
// Service, Model Registry, and Directory Sync Engine together behind
// internal/httpapi, following the teacher's signal-driven graceful
// shutdown (apps/edge-mcp/cmd/server/main.go) and multi-component
// bootstrap (apps/rag-loader/cmd/loader/main.go).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eeslabs/embedding-core/internal/config"
	"github.com/eeslabs/embedding-core/internal/httpapi"
	"github.com/eeslabs/embedding-core/internal/observability"
	"github.com/eeslabs/embedding-core/internal/providers"
	"github.com/eeslabs/embedding-core/internal/registry"
	"github.com/eeslabs/embedding-core/internal/repository"
	"github.com/eeslabs/embedding-core/internal/service"
	"github.com/eeslabs/embedding-core/internal/storage"
	"github.com/eeslabs/embedding-core/internal/storage/migrations"
	syncpkg "github.com/eeslabs/embedding-core/internal/sync"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("embedding-core server\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n", version, buildTime, gitCommit)
		os.Exit(0)
	}

	_ = godotenv.Load()

	logger := observability.NewStandardLogger("embedding-core")
	logger.Info("starting embedding core", observability.Fields{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Fields{"error": err.Error()})
	}
	logger = observability.NewStandardLoggerAt("embedding-core", observability.LogLevel(strings.ToUpper(cfg.LogLevel)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	engine, err := storage.Open(ctx, cfg.DatabaseURL, cfg.Dimensions, logger.WithPrefix("storage"), metrics)
	if err != nil {
		logger.Fatal("failed to open storage engine", observability.Fields{"error": err.Error()})
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("failed to close storage engine", observability.Fields{"error": err.Error()})
		}
	}()

	mgr, err := migrations.NewManager(engine.DB)
	if err != nil {
		logger.Fatal("failed to construct migration manager", observability.Fields{"error": err.Error()})
	}
	if err := mgr.Up(); err != nil {
		logger.Fatal("failed to apply catalogue migrations", observability.Fields{"error": err.Error()})
	}

	providerRegistry, err := providers.NewRegistry(cfg, logger.WithPrefix("providers"), metrics)
	if err != nil {
		logger.Fatal("failed to construct provider registry", observability.Fields{"error": err.Error()})
	}

	repo := repository.New(engine, logger.WithPrefix("repository"), metrics)

	compatCache, err := compatibilityCache(cfg, logger)
	if err != nil {
		logger.Fatal("failed to construct compatibility cache", observability.Fields{"error": err.Error()})
	}

	modelRegistry := registry.New(engine.DB, compatCache, logger.WithPrefix("registry"), metrics)

	svc := service.New(providerRegistry, repo, modelRegistry, logger.WithPrefix("service"), metrics, cfg.BatchConcurrency)

	directories := syncpkg.NewDirectoryStore(engine.DB)
	jobs := syncpkg.NewJobStore(engine.DB)
	syncEngine := syncpkg.NewEngine(directories, jobs, svc, repo, nil, logger.WithPrefix("sync"), metrics)

	if err := cancelIncompleteJobsAtStartup(ctx, directories, syncEngine, logger); err != nil {
		logger.Fatal("failed to cancel incomplete sync jobs at startup", observability.Fields{"error": err.Error()})
	}

	apiServer := httpapi.NewServer(svc, repo, modelRegistry, directories, jobs, syncEngine, logger.WithPrefix("httpapi"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", observability.Fields{"addr": cfg.HTTPAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Fatal("server failed to start", observability.Fields{"error": err.Error()})
	case <-ctx.Done():
		logger.Info("received shutdown signal", nil)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", observability.Fields{"error": err.Error()})
	}

	logger.Info("shutdown complete", nil)
}

// cancelIncompleteJobsAtStartup implements spec.md §4.5's crash-recovery
// requirement: a job left running or pending in sync_jobs across a
// process restart must be explicitly cancelled before a new job for the
// same directory is accepted, since the at-most-one-running-job guard
// (Engine.running) lives only in process memory and starts empty on every
// restart.
func cancelIncompleteJobsAtStartup(ctx context.Context, directories *syncpkg.DirectoryStore, syncEngine *syncpkg.Engine, logger observability.Logger) error {
	dirs, err := directories.ListDirectories(ctx)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := syncEngine.CancelIncompleteJobs(ctx, dir.ID); err != nil {
			return err
		}
	}
	logger.Info("cancelled any incomplete sync jobs left over from a previous run", observability.Fields{"directories": len(dirs)})
	return nil
}

// compatibilityCache picks a Redis-backed cache when cfg.RedisURL is set,
// falling back to the in-process LRU otherwise (registry.NewLRUCache /
// registry.NewRedisCache, SPEC_FULL.md §8).
func compatibilityCache(cfg *config.Config, logger observability.Logger) (registry.CompatibilityCache, error) {
	if cfg.RedisURL == "" {
		return registry.NewLRUCache(1024)
	}
	cache, err := registry.NewRedisCache(cfg.RedisURL, logger.WithPrefix("cache"))
	if err != nil {
		logger.Warn("failed to connect to redis, falling back to in-process cache", observability.Fields{"error": err.Error()})
		return registry.NewLRUCache(1024)
	}
	return cache, nil
}
