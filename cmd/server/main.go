// Package main is the entrypoint for the Centaur error-tracking server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/centaurhq/centaur/internal/api"
	"github.com/centaurhq/centaur/internal/api/handler"
	mw "github.com/centaurhq/centaur/internal/api/middleware"
	"github.com/centaurhq/centaur/internal/api/response"
	"github.com/centaurhq/centaur/internal/cache"
	"github.com/centaurhq/centaur/internal/config"
	"github.com/centaurhq/centaur/internal/ingest"
	"github.com/centaurhq/centaur/internal/stacktrace"
	"github.com/centaurhq/centaur/internal/store"
	"github.com/centaurhq/centaur/internal/sweeper"
)

const shutdownTimeout = 30 * time.Second

// sweepInterval is how often a periodic sweep pass is enqueued; each pass
// chains its own continuations when one batch is not enough.
const sweepInterval = time.Hour

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"retention_window", cfg.Retention.Window,
		"sweep_batch_size", cfg.Retention.BatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and ingestion pipeline
	pgStore := store.NewPostgresStore(pool)

	errorStore := ingest.NewErrorStore(pgStore, redisCache)
	recorder := ingest.NewRecorder(pgStore)
	sink := ingest.NewIngestor(errorStore, recorder, &stacktrace.RuntimeCapturer{},
		cfg.Ingest.AppVersion, cfg.Ingest.CookieBlacklist, nil)

	// 6. Start the retention sweeper
	runner := sweeper.NewRunner(cfg.Retention.QueueName, redisCache)
	sw := sweeper.New(pgStore, runner,
		cfg.Retention.Window, cfg.Retention.BatchSize, cfg.Retention.ReconcileCap)

	go runner.Run(ctx, sw)
	go func() {
		runner.Schedule(0)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runner.Schedule(0)
			}
		}
	}()

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:           auth,
		RateLimit:      rateLimit,
		FailureCapture: ingest.Middleware(sink),

		HealthHandler:       healthHandler(pgStore, redisCache),
		ListErrorsHandler:   handler.NewListErrorsHandler(pgStore),
		GetErrorHandler:     handler.NewGetErrorHandler(pgStore),
		ResolveErrorHandler: handler.NewResolveErrorHandler(pgStore),
		TriggerSweepHandler: handler.NewTriggerSweepHandler(runner, cfg.Retention.QueueName),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	sw.Drain()

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
