// churnsaverd is the churn recovery daemon: it serves the signed
// webhook endpoint and the operator API, and runs the worker pool that
// processes recovery jobs.
//
// Configuration is environment-only; see Config. A minimal run:
//
//	WEBHOOK_SECRETS=whsec_dev go run ./cmd/churnsaverd
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	churnsaver "github.com/Danservfinn/churnsaver-sub010"
	"github.com/Danservfinn/churnsaver-sub010/api"
	"github.com/Danservfinn/churnsaver-sub010/engine"
	"github.com/Danservfinn/churnsaver-sub010/store/bun"
	"github.com/Danservfinn/churnsaver-sub010/store/memory"
	"github.com/Danservfinn/churnsaver-sub010/store/postgres"
	redisstore "github.com/Danservfinn/churnsaver-sub010/store/redis"
	"github.com/Danservfinn/churnsaver-sub010/webhook"
)

func main() {
	if err := run(); err != nil {
		slog.Error("churnsaverd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ──────────────────────────────────────────────────
	// Store
	// ──────────────────────────────────────────────────

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}

	// ──────────────────────────────────────────────────
	// Pipeline and engine
	// ──────────────────────────────────────────────────

	p, err := churnsaver.New(
		churnsaver.WithStore(s),
		churnsaver.WithConcurrency(cfg.Concurrency),
		churnsaver.WithQueues(cfg.Queues),
		churnsaver.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	eng, err := engine.Build(p)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if err := registerJobs(eng, logger); err != nil {
		return err
	}

	// ──────────────────────────────────────────────────
	// HTTP surface: webhook endpoint + operator API
	// ──────────────────────────────────────────────────

	validator := webhook.NewValidator(logger, cfg.WebhookSecrets,
		webhook.WithSkewWindow(cfg.WebhookSkew),
	)
	hook := webhook.NewHandler(validator, eng, logger)

	r := chi.NewRouter()
	r.Method(http.MethodPost, "/webhooks/platform", hook)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := s.Ping(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	api.New(eng, logger).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ──────────────────────────────────────────────────
	// Run
	// ──────────────────────────────────────────────────

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("churnsaverd listening",
			slog.String("addr", cfg.Addr),
			slog.String("backend", cfg.Backend),
		)
		if serveErr := srv.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-errCh:
		return fmt.Errorf("http server: %w", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	// Stop drains the worker pool and closes the store.
	if err := eng.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("engine stop: %w", err)
	}

	logger.Info("churnsaverd stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openStore builds the configured backend. Every backend implements the
// full aggregate store interface, so the rest of the daemon is
// backend-agnostic.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (churnsaver.Storer, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.PostgresDSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	case "bun":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return redisstore.New(client, redisstore.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Backend)
	}
}
