// Command analytics starts the search analytics service.
//
// It consumes the search events published by the searcher, aggregates them
// in memory (volume, latency percentiles, cache hit rate, invalid queries,
// top queries and qualifiers) and serves them at GET /api/v1/analytics.
// When PostgreSQL is reachable, snapshots are saved periodically and served
// at GET /api/v1/analytics/history.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bileto/ticket-search/internal/analytics"
	"github.com/bileto/ticket-search/internal/analytics/aggregator"
	"github.com/bileto/ticket-search/pkg/config"
	"github.com/bileto/ticket-search/pkg/health"
	"github.com/bileto/ticket-search/pkg/kafka"
	"github.com/bileto/ticket-search/pkg/logger"
	"github.com/bileto/ticket-search/pkg/metrics"
	"github.com/bileto/ticket-search/pkg/middleware"
	"github.com/bileto/ticket-search/pkg/postgres"
)

const snapshotInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, analytics.HandleEvent(agg))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("search event consumer error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.SearchEvents)

	checker := health.NewChecker()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
	} else {
		defer db.Close()
		store := aggregator.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("failed to migrate snapshot table", "error", err)
			os.Exit(1)
		}
		if last, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("failed to read latest snapshot", "error", err)
		} else if last != nil {
			slog.Info("latest analytics snapshot",
				"total_searches", last.TotalSearches,
				"invalid_queries", last.InvalidQueries,
			)
		}
		store.StartPeriodicSave(ctx, agg, snapshotInterval)
		checker.Register("postgres", health.OptionalPingCheck(db))
		mux.HandleFunc("GET /api/v1/analytics/history", store.History)
	}

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.AccessLog, middleware.Metrics(m)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
