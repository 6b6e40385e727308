// Command ingestion receives ticket change notifications from Bileto.
//
// Bileto posts to POST /api/v1/tickets/changes whenever a ticket or one of
// its messages changes. The changes are published on the ticket-changed
// Kafka topic, which the searchers consume to invalidate their cache.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/bileto/ticket-search/internal/ingestion"
	"github.com/bileto/ticket-search/pkg/config"
	"github.com/bileto/ticket-search/pkg/health"
	"github.com/bileto/ticket-search/pkg/kafka"
	"github.com/bileto/ticket-search/pkg/logger"
	"github.com/bileto/ticket-search/pkg/metrics"
	"github.com/bileto/ticket-search/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.TicketChanged)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.TicketChanged)

	checker := health.NewChecker()
	mux := http.NewServeMux()
	ingestion.NewHandler(producer).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}
	mws := []func(http.Handler) http.Handler{middleware.RequestID, middleware.AccessLog, middleware.Metrics(m)}
	if len(cfg.Server.APIKeyHashes) > 0 {
		mws = append(mws, middleware.APIKey(cfg.Server.APIKeyHashes))
	} else {
		slog.Warn("no api key configured, the change webhook is open")
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
