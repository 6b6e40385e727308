// Command searcher serves the Bileto ticket search API.
//
// It parses search queries, resolves them against PostgreSQL (or a YAML
// fixture file with the memory backend), caches results in Redis and
// publishes one analytics event per search to Kafka. Ticket change events
// consumed from Kafka invalidate the cache.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"github.com/bileto/ticket-search/internal/searcher/cache"
	"github.com/bileto/ticket-search/internal/searcher/executor"
	"github.com/bileto/ticket-search/internal/searcher/handler"
	"github.com/bileto/ticket-search/internal/tickets"
	"github.com/bileto/ticket-search/pkg/config"
	"github.com/bileto/ticket-search/pkg/health"
	"github.com/bileto/ticket-search/pkg/kafka"
	"github.com/bileto/ticket-search/pkg/logger"
	"github.com/bileto/ticket-search/pkg/metrics"
	"github.com/bileto/ticket-search/pkg/middleware"
	"github.com/bileto/ticket-search/pkg/postgres"
	pkgredis "github.com/bileto/ticket-search/pkg/redis"
	"github.com/bileto/ticket-search/pkg/resilience"
	"github.com/bileto/ticket-search/pkg/tracing"
	"golang.org/x/sync/errgroup"
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
	slog.Info("starting search service", "port", cfg.Server.Port, "backend", cfg.Search.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		slog.Error("failed to open ticket repository", "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	exec := executor.New(repo, cfg.Search, func(name string, to resilience.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	})

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	g, gctx := errgroup.WithContext(ctx)

	var collector handler.Tracker
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		c := analytics.NewCollector(producer, 10000, 100, 2*time.Second)
		// Close flushes once the server has drained its requests.
		c.Start(context.WithoutCancel(ctx))
		defer c.Close()
		collector = c
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.SearchEvents)

		if queryCache != nil {
			invalidator := cache.NewInvalidator(queryCache, m)
			consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.TicketChanged, invalidator.Handle)
			g.Go(func() error {
				return consumer.Start(gctx)
			})
			slog.Info("cache invalidation consumer started", "topic", cfg.Kafka.Topics.TicketChanged)
		}
	}

	tracer := tracing.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.SampleRate)
	h := handler.New(exec, queryCache, collector, m, tracer, cfg.Search)

	checker := health.NewChecker()
	checker.Register("tickets", health.PingCheck(exec))
	if queryCache != nil {
		checker.Register("redis", health.OptionalPingCheck(queryCache))
	}

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.AccessLog,
		middleware.Metrics(m),
	}
	if len(cfg.Server.AllowOrigins) > 0 {
		mws = append(mws, middleware.CORS(cfg.Server.AllowOrigins, handler.ActorHeader))
	}
	if len(cfg.Server.APIKeyHashes) > 0 {
		mws = append(mws, middleware.APIKey(cfg.Server.APIKeyHashes))
	}
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(ctx, cfg.Server.RateLimit, time.Minute)
		mws = append(mws, middleware.RateLimit(limiter, middleware.ClientKey(handler.ActorHeader)))
	}
	mws = append(mws, middleware.Timeout(cfg.Search.Timeout+cfg.Search.Timeout/2))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

// openRepository returns the configured ticket backend and a function
// releasing it.
func openRepository(ctx context.Context, cfg *config.Config) (tickets.Repository, func(), error) {
	if cfg.Search.Backend == "memory" {
		repo, err := tickets.LoadFixtures(cfg.Search.FixturesPath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("memory backend loaded", "fixtures", cfg.Search.FixturesPath)
		return repo, func() {}, nil
	}

	var client *postgres.Client
	err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 5}, func() error {
		var err error
		client, err = postgres.New(ctx, cfg.Postgres)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return tickets.NewPostgresRepository(client), func() { client.Close() }, nil
}
