// Command ingestion starts the signed asset-ingestion webhook.
//
// The service accepts catalog assets via POST /api/v1/assets/ingest,
// authenticates them with an HMAC-SHA256 signature, validates them, and
// persists them to PostgreSQL. Each new entry is announced on a Kafka topic
// when Kafka is enabled. Entries can be read back with
// GET /api/v1/assets/{id}. Health probes are served at /health/live and
// /health/ready, and Prometheus metrics on a separate port.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion/router"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/redis"
)

// main loads configuration, opens the catalog store and rate limiter, wires
// up the ingest handler, and starts the HTTP server. Graceful shutdown is
// triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"rate_limit_backend", cfg.Ingest.RateLimit.Backend,
	)
	if !cfg.Ingest.Configured() {
		slog.Error("AI_INGEST_SECRET or AI_INGEST_API_KEY_ID is not set; every ingest request will fail with 500 until both are configured")
	}

	checker := health.NewChecker()
	m := metrics.New()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		slog.Error("failed to open catalog store", "error", err)
		os.Exit(1)
	}
	defer closeStore()
	checker.Register("catalog", health.PingCheck(store.Ping, true))

	limiter, closeLimiter, err := openLimiter(cfg, checker)
	if err != nil {
		slog.Error("failed to create rate limiter", "error", err)
		os.Exit(1)
	}
	defer closeLimiter()

	var events publisher.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AssetIngested)
		defer producer.Close()
		events = producer
		slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.AssetIngested)
	}

	pub := publisher.New(store, events, publisher.Options{
		StoreTimeout: cfg.Ingest.StoreTimeout,
		Metrics:      m,
	})
	h := handler.New(handler.Config{
		Secret:          cfg.Ingest.Secret,
		APIKeyID:        cfg.Ingest.APIKeyID,
		TimestampWindow: cfg.Ingest.TimestampWindow,
		MaxBodyBytes:    cfg.Ingest.MaxBodyBytes,
		RateLimit:       cfg.Ingest.RateLimit.Limit,
	}, limiter, pub, m)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.New(h, checker, m, cfg.Server.RequestTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if err := pub.Wait(shutdownCtx); err != nil {
			slog.Error("pending asset events not published before shutdown", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-drained
	slog.Info("ingestion service stopped")
}

func openStore(cfg *config.Config) (catalog.Store, func(), error) {
	if cfg.Store.Driver == "memory" {
		slog.Warn("using in-memory catalog store; entries are lost on restart")
		return catalog.NewMemoryStore(), func() {}, nil
	}
	if cfg.Store.AutoMigrate {
		if err := postgres.Migrate(cfg.Postgres, cfg.Store.MigrationsDir); err != nil {
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("connected to postgres")
	return catalog.NewPostgresStore(db), func() { db.Close() }, nil
}

func openLimiter(cfg *config.Config, checker *health.Checker) (ratelimit.Admitter, func(), error) {
	rl := cfg.Ingest.RateLimit
	if rl.Backend != "redis" {
		slog.Info("using process-local rate limiter", "limit", rl.Limit, "window", rl.Window)
		return ratelimit.NewWindow(rl.Limit, rl.Window), func() {}, nil
	}
	client, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	checker.Register("redis", health.PingCheck(client.Ping, false))
	slog.Info("using redis rate limiter", "addr", cfg.Redis.Addr, "limit", rl.Limit, "window", rl.Window)
	return ratelimit.NewRedisWindow(client, rl.Key, rl.Limit, rl.Window), func() { client.Close() }, nil
}
