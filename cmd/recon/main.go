package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	httpadapter "github.com/couchcryptid/loss-recon/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/loss-recon/internal/adapter/kafka"
	"github.com/couchcryptid/loss-recon/internal/adapter/mapbox"
	"github.com/couchcryptid/loss-recon/internal/adapter/memstore"
	"github.com/couchcryptid/loss-recon/internal/adapter/redisstore"
	"github.com/couchcryptid/loss-recon/internal/cluster"
	"github.com/couchcryptid/loss-recon/internal/config"
	"github.com/couchcryptid/loss-recon/internal/domain"
	"github.com/couchcryptid/loss-recon/internal/ingest"
	"github.com/couchcryptid/loss-recon/internal/observability"
	"github.com/couchcryptid/loss-recon/internal/source"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	store, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}

	// Location resolver (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var resolver domain.Resolver
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		resolver = mapbox.NewCachedResolver(client, cfg.MapboxCacheSize, metrics)
		metrics.ResolverEnabled.Set(1)
		logger.Info("mapbox resolution enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox resolution disabled")
	}

	// Downstream cluster feed (feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS).
	var publisher ingest.Publisher
	var closePublisher func() error
	if cfg.KafkaEnabled {
		p := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaSinkTopic, logger)
		publisher = p
		closePublisher = p.Close
		logger.Info("cluster feed enabled", "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("cluster feed disabled")
	}

	fetchers, err := buildFetchers(cfg, logger)
	if err != nil {
		logger.Error("failed to load sources manifest", "error", err)
		os.Exit(1)
	}
	if len(fetchers) == 0 {
		logger.Error("no usable sources configured", "manifest", cfg.SourcesManifest)
		os.Exit(1)
	}

	assembler := cluster.New(store, logger, metrics)
	coordinator := ingest.New(fetchers, resolver, assembler, publisher, logger, metrics, ingest.Config{
		RunBudget:       cfg.RunBudget,
		FetchAttempts:   cfg.FetchAttempts,
		FetchBackoff:    cfg.FetchBackoff,
		FetchMaxBackoff: cfg.FetchMaxBackoff,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, store, coordinator, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the reconciliation loop.
	go coordinator.RunEvery(ctx, cfg.RunInterval)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if closePublisher != nil {
		if err := closePublisher(); err != nil {
			logger.Error("publisher close error", "error", err)
		}
	}
	if closeStore != nil {
		if err := closeStore(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func buildStore(cfg *config.Config, logger *slog.Logger) (cluster.Store, func() error, error) {
	switch cfg.StoreBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		logger.Info("using redis store", "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
		return redisstore.New(client, cfg.RedisPrefix), client.Close, nil
	default:
		logger.Info("using in-memory store")
		return memstore.New(), nil, nil
	}
}

// buildFetchers loads the manifest and constructs one fetcher per enabled
// source. A source with a missing credential is skipped with an error log;
// the rest of the manifest still runs.
func buildFetchers(cfg *config.Config, logger *slog.Logger) ([]source.Fetcher, error) {
	manifest, err := source.LoadManifest(cfg.SourcesManifest)
	if err != nil {
		return nil, err
	}

	var fetchers []source.Fetcher
	for _, entry := range manifest.EnabledSources() {
		f, err := source.BuildFetcher(entry, cfg.FetchTimeout)
		if err != nil {
			logger.Error("skipping source", "source", entry.Name, "error", err)
			continue
		}
		fetchers = append(fetchers, f)
	}
	return fetchers, nil
}
