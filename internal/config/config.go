// Package config loads service settings from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/loss-recon/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Reconciliation run scheduling.
	SourcesManifest string
	RunInterval     time.Duration
	RunBudget       time.Duration
	FetchAttempts   int
	FetchBackoff    time.Duration
	FetchMaxBackoff time.Duration
	FetchTimeout    time.Duration

	// Cluster store backend: "memory" or "redis".
	StoreBackend string
	RedisAddr    string
	RedisPrefix  string

	// Downstream cluster feed.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	runInterval, err := parseDuration("RUN_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	runBudget, err := parseDuration("RUN_BUDGET", "2m")
	if err != nil {
		return nil, err
	}
	fetchBackoff, err := parseDuration("FETCH_BACKOFF", "200ms")
	if err != nil {
		return nil, err
	}
	fetchMaxBackoff, err := parseDuration("FETCH_MAX_BACKOFF", "5s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	fetchAttempts, err := parseInt("FETCH_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	mapboxCacheSize, err := parseInt("MAPBOX_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	kafkaBrokers := splitBrokers(envOrDefault("KAFKA_BROKERS", ""))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SourcesManifest: envOrDefault("SOURCES_MANIFEST", "sources.yaml"),
		RunInterval:     runInterval,
		RunBudget:       runBudget,
		FetchAttempts:   fetchAttempts,
		FetchBackoff:    fetchBackoff,
		FetchMaxBackoff: fetchMaxBackoff,
		FetchTimeout:    fetchTimeout,

		StoreBackend: envOrDefault("STORE_BACKEND", "memory"),
		RedisAddr:    envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPrefix:  envOrDefault("REDIS_PREFIX", "loss_recon"),

		KafkaEnabled:   kafkaEnabled,
		KafkaBrokers:   kafkaBrokers,
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "loss-clusters"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,
	}

	if cfg.StoreBackend != "memory" && cfg.StoreBackend != "redis" {
		return nil, domain.Configurationf("STORE_BACKEND must be memory or redis, got %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == "redis" && cfg.RedisAddr == "" {
		return nil, domain.Configurationf("STORE_BACKEND is redis but REDIS_ADDR is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, domain.Configurationf("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, domain.Configurationf("KAFKA_ENABLED is true but KAFKA_SINK_TOPIC is empty")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, domain.Configurationf("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if cfg.SourcesManifest == "" {
		return nil, domain.Configurationf("SOURCES_MANIFEST is required")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, domain.Configurationf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, domain.Configurationf("invalid %s: %q", key, s)
	}
	return n, nil
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
