package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultStaticTimeout   = 60 * time.Second
	DefaultRealtimeTimeout = 10 * time.Second
	DefaultMetricsAddr     = ":9090"
)

// Config holds process-level settings, read from the environment. A
// .env file in the working directory is loaded first if present.
type Config struct {
	// DatabaseURL is a Postgres connection string. When empty,
	// SQLitePath is used instead.
	DatabaseURL string
	SQLitePath  string

	// ProvidersPath points at the providers YAML file.
	ProvidersPath string

	NATSURL     string
	MetricsAddr string

	StaticTimeout   time.Duration
	RealtimeTimeout time.Duration
}

func Load() (*Config, error) {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATAHUB_DATABASE_URL"),
		SQLitePath:      getEnv("DATAHUB_SQLITE_PATH", "."),
		ProvidersPath:   getEnv("DATAHUB_PROVIDERS", "providers.yml"),
		NATSURL:         os.Getenv("DATAHUB_NATS_URL"),
		MetricsAddr:     getEnv("DATAHUB_METRICS_ADDR", DefaultMetricsAddr),
		StaticTimeout:   DefaultStaticTimeout,
		RealtimeTimeout: DefaultRealtimeTimeout,
	}

	if v := os.Getenv("DATAHUB_STATIC_TIMEOUT_SECS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DATAHUB_STATIC_TIMEOUT_SECS: %w", err)
		}
		cfg.StaticTimeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("DATAHUB_REALTIME_TIMEOUT_SECS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DATAHUB_REALTIME_TIMEOUT_SECS: %w", err)
		}
		cfg.RealtimeTimeout = time.Duration(secs) * time.Second
	}

	return cfg, nil
}

func getEnv(key string, dflt string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return dflt
}
