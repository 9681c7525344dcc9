package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all client configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Remote API
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Local data
	DataDir string

	// Logging
	LogLevel string

	// Sync
	SyncInterval  time.Duration
	ProbeInterval time.Duration
	ProbePath     string

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		APIBaseURL:  getEnv("MONGER_API_URL", "https://api.monger.app/v1"),
		HTTPTimeout: getEnvDuration("MONGER_HTTP_TIMEOUT", 10*time.Second),

		DataDir: getEnv("MONGER_DATA_DIR", defaultDataDir()),

		LogLevel: getEnv("MONGER_LOG_LEVEL", "info"),

		SyncInterval:  getEnvDuration("MONGER_SYNC_INTERVAL", 30*time.Second),
		ProbeInterval: getEnvDuration("MONGER_PROBE_INTERVAL", 15*time.Second),
		ProbePath:     getEnv("MONGER_PROBE_PATH", "/health"),

		MaxRetries:     getEnvInt("MONGER_MAX_RETRIES", 2),
		InitialBackoff: getEnvDuration("MONGER_INITIAL_BACKOFF", 200*time.Millisecond),
		MaxConcurrency: getEnvInt("MONGER_MAX_CONCURRENCY", 8),

		CacheTTL: getEnvDuration("MONGER_CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// DatabasePath is the sqlite file backing the local store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "monger.db")
}

// CredentialsPath is the token/profile file (the localStorage analog).
func (c *Config) CredentialsPath() string {
	return filepath.Join(c.DataDir, "credentials.json")
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".monger"
	}
	return filepath.Join(base, "monger")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
