// Package config provides configuration management for xmem. It loads
// settings from environment variables with the XMEM_ prefix and provides
// sensible defaults for all configuration options. Vector backend sources
// are configured separately through sources.yaml (see internal/sources).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the xmem server.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Sync      SyncConfig
	Security  SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6380)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and source configuration.
type StorageConfig struct {
	DataPath    string // Path to the data directory (default: ./data)
	SourcesPath string // Path to sources.yaml (default: {DataPath}/sources.yaml)
}

// EmbeddingConfig configures the embedding generators.
type EmbeddingConfig struct {
	ModelURL  string // Feature-extraction endpoint; empty means deterministic only
	ModelName string // Model tag reported with generated vectors
	APIKey    string // Bearer token for the model endpoint
	Dimension int    // Vector dimension (default: 384)
}

// SyncConfig tunes the sync coordinator and reconciler.
type SyncConfig struct {
	Workers           int           // Background sync workers (default: 4)
	MaxAttempts       int           // Upsert retries per sync (default: 5)
	ReconcileInterval time.Duration // Reconciliation cadence (default: 5m)
	RateLimit         float64       // Backend calls per second (default: 20)
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	SecurityMode string // development or production (default: development)
	APIToken     string // Bearer token required in production mode
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("XMEM_PORT", 6380),
			Host: getEnv("XMEM_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			DataPath:    getEnv("XMEM_DATA_PATH", "./data"),
			SourcesPath: getEnv("XMEM_SOURCES_PATH", ""),
		},
		Embedding: EmbeddingConfig{
			ModelURL:  getEnv("XMEM_EMBEDDING_URL", ""),
			ModelName: getEnv("XMEM_EMBEDDING_MODEL", "all-MiniLM-L6-v2"),
			APIKey:    getEnv("XMEM_EMBEDDING_API_KEY", ""),
			Dimension: getEnvInt("XMEM_EMBEDDING_DIMENSION", 384),
		},
		Sync: SyncConfig{
			Workers:           getEnvInt("XMEM_SYNC_WORKERS", 4),
			MaxAttempts:       getEnvInt("XMEM_SYNC_MAX_ATTEMPTS", 5),
			ReconcileInterval: getEnvDuration("XMEM_RECONCILE_INTERVAL", 5*time.Minute),
			RateLimit:         float64(getEnvInt("XMEM_SYNC_RATE_LIMIT", 20)),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("XMEM_SECURITY_MODE", "development"),
			APIToken:     getEnv("XMEM_API_TOKEN", ""),
		},
	}

	if cfg.Storage.SourcesPath == "" {
		cfg.Storage.SourcesPath = cfg.Storage.DataPath + "/sources.yaml"
	}
	return cfg
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("30s", "5m")
// or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
