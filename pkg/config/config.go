// Package config builds the explicit configuration passed into every
// component. It is constructed once at the entrypoint; nothing reads the
// environment after that.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds pipeline configuration.
type Config struct {
	DataDir   string
	StoreFile string

	LogLevel string
	LogFile  string

	LLMAPIKey string
	LLMHost   string
	LLMModel  string

	EnrichBatchSize      int
	EnrichMaxRetries     int
	EnrichRateLimitDelay time.Duration

	HTTPTimeout time.Duration

	AdminUser string
	AdminPass string

	CatalogPath string
}

// Load loads configuration from environment variables, reading a local
// .env file first when present.
func Load() (*Config, error) {
	_ = godotenv.Load() // best effort; absence is not an error

	cfg := &Config{
		DataDir:              getenv("SENTINEL_DATA_DIR", defaultDataDir()),
		StoreFile:            getenv("SENTINEL_STORE_FILE", "sentinel.db"),
		LogLevel:             getenv("SENTINEL_LOG_LEVEL", "INFO"),
		LogFile:              os.Getenv("SENTINEL_LOG_FILE"),
		LLMAPIKey:            os.Getenv("SENTINEL_LLM_API_KEY"),
		LLMHost:              getenv("SENTINEL_LLM_HOST", "https://api.openai.com"),
		LLMModel:             getenv("SENTINEL_LLM_MODEL", "gpt-4o-mini"),
		EnrichBatchSize:      getenvInt("SENTINEL_ENRICH_BATCH_SIZE", 20),
		EnrichMaxRetries:     getenvInt("SENTINEL_ENRICH_MAX_RETRIES", 2),
		EnrichRateLimitDelay: getenvDuration("SENTINEL_ENRICH_RATE_LIMIT_DELAY", 5*time.Second),
		HTTPTimeout:          getenvDuration("SENTINEL_HTTP_TIMEOUT", 30*time.Second),
		AdminUser:            os.Getenv("SENTINEL_ADMIN_USER"),
		AdminPass:            os.Getenv("SENTINEL_ADMIN_PASS"),
		CatalogPath:          os.Getenv("SENTINEL_SOURCE_CATALOG"),
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	return cfg, nil
}

// StorePath is the full path of the embedded store file.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, c.StoreFile)
}

// RequireLLM validates the fields Phase 2 needs.
func (c *Config) RequireLLM() error {
	if c.LLMAPIKey == "" {
		return fmt.Errorf("SENTINEL_LLM_API_KEY is required for enrichment")
	}
	return nil
}

// defaultDataDir prefers the conventional container mount when it exists,
// otherwise a local ./data directory.
func defaultDataDir() string {
	if fi, err := os.Stat("/data"); err == nil && fi.IsDir() {
		return "/data"
	}
	return "data"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
