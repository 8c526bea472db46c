// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds every tunable for the server. Fields are filled from
// SKALD_* environment variables over built-in defaults.
type Config struct {
	Port     int
	DataDir  string
	WatchDir string

	Gemini    GeminiConfig
	Weather   WeatherConfig
	Retrieval RetrievalConfig
	Ingest    IngestConfig
	Retry     RetryConfig

	CORSOrigin string
}

// GeminiConfig configures the generation and embedding backend.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	EmbedModel string
}

// WeatherConfig configures the forecast client.
type WeatherConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RetrievalConfig controls search behavior.
type RetrievalConfig struct {
	TopK              int
	DistanceThreshold float64
}

// IngestConfig controls chunking.
type IngestConfig struct {
	ChunkSize int
	Overlap   int
}

// RetryConfig controls generation retries on rate limits.
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// Load builds a Config from the environment. SKALD_GEMINI_API_KEY is the
// only required variable.
func Load() (Config, error) {
	apiKey := os.Getenv("SKALD_GEMINI_API_KEY")
	if apiKey == "" {
		return Config{}, fmt.Errorf("SKALD_GEMINI_API_KEY is required")
	}

	dataDir := os.Getenv("SKALD_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolving home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".skald")
	}

	watchDir := os.Getenv("SKALD_WATCH_DIR")
	if watchDir == "" {
		watchDir = filepath.Join(dataDir, "inbox")
	}

	cfg := Config{
		Port:     envInt("SKALD_PORT", 8090),
		DataDir:  dataDir,
		WatchDir: watchDir,
		Gemini: GeminiConfig{
			APIKey:     apiKey,
			BaseURL:    envString("SKALD_GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Model:      envString("SKALD_GEMINI_MODEL", "gemini-2.0-flash-lite"),
			EmbedModel: envString("SKALD_EMBED_MODEL", "text-embedding-004"),
		},
		Weather: WeatherConfig{
			BaseURL: envString("SKALD_WEATHER_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
			Timeout: envDuration("SKALD_WEATHER_TIMEOUT", 10*time.Second),
		},
		Retrieval: RetrievalConfig{
			TopK:              envInt("SKALD_TOP_K", 5),
			DistanceThreshold: envFloat("SKALD_DISTANCE_THRESHOLD", 1.5),
		},
		Ingest: IngestConfig{
			ChunkSize: envInt("SKALD_CHUNK_SIZE", 500),
			Overlap:   envInt("SKALD_CHUNK_OVERLAP", 50),
		},
		Retry: RetryConfig{
			MaxAttempts: envInt("SKALD_RETRY_ATTEMPTS", 3),
			BackoffBase: envDuration("SKALD_RETRY_BACKOFF", 20*time.Second),
		},
		CORSOrigin: envString("SKALD_CORS_ORIGIN", "*"),
	}

	if cfg.Ingest.Overlap >= cfg.Ingest.ChunkSize {
		return Config{}, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			cfg.Ingest.Overlap, cfg.Ingest.ChunkSize)
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
