package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port                 string
	DatabasePath         string
	OpenAIAPIKey         string
	OpenAIModel          string
	TMDBAPIKey           string
	OMDBAPIKey           string
	WatchRegion          string
	ProviderTimeoutSecs  int
	RequestTimeoutSecs   int
	EnrichConcurrency    int
	ProviderRatePerSec   int
	CatalogPages         int
	EnrichCandidateLimit int
}

// Load reads configuration from environment variables, applying defaults and
// validating required values.
func Load() (Config, error) {
	cfg := Config{
		Port:                 getEnv("PORT", "8080"),
		DatabasePath:         getEnv("DATABASE_PATH", "moviematch.db"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:          os.Getenv("OPENAI_MODEL"),
		TMDBAPIKey:           os.Getenv("TMDB_API_KEY"),
		OMDBAPIKey:           os.Getenv("OMDB_API_KEY"),
		WatchRegion:          getEnv("WATCH_REGION", "US"),
		ProviderTimeoutSecs:  getEnvInt("PROVIDER_TIMEOUT_SECS", 15),
		RequestTimeoutSecs:   getEnvInt("REQUEST_TIMEOUT_SECS", 120),
		EnrichConcurrency:    getEnvInt("ENRICH_CONCURRENCY", 8),
		ProviderRatePerSec:   getEnvInt("PROVIDER_RATE_PER_SEC", 20),
		CatalogPages:         getEnvInt("CATALOG_PAGES", 3),
		EnrichCandidateLimit: getEnvInt("ENRICH_CANDIDATE_LIMIT", 30),
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.TMDBAPIKey == "" {
		return Config{}, fmt.Errorf("TMDB_API_KEY is required")
	}
	if cfg.OMDBAPIKey == "" {
		return Config{}, fmt.Errorf("OMDB_API_KEY is required")
	}
	if cfg.ProviderTimeoutSecs <= 0 {
		return Config{}, fmt.Errorf("PROVIDER_TIMEOUT_SECS must be positive")
	}
	if cfg.EnrichConcurrency <= 0 {
		return Config{}, fmt.Errorf("ENRICH_CONCURRENCY must be positive")
	}
	if cfg.ProviderRatePerSec <= 0 {
		return Config{}, fmt.Errorf("PROVIDER_RATE_PER_SEC must be positive")
	}
	if cfg.CatalogPages <= 0 {
		return Config{}, fmt.Errorf("CATALOG_PAGES must be positive")
	}
	if cfg.EnrichCandidateLimit <= 0 {
		return Config{}, fmt.Errorf("ENRICH_CANDIDATE_LIMIT must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}
