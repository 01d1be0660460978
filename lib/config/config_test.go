package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TMDB_API_KEY", "tmdb-test")
	t.Setenv("OMDB_API_KEY", "omdb-test")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "moviematch.db", cfg.DatabasePath)
	assert.Equal(t, "US", cfg.WatchRegion)
	assert.Equal(t, 3, cfg.CatalogPages)
	assert.Equal(t, 30, cfg.EnrichCandidateLimit)
	assert.Equal(t, 8, cfg.EnrichConcurrency)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("WATCH_REGION", "GB")
	t.Setenv("CATALOG_PAGES", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "GB", cfg.WatchRegion)
	assert.Equal(t, 5, cfg.CatalogPages)
}

func TestLoadMissingRequired(t *testing.T) {
	tests := []string{"OPENAI_API_KEY", "TMDB_API_KEY", "OMDB_API_KEY"}
	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")

			_, err := Load()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestLoadRejectsBadBounds(t *testing.T) {
	setRequired(t)
	t.Setenv("ENRICH_CONCURRENCY", "0")

	_, err := Load()
	assert.Error(t, err)
}
