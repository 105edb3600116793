package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SENTINEL_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sentinel.db", cfg.StoreFile)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 20, cfg.EnrichBatchSize)
	assert.Equal(t, "https://api.openai.com", cfg.LLMHost)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SENTINEL_DATA_DIR", t.TempDir())
	t.Setenv("SENTINEL_ENRICH_BATCH_SIZE", "5")
	t.Setenv("SENTINEL_ENRICH_RATE_LIMIT_DELAY", "2s")
	t.Setenv("SENTINEL_LLM_MODEL", "local-model")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.EnrichBatchSize)
	assert.Equal(t, "2s", cfg.EnrichRateLimitDelay.String())
	assert.Equal(t, "local-model", cfg.LLMModel)
}

func TestRequireLLM(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireLLM())
	cfg.LLMAPIKey = "sk-test"
	assert.NoError(t, cfg.RequireLLM())
}

func TestLoadCatalog_Default(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)
	require.NotEmpty(t, cat.Sources)

	kinds := make(map[SourceKind]bool)
	for _, s := range cat.Sources {
		kinds[s.Kind] = true
	}
	for _, k := range []SourceKind{KindCurated, KindPaginated, KindKeyword, KindAPI, KindRSS} {
		assert.True(t, kinds[k], "default catalog missing kind %s", k)
	}
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	doc := `sources:
  - name: campus_feed
    group: rss
    kind: rss
    url: https://example.edu/feed
    max_age_days: 14
    categories: [security]
  - name: old_source
    group: news
    kind: paginated
    url: https://example.org/page/%d/
    disabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Sources, 2)
	assert.Equal(t, 14, cat.Sources[0].MaxAgeDays)

	enabled := cat.Enabled(nil)
	require.Len(t, enabled, 1)
	assert.Equal(t, "campus_feed", enabled[0].Name)

	filtered := cat.Enabled([]string{"missing"})
	assert.Empty(t, filtered)
}

func TestLoadCatalog_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources:\n  - url: https://x\n"), 0o644))
	_, err := LoadCatalog(path)
	assert.Error(t, err)
}
