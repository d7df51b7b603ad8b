package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsSpecDefaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, 100, cfg.ChunkSize)
	assert.Equal(t, 10000, cfg.EmbeddingCacheSize)
	assert.Equal(t, 100, cfg.SearchCacheSize)
	assert.Equal(t, 32, cfg.BatchSize)
	assert.False(t, cfg.IncludeTestFiles)
	assert.Equal(t, 20, cfg.MaxSearchResults)
	assert.Equal(t, "auto", cfg.SearchBackend)

	assert.True(t, cfg.BM25.Enabled)
	assert.Equal(t, 1.2, cfg.BM25.K1)
	assert.Equal(t, 0.75, cfg.BM25.B)
	assert.Equal(t, 100000, cfg.BM25.CacheSize)
	assert.Equal(t, 2, cfg.BM25.MinTermLength)
	assert.Equal(t, 50, cfg.BM25.MaxTermLength)
	assert.NotEmpty(t, cfg.BM25.StopWords)

	assert.Equal(t, 0.4, cfg.Fusion.ExactWeight)
	assert.Equal(t, 0.25, cfg.Fusion.BM25Weight)
	assert.Equal(t, 0.25, cfg.Fusion.SemanticWeight)
	assert.Equal(t, 0.1, cfg.Fusion.SymbolWeight)

	assert.True(t, cfg.EnableStemming)
	assert.True(t, cfg.EnableNgrams)
	assert.Equal(t, 3, cfg.MaxNgramSize)
	assert.Equal(t, "info", cfg.LogLevel)

	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesProjectFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".embedrc"), []byte("chunk_size: 200\nlog_level: debug\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".embed"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".embed", "config.toml"), []byte("log_level = \"warn\"\n"), 0644))

	cfg, err := Load(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.ChunkSize)   // from .embedrc, untouched by config.toml
	assert.Equal(t, "warn", cfg.LogLevel) // config.toml overrides .embedrc
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("EMBED_CHUNK_SIZE", "250")
	t.Setenv("EMBED_LOG_LEVEL", "trace")
	t.Setenv("EMBED_BM25_K1", "1.5")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.ChunkSize)
	assert.Equal(t, "trace", cfg.LogLevel)
	assert.Equal(t, 1.5, cfg.BM25.K1)
}

func TestFlagsOverrideEverythingElse(t *testing.T) {
	t.Setenv("EMBED_CHUNK_SIZE", "250")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("chunk-size", 0, "")
	fs.String("log-level", "", "")
	require.NoError(t, fs.Parse([]string{"--chunk-size=500", "--log-level=error"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestValidateRejectsZeroCounts(t *testing.T) {
	cfg := New()
	cfg.ChunkSize = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeFusionWeight(t *testing.T) {
	cfg := New()
	cfg.Fusion.ExactWeight = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnrecognizedLogLevel(t *testing.T) {
	cfg := New()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnrecognizedSearchBackend(t *testing.T) {
	cfg := New()
	cfg.SearchBackend = "elasticsearch"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsInvertedTermLengthRange(t *testing.T) {
	cfg := New()
	cfg.BM25.MinTermLength = 10
	cfg.BM25.MaxTermLength = 2
	assert.Error(t, cfg.Validate())
}

func TestWriteYAMLRoundTrips(t *testing.T) {
	cfg := New()
	cfg.ChunkSize = 321
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := loadYAMLFile(path)
	require.NoError(t, err)
	assert.Equal(t, 321, loaded.ChunkSize)
}
