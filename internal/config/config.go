// Package config loads the typed configuration used to construct every
// other component: chunker, BM25, fusion, tokenizer, backends, and
// logging. Precedence (lowest to highest): hardcoded defaults, the
// global config file, the project-local config file(s), EMBED_*
// environment variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/embedsearch/embedsearch/internal/logging"
)

// BM25Settings configures the BM25 scoring backend.
type BM25Settings struct {
	Enabled       bool     `yaml:"enabled" toml:"enabled"`
	K1            float64  `yaml:"k1" toml:"k1"`
	B             float64  `yaml:"b" toml:"b"`
	CacheSize     int      `yaml:"cache_size" toml:"cache_size"`
	MinTermLength int      `yaml:"min_term_length" toml:"min_term_length"`
	MaxTermLength int      `yaml:"max_term_length" toml:"max_term_length"`
	StopWords     []string `yaml:"stop_words" toml:"stop_words"`
}

// FusionSettings configures the weighted-linear fusion of the four
// search tracks. The four weights need not sum to 1 — Fusion
// normalizes — but Validate rejects any weight outside [0,1].
type FusionSettings struct {
	ExactWeight    float64 `yaml:"exact_weight" toml:"exact_weight"`
	BM25Weight     float64 `yaml:"bm25_weight" toml:"bm25_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" toml:"semantic_weight"`
	SymbolWeight   float64 `yaml:"symbol_weight" toml:"symbol_weight"`
}

// Config is the complete typed configuration.
type Config struct {
	ChunkSize          int    `yaml:"chunk_size" toml:"chunk_size"`
	EmbeddingCacheSize int    `yaml:"embedding_cache_size" toml:"embedding_cache_size"`
	SearchCacheSize    int    `yaml:"search_cache_size" toml:"search_cache_size"`
	BatchSize          int    `yaml:"batch_size" toml:"batch_size"`
	IncludeTestFiles   bool   `yaml:"include_test_files" toml:"include_test_files"`
	MaxSearchResults   int    `yaml:"max_search_results" toml:"max_search_results"`
	SearchBackend      string `yaml:"search_backend" toml:"search_backend"` // ripgrep|tantivy|auto

	BM25   BM25Settings   `yaml:"bm25" toml:"bm25"`
	Fusion FusionSettings `yaml:"fusion" toml:"fusion"`

	EnableStemming bool `yaml:"enable_stemming" toml:"enable_stemming"`
	EnableNgrams   bool `yaml:"enable_ngrams" toml:"enable_ngrams"`
	MaxNgramSize   int  `yaml:"max_ngram_size" toml:"max_ngram_size"`

	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// envPrefix is prepended to every recognized environment variable name.
const envPrefix = "EMBED_"

// defaultStopWords is a short English stop-word list, used unless
// overridden.
var defaultStopWords = []string{
	"the", "a", "an", "is", "are", "was", "were", "be", "been", "to",
	"of", "and", "or", "in", "on", "at", "for", "it", "this", "that",
}

// New returns a Config populated with the spec's hardcoded defaults.
func New() *Config {
	return &Config{
		ChunkSize:          100,
		EmbeddingCacheSize: 10000,
		SearchCacheSize:    100,
		BatchSize:          32,
		IncludeTestFiles:   false,
		MaxSearchResults:   20,
		SearchBackend:      "auto",
		BM25: BM25Settings{
			Enabled:       true,
			K1:            1.2,
			B:             0.75,
			CacheSize:     100000,
			MinTermLength: 2,
			MaxTermLength: 50,
			StopWords:     append([]string(nil), defaultStopWords...),
		},
		Fusion: FusionSettings{
			ExactWeight:    0.4,
			BM25Weight:     0.25,
			SemanticWeight: 0.25,
			SymbolWeight:   0.1,
		},
		EnableStemming: true,
		EnableNgrams:   true,
		MaxNgramSize:   3,
		LogLevel:       "info",
	}
}

// Load builds a Config by layering, in increasing precedence: defaults,
// the global config file, the project's .embedrc and .embed/config.toml
// (in that order, each overriding the last), EMBED_* environment
// variables, then flags (if fs is non-nil). dir is the project root to
// search for project-local files; an empty dir skips them.
func Load(dir string, fs *pflag.FlagSet) (*Config, error) {
	cfg := New()

	if globalCfg, err := loadGlobalConfig(); err != nil {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	} else if globalCfg != nil {
		cfg.mergeWith(globalCfg)
	}

	if dir != "" {
		if err := cfg.loadProjectFiles(dir); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if fs != nil {
		cfg.applyFlagOverrides(fs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadProjectFiles applies .embedrc (YAML) then .embed/config.toml,
// each overriding values set before it.
func (c *Config) loadProjectFiles(dir string) error {
	embedrcPath := filepath.Join(dir, ".embedrc")
	if fileExists(embedrcPath) {
		parsed, err := loadYAMLFile(embedrcPath)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", embedrcPath, err)
		}
		c.mergeWith(parsed)
	}

	tomlPath := filepath.Join(dir, ".embed", "config.toml")
	if fileExists(tomlPath) {
		parsed, err := loadTOMLFile(tomlPath)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", tomlPath, err)
		}
		c.mergeWith(parsed)
	}

	return nil
}

func loadYAMLFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func loadTOMLFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// loadGlobalConfig loads the global config file if it exists. A
// missing file is not an error.
func loadGlobalConfig() (*Config, error) {
	path := GlobalConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	return loadYAMLFile(path)
}

// GlobalConfigPath returns the path to the global configuration file,
// following the XDG Base Directory convention.
func GlobalConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "embedsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "embedsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "embedsearch", "config.yaml")
}

// mergeWith overlays other's non-zero fields onto c.
func (c *Config) mergeWith(other *Config) {
	if other == nil {
		return
	}
	if other.ChunkSize != 0 {
		c.ChunkSize = other.ChunkSize
	}
	if other.EmbeddingCacheSize != 0 {
		c.EmbeddingCacheSize = other.EmbeddingCacheSize
	}
	if other.SearchCacheSize != 0 {
		c.SearchCacheSize = other.SearchCacheSize
	}
	if other.BatchSize != 0 {
		c.BatchSize = other.BatchSize
	}
	// IncludeTestFiles is boolean; a file can turn it on but not off,
	// since YAML/TOML zero-value `false` is indistinguishable from "not
	// set" through this merge. Only the flag/env paths (applyFlagOverrides
	// / applyEnvOverrides) can set it back to false.
	if other.IncludeTestFiles {
		c.IncludeTestFiles = true
	}
	if other.MaxSearchResults != 0 {
		c.MaxSearchResults = other.MaxSearchResults
	}
	if other.SearchBackend != "" {
		c.SearchBackend = other.SearchBackend
	}

	if other.BM25.K1 != 0 {
		c.BM25.K1 = other.BM25.K1
	}
	if other.BM25.B != 0 {
		c.BM25.B = other.BM25.B
	}
	if other.BM25.CacheSize != 0 {
		c.BM25.CacheSize = other.BM25.CacheSize
	}
	if other.BM25.MinTermLength != 0 {
		c.BM25.MinTermLength = other.BM25.MinTermLength
	}
	if other.BM25.MaxTermLength != 0 {
		c.BM25.MaxTermLength = other.BM25.MaxTermLength
	}
	if len(other.BM25.StopWords) > 0 {
		c.BM25.StopWords = other.BM25.StopWords
	}

	if other.Fusion.ExactWeight != 0 {
		c.Fusion.ExactWeight = other.Fusion.ExactWeight
	}
	if other.Fusion.BM25Weight != 0 {
		c.Fusion.BM25Weight = other.Fusion.BM25Weight
	}
	if other.Fusion.SemanticWeight != 0 {
		c.Fusion.SemanticWeight = other.Fusion.SemanticWeight
	}
	if other.Fusion.SymbolWeight != 0 {
		c.Fusion.SymbolWeight = other.Fusion.SymbolWeight
	}

	if other.MaxNgramSize != 0 {
		c.MaxNgramSize = other.MaxNgramSize
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// applyEnvOverrides applies EMBED_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v, ok := envInt(envPrefix + "CHUNK_SIZE"); ok {
		c.ChunkSize = v
	}
	if v, ok := envInt(envPrefix + "EMBEDDING_CACHE_SIZE"); ok {
		c.EmbeddingCacheSize = v
	}
	if v, ok := envInt(envPrefix + "SEARCH_CACHE_SIZE"); ok {
		c.SearchCacheSize = v
	}
	if v, ok := envInt(envPrefix + "BATCH_SIZE"); ok {
		c.BatchSize = v
	}
	if v, ok := envBool(envPrefix + "INCLUDE_TEST_FILES"); ok {
		c.IncludeTestFiles = v
	}
	if v, ok := envInt(envPrefix + "MAX_SEARCH_RESULTS"); ok {
		c.MaxSearchResults = v
	}
	if v := os.Getenv(envPrefix + "SEARCH_BACKEND"); v != "" {
		c.SearchBackend = v
	}

	if v, ok := envBool(envPrefix + "BM25_ENABLED"); ok {
		c.BM25.Enabled = v
	}
	if v, ok := envFloat(envPrefix + "BM25_K1"); ok {
		c.BM25.K1 = v
	}
	if v, ok := envFloat(envPrefix + "BM25_B"); ok {
		c.BM25.B = v
	}
	if v, ok := envInt(envPrefix + "BM25_CACHE_SIZE"); ok {
		c.BM25.CacheSize = v
	}
	if v, ok := envInt(envPrefix + "BM25_MIN_TERM_LENGTH"); ok {
		c.BM25.MinTermLength = v
	}
	if v, ok := envInt(envPrefix + "BM25_MAX_TERM_LENGTH"); ok {
		c.BM25.MaxTermLength = v
	}
	if v := os.Getenv(envPrefix + "BM25_STOP_WORDS"); v != "" {
		c.BM25.StopWords = strings.Split(v, ",")
	}

	if v, ok := envFloat(envPrefix + "FUSION_EXACT_WEIGHT"); ok {
		c.Fusion.ExactWeight = v
	}
	if v, ok := envFloat(envPrefix + "FUSION_BM25_WEIGHT"); ok {
		c.Fusion.BM25Weight = v
	}
	if v, ok := envFloat(envPrefix + "FUSION_SEMANTIC_WEIGHT"); ok {
		c.Fusion.SemanticWeight = v
	}
	if v, ok := envFloat(envPrefix + "FUSION_SYMBOL_WEIGHT"); ok {
		c.Fusion.SymbolWeight = v
	}

	if v, ok := envBool(envPrefix + "ENABLE_STEMMING"); ok {
		c.EnableStemming = v
	}
	if v, ok := envBool(envPrefix + "ENABLE_NGRAMS"); ok {
		c.EnableNgrams = v
	}
	if v, ok := envInt(envPrefix + "MAX_NGRAM_SIZE"); ok {
		c.MaxNgramSize = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// applyFlagOverrides applies any changed pflag values, the highest
// precedence layer. Flags are looked up by the same names as the
// option table (dashes, not underscores, per pflag convention).
func (c *Config) applyFlagOverrides(fs *pflag.FlagSet) {
	if fs.Changed("chunk-size") {
		if v, err := fs.GetInt("chunk-size"); err == nil {
			c.ChunkSize = v
		}
	}
	if fs.Changed("max-search-results") {
		if v, err := fs.GetInt("max-search-results"); err == nil {
			c.MaxSearchResults = v
		}
	}
	if fs.Changed("include-test-files") {
		if v, err := fs.GetBool("include-test-files"); err == nil {
			c.IncludeTestFiles = v
		}
	}
	if fs.Changed("search-backend") {
		if v, err := fs.GetString("search-backend"); err == nil {
			c.SearchBackend = v
		}
	}
	if fs.Changed("log-level") {
		if v, err := fs.GetString("log-level"); err == nil {
			c.LogLevel = v
		}
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(name string) (float64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Validate rejects any zero count, empty path/name, out-of-range
// fusion weight, or unrecognized log_level.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.EmbeddingCacheSize <= 0 {
		return fmt.Errorf("embedding_cache_size must be positive, got %d", c.EmbeddingCacheSize)
	}
	if c.SearchCacheSize <= 0 {
		return fmt.Errorf("search_cache_size must be positive, got %d", c.SearchCacheSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxSearchResults <= 0 {
		return fmt.Errorf("max_search_results must be positive, got %d", c.MaxSearchResults)
	}
	if c.MaxNgramSize <= 0 {
		return fmt.Errorf("max_ngram_size must be positive, got %d", c.MaxNgramSize)
	}

	validBackends := map[string]bool{"ripgrep": true, "tantivy": true, "auto": true}
	if !validBackends[strings.ToLower(c.SearchBackend)] {
		return fmt.Errorf("search_backend must be 'ripgrep', 'tantivy', or 'auto', got %q", c.SearchBackend)
	}

	if c.BM25.CacheSize <= 0 {
		return fmt.Errorf("bm25_cache_size must be positive, got %d", c.BM25.CacheSize)
	}
	if c.BM25.MinTermLength <= 0 {
		return fmt.Errorf("bm25_min_term_length must be positive, got %d", c.BM25.MinTermLength)
	}
	if c.BM25.MaxTermLength <= 0 {
		return fmt.Errorf("bm25_max_term_length must be positive, got %d", c.BM25.MaxTermLength)
	}
	if c.BM25.MaxTermLength < c.BM25.MinTermLength {
		return fmt.Errorf("bm25_max_term_length (%d) must be >= bm25_min_term_length (%d)", c.BM25.MaxTermLength, c.BM25.MinTermLength)
	}

	for _, w := range []struct {
		name string
		val  float64
	}{
		{"fusion_exact_weight", c.Fusion.ExactWeight},
		{"fusion_bm25_weight", c.Fusion.BM25Weight},
		{"fusion_semantic_weight", c.Fusion.SemanticWeight},
		{"fusion_symbol_weight", c.Fusion.SymbolWeight},
	} {
		if w.val < 0 || w.val > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", w.name, w.val)
		}
	}

	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("log_level must be one of error/warn/info/debug/trace, got %q", c.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file in the format
// loadYAMLFile reads.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
