// Package config loads and validates driftmap configuration from
// .driftmap/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"driftmap/internal/derrors"
)

// Provider tags for the vector store backend.
const (
	ProviderSQLite   = "sqlite"
	ProviderPinecone = "pinecone"
	ProviderPgvector = "pgvector"
)

// Config represents the complete driftmap configuration
type Config struct {
	Version    int    `json:"version" mapstructure:"version"`
	BaseBranch string `json:"baseBranch" mapstructure:"baseBranch"`
	SkipDiff   bool   `json:"skipDiff" mapstructure:"skipDiff"`

	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	Embeddings EmbeddingsConfig `json:"embeddings" mapstructure:"embeddings"`
	Vector     VectorConfig     `json:"vector" mapstructure:"vector"`
	Watch      WatchConfig      `json:"watch" mapstructure:"watch"`
	History    HistoryConfig    `json:"history" mapstructure:"history"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`

	SimilarityThreshold     float64 `json:"similarityThreshold" mapstructure:"similarityThreshold"`
	MaxSemanticEdgesPerFile int     `json:"maxSemanticEdgesPerFile" mapstructure:"maxSemanticEdgesPerFile"`
}

// CacheConfig contains content cache configuration
type CacheConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Dir     string `json:"dir" mapstructure:"dir"`
}

// EmbeddingsConfig contains embedding pipeline configuration
type EmbeddingsConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	MaxFiles int    `json:"maxFiles" mapstructure:"maxFiles"`
	ModelID  string `json:"modelId" mapstructure:"modelId"`
	ModelURL string `json:"modelUrl" mapstructure:"modelUrl"`
	VocabURL string `json:"vocabUrl" mapstructure:"vocabUrl"`
	ModelDir string `json:"modelDir" mapstructure:"modelDir"`
}

// VectorConfig contains vector store configuration
type VectorConfig struct {
	Provider           string `json:"provider" mapstructure:"provider"`
	APIKey             string `json:"apiKey" mapstructure:"apiKey"`
	IndexHost          string `json:"indexHost" mapstructure:"indexHost"`
	ConnString         string `json:"connString" mapstructure:"connString"`
	IndexName          string `json:"indexName" mapstructure:"indexName"`
	Namespace          string `json:"namespace" mapstructure:"namespace"`
	SyncEnabled        bool   `json:"syncEnabled" mapstructure:"syncEnabled"`
	CloudSearchEnabled bool   `json:"cloudSearchEnabled" mapstructure:"cloudSearchEnabled"`
}

// WatchConfig contains watch-mode configuration
type WatchConfig struct {
	DebounceMs     int `json:"debounceMs" mapstructure:"debounceMs"`
	PollIntervalMs int `json:"pollIntervalMs" mapstructure:"pollIntervalMs"`
}

// HistoryConfig contains snapshot history configuration
type HistoryConfig struct {
	MaxSnapshots int `json:"maxSnapshots" mapstructure:"maxSnapshots"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:    1,
		BaseBranch: "",
		SkipDiff:   false,
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "",
		},
		Embeddings: EmbeddingsConfig{
			Enabled:  true,
			MaxFiles: 500,
			ModelID:  "all-MiniLM-L6-v2",
			ModelURL: "https://huggingface.co/sentence-transformers/all-MiniLM-L6-v2/resolve/main/onnx/model.onnx",
			VocabURL: "https://huggingface.co/sentence-transformers/all-MiniLM-L6-v2/resolve/main/vocab.txt",
			ModelDir: "",
		},
		Vector: VectorConfig{
			Provider:           ProviderSQLite,
			IndexName:          "driftmap",
			Namespace:          "default",
			SyncEnabled:        false,
			CloudSearchEnabled: false,
		},
		Watch: WatchConfig{
			DebounceMs:     2000,
			PollIntervalMs: 1000,
		},
		History: HistoryConfig{
			MaxSnapshots: 50,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
		SimilarityThreshold:     0.7,
		MaxSemanticEdgesPerFile: 3,
	}
}

// Load loads configuration from .driftmap/config.json under repoRoot.
// A missing file yields the defaults; a present but invalid file is an error.
func Load(repoRoot string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("version", defaults.Version)
	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("embeddings.enabled", defaults.Embeddings.Enabled)
	v.SetDefault("embeddings.maxFiles", defaults.Embeddings.MaxFiles)
	v.SetDefault("embeddings.modelId", defaults.Embeddings.ModelID)
	v.SetDefault("embeddings.modelUrl", defaults.Embeddings.ModelURL)
	v.SetDefault("embeddings.vocabUrl", defaults.Embeddings.VocabURL)
	v.SetDefault("vector.provider", defaults.Vector.Provider)
	v.SetDefault("vector.indexName", defaults.Vector.IndexName)
	v.SetDefault("vector.namespace", defaults.Vector.Namespace)
	v.SetDefault("watch.debounceMs", defaults.Watch.DebounceMs)
	v.SetDefault("watch.pollIntervalMs", defaults.Watch.PollIntervalMs)
	v.SetDefault("history.maxSnapshots", defaults.History.MaxSnapshots)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("similarityThreshold", defaults.SimilarityThreshold)
	v.SetDefault("maxSemanticEdgesPerFile", defaults.MaxSemanticEdgesPerFile)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, ".driftmap"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, derrors.Wrap(derrors.ConfigInvalid, "failed to read config file", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, derrors.Wrap(derrors.ConfigInvalid, "failed to parse config file", err)
	}

	return &cfg, nil
}

// Save writes the configuration to .driftmap/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ".driftmap")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks the configuration for construction-time errors.
// These are the only errors allowed to propagate out of analysis setup.
func (c *Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return derrors.Newf(derrors.ConfigInvalid,
			"similarityThreshold must be in [0,1], got %v", c.SimilarityThreshold)
	}
	if c.MaxSemanticEdgesPerFile < 0 {
		return derrors.Newf(derrors.ConfigInvalid,
			"maxSemanticEdgesPerFile must be >= 0, got %d", c.MaxSemanticEdgesPerFile)
	}

	switch c.Vector.Provider {
	case ProviderSQLite:
		// Default provider needs no credentials.
	case ProviderPinecone:
		if c.Vector.APIKey == "" || c.Vector.IndexHost == "" {
			return derrors.New(derrors.CredentialsMissing,
				"pinecone provider requires vector.apiKey and vector.indexHost")
		}
	case ProviderPgvector:
		if c.Vector.ConnString == "" {
			return derrors.New(derrors.CredentialsMissing,
				"pgvector provider requires vector.connString")
		}
	default:
		return derrors.Newf(derrors.ProviderUnknown,
			"unknown vector provider %q (expected sqlite, pinecone, or pgvector)", c.Vector.Provider)
	}

	return nil
}

// CacheDir resolves the cache directory for repoRoot, honoring the override.
func (c *Config) CacheDir(repoRoot string) string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return filepath.Join(repoRoot, ".driftmap")
}

// ResolveModelDir resolves the model artifact directory, honoring the override.
// The default is ~/.driftmap/models/<model-id>, shared across repositories.
func (c *Config) ResolveModelDir() string {
	if c.Embeddings.ModelDir != "" {
		return c.Embeddings.ModelDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".driftmap", "models", c.Embeddings.ModelID)
	}
	return filepath.Join(home, ".driftmap", "models", c.Embeddings.ModelID)
}
