package config

import (
	"os"
	"path/filepath"
	"testing"

	"driftmap/internal/derrors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should be enabled by default")
	}
	if !cfg.Embeddings.Enabled {
		t.Error("embeddings should be enabled by default")
	}
	if cfg.SimilarityThreshold != 0.7 {
		t.Errorf("SimilarityThreshold = %v, want 0.7", cfg.SimilarityThreshold)
	}
	if cfg.MaxSemanticEdgesPerFile != 3 {
		t.Errorf("MaxSemanticEdgesPerFile = %d, want 3", cfg.MaxSemanticEdgesPerFile)
	}
	if cfg.Vector.Provider != ProviderSQLite {
		t.Errorf("Vector.Provider = %q, want %q", cfg.Vector.Provider, ProviderSQLite)
	}
	if cfg.Embeddings.MaxFiles != 500 {
		t.Errorf("Embeddings.MaxFiles = %d, want 500", cfg.Embeddings.MaxFiles)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SimilarityThreshold != 0.7 {
		t.Errorf("expected defaults for missing config, got threshold %v", cfg.SimilarityThreshold)
	}
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, ".driftmap")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}

	content := `{
  "baseBranch": "develop",
  "similarityThreshold": 0.85,
  "vector": {"provider": "sqlite", "namespace": "repo-a"}
}`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseBranch != "develop" {
		t.Errorf("BaseBranch = %q, want %q", cfg.BaseBranch, "develop")
	}
	if cfg.SimilarityThreshold != 0.85 {
		t.Errorf("SimilarityThreshold = %v, want 0.85", cfg.SimilarityThreshold)
	}
	if cfg.Vector.Namespace != "repo-a" {
		t.Errorf("Vector.Namespace = %q, want %q", cfg.Vector.Namespace, "repo-a")
	}
	// Unset keys keep their defaults.
	if cfg.MaxSemanticEdgesPerFile != 3 {
		t.Errorf("MaxSemanticEdgesPerFile = %d, want default 3", cfg.MaxSemanticEdgesPerFile)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, ".driftmap")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode derrors.ErrorCode
	}{
		{"defaults pass", func(c *Config) {}, ""},
		{"threshold too high", func(c *Config) { c.SimilarityThreshold = 1.5 }, derrors.ConfigInvalid},
		{"threshold negative", func(c *Config) { c.SimilarityThreshold = -0.1 }, derrors.ConfigInvalid},
		{"negative cap", func(c *Config) { c.MaxSemanticEdgesPerFile = -1 }, derrors.ConfigInvalid},
		{"unknown provider", func(c *Config) { c.Vector.Provider = "weaviate" }, derrors.ProviderUnknown},
		{"pinecone without creds", func(c *Config) { c.Vector.Provider = ProviderPinecone }, derrors.CredentialsMissing},
		{"pinecone with creds", func(c *Config) {
			c.Vector.Provider = ProviderPinecone
			c.Vector.APIKey = "key"
			c.Vector.IndexHost = "https://idx.example.io"
		}, ""},
		{"pgvector without conn", func(c *Config) { c.Vector.Provider = ProviderPgvector }, derrors.CredentialsMissing},
		{"pgvector with conn", func(c *Config) {
			c.Vector.Provider = ProviderPgvector
			c.Vector.ConnString = "postgres://localhost/driftmap"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if got := derrors.CodeOf(err); got != tt.wantCode {
				t.Errorf("error code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.BaseBranch = "main"
	cfg.Vector.Namespace = "saved"
	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.BaseBranch != "main" {
		t.Errorf("BaseBranch = %q, want %q", loaded.BaseBranch, "main")
	}
	if loaded.Vector.Namespace != "saved" {
		t.Errorf("Vector.Namespace = %q, want %q", loaded.Vector.Namespace, "saved")
	}
}

func TestCacheDir(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.CacheDir("/repo"); got != filepath.Join("/repo", ".driftmap") {
		t.Errorf("CacheDir = %q", got)
	}
	cfg.Cache.Dir = "/elsewhere/cache"
	if got := cfg.CacheDir("/repo"); got != "/elsewhere/cache" {
		t.Errorf("CacheDir override = %q", got)
	}
}
