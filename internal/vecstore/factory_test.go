package vecstore

import (
	"context"
	"testing"

	"driftmap/internal/cache"
	"driftmap/internal/config"
	"driftmap/internal/derrors"
	"driftmap/internal/logging"
)

func testCacheStore(t *testing.T) *cache.Store {
	t.Helper()
	db, err := cache.Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return cache.NewStore(db)
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	store, err := Open(config.VectorConfig{}, testCacheStore(t), "m1", 384, logging.Discard())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := store.(*sqliteStore); !ok {
		t.Errorf("empty provider selected %T, want the sqlite store", store)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Errorf("sqlite Init failed: %v", err)
	}
}

func TestOpenProviderCaseInsensitive(t *testing.T) {
	store, err := Open(config.VectorConfig{Provider: " SQLite "}, testCacheStore(t), "m1", 384, logging.Discard())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := store.(*sqliteStore); !ok {
		t.Errorf("got %T, want the sqlite store", store)
	}
}

func TestOpenUnknownProvider(t *testing.T) {
	_, err := Open(config.VectorConfig{Provider: "weaviate"}, testCacheStore(t), "m1", 384, logging.Discard())
	if derrors.CodeOf(err) != derrors.ProviderUnknown {
		t.Errorf("error code = %v, want PROVIDER_UNKNOWN", derrors.CodeOf(err))
	}
	if !derrors.IsConfig(err) {
		t.Error("unknown provider should be a config error")
	}
}

func TestOpenPineconeValidatesCredentials(t *testing.T) {
	_, err := Open(config.VectorConfig{Provider: "pinecone"}, testCacheStore(t), "m1", 384, logging.Discard())
	if derrors.CodeOf(err) != derrors.CredentialsMissing {
		t.Errorf("error code = %v, want CREDENTIALS_MISSING", derrors.CodeOf(err))
	}
}

func TestOpenPgvectorValidatesConnString(t *testing.T) {
	_, err := Open(config.VectorConfig{Provider: "pgvector"}, testCacheStore(t), "m1", 384, logging.Discard())
	if derrors.CodeOf(err) != derrors.ConfigInvalid {
		t.Errorf("error code = %v, want CONFIG_INVALID", derrors.CodeOf(err))
	}
}
