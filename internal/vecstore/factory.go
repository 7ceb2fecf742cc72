package vecstore

import (
	"log/slog"
	"strings"

	"driftmap/internal/cache"
	"driftmap/internal/config"
	"driftmap/internal/derrors"
)

// Provider tags accepted in vector.provider.
const (
	ProviderSQLite   = "sqlite"
	ProviderPinecone = "pinecone"
	ProviderPgvector = "pgvector"
)

// Open selects a backend by provider tag. An empty tag means the local
// sqlite store. Unknown tags and missing provider configuration are
// construction-time errors; everything past construction degrades at the
// call site.
func Open(cfg config.VectorConfig, cacheStore *cache.Store, modelID string, dims int, logger *slog.Logger) (Store, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", ProviderSQLite:
		return NewSQLiteStore(cacheStore, modelID, logger), nil
	case ProviderPinecone:
		return NewPineconeStore(cfg, logger)
	case ProviderPgvector:
		return NewPgvectorStore(cfg, dims, logger)
	default:
		return nil, derrors.Newf(derrors.ProviderUnknown, "unknown vector provider %q", cfg.Provider)
	}
}
