package vecstore

import (
	"context"
	"log/slog"
	"sort"

	"driftmap/internal/cache"
)

// sqliteStore answers vector queries from the embedding cache table. It goes
// through the cache store rather than opening a second handle on the same
// file, which would race the cache's corruption recovery. The local store is
// single-tenant: namespaces are accepted and ignored.
type sqliteStore struct {
	cache   *cache.Store
	modelID string
	logger  *slog.Logger
}

// NewSQLiteStore builds the default local backend over the shared cache.
func NewSQLiteStore(cacheStore *cache.Store, modelID string, logger *slog.Logger) Store {
	return &sqliteStore{cache: cacheStore, modelID: modelID, logger: logger}
}

// Init is a no-op: the cache's schema migrations own the table.
func (s *sqliteStore) Init(context.Context) error {
	return nil
}

func (s *sqliteStore) Upsert(_ context.Context, records []Record) error {
	entries := make([]cache.EmbeddingEntry, 0, len(records))
	for _, r := range records {
		modelID := r.Meta.ModelID
		if modelID == "" {
			modelID = s.modelID
		}
		entries = append(entries, cache.EmbeddingEntry{
			Path:      r.ID,
			Hash:      r.Meta.Hash,
			ModelID:   modelID,
			Vector:    r.Vector,
			UpdatedAt: r.Meta.UpdatedAt,
		})
	}
	return s.cache.SetEmbeddingBatch(entries)
}

func (s *sqliteStore) Delete(_ context.Context, ids []string) error {
	return s.cache.DeleteEmbeddings(ids)
}

// Query scans every stored vector and scores by dot product. Non-positive
// topK returns all matches.
func (s *sqliteStore) Query(_ context.Context, vector []float32, topK int, _ QueryOpts) ([]Match, error) {
	entries, err := s.cache.AllEmbeddings(s.modelID)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(entries))
	for _, e := range entries {
		meta := &Metadata{
			Hash:      e.Hash,
			ModelID:   e.ModelID,
			UpdatedAt: e.UpdatedAt,
		}
		matches = append(matches, Match{ID: e.Path, Score: Dot(vector, e.Vector), Meta: meta})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *sqliteStore) Fetch(_ context.Context, ids []string) ([]Record, error) {
	entries, err := s.cache.FetchEmbeddings(ids)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, Record{
			ID:     e.Path,
			Vector: e.Vector,
			Meta: Metadata{
				Hash:      e.Hash,
				ModelID:   e.ModelID,
				UpdatedAt: e.UpdatedAt,
			},
		})
	}
	return records, nil
}

func (s *sqliteStore) Prune(_ context.Context, live map[string]bool) (int, error) {
	return s.cache.PruneEmbeddings(live)
}

// Close is a no-op: the cache owns the database handle.
func (s *sqliteStore) Close() error {
	return nil
}
