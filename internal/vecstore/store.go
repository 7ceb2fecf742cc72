// Package vecstore persists file embedding vectors and answers
// nearest-neighbor queries. Three interchangeable backends: the local
// sqlite store over the content cache (default), a Pinecone index, and
// Postgres with the pgvector extension. Vectors are L2-normalized before
// they arrive, so dot product and cosine similarity coincide.
package vecstore

import (
	"context"
	"time"
)

// Metadata travels with every stored vector.
type Metadata struct {
	Hash      string    `json:"hash"`
	ModelID   string    `json:"modelId"`
	Namespace string    `json:"namespace,omitempty"`
	Language  string    `json:"language,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Record is one stored vector. The ID is the repo-relative file path.
type Record struct {
	ID     string
	Vector []float32
	Meta   Metadata
}

// Match is one query result. Score is cosine similarity, higher is closer.
type Match struct {
	ID    string
	Score float64
	Meta  *Metadata
}

// QueryOpts scopes a query. An empty Namespace means the store's configured
// namespace; AllNamespaces overrides it and searches everything.
type QueryOpts struct {
	Namespace     string
	AllNamespaces bool
}

// Store is the backend contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Init prepares backend state (schema, reachability). Idempotent.
	Init(ctx context.Context) error

	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, records []Record) error

	// Delete removes the given IDs. Unknown IDs are not an error.
	Delete(ctx context.Context, ids []string) error

	// Query returns up to topK matches ordered by descending score.
	Query(ctx context.Context, vector []float32, topK int, opts QueryOpts) ([]Match, error)

	// Fetch returns the stored records for the given IDs, skipping
	// IDs with no record.
	Fetch(ctx context.Context, ids []string) ([]Record, error)

	// Prune removes records whose ID is absent from live and reports how
	// many were removed. Backends that cannot enumerate IDs return 0.
	Prune(ctx context.Context, live map[string]bool) (int, error)

	Close() error
}

// Dot is the inner product. For unit vectors this equals cosine similarity.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
