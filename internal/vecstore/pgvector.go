package vecstore

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"driftmap/internal/config"
	"driftmap/internal/derrors"
)

const defaultPgTable = "driftmap_vectors"

// Table names are interpolated into DDL, so they are restricted to plain
// identifiers.
var pgIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// pgvectorStore keeps vectors in Postgres with the pgvector extension. One
// table per configured index name; rows are keyed by (namespace, id) so
// several repositories can share a database.
type pgvectorStore struct {
	pool      *pgxpool.Pool
	table     string
	dims      int
	namespace string
	logger    *slog.Logger
}

// NewPgvectorStore builds the Postgres backend. The pool connects lazily;
// only configuration problems surface here.
func NewPgvectorStore(cfg config.VectorConfig, dims int, logger *slog.Logger) (Store, error) {
	if cfg.ConnString == "" {
		return nil, derrors.New(derrors.ConfigInvalid, "pgvector provider selected but vector.connString is empty")
	}

	table := cfg.IndexName
	if table == "" {
		table = defaultPgTable
	}
	if !pgIdentifier.MatchString(table) {
		return nil, derrors.Newf(derrors.ConfigInvalid, "vector.indexName %q is not a valid table name", table)
	}
	if dims <= 0 {
		return nil, derrors.Newf(derrors.ConfigInvalid, "vector dimension %d must be positive", dims)
	}

	pool, err := pgxpool.New(context.Background(), cfg.ConnString)
	if err != nil {
		return nil, derrors.Wrap(derrors.ConfigInvalid, "invalid vector.connString", err)
	}

	return &pgvectorStore{
		pool:      pool,
		table:     table,
		dims:      dims,
		namespace: cfg.Namespace,
		logger:    logger,
	}, nil
}

// Init creates the table and its cosine index if they do not exist.
func (s *pgvectorStore) Init(ctx context.Context) error {
	// The extension usually exists already; creating it needs rights the
	// configured role may not have.
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		s.logger.Debug("could not create vector extension, assuming it exists", "error", err)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id text NOT NULL,
			namespace text NOT NULL DEFAULT '',
			hash text NOT NULL DEFAULT '',
			model_id text NOT NULL DEFAULT '',
			language text NOT NULL DEFAULT '',
			updated_at timestamptz NOT NULL DEFAULT now(),
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (namespace, id)
		)`, s.table, s.dims)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create vector table %s: %w", s.table, err)
	}

	indexDDL := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)",
		s.table, s.table)
	if _, err := s.pool.Exec(ctx, indexDDL); err != nil {
		return fmt.Errorf("create vector index on %s: %w", s.table, err)
	}
	return nil
}

func (s *pgvectorStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s (id, namespace, hash, model_id, language, updated_at, embedding)
		VALUES ($1, $2, $3, $4, $5, now(), $6::vector)
		ON CONFLICT (namespace, id) DO UPDATE SET
			hash = EXCLUDED.hash,
			model_id = EXCLUDED.model_id,
			language = EXCLUDED.language,
			updated_at = now(),
			embedding = EXCLUDED.embedding`, s.table)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(sql, r.ID, s.namespace, r.Meta.Hash, r.Meta.ModelID, r.Meta.Language, vectorLiteral(r.Vector))
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("vector upsert: %w", err)
		}
	}
	return nil
}

func (s *pgvectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND id = ANY($2)", s.table)
	if _, err := s.pool.Exec(ctx, sql, s.namespace, ids); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	return nil
}

func (s *pgvectorStore) Query(ctx context.Context, vector []float32, topK int, opts QueryOpts) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	literal := vectorLiteral(vector)

	var rows pgx.Rows
	var err error
	if opts.AllNamespaces {
		sql := fmt.Sprintf(`
			SELECT id, namespace, hash, model_id, language, updated_at,
			       1 - (embedding <=> $1::vector) AS score
			FROM %s
			ORDER BY embedding <=> $1::vector
			LIMIT $2`, s.table)
		rows, err = s.pool.Query(ctx, sql, literal, topK)
	} else {
		namespace := opts.Namespace
		if namespace == "" {
			namespace = s.namespace
		}
		sql := fmt.Sprintf(`
			SELECT id, namespace, hash, model_id, language, updated_at,
			       1 - (embedding <=> $1::vector) AS score
			FROM %s
			WHERE namespace = $2
			ORDER BY embedding <=> $1::vector
			LIMIT $3`, s.table)
		rows, err = s.pool.Query(ctx, sql, literal, namespace, topK)
	}
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		meta := &Metadata{}
		if err := rows.Scan(&m.ID, &meta.Namespace, &meta.Hash, &meta.ModelID, &meta.Language, &meta.UpdatedAt, &m.Score); err != nil {
			return nil, fmt.Errorf("vector query scan: %w", err)
		}
		m.Meta = meta
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector query rows: %w", err)
	}
	return matches, nil
}

func (s *pgvectorStore) Fetch(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sql := fmt.Sprintf(`
		SELECT id, namespace, hash, model_id, language, updated_at, embedding::text
		FROM %s
		WHERE namespace = $1 AND id = ANY($2)`, s.table)

	rows, err := s.pool.Query(ctx, sql, s.namespace, ids)
	if err != nil {
		return nil, fmt.Errorf("vector fetch: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Record)
	for rows.Next() {
		var r Record
		var literal string
		if err := rows.Scan(&r.ID, &r.Meta.Namespace, &r.Meta.Hash, &r.Meta.ModelID, &r.Meta.Language, &r.Meta.UpdatedAt, &literal); err != nil {
			return nil, fmt.Errorf("vector fetch scan: %w", err)
		}
		r.Vector, err = parseVectorLiteral(literal)
		if err != nil {
			return nil, fmt.Errorf("vector for %s: %w", r.ID, err)
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector fetch rows: %w", err)
	}

	records := make([]Record, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			records = append(records, r)
		}
	}
	return records, nil
}

// Prune lists the namespace's IDs, diffs against the live set, and deletes
// the remainder.
func (s *pgvectorStore) Prune(ctx context.Context, live map[string]bool) (int, error) {
	listSQL := fmt.Sprintf("SELECT id FROM %s WHERE namespace = $1", s.table)
	rows, err := s.pool.Query(ctx, listSQL, s.namespace)
	if err != nil {
		return 0, fmt.Errorf("vector prune list: %w", err)
	}

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("vector prune scan: %w", err)
		}
		if !live[id] {
			stale = append(stale, id)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return 0, fmt.Errorf("vector prune rows: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	sort.Strings(stale)

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND id = ANY($2)", s.table)
	tag, err := s.pool.Exec(ctx, deleteSQL, s.namespace, stale)
	if err != nil {
		return 0, fmt.Errorf("vector prune delete: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *pgvectorStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders a pgvector input literal, "[1,2,3]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVectorLiteral(literal string) ([]float32, error) {
	trimmed := strings.TrimSpace(literal)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q", literal)
	}
	inner := trimmed[1 : len(trimmed)-1]
	if inner == "" {
		return []float32{}, nil
	}

	parts := strings.Split(inner, ",")
	out := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector element %q: %w", part, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
