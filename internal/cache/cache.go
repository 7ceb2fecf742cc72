package cache

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"driftmap/internal/adapters"
)

// EmbeddingEntry is one cached vector, keyed by path with the content hash and
// model id it was computed from.
type EmbeddingEntry struct {
	Path      string
	Hash      string
	ModelID   string
	Vector    []float32
	UpdatedAt time.Time
}

// Stats summarizes cache contents for the status command.
type Stats struct {
	SchemaVersion    int   `json:"schemaVersion" yaml:"schemaVersion"`
	ParseEntries     int   `json:"parseEntries" yaml:"parseEntries"`
	EmbeddingEntries int   `json:"embeddingEntries" yaml:"embeddingEntries"`
	SizeBytes        int64 `json:"sizeBytes" yaml:"sizeBytes"`
}

// Store provides parse-result and embedding caching on top of DB. A miss is
// (zero, false, nil); errors are reserved for real storage failures.
type Store struct {
	db *DB
}

// NewStore creates a cache store over an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle. The sqlite vector backend shares it
// rather than opening a second connection to the same file.
func (s *Store) DB() *DB {
	return s.db
}

// GetParse returns the cached parse result for path if the stored content
// hash matches. A differing hash is a miss, never a stale payload.
func (s *Store) GetParse(path, hash string) (*adapters.ParsedFile, bool, error) {
	var language, importsJSON, signature string

	err := s.db.QueryRow(`
		SELECT language, imports_json, export_signature
		FROM parse_cache
		WHERE path = ? AND hash = ?
	`, path, hash).Scan(&language, &importsJSON, &signature)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		if isCorrupt(err) {
			return nil, false, s.recoverCorrupt("parse cache read", err)
		}
		return nil, false, fmt.Errorf("parse cache lookup failed: %w", err)
	}

	var imports []adapters.Import
	if err := json.Unmarshal([]byte(importsJSON), &imports); err != nil {
		return nil, false, s.recoverCorrupt("parse cache payload", err)
	}

	return &adapters.ParsedFile{
		Path:            path,
		Language:        language,
		Imports:         imports,
		ExportSignature: signature,
		ContentHash:     hash,
	}, true, nil
}

// SetParse upserts one parse result, keyed by path.
func (s *Store) SetParse(pf *adapters.ParsedFile) error {
	now := time.Now().UTC().Format(time.RFC3339)
	importsJSON, err := json.Marshal(pf.Imports)
	if err != nil {
		return fmt.Errorf("failed to encode imports: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO parse_cache (path, hash, language, imports_json, export_signature, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, pf.Path, pf.ContentHash, pf.Language, string(importsJSON), pf.ExportSignature, now)
	if err != nil {
		return fmt.Errorf("failed to set parse cache: %w", err)
	}
	return nil
}

// SetParseBatch writes all parse results in one transaction; either every row
// lands or none do.
func (s *Store) SetParseBatch(files []*adapters.ParsedFile) error {
	if len(files) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)

	return s.db.WithTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO parse_cache (path, hash, language, imports_json, export_signature, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close() //nolint:errcheck

		for _, pf := range files {
			importsJSON, err := json.Marshal(pf.Imports)
			if err != nil {
				return fmt.Errorf("failed to encode imports for %s: %w", pf.Path, err)
			}
			if _, err := stmt.Exec(pf.Path, pf.ContentHash, pf.Language, string(importsJSON), pf.ExportSignature, now); err != nil {
				return fmt.Errorf("failed to write parse cache for %s: %w", pf.Path, err)
			}
		}
		return nil
	})
}

// PruneParse deletes rows for paths no longer in the live set and reports how
// many were removed.
func (s *Store) PruneParse(live map[string]bool) (int, error) {
	return s.pruneTable("parse_cache", live)
}

// GetEmbedding returns the cached vector for path when both the content hash
// and the model id match.
func (s *Store) GetEmbedding(path, hash, modelID string) ([]float32, bool, error) {
	var dims int
	var blob []byte

	err := s.db.QueryRow(`
		SELECT dims, vector
		FROM embedding_cache
		WHERE path = ? AND hash = ? AND model_id = ?
	`, path, hash, modelID).Scan(&dims, &blob)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		if isCorrupt(err) {
			return nil, false, s.recoverCorrupt("embedding cache read", err)
		}
		return nil, false, fmt.Errorf("embedding cache lookup failed: %w", err)
	}

	vector, err := decodeVector(blob, dims)
	if err != nil {
		return nil, false, s.recoverCorrupt("embedding cache payload", err)
	}
	return vector, true, nil
}

// SetEmbeddingBatch writes all vectors in one transaction. Rows are keyed by
// path, so re-embedding under a new model or hash replaces the old row.
func (s *Store) SetEmbeddingBatch(entries []EmbeddingEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)

	return s.db.WithTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO embedding_cache (path, hash, model_id, dims, vector, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close() //nolint:errcheck

		for _, e := range entries {
			if _, err := stmt.Exec(e.Path, e.Hash, e.ModelID, len(e.Vector), encodeVector(e.Vector), now); err != nil {
				return fmt.Errorf("failed to write embedding for %s: %w", e.Path, err)
			}
		}
		return nil
	})
}

// AllEmbeddings returns every cached vector for a model, ordered by path.
// The brute-force vector backend scans this set.
func (s *Store) AllEmbeddings(modelID string) ([]EmbeddingEntry, error) {
	rows, err := s.db.Query(`
		SELECT path, hash, dims, vector, updated_at
		FROM embedding_cache
		WHERE model_id = ?
		ORDER BY path
	`, modelID)
	if err != nil {
		return nil, fmt.Errorf("embedding cache scan failed: %w", err)
	}

	var entries []EmbeddingEntry
	var corrupt error
	for rows.Next() {
		var e EmbeddingEntry
		var dims int
		var blob []byte
		var updatedAt string

		if err := rows.Scan(&e.Path, &e.Hash, &dims, &blob, &updatedAt); err != nil {
			rows.Close() //nolint:errcheck
			return nil, err
		}
		vector, err := decodeVector(blob, dims)
		if err != nil {
			corrupt = fmt.Errorf("vector for %s: %w", e.Path, err)
			break
		}
		e.ModelID = modelID
		e.Vector = vector
		e.UpdatedAt = parseTimestamp(updatedAt)
		entries = append(entries, e)
	}
	err = rows.Err()
	rows.Close() //nolint:errcheck
	if err != nil {
		return nil, err
	}
	if corrupt != nil {
		return nil, s.recoverCorrupt("embedding cache scan", corrupt)
	}
	return entries, nil
}

// FetchEmbeddings returns the cached vectors for the given paths, skipping
// paths without a row.
func (s *Store) FetchEmbeddings(paths []string) ([]EmbeddingEntry, error) {
	var entries []EmbeddingEntry
	for _, path := range paths {
		var e EmbeddingEntry
		var dims int
		var blob []byte
		var updatedAt string

		err := s.db.QueryRow(`
			SELECT path, hash, model_id, dims, vector, updated_at
			FROM embedding_cache
			WHERE path = ?
		`, path).Scan(&e.Path, &e.Hash, &e.ModelID, &dims, &blob, &updatedAt)

		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("embedding fetch failed: %w", err)
		}

		vector, err := decodeVector(blob, dims)
		if err != nil {
			return nil, s.recoverCorrupt("embedding cache payload", err)
		}
		e.Vector = vector
		e.UpdatedAt = parseTimestamp(updatedAt)
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteEmbeddings removes the rows for the given paths.
func (s *Store) DeleteEmbeddings(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.db.WithTx(func(tx *sql.Tx) error {
		for _, path := range paths {
			if _, err := tx.Exec("DELETE FROM embedding_cache WHERE path = ?", path); err != nil {
				return fmt.Errorf("failed to delete embedding for %s: %w", path, err)
			}
		}
		return nil
	})
}

// PruneEmbeddings deletes vectors for paths no longer in the live set.
func (s *Store) PruneEmbeddings(live map[string]bool) (int, error) {
	return s.pruneTable("embedding_cache", live)
}

// Stats reports row counts, schema version, and on-disk size.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM parse_cache").Scan(&stats.ParseEntries); err != nil {
		return nil, fmt.Errorf("failed to count parse cache: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM embedding_cache").Scan(&stats.EmbeddingEntries); err != nil {
		return nil, fmt.Errorf("failed to count embedding cache: %w", err)
	}

	version, err := schemaVersion(s.db.connection())
	if err != nil {
		return nil, err
	}
	stats.SchemaVersion = version

	if info, err := os.Stat(s.db.Path()); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

func (s *Store) pruneTable(table string, live map[string]bool) (int, error) {
	rows, err := s.db.Query(fmt.Sprintf("SELECT path FROM %s", table))
	if err != nil {
		return 0, fmt.Errorf("failed to list %s paths: %w", table, err)
	}

	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close() //nolint:errcheck
			return 0, err
		}
		if !live[path] {
			stale = append(stale, path)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck
		return 0, err
	}
	rows.Close() //nolint:errcheck

	if len(stale) == 0 {
		return 0, nil
	}

	err = s.db.WithTx(func(tx *sql.Tx) error {
		for _, path := range stale {
			if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE path = ?", table), path); err != nil {
				return fmt.Errorf("failed to prune %s: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

// recoverCorrupt resets the database after an unreadable payload and reports
// the read as a miss via nil error, unless the reset itself fails.
func (s *Store) recoverCorrupt(context string, cause error) error {
	s.db.logger.Warn("cache corruption detected, resetting", "context", context, "error", cause)
	if err := s.db.Reset(); err != nil {
		return err
	}
	return nil
}

// encodeVector packs a float32 slice as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	if len(v) != dims {
		return nil, fmt.Errorf("vector has %d dims, row claims %d", len(v), dims)
	}
	return v, nil
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
