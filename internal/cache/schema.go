package cache

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
)

// Schema version tracking. v1 shipped parse_cache without the language column;
// v2 added it so parse rows can be rehydrated without re-reading the file.
const currentSchemaVersion = 2

func initializeSchema(conn *sql.DB, logger *slog.Logger) error {
	return withTx(conn, logger, func(tx *sql.Tx) error {
		if err := createSchemaMetaTable(tx); err != nil {
			return err
		}
		if err := createParseCacheTable(tx); err != nil {
			return err
		}
		if err := createEmbeddingCacheTable(tx); err != nil {
			return err
		}
		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		logger.Info("cache schema initialized", "version", currentSchemaVersion)
		return nil
	})
}

// runMigrations brings an existing database up to the current schema version.
// Migrations are applied in order and each is idempotent; a version newer than
// this build is an error so the caller recreates the database instead of
// guessing at an unknown layout.
func runMigrations(conn *sql.DB, logger *slog.Logger) error {
	version, err := schemaVersion(conn)
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		logger.Debug("cache schema is up to date", "version", version)
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("cache schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if version == 0 {
		// File exists but was never initialized.
		return initializeSchema(conn, logger)
	}

	logger.Info("migrating cache schema", "from_version", version, "to_version", currentSchemaVersion)

	if version < 2 {
		if err := migrateToV2(conn, logger); err != nil {
			return err
		}
	}

	return nil
}

// migrateToV2 adds the language column to parse_cache.
func migrateToV2(conn *sql.DB, logger *slog.Logger) error {
	return withTx(conn, logger, func(tx *sql.Tx) error {
		exists, err := columnExists(tx, "parse_cache", "language")
		if err != nil {
			return err
		}
		if !exists {
			if _, err := tx.Exec("ALTER TABLE parse_cache ADD COLUMN language TEXT NOT NULL DEFAULT ''"); err != nil {
				return fmt.Errorf("failed to add language column: %w", err)
			}
		}
		return setSchemaVersion(tx, 2)
	})
}

func schemaVersion(conn *sql.DB) (int, error) {
	var tableName string
	err := conn.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_meta'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var raw string
	err = conn.QueryRow("SELECT value FROM schema_meta WHERE key = 'schema_version'").Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q: %w", raw, err)
	}
	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO schema_meta (key, value) VALUES ('schema_version', ?)
	`, strconv.Itoa(version))
	return err
}

func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &primaryKey); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func createSchemaMetaTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

func createParseCacheTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS parse_cache (
			path TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			imports_json TEXT NOT NULL,
			export_signature TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create parse_cache table: %w", err)
	}

	if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_parse_cache_hash ON parse_cache(hash)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func createEmbeddingCacheTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS embedding_cache (
			path TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			model_id TEXT NOT NULL,
			dims INTEGER NOT NULL,
			vector BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create embedding_cache table: %w", err)
	}

	if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_embedding_cache_model ON embedding_cache(model_id)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}
