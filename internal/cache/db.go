package cache

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the SQLite connection backing the content cache, with transaction
// helpers and corruption recovery.
type DB struct {
	mu     sync.RWMutex
	conn   *sql.DB
	logger *slog.Logger
	dbPath string
}

// Open opens or creates the cache database at <cacheDir>/cache.db. An
// unreadable file, a failed migration, or a schema version newer than this
// build all cause the database to be deleted and recreated from the latest
// schema; the cache is derived state and can always be rebuilt.
func Open(cacheDir string, logger *slog.Logger) (*DB, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	dbPath := filepath.Join(cacheDir, "cache.db")

	db, err := openAt(dbPath, logger)
	if err == nil {
		return db, nil
	}

	logger.Warn("cache database unusable, recreating", "path", dbPath, "error", err)
	removeDatabaseFiles(dbPath)
	db, err = openAt(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to recreate cache database: %w", err)
	}
	return db, nil
}

func openAt(dbPath string, logger *slog.Logger) (*DB, error) {
	dbExists := fileExists(dbPath)

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, err
	}

	if !dbExists {
		logger.Info("creating new cache database", "path", dbPath)
		if err := initializeSchema(conn, logger); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	} else {
		if err := runMigrations(conn, logger); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DB{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}, nil
}

func openConn(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",    // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous=NORMAL",  // Balance between safety and performance
		"PRAGMA foreign_keys=ON",     // Enable foreign key constraints
		"PRAGMA busy_timeout=5000",   // Wait up to 5 seconds on lock
		"PRAGMA cache_size=-64000",   // 64MB cache
		"PRAGMA temp_store=MEMORY",   // Use memory for temp tables
		"PRAGMA mmap_size=268435456", // 256MB mmap
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return conn, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the location of the database file.
func (db *DB) Path() string {
	return db.dbPath
}

// Reset deletes the database files and reinitializes the latest schema.
// Called when a read hits a corrupted payload.
func (db *DB) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn != nil {
		db.conn.Close() //nolint:errcheck
	}
	removeDatabaseFiles(db.dbPath)

	conn, err := openConn(db.dbPath)
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}
	if err := initializeSchema(conn, db.logger); err != nil {
		conn.Close()
		return fmt.Errorf("failed to reinitialize schema: %w", err)
	}
	db.conn = conn
	db.logger.Warn("cache database reset", "path", db.dbPath)
	return nil
}

func (db *DB) connection() *sql.DB {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn
}

// WithTx executes fn inside a transaction, rolling back on error or panic.
func (db *DB) WithTx(fn func(*sql.Tx) error) error {
	return withTx(db.connection(), db.logger, fn)
}

func withTx(conn *sql.DB, logger *slog.Logger, fn func(*sql.Tx) error) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback() //nolint:errcheck
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("failed to rollback transaction", "error", err, "rollback_error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Exec executes a query without returning rows.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	return db.connection().Exec(query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return db.connection().Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	return db.connection().QueryRow(query, args...)
}

// isCorrupt reports whether err indicates on-disk corruption rather than a
// transient failure.
func isCorrupt(err error) bool {
	return err != nil && strings.Contains(err.Error(), "malformed")
}

func removeDatabaseFiles(dbPath string) {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		os.Remove(dbPath + suffix) //nolint:errcheck
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
