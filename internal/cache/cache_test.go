package cache

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"driftmap/internal/adapters"
	"driftmap/internal/logging"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func sampleParsedFile(path, hash string) *adapters.ParsedFile {
	return &adapters.ParsedFile{
		Path:     path,
		Language: "typescript",
		Imports: []adapters.Import{
			{Source: "./util", Named: []string{"helper"}, IsRelative: true},
		},
		ExportSignature: "sig-" + path,
		ContentHash:     hash,
	}
}

func TestParseCacheRoundTrip(t *testing.T) {
	s := testStore(t)

	pf := sampleParsedFile("src/a.ts", "hash-1")
	if err := s.SetParse(pf); err != nil {
		t.Fatalf("SetParse failed: %v", err)
	}

	got, found, err := s.GetParse("src/a.ts", "hash-1")
	if err != nil {
		t.Fatalf("GetParse failed: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if got.Language != "typescript" {
		t.Errorf("language = %q", got.Language)
	}
	if got.ExportSignature != pf.ExportSignature {
		t.Errorf("signature = %q, want %q", got.ExportSignature, pf.ExportSignature)
	}
	if len(got.Imports) != 1 || got.Imports[0].Source != "./util" || !got.Imports[0].IsRelative {
		t.Errorf("imports = %+v", got.Imports)
	}
}

func TestParseCacheMissOnHashMismatch(t *testing.T) {
	s := testStore(t)

	if err := s.SetParse(sampleParsedFile("src/a.ts", "hash-1")); err != nil {
		t.Fatalf("SetParse failed: %v", err)
	}

	got, found, err := s.GetParse("src/a.ts", "hash-2")
	if err != nil {
		t.Fatalf("GetParse failed: %v", err)
	}
	if found || got != nil {
		t.Error("changed content hash must be a miss, never a stale payload")
	}
}

func TestParseCacheBatchAndPrune(t *testing.T) {
	s := testStore(t)

	files := []*adapters.ParsedFile{
		sampleParsedFile("a.ts", "h1"),
		sampleParsedFile("b.ts", "h2"),
		sampleParsedFile("gone.ts", "h3"),
	}
	if err := s.SetParseBatch(files); err != nil {
		t.Fatalf("SetParseBatch failed: %v", err)
	}

	pruned, err := s.PruneParse(map[string]bool{"a.ts": true, "b.ts": true})
	if err != nil {
		t.Fatalf("PruneParse failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	if _, found, _ := s.GetParse("gone.ts", "h3"); found {
		t.Error("pruned path should miss")
	}
	if _, found, _ := s.GetParse("a.ts", "h1"); !found {
		t.Error("live path should still hit")
	}
}

func TestPruneParseNothingStale(t *testing.T) {
	s := testStore(t)

	if err := s.SetParse(sampleParsedFile("a.ts", "h1")); err != nil {
		t.Fatalf("SetParse failed: %v", err)
	}
	pruned, err := s.PruneParse(map[string]bool{"a.ts": true})
	if err != nil {
		t.Fatalf("PruneParse failed: %v", err)
	}
	if pruned != 0 {
		t.Errorf("pruned = %d, want 0", pruned)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	s := testStore(t)

	vec := []float32{0.125, -0.5, 2.75}
	entries := []EmbeddingEntry{{Path: "a.ts", Hash: "h1", ModelID: "minilm", Vector: vec}}
	if err := s.SetEmbeddingBatch(entries); err != nil {
		t.Fatalf("SetEmbeddingBatch failed: %v", err)
	}

	got, found, err := s.GetEmbedding("a.ts", "h1", "minilm")
	if err != nil {
		t.Fatalf("GetEmbedding failed: %v", err)
	}
	if !found {
		t.Fatal("expected embedding hit")
	}
	if len(got) != 3 {
		t.Fatalf("dims = %d, want 3", len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("vector[%d] = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestEmbeddingMissOnHashOrModelChange(t *testing.T) {
	s := testStore(t)

	entries := []EmbeddingEntry{{Path: "a.ts", Hash: "h1", ModelID: "minilm", Vector: []float32{1}}}
	if err := s.SetEmbeddingBatch(entries); err != nil {
		t.Fatalf("SetEmbeddingBatch failed: %v", err)
	}

	if _, found, _ := s.GetEmbedding("a.ts", "h2", "minilm"); found {
		t.Error("changed hash should miss")
	}
	if _, found, _ := s.GetEmbedding("a.ts", "h1", "other-model"); found {
		t.Error("changed model should miss")
	}
}

func TestAllEmbeddingsFiltersByModel(t *testing.T) {
	s := testStore(t)

	entries := []EmbeddingEntry{
		{Path: "b.ts", Hash: "h2", ModelID: "minilm", Vector: []float32{2}},
		{Path: "a.ts", Hash: "h1", ModelID: "minilm", Vector: []float32{1}},
		{Path: "c.ts", Hash: "h3", ModelID: "other", Vector: []float32{3}},
	}
	if err := s.SetEmbeddingBatch(entries); err != nil {
		t.Fatalf("SetEmbeddingBatch failed: %v", err)
	}

	all, err := s.AllEmbeddings("minilm")
	if err != nil {
		t.Fatalf("AllEmbeddings failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Path != "a.ts" || all[1].Path != "b.ts" {
		t.Errorf("entries not ordered by path: %+v", all)
	}
}

func TestFetchAndDeleteEmbeddings(t *testing.T) {
	s := testStore(t)

	entries := []EmbeddingEntry{
		{Path: "a.ts", Hash: "h1", ModelID: "minilm", Vector: []float32{1}},
		{Path: "b.ts", Hash: "h2", ModelID: "minilm", Vector: []float32{2}},
	}
	if err := s.SetEmbeddingBatch(entries); err != nil {
		t.Fatalf("SetEmbeddingBatch failed: %v", err)
	}

	fetched, err := s.FetchEmbeddings([]string{"a.ts", "missing.ts"})
	if err != nil {
		t.Fatalf("FetchEmbeddings failed: %v", err)
	}
	if len(fetched) != 1 || fetched[0].Path != "a.ts" {
		t.Errorf("fetched = %+v", fetched)
	}

	if err := s.DeleteEmbeddings([]string{"a.ts"}); err != nil {
		t.Fatalf("DeleteEmbeddings failed: %v", err)
	}
	if _, found, _ := s.GetEmbedding("a.ts", "h1", "minilm"); found {
		t.Error("deleted embedding should miss")
	}
}

func TestStats(t *testing.T) {
	s := testStore(t)

	if err := s.SetParse(sampleParsedFile("a.ts", "h1")); err != nil {
		t.Fatalf("SetParse failed: %v", err)
	}
	if err := s.SetEmbeddingBatch([]EmbeddingEntry{{Path: "a.ts", Hash: "h1", ModelID: "m", Vector: []float32{1}}}); err != nil {
		t.Fatalf("SetEmbeddingBatch failed: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.SchemaVersion != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", stats.SchemaVersion, currentSchemaVersion)
	}
	if stats.ParseEntries != 1 || stats.EmbeddingEntries != 1 {
		t.Errorf("counts = %d/%d, want 1/1", stats.ParseEntries, stats.EmbeddingEntries)
	}
	if stats.SizeBytes <= 0 {
		t.Errorf("size = %d, want > 0", stats.SizeBytes)
	}
}

func TestOpenRecreatesCorruptDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cache.db")
	if err := os.WriteFile(dbPath, []byte("this is not a sqlite file"), 0o644); err != nil {
		t.Fatalf("failed to write garbage: %v", err)
	}

	db, err := Open(dir, logging.Discard())
	if err != nil {
		t.Fatalf("Open should recreate a corrupt database, got: %v", err)
	}
	defer func() { _ = db.Close() }()

	stats, err := NewStore(db).Stats()
	if err != nil {
		t.Fatalf("Stats failed after recreate: %v", err)
	}
	if stats.SchemaVersion != currentSchemaVersion || stats.ParseEntries != 0 {
		t.Errorf("recreated database not fresh: %+v", stats)
	}
}

func TestOpenRecreatesNewerSchema(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir, logging.Discard())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_meta SET value = '99' WHERE key = 'schema_version'"); err != nil {
		t.Fatalf("failed to bump version: %v", err)
	}
	_ = db.Close()

	db, err = Open(dir, logging.Discard())
	if err != nil {
		t.Fatalf("Open should recreate on newer schema, got: %v", err)
	}
	defer func() { _ = db.Close() }()

	version, err := schemaVersion(db.connection())
	if err != nil {
		t.Fatalf("schemaVersion failed: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("version = %d, want %d", version, currentSchemaVersion)
	}
}

func createV1Database(t *testing.T, dir string) {
	t.Helper()
	conn, err := sql.Open("sqlite", filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("failed to open raw connection: %v", err)
	}
	defer func() { _ = conn.Close() }()

	stmts := []string{
		`CREATE TABLE schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE parse_cache (
			path TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			imports_json TEXT NOT NULL,
			export_signature TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE embedding_cache (
			path TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			model_id TEXT NOT NULL,
			dims INTEGER NOT NULL,
			vector BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`INSERT INTO schema_meta (key, value) VALUES ('schema_version', '1')`,
		`INSERT INTO parse_cache (path, hash, imports_json, export_signature, updated_at)
			VALUES ('old.ts', 'h-old', '[]', 'sig-old', '2024-01-01T00:00:00Z')`,
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("v1 setup statement failed: %v", err)
		}
	}
}

func TestMigrationV1ToV2(t *testing.T) {
	dir := t.TempDir()
	createV1Database(t, dir)

	db, err := Open(dir, logging.Discard())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	version, err := schemaVersion(db.connection())
	if err != nil {
		t.Fatalf("schemaVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}

	// Pre-migration rows survive with an empty language.
	s := NewStore(db)
	got, found, err := s.GetParse("old.ts", "h-old")
	if err != nil {
		t.Fatalf("GetParse failed: %v", err)
	}
	if !found {
		t.Fatal("v1 row should survive migration")
	}
	if got.Language != "" {
		t.Errorf("migrated language = %q, want empty", got.Language)
	}

	// The new column is writable.
	if err := s.SetParse(sampleParsedFile("new.ts", "h-new")); err != nil {
		t.Fatalf("SetParse after migration failed: %v", err)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	dir := t.TempDir()
	createV1Database(t, dir)

	for i := 0; i < 3; i++ {
		db, err := Open(dir, logging.Discard())
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		version, err := schemaVersion(db.connection())
		if err != nil {
			t.Fatalf("schemaVersion failed: %v", err)
		}
		if version != currentSchemaVersion {
			t.Errorf("open #%d: version = %d, want %d", i+1, version, currentSchemaVersion)
		}
		_ = db.Close()
	}
}

func TestCorruptPayloadResetsDatabase(t *testing.T) {
	s := testStore(t)

	if err := s.SetParse(sampleParsedFile("a.ts", "h1")); err != nil {
		t.Fatalf("SetParse failed: %v", err)
	}
	// Vector blob of 3 bytes cannot decode as float32s.
	if _, err := s.db.Exec(`
		INSERT OR REPLACE INTO embedding_cache (path, hash, model_id, dims, vector, updated_at)
		VALUES ('bad.ts', 'h', 'm', 1, ?, '2024-01-01T00:00:00Z')
	`, []byte{1, 2, 3}); err != nil {
		t.Fatalf("failed to inject bad row: %v", err)
	}

	got, found, err := s.GetEmbedding("bad.ts", "h", "m")
	if err != nil {
		t.Fatalf("GetEmbedding should recover, got: %v", err)
	}
	if found || got != nil {
		t.Error("corrupt payload must read as a miss")
	}

	// The reset wiped everything, never leaving a half-initialized store.
	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ParseEntries != 0 || stats.EmbeddingEntries != 0 {
		t.Errorf("expected empty store after reset, got %+v", stats)
	}
	if stats.SchemaVersion != currentSchemaVersion {
		t.Errorf("schema version = %d after reset", stats.SchemaVersion)
	}
}
