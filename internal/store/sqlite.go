package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

// SQLiteDocumentStore persists parent chunks in SQLite. WAL mode keeps
// reads open while the loader writes; a single connection avoids
// writer lock contention.
type SQLiteDocumentStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ DocumentStore = (*SQLiteDocumentStore)(nil)

// validateSQLiteIntegrity checks the database before opening so a file
// corrupted by a crashed run is detected up front.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	return nil
}

// NewSQLiteDocumentStore opens or creates the document store. An empty
// path creates an in-memory store. A corrupted database file is
// cleared and recreated; the caller must reload its content.
func NewSQLiteDocumentStore(path string) (*SQLiteDocumentStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, ragerr.StoreError(fmt.Sprintf("create directory for %s", path), err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("document store corrupted, clearing",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, ragerr.New(ragerr.ErrCodeStoreCorrupt,
					fmt.Sprintf("document store corrupted at %s and cannot clear", path), removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}

		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ragerr.StoreError("open document store", err)
	}

	// Single writer connection; modernc.org/sqlite serializes anyway
	// and this prevents SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores journal params in the DSN; pragmas
	// must be issued as statements.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, ragerr.StoreError(fmt.Sprintf("set pragma %q", pragma), err)
		}
	}

	s := &SQLiteDocumentStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteDocumentStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS parents (
		id         TEXT PRIMARY KEY,
		source_id  TEXT NOT NULL,
		ordinal    INTEGER NOT NULL,
		section    TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL,
		metadata   TEXT NOT NULL DEFAULT '{}',
		updated_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_parents_source ON parents(source_id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return ragerr.StoreError("initialize document store schema", err)
	}
	return nil
}

// Upsert writes a parent record. Reusing an ID replaces the record, so
// reloading an unchanged document is a no-op in effect.
func (s *SQLiteDocumentStore) Upsert(ctx context.Context, rec *ParentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ragerr.StoreError("document store is closed", nil)
	}

	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return ragerr.StoreError(fmt.Sprintf("encode metadata for parent %s", rec.ID), err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parents (id, source_id, ordinal, section, content, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			source_id  = excluded.source_id,
			ordinal    = excluded.ordinal,
			section    = excluded.section,
			content    = excluded.content,
			metadata   = excluded.metadata,
			updated_at = excluded.updated_at`,
		rec.ID, rec.SourceID, rec.Ordinal, rec.Section, rec.Text, string(metaJSON))
	if err != nil {
		return ragerr.StoreError(fmt.Sprintf("upsert parent %s", rec.ID), err)
	}

	return nil
}

// Get resolves a parent by ID. Returns ErrNotFound when absent.
func (s *SQLiteDocumentStore) Get(ctx context.Context, id string) (*ParentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ragerr.StoreError("document store is closed", nil)
	}

	var rec ParentRecord
	var metaJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, ordinal, section, content, metadata
		FROM parents WHERE id = ?`, id).
		Scan(&rec.ID, &rec.SourceID, &rec.Ordinal, &rec.Section, &rec.Text, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, ragerr.StoreError(fmt.Sprintf("get parent %s", id), err)
	}

	if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
		return nil, ragerr.New(ragerr.ErrCodeStoreCorrupt,
			fmt.Sprintf("decode metadata for parent %s", id), err)
	}

	return &rec, nil
}

// Exists reports whether a parent record is present.
func (s *SQLiteDocumentStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ragerr.StoreError("document store is closed", nil)
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM parents WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, ragerr.StoreError(fmt.Sprintf("check parent %s", id), err)
	}
	return true, nil
}

// AllIDs returns every stored parent ID. Used by the consistency sweep.
func (s *SQLiteDocumentStore) AllIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ragerr.StoreError("document store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM parents`)
	if err != nil {
		return nil, ragerr.StoreError("enumerate parents", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ragerr.StoreError("scan parent id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, ragerr.StoreError("iterate parents", err)
	}

	return ids, nil
}

// Count returns the number of stored parents.
func (s *SQLiteDocumentStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ragerr.StoreError("document store is closed", nil)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parents`).Scan(&count); err != nil {
		return 0, ragerr.StoreError("count parents", err)
	}
	return count, nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteDocumentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
