// Package db implements the SQLite-backed knowledge store. It persists all
// project knowledge (contexts, decisions, patterns, progress, custom data)
// and satisfies the read contract the context engine consumes.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rmarchant/plinth/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Store wraps the database handle. One Store serves all workspaces; every
// table carries a workspace column, so callers inject this single handle
// instead of keeping a per-workspace connection registry.
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite database at baseDir/plinth.db and returns a
// Store. The baseDir parameter allows tests to use t.TempDir() instead of
// ~/.plinth.
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	dbPath := filepath.Join(baseDir, "plinth.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(handle); err != nil {
		handle.Close()
		return nil, err
	}

	if err := migrate(handle); err != nil {
		handle.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return &Store{db: handle}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func (s *Store) ConfigurePool(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		s.db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		s.db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS product_context (
		  workspace  TEXT PRIMARY KEY,
		  content    TEXT NOT NULL,
		  version    INTEGER NOT NULL,
		  updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS product_context_history (
		  id            INTEGER PRIMARY KEY AUTOINCREMENT,
		  workspace     TEXT NOT NULL,
		  version       INTEGER NOT NULL,
		  content       TEXT NOT NULL,
		  change_source TEXT,
		  timestamp     INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS active_context (
		  workspace  TEXT PRIMARY KEY,
		  content    TEXT NOT NULL,
		  version    INTEGER NOT NULL,
		  updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS active_context_history (
		  id            INTEGER PRIMARY KEY AUTOINCREMENT,
		  workspace     TEXT NOT NULL,
		  version       INTEGER NOT NULL,
		  content       TEXT NOT NULL,
		  change_source TEXT,
		  timestamp     INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS decisions (
		  id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		  workspace              TEXT NOT NULL,
		  summary                TEXT NOT NULL,
		  rationale              TEXT,
		  implementation_details TEXT,
		  tags_json              TEXT,
		  timestamp              INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS progress_entries (
		  id          INTEGER PRIMARY KEY AUTOINCREMENT,
		  workspace   TEXT NOT NULL,
		  status      TEXT NOT NULL,
		  description TEXT NOT NULL,
		  parent_id   INTEGER,
		  timestamp   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS system_patterns (
		  id          INTEGER PRIMARY KEY AUTOINCREMENT,
		  workspace   TEXT NOT NULL,
		  name        TEXT NOT NULL,
		  description TEXT,
		  tags_json   TEXT,
		  timestamp   INTEGER NOT NULL,
		  UNIQUE(workspace, name)
		);

		CREATE TABLE IF NOT EXISTS custom_data (
		  id          INTEGER PRIMARY KEY AUTOINCREMENT,
		  workspace   TEXT NOT NULL,
		  category    TEXT NOT NULL,
		  key         TEXT NOT NULL,
		  value_json  TEXT NOT NULL,
		  cache_hint  INTEGER NOT NULL DEFAULT 0,
		  cache_score INTEGER NOT NULL DEFAULT 0,
		  timestamp   INTEGER NOT NULL,
		  UNIQUE(workspace, category, key)
		);

		CREATE INDEX IF NOT EXISTS idx_decisions_workspace_ts
		ON decisions(workspace, timestamp DESC);

		CREATE INDEX IF NOT EXISTS idx_progress_workspace_status
		ON progress_entries(workspace, status, timestamp DESC);

		CREATE INDEX IF NOT EXISTS idx_patterns_workspace_ts
		ON system_patterns(workspace, timestamp DESC);

		CREATE INDEX IF NOT EXISTS idx_custom_data_workspace_cat
		ON custom_data(workspace, category, key);

		CREATE INDEX IF NOT EXISTS idx_custom_data_cache_hint
		ON custom_data(workspace, cache_hint)
		WHERE cache_hint = 1;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
