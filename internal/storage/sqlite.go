// Package storage opens the unitd SQLite database and owns its schema.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist. File databases must live on a local
// filesystem.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != MemoryPath {
		if err := requireLocalFilesystem(path, filesystemType); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == MemoryPath {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
  id          TEXT PRIMARY KEY,
  prefix      TEXT NOT NULL,
  started_at  TEXT NOT NULL,
  finished_at TEXT,
  status      INTEGER
);`,
		`CREATE TABLE IF NOT EXISTS unit_log (
  session_id TEXT NOT NULL,
  pid        INTEGER NOT NULL,
  parent     INTEGER NOT NULL DEFAULT 0,
  command    TEXT NOT NULL DEFAULT '',
  digest     TEXT,
  state      TEXT NOT NULL,
  status     INTEGER,
  crashed    INTEGER NOT NULL DEFAULT 0,
  error      TEXT,
  spawned_at TEXT NOT NULL,
  loaded_at  TEXT,
  exited_at  TEXT,
  reaped_at  TEXT,
  PRIMARY KEY (session_id, pid)
);`,
		`CREATE INDEX IF NOT EXISTS unit_log_spawned_at_idx ON unit_log(spawned_at);`,
		`CREATE INDEX IF NOT EXISTS unit_log_state_idx ON unit_log(session_id, state);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
