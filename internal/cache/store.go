// Package cache provides the SQLite-backed cache store: file freshness,
// dependency edges, thread renderings, attachment content, and the generic
// derivation/output tables used by the build store.
//
// The store handle is passed explicitly to every component; all reads and
// writes run in short-lived transactions so concurrent workers never observe
// a half-written row.
package cache

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS attachments (
	path    TEXT PRIMARY KEY,
	hash    TEXT NOT NULL,
	content BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS deps (
	path       TEXT NOT NULL,
	hash       TEXT NOT NULL,
	needs_path TEXT NOT NULL,
	needs_hash TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_deps_path ON deps(path);

CREATE TABLE IF NOT EXISTS threads (
	path   TEXT PRIMARY KEY,
	hash   TEXT NOT NULL,
	normal TEXT NOT NULL,
	simple TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS derivations (
	drv_id  TEXT PRIMARY KEY,
	details TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS outputs (
	output_id TEXT PRIMARY KEY,
	content   BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS post_index (
	path  TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	tags  TEXT NOT NULL DEFAULT '[]',
	body  TEXT NOT NULL DEFAULT ''
);
`

// Store wraps a sql.DB with cache-specific operations.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply fts schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
