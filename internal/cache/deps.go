package cache

import (
	"database/sql"
	"errors"
	"fmt"
)

// Hasher resolves a path to its current content hash. An error means the
// path cannot be read (missing file), which counts as stale.
type Hasher func(path string) (string, error)

// Dependency is one recorded edge: a path the artifact consumed, together
// with the hash that path had when the artifact was derived.
type Dependency struct {
	Path string
	Hash string
}

// ReplaceDependencies replaces every dependency edge for an artifact in one
// transaction. Edges are never updated piecemeal; re-deriving an artifact
// rewrites its full dependency set. Each need's hash is snapshotted from the
// files table at record time, and the artifact always gets a self row so a
// zero-need artifact still has a freshness record.
func (s *Store) ReplaceDependencies(path, hash string, needs []string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM deps WHERE path = ?`, path); err != nil {
		return fmt.Errorf("cache: clear deps: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO deps (path, hash, needs_path, needs_hash) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cache: prepare dep insert: %w", err)
	}
	defer stmt.Close()
	if _, err := stmt.Exec(path, hash, "", ""); err != nil {
		return fmt.Errorf("cache: insert dep: %w", err)
	}
	for _, need := range needs {
		var needHash string
		err := tx.QueryRow(`SELECT hash FROM files WHERE path = ?`, need).Scan(&needHash)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("cache: need hash: %w", err)
		}
		if _, err := stmt.Exec(path, hash, need, needHash); err != nil {
			return fmt.Errorf("cache: insert dep: %w", err)
		}
	}
	return tx.Commit()
}

// Dependencies returns the recorded hash and dependency set for an artifact.
// ok is false when the artifact has never been recorded.
func (s *Store) Dependencies(path string) (hash string, needs []Dependency, ok bool, err error) {
	rows, err := s.conn.Query(`SELECT hash, needs_path, needs_hash FROM deps WHERE path = ? ORDER BY needs_path`, path)
	if err != nil {
		return "", nil, false, fmt.Errorf("cache: deps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h, need, needHash string
		if err := rows.Scan(&h, &need, &needHash); err != nil {
			return "", nil, false, err
		}
		hash = h
		ok = true
		// The self row carries the artifact hash only.
		if need == "" {
			continue
		}
		needs = append(needs, Dependency{Path: need, Hash: needHash})
	}
	return hash, needs, ok, rows.Err()
}

// IsStale reports whether an artifact must be re-derived: its current
// content hash differs from the recorded one, or any directly-referenced
// path's current hash differs from the hash snapshotted on its edge.
// References are checked one level deep only, matching reference resolution.
func (s *Store) IsStale(path string, hashOf Hasher) (bool, error) {
	recorded, needs, ok, err := s.Dependencies(path)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	current, err := hashOf(path)
	if err != nil || current != recorded {
		return true, nil
	}

	for _, need := range needs {
		live, err := hashOf(need.Path)
		if err != nil || live != need.Hash {
			return true, nil
		}
	}
	return false, nil
}
