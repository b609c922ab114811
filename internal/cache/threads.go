package cache

import (
	"database/sql"
	"errors"
	"fmt"
)

// ThreadRenderings holds both cached renderings of a thread fragment.
type ThreadRenderings struct {
	Hash   string
	Normal string
	Simple string
}

// ThreadRenderings returns the cached renderings for a thread path iff they
// were computed from content with the given hash. Both renderings share one
// row, so they are always from the same source revision.
func (s *Store) ThreadRenderings(path, hash string) (*ThreadRenderings, error) {
	var r ThreadRenderings
	err := s.conn.QueryRow(`SELECT hash, normal, simple FROM threads WHERE path = ?`, path).
		Scan(&r.Hash, &r.Normal, &r.Simple)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: thread renderings: %w", err)
	}
	if r.Hash != hash {
		// Content moved on; both renderings are invalid together.
		return nil, nil
	}
	return &r, nil
}

// PutThreadRenderings atomically replaces a thread's cached renderings and
// the hash they were derived from.
func (s *Store) PutThreadRenderings(path, hash, normal, simple string) error {
	_, err := s.conn.Exec(`
		INSERT INTO threads (path, hash, normal, simple) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash   = excluded.hash,
			normal = excluded.normal,
			simple = excluded.simple
	`, path, hash, normal, simple)
	if err != nil {
		return fmt.Errorf("cache: put thread renderings: %w", err)
	}
	return nil
}
