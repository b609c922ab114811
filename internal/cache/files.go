package cache

import (
	"database/sql"
	"errors"
	"fmt"
)

// FileHash returns the stored hash for a source path, or empty string when
// the path has never been recorded.
func (s *Store) FileHash(path string) (string, error) {
	var h string
	err := s.conn.QueryRow(`SELECT hash FROM files WHERE path = ?`, path).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache: file hash: %w", err)
	}
	return h, nil
}

// PutFileHash inserts or replaces the freshness record for a source path.
func (s *Store) PutFileHash(path, hash string) error {
	_, err := s.conn.Exec(`
		INSERT INTO files (path, hash) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET hash = excluded.hash
	`, path, hash)
	if err != nil {
		return fmt.Errorf("cache: put file hash: %w", err)
	}
	return nil
}

// AllFileHashes returns every recorded path→hash pair.
func (s *Store) AllFileHashes() (map[string]string, error) {
	rows, err := s.conn.Query(`SELECT path, hash FROM files`)
	if err != nil {
		return nil, fmt.Errorf("cache: all file hashes: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, h string
		if err := rows.Scan(&p, &h); err != nil {
			return nil, err
		}
		out[p] = h
	}
	return out, rows.Err()
}

// DeleteFile removes a path's freshness record along with its dependency
// edges, thread renderings, and search index row.
func (s *Store) DeleteFile(path string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM files WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM deps WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM threads WHERE path = ?`, path)
	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM post_index WHERE path = ?`, path)

	return tx.Commit()
}
