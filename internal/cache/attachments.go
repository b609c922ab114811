package cache

import (
	"database/sql"
	"errors"
	"fmt"
)

// AttachmentRow is one cached media blob, keyed by its source path. The
// content's hash always equals Hash; the two columns are only ever replaced
// together.
type AttachmentRow struct {
	Path    string
	Hash    string
	Content []byte
}

// Attachment returns the cached row for a source path, or nil when absent.
func (s *Store) Attachment(path string) (*AttachmentRow, error) {
	row := AttachmentRow{Path: path}
	err := s.conn.QueryRow(`SELECT hash, content FROM attachments WHERE path = ?`, path).
		Scan(&row.Hash, &row.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: attachment: %w", err)
	}
	return &row, nil
}

// AttachmentHash returns only the stored hash for a source path, or empty
// string when absent.
func (s *Store) AttachmentHash(path string) (string, error) {
	var h string
	err := s.conn.QueryRow(`SELECT hash FROM attachments WHERE path = ?`, path).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache: attachment hash: %w", err)
	}
	return h, nil
}

// PutAttachment inserts or replaces an attachment row. Hash and content are
// written in one statement so no reader ever sees them out of step.
func (s *Store) PutAttachment(path, hash string, content []byte) error {
	_, err := s.conn.Exec(`
		INSERT INTO attachments (path, hash, content) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash    = excluded.hash,
			content = excluded.content
	`, path, hash, content)
	if err != nil {
		return fmt.Errorf("cache: put attachment: %w", err)
	}
	return nil
}
