package cache

import (
	"encoding/json"
	"fmt"
)

// PostRow is one entry in the composer's post index.
type PostRow struct {
	Path  string
	Title string
	Tags  []string
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string
	Title   string
	Snippet string
}

// IndexPost inserts or replaces a post's search index entry (and its FTS row
// when FTS5 is compiled in) within one transaction.
func (s *Store) IndexPost(path, title string, tags []string, body string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	tagsJSON, _ := json.Marshal(tags)
	if _, err := tx.Exec(`
		INSERT INTO post_index (path, title, tags, body) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			tags  = excluded.tags,
			body  = excluded.body
	`, path, title, string(tagsJSON), body); err != nil {
		return fmt.Errorf("cache: index post: %w", err)
	}
	if err := ftsUpsert(tx, path, title, body, tags); err != nil {
		return err
	}
	return tx.Commit()
}

// ListPosts returns indexed posts ordered by path, with an optional tag
// filter, plus the total count before pagination.
func (s *Store) ListPosts(limit, offset int, tag string) ([]PostRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where, args := "", []any{}
	if tag != "" {
		where = `WHERE tags LIKE ?`
		args = append(args, `%"`+tag+`"%`)
	}

	var total int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM post_index `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("cache: count posts: %w", err)
	}

	rows, err := s.conn.Query(`
		SELECT path, title, tags FROM post_index `+where+`
		ORDER BY path LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("cache: list posts: %w", err)
	}
	defer rows.Close()

	var out []PostRow
	for rows.Next() {
		var r PostRow
		var tagsJSON string
		if err := rows.Scan(&r.Path, &r.Title, &tagsJSON); err != nil {
			return nil, 0, err
		}
		_ = json.Unmarshal([]byte(tagsJSON), &r.Tags)
		out = append(out, r)
	}
	return out, total, rows.Err()
}
