package cache

import (
	"database/sql"
	"errors"
	"fmt"
)

// PutDerivation records a derivation's normalized description under its
// identity, together with the output it produced. Entries are never evicted;
// only deleting the store file removes them.
func (s *Store) PutDerivation(drvID, details string, outputID string, content []byte) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`
		INSERT INTO derivations (drv_id, details) VALUES (?, ?)
		ON CONFLICT(drv_id) DO UPDATE SET details = excluded.details
	`, drvID, details); err != nil {
		return fmt.Errorf("cache: put derivation: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO outputs (output_id, content) VALUES (?, ?)
		ON CONFLICT(output_id) DO UPDATE SET content = excluded.content
	`, outputID, content); err != nil {
		return fmt.Errorf("cache: put output: %w", err)
	}
	return tx.Commit()
}

// Output returns the cached output blob for an output identity. ok is false
// when absent; an empty blob is a present output, not a miss.
func (s *Store) Output(outputID string) ([]byte, bool, error) {
	var content []byte
	err := s.conn.QueryRow(`SELECT content FROM outputs WHERE output_id = ?`, outputID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: output: %w", err)
	}
	return content, true, nil
}

// DerivationDetails returns the stored description for a derivation
// identity, or empty string when absent.
func (s *Store) DerivationDetails(drvID string) (string, error) {
	var details string
	err := s.conn.QueryRow(`SELECT details FROM derivations WHERE drv_id = ?`, drvID).Scan(&details)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache: derivation details: %w", err)
	}
	return details, nil
}
