// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// ErrPairNotFound is returned when deleting a pair that is not stored
var ErrPairNotFound = errors.New("blocked pair not found")

// Storage persists the block-list seed read at startup
type Storage interface {
	SavePair(p BlockedPair) error
	DeletePair(p BlockedPair) error
	LoadPairs() ([]BlockedPair, error)
	Close() error
}

// SQLiteStorage keeps blocked pairs in a single SQLite table. Pairs are
// stored normalised, so (A,B) and (B,A) share one row.
type SQLiteStorage struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS blocked_pairs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	addr_lo    TEXT NOT NULL,
	addr_hi    TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(addr_lo, addr_hi)
);
`

// NewSQLiteStorage opens (creating if needed) the database at dbPath
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open block-list database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create blocked_pairs table: %w", err)
	}

	log.Debugf("Block-list storage opened: %s", dbPath)
	return &SQLiteStorage{db: db}, nil
}

// SavePair stores p. Saving a pair that is already stored, in either
// order, is a no-op.
func (s *SQLiteStorage) SavePair(p BlockedPair) error {
	n := p.Normalized()

	_, err := s.db.Exec(
		`INSERT INTO blocked_pairs (addr_lo, addr_hi) VALUES (?, ?)
		 ON CONFLICT(addr_lo, addr_hi) DO NOTHING`,
		n.A.String(), n.B.String())
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", n, err)
	}

	log.Debugf("Stored blocked pair %s", n)
	return nil
}

// DeletePair removes p, matching either order. ErrPairNotFound is
// returned if it was not stored.
func (s *SQLiteStorage) DeletePair(p BlockedPair) error {
	n := p.Normalized()

	result, err := s.db.Exec(
		`DELETE FROM blocked_pairs WHERE addr_lo = ? AND addr_hi = ?`,
		n.A.String(), n.B.String())
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", n, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", n, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrPairNotFound, n)
	}

	log.Debugf("Deleted blocked pair %s", n)
	return nil
}

// LoadPairs returns every stored pair in insertion order. Rows that no
// longer parse as an IPv4 pair are skipped with a warning.
func (s *SQLiteStorage) LoadPairs() ([]BlockedPair, error) {
	rows, err := s.db.Query(`SELECT addr_lo, addr_hi FROM blocked_pairs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked pairs: %w", err)
	}
	defer rows.Close()

	var pairs []BlockedPair
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("failed to scan blocked pair: %w", err)
		}

		p, err := ParsePair(a, b)
		if err != nil {
			log.Warnf("Skipping corrupt blocked pair row %s/%s: %v", a, b, err)
			continue
		}
		pairs = append(pairs, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read blocked pairs: %w", err)
	}
	return pairs, nil
}

// Count returns the number of stored rows
func (s *SQLiteStorage) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM blocked_pairs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count blocked pairs: %w", err)
	}
	return n, nil
}

// Clear deletes every stored pair and returns how many were removed
func (s *SQLiteStorage) Clear() (int, error) {
	result, err := s.db.Exec(`DELETE FROM blocked_pairs`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear blocked pairs: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clear blocked pairs: %w", err)
	}

	log.Infof("Cleared %d blocked pairs from storage", n)
	return int(n), nil
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

var _ Storage = (*SQLiteStorage)(nil)
