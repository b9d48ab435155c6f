// Package keyring stores caller-supplied AES key/IV pairs per work ID so
// repeated extractions of the same work need not re-enter them. Keys only
// ever enter the ring through Put or Import; nothing here derives or
// discovers key material.
package keyring

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"dlst-go/internal/keyring/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Record is one stored key/IV pair.
type Record struct {
	ID        string
	WorkID    string
	Key       []byte
	IV        []byte
	Label     string
	CreatedAt time.Time
}

// Store is a SQLite-backed keyring.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the keyring database at path and migrates it to
// the current schema. path can be ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating keyring directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening keyring database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating keyring database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a key/IV pair for a work, replacing any existing record for
// the same work ID. Key and IV must be 16 bytes.
func (s *Store) Put(workID string, key, iv []byte, label string) (*Record, error) {
	if workID == "" {
		return nil, errors.New("work ID must not be empty")
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("key for %s must be 16 bytes, got %d", workID, len(key))
	}
	if len(iv) != 16 {
		return nil, fmt.Errorf("iv for %s must be 16 bytes, got %d", workID, len(iv))
	}

	_, err := s.db.Exec(`
		INSERT INTO works (id, work_id, aes_key, aes_iv, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(work_id) DO UPDATE SET
			aes_key = excluded.aes_key,
			aes_iv = excluded.aes_iv,
			label = excluded.label`,
		uuid.New().String(), workID, hex.EncodeToString(key), hex.EncodeToString(iv), label, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("storing key for %s: %w", workID, err)
	}

	// On the replace path the row keeps its original id and created_at, so
	// re-read what is actually persisted.
	rec, err := s.Get(workID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the record for a work ID, or nil if none is stored.
func (s *Store) Get(workID string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT id, work_id, aes_key, aes_iv, label, created_at
		FROM works WHERE work_id = ?`, workID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading key for %s: %w", workID, err)
	}
	return rec, nil
}

// List returns all records ordered by work ID.
func (s *Store) List() ([]*Record, error) {
	rows, err := s.db.Query(`
		SELECT id, work_id, aes_key, aes_iv, label, created_at
		FROM works ORDER BY work_id`)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("listing keys: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return records, nil
}

// Remove deletes the record for a work ID. Removing an absent ID is an error.
func (s *Store) Remove(workID string) error {
	res, err := s.db.Exec(`DELETE FROM works WHERE work_id = ?`, workID)
	if err != nil {
		return fmt.Errorf("removing key for %s: %w", workID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("removing key for %s: %w", workID, err)
	}
	if n == 0 {
		return fmt.Errorf("no key stored for %s", workID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var keyHex, ivHex string
	if err := row.Scan(&rec.ID, &rec.WorkID, &keyHex, &ivHex, &rec.Label, &rec.CreatedAt); err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decoding stored key: %w", err)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("decoding stored iv: %w", err)
	}
	rec.Key = key
	rec.IV = iv
	return &rec, nil
}
