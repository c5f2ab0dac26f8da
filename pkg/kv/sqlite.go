package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/crypto"
)

// SQLite is the on-device secure Backend. Values are sealed with
// AES-256-GCM under a data key installed by the lock gate; without a key
// every operation reports ErrUnavailable. The size ceiling applies to the
// plaintext value.
type SQLite struct {
	db    *sql.DB
	limit int

	mu  sync.RWMutex
	key []byte
}

// OpenSQLite opens (creating if needed) the store at path.
func OpenSQLite(path string, limit int) (*SQLite, error) {
	if limit <= 0 {
		limit = DefaultMaxValueSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("kv: failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("kv: failed to open store: %w", err)
	}
	// A single connection avoids "database is locked" between our own writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000; PRAGMA journal_mode=WAL; PRAGMA synchronous=FULL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kv: failed to configure store: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kv: failed to create table: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kv: failed to set store permissions: %w", err)
	}

	return &SQLite{db: db, limit: limit}, nil
}

// SetKey installs the data key used to seal values. The key is copied.
func (s *SQLite) SetKey(key []byte) error {
	if len(key) != crypto.KeyLength {
		return crypto.ErrInvalidKeyLength
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		crypto.SecureWipe(s.key)
	}
	s.key = append([]byte(nil), key...)
	return nil
}

// ClearKey wipes the data key. Subsequent operations fail with ErrUnavailable.
func (s *SQLite) ClearKey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		crypto.SecureWipe(s.key)
		s.key = nil
	}
}

func (s *SQLite) MaxValueSize() int { return s.limit }

// currentKey returns a copy of the installed key.
func (s *SQLite) currentKey() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, fmt.Errorf("%w: store is locked", ErrUnavailable)
	}
	return append([]byte(nil), s.key...), nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := s.currentKey()
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(k)

	var sealed []byte
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", ErrUnavailable, key, err)
	}

	value, err := crypto.Open(k, sealed)
	if err != nil {
		return nil, fmt.Errorf("kv: failed to open value %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	if err := checkWrite(key, value, s.limit); err != nil {
		return err
	}
	k, err := s.currentKey()
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(k)

	sealed, err := crypto.Seal(k, value)
	if err != nil {
		return fmt.Errorf("kv: failed to seal value %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, sealed, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("%w: write %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.currentKey(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%w: delete %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Close wipes the key and closes the database.
func (s *SQLite) Close() error {
	s.ClearKey()
	return s.db.Close()
}
