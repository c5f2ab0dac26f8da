package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// migrations are applied in order; the index of an entry plus one is the
// schema version it produces.
var migrations = []string{
	`CREATE TABLE assets (
		id                TEXT PRIMARY KEY,
		type              TEXT NOT NULL,
		uri               TEXT NOT NULL,
		original_filename TEXT NOT NULL DEFAULT '',
		mime_type         TEXT NOT NULL,
		size              INTEGER NOT NULL CHECK (size > 0),
		width             INTEGER,
		height            INTEGER,
		content_hash      TEXT NOT NULL,
		created_at        INTEGER NOT NULL,
		UNIQUE (content_hash, type)
	);
	CREATE INDEX idx_assets_created_at ON assets(created_at DESC);`,
}

// Index is the SQLite metadata table of all assets.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating and migrating if needed) the index at path.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), blobDirMode); err != nil {
		return nil, fmt.Errorf("asset: failed to create index directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("asset: failed to open index: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000; PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("asset: failed to configure index: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := os.Chmod(path, blobFileMode); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("asset: failed to set index permissions: %w", err)
	}
	return idx, nil
}

func (x *Index) Close() error { return x.db.Close() }

// SchemaVersion returns the applied migration count.
func (x *Index) SchemaVersion() (int, error) {
	var v int
	err := x.db.QueryRow(`SELECT version FROM schema_version`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (x *Index) migrate() error {
	if _, err := x.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("asset: failed to create schema table: %w", err)
	}
	current, err := x.SchemaVersion()
	if err != nil {
		return fmt.Errorf("asset: failed to read schema version: %w", err)
	}

	for v := current; v < len(migrations); v++ {
		tx, err := x.db.Begin()
		if err != nil {
			return fmt.Errorf("asset: failed to begin migration: %w", err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("asset: migration %d failed: %w", v+1, err)
		}
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("asset: migration %d failed: %w", v+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES(?)`, v+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("asset: migration %d failed: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("asset: migration %d failed: %w", v+1, err)
		}
	}
	return nil
}

const assetColumns = `id, type, uri, original_filename, mime_type, size, width, height, content_hash, created_at`

// Insert adds a. A second row with the same (content hash, type) yields
// ErrDuplicate.
func (x *Index) Insert(ctx context.Context, a *Asset) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO assets(`+assetColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), a.URI, a.OriginalFilename, a.MimeType, a.Size,
		nullInt(a.Width), nullInt(a.Height), a.ContentHash, a.CreatedAt.UnixMilli())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s %s", ErrDuplicate, a.Type, a.ContentHash)
	}
	if err != nil {
		return fmt.Errorf("asset: failed to index asset: %w", err)
	}
	return nil
}

// Get returns the asset with id or ErrAssetNotFound.
func (x *Index) Get(ctx context.Context, id string) (*Asset, error) {
	row := x.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	return a, err
}

// FindByHash returns the asset of kind t with the given content hash, or
// nil when there is none.
func (x *Index) FindByHash(ctx context.Context, hash string, t Type) (*Asset, error) {
	row := x.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE content_hash = ? AND type = ?`, hash, string(t))
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// GetMany returns the assets with the given ids in the order requested.
// Unknown ids are skipped.
func (x *Index) GetMany(ctx context.Context, ids []string) ([]*Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`
	found, err := x.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Asset, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	out := make([]*Asset, 0, len(found))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
			delete(byID, id)
		}
	}
	return out, nil
}

// List returns every asset, newest first.
func (x *Index) List(ctx context.Context) ([]*Asset, error) {
	return x.query(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY created_at DESC, id`)
}

// Count returns the number of indexed assets.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("asset: failed to count assets: %w", err)
	}
	return n, nil
}

// Delete removes the row for id. Deleting an unknown id succeeds.
func (x *Index) Delete(ctx context.Context, id string) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("asset: failed to delete asset %s: %w", id, err)
	}
	return nil
}

func (x *Index) query(ctx context.Context, query string, args ...any) ([]*Asset, error) {
	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("asset: failed to query index: %w", err)
	}
	defer rows.Close()

	var out []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("asset: failed to read index: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(s scanner) (*Asset, error) {
	var (
		a             Asset
		typ           string
		width, height sql.NullInt64
		created       int64
	)
	err := s.Scan(&a.ID, &typ, &a.URI, &a.OriginalFilename, &a.MimeType, &a.Size,
		&width, &height, &a.ContentHash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("asset: failed to scan asset: %w", err)
	}
	a.Type = Type(typ)
	a.CreatedAt = time.UnixMilli(created).UTC()
	if width.Valid && height.Valid {
		w, h := int(width.Int64), int(height.Int64)
		a.Width, a.Height = &w, &h
	}
	return &a, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			serr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
