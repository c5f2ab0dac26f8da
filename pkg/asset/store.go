package asset

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	// Registered for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/disk"
)

// sniffLen is how many leading bytes content sniffing looks at.
const sniffLen = 512

// Store ingests, deduplicates, lists and deletes assets.
type Store struct {
	index *Index
	blobs Blobs
	refs  References

	logger   *slog.Logger
	now      func() time.Time
	spoolDir string
	diskPath string
	minFree  uint64

	// mu makes the dedup lookup and the insert of one ingest atomic, and
	// orders reference checks in DeleteAsset against Reference.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSpoolDir sets where incoming content is buffered while hashing.
func WithSpoolDir(dir string) Option {
	return func(s *Store) { s.spoolDir = dir }
}

// WithDiskCheck refuses ingests that would leave less than minFree bytes on
// the file system holding path.
func WithDiskCheck(path string, minFree uint64) Option {
	return func(s *Store) {
		s.diskPath = path
		s.minFree = minFree
	}
}

// NewStore returns a Store. refs is consulted before every deletion.
func NewStore(index *Index, blobs Blobs, refs References, opts ...Option) *Store {
	s := &Store{
		index:  index,
		blobs:  blobs,
		refs:   refs,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest stores the content of src. When an asset with the same content
// hash and type already exists it is returned with created == false and
// nothing is written.
func (s *Store) Ingest(ctx context.Context, src Source) (a *Asset, created bool, err error) {
	if !src.Type.Valid() {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidType, src.Type)
	}
	if src.Reader == nil {
		return nil, false, ErrEmptyAsset
	}

	spool, err := os.CreateTemp(s.spoolDir, "idlocker-ingest-*")
	if err != nil {
		return nil, false, fmt.Errorf("asset: failed to create spool file: %w", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	hasher := sha256.New()
	head := &headBuffer{limit: sniffLen}
	size, err := io.Copy(io.MultiWriter(spool, hasher, head), src.Reader)
	if err != nil {
		return nil, false, fmt.Errorf("asset: failed to read content: %w", err)
	}
	if size == 0 {
		return nil, false, ErrEmptyAsset
	}
	hash := hex.EncodeToString(hasher.Sum(nil))

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.index.FindByHash(ctx, hash, src.Type)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		s.logger.Debug("asset deduplicated", "asset_id", existing.ID, "type", src.Type)
		return existing, false, nil
	}

	if s.diskPath != "" {
		if err := disk.Check(s.diskPath, size, s.minFree); err != nil {
			if errors.Is(err, ErrInsufficientDisk) {
				return nil, false, err
			}
			s.logger.Warn("failed to check disk space", "error", err)
		}
	}

	var filename string
	if src.Filename != "" {
		filename = filepath.Base(src.Filename)
	}
	a = &Asset{
		ID:               uuid.NewString(),
		Type:             src.Type,
		OriginalFilename: filename,
		MimeType:         detectMime(src, head.Bytes()),
		Size:             size,
		ContentHash:      hash,
		CreatedAt:        s.now().UTC().Truncate(time.Millisecond),
	}
	if src.Type == TypeImage {
		dims := src.Dimensions
		if dims == nil {
			dims = decodeDimensions(spool)
		}
		if dims != nil {
			w, h := dims.Width, dims.Height
			a.Width, a.Height = &w, &h
		}
	}

	name := a.BlobName()
	a.URI = s.blobs.URI(name)
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, false, fmt.Errorf("asset: failed to rewind spool file: %w", err)
	}
	if err := s.blobs.Put(ctx, name, spool, size, a.MimeType); err != nil {
		return nil, false, err
	}

	if err := s.index.Insert(ctx, a); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Indexed by another process meanwhile; the blob is the same bytes.
			existing, ferr := s.index.FindByHash(ctx, hash, src.Type)
			if ferr == nil && existing != nil {
				return existing, false, nil
			}
		}
		if derr := s.blobs.Delete(ctx, name); derr != nil {
			s.logger.Warn("failed to remove unindexed blob", "name", name, "error", derr)
		}
		return nil, false, err
	}

	s.logger.Info("asset ingested", "asset_id", a.ID, "type", a.Type, "size", a.Size)
	return a, true, nil
}

// IngestFile ingests the file at path. An empty mimeType is detected.
func (s *Store) IngestFile(ctx context.Context, path string, t Type, mimeType string, dims *Dimensions) (*Asset, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("asset: failed to open %s: %w", path, err)
	}
	defer f.Close()

	return s.Ingest(ctx, Source{
		Reader:     f,
		Type:       t,
		Filename:   filepath.Base(path),
		MimeType:   mimeType,
		Dimensions: dims,
	})
}

// Get returns the asset with id or ErrAssetNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Asset, error) {
	return s.index.Get(ctx, id)
}

// GetAssetsByIDs returns the known assets among ids, in the order given.
func (s *Store) GetAssetsByIDs(ctx context.Context, ids []string) ([]*Asset, error) {
	return s.index.GetMany(ctx, ids)
}

// List returns every asset, newest first.
func (s *Store) List(ctx context.Context) ([]*Asset, error) {
	return s.index.List(ctx)
}

// Count returns the number of stored assets.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.index.Count(ctx)
}

// DeleteAsset removes an asset and its bytes. It refuses with an
// *InUseError while any vault item references the asset.
func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.index.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.refs == nil {
		return ErrNoReferenceTracker
	}
	n, err := s.refs.ReferenceCount(id)
	if err != nil {
		return fmt.Errorf("asset: count references of %s: %w", id, err)
	}
	if n > 0 {
		return &InUseError{AssetID: id, References: n}
	}

	// The row goes first: a row without bytes would be handed out by
	// dedup, bytes without a row are only wasted space.
	if err := s.index.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, a.BlobName()); err != nil {
		s.logger.Warn("failed to remove blob of deleted asset", "asset_id", id, "name", a.BlobName(), "error", err)
	}
	s.logger.Info("asset deleted", "asset_id", id)
	return nil
}

// Reference runs fn, which records item references to ids, after checking
// that every id is a stored asset. DeleteAsset cannot run in between, so a
// reference is never recorded to an asset that is being removed. It fails
// with ErrAssetNotFound without calling fn when an id is unknown.
func (s *Store) Reference(ctx context.Context, ids []string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, err := s.index.Get(ctx, id); err != nil {
			return err
		}
	}
	return fn()
}

// Share opens the asset's content for reading.
func (s *Store) Share(ctx context.Context, id string) (*Share, error) {
	a, err := s.index.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rc, err := s.blobs.Open(ctx, a.BlobName())
	if err != nil {
		return nil, err
	}
	return &Share{
		ReadCloser: rc,
		Filename:   shareName(a),
		MimeType:   a.MimeType,
		Size:       a.Size,
	}, nil
}

// Unreferenced returns the assets no vault item points at.
func (s *Store) Unreferenced(ctx context.Context) ([]*Asset, error) {
	if s.refs == nil {
		return nil, ErrNoReferenceTracker
	}
	all, err := s.index.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Asset
	for _, a := range all {
		n, err := s.refs.ReferenceCount(a.ID)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			out = append(out, a)
		}
	}
	return out, nil
}

func detectMime(src Source, head []byte) string {
	if src.MimeType != "" {
		return src.MimeType
	}
	sniffed := http.DetectContentType(head)
	if sniffed == "application/octet-stream" && src.Filename != "" {
		if byExt := mime.TypeByExtension(filepath.Ext(src.Filename)); byExt != "" {
			return byExt
		}
	}
	return sniffed
}

func decodeDimensions(r io.ReadSeeker) *Dimensions {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil
	}
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return nil
	}
	return &Dimensions{Width: cfg.Width, Height: cfg.Height}
}

func shareName(a *Asset) string {
	if a.OriginalFilename != "" {
		return a.OriginalFilename
	}
	name := a.ID
	if exts, _ := mime.ExtensionsByType(a.MimeType); len(exts) > 0 {
		name += exts[0]
	}
	return name
}

// headBuffer keeps the first limit bytes written to it.
type headBuffer struct {
	bytes.Buffer
	limit int
}

func (h *headBuffer) Write(p []byte) (int, error) {
	if room := h.limit - h.Len(); room > 0 {
		h.Buffer.Write(p[:min(room, len(p))])
	}
	return len(p), nil
}
