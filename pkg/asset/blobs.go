package asset

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// Blobs is a file-system-like store for asset bytes.
type Blobs interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	// Open returns ErrBlobNotFound when name is absent.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Delete of an absent name succeeds.
	Delete(ctx context.Context, name string) error
	URI(name string) string
}

// File permissions for stored blobs.
const (
	blobFileMode = 0o600
	blobDirMode  = 0o700
)

// LocalBlobs keeps blobs as files below a root directory.
type LocalBlobs struct {
	root string
}

// NewLocalBlobs creates root if needed and returns a store over it.
func NewLocalBlobs(root string) (*LocalBlobs, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("asset: invalid blob directory: %w", err)
	}
	if err := os.MkdirAll(abs, blobDirMode); err != nil {
		return nil, fmt.Errorf("asset: failed to create blob directory: %w", err)
	}
	return &LocalBlobs{root: abs}, nil
}

// Root returns the blob directory.
func (b *LocalBlobs) Root() string { return b.root }

func (b *LocalBlobs) path(name string) (string, error) {
	clean := path.Clean(name)
	if name == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("asset: invalid blob name %q", name)
	}
	return filepath.Join(b.root, filepath.FromSlash(clean)), nil
}

// Put writes r to name atomically. A size mismatch discards the file.
func (b *LocalBlobs) Put(ctx context.Context, name string, r io.Reader, size int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), blobDirMode); err != nil {
		return fmt.Errorf("asset: failed to create blob directory: %w", err)
	}

	counter := &countingReader{r: r}
	if err := atomic.WriteFile(p, counter); err != nil {
		return fmt.Errorf("asset: failed to write blob %s: %w", name, err)
	}
	// atomic.WriteFile does not set permissions on new files.
	if err := os.Chmod(p, blobFileMode); err != nil {
		return fmt.Errorf("asset: failed to set blob permissions: %w", err)
	}
	if size >= 0 && counter.n != size {
		_ = os.Remove(p)
		return fmt.Errorf("asset: blob %s: wrote %d bytes, expected %d", name, counter.n, size)
	}
	return nil
}

func (b *LocalBlobs) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := b.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("asset: failed to open blob %s: %w", name, err)
	}
	return f, nil
}

func (b *LocalBlobs) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("asset: failed to delete blob %s: %w", name, err)
	}
	return nil
}

func (b *LocalBlobs) URI(name string) string {
	p, err := b.path(name)
	if err != nil {
		return ""
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
