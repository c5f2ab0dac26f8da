package asset

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refCounts struct {
	mu  sync.Mutex
	m   map[string]int
	err error
}

func (r *refCounts) ReferenceCount(id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	return r.m[id], nil
}

func (r *refCounts) set(id string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[id] = n
}

type fixture struct {
	store *Store
	blobs *LocalBlobs
	index *Index
	refs  *refCounts
	dir   string
}

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	index, err := OpenIndex(filepath.Join(dir, "assets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	blobs, err := NewLocalBlobs(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	refs := &refCounts{m: map[string]int{}}
	store := NewStore(index, blobs, refs,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithNow(func() time.Time { return fixedNow }),
		WithSpoolDir(dir),
	)
	return &fixture{store: store, blobs: blobs, index: index, refs: refs, dir: dir}
}

func (f *fixture) blobFiles(t *testing.T) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(f.blobs.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(f.blobs.Root(), path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func ingest(t *testing.T, s *Store, typ Type, data []byte) (*Asset, bool) {
	t.Helper()
	a, created, err := s.Ingest(context.Background(), Source{Reader: bytes.NewReader(data), Type: typ, Filename: "scan.bin"})
	require.NoError(t, err)
	return a, created
}

func TestIngest_DeduplicatesIdenticalContent(t *testing.T) {
	f := newFixture(t)
	data := pngBytes(t, 4, 4)

	first, created := ingest(t, f.store, TypeImage, data)
	assert.True(t, created)

	second, created := ingest(t, f.store, TypeImage, data)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, []string{first.BlobName()}, f.blobFiles(t))
	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngest_SameBytesOfDifferentTypeAreSeparateAssets(t *testing.T) {
	f := newFixture(t)
	data := []byte("%PDF-1.4\n1 0 obj\n")

	pdf, _ := ingest(t, f.store, TypePDF, data)
	doc, created := ingest(t, f.store, TypeDocument, data)
	assert.True(t, created)
	assert.NotEqual(t, pdf.ID, doc.ID)
	assert.Equal(t, pdf.ContentHash, doc.ContentHash)
	assert.Len(t, f.blobFiles(t), 2)
}

func TestIngest_RejectsEmptyContentAndUnknownType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.store.Ingest(ctx, Source{Reader: strings.NewReader(""), Type: TypeImage})
	assert.ErrorIs(t, err, ErrEmptyAsset)

	_, _, err = f.store.Ingest(ctx, Source{Reader: strings.NewReader("x"), Type: "video"})
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = ParseType("video")
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestIngest_DescribesContent(t *testing.T) {
	f := newFixture(t)
	data := pngBytes(t, 3, 2)

	a, _ := ingest(t, f.store, TypeImage, data)
	assert.Equal(t, "image/png", a.MimeType)
	require.NotNil(t, a.Width)
	require.NotNil(t, a.Height)
	assert.Equal(t, 3, *a.Width)
	assert.Equal(t, 2, *a.Height)
	assert.Equal(t, int64(len(data)), a.Size)
	assert.Equal(t, "scan.bin", a.OriginalFilename)
	assert.Equal(t, fixedNow, a.CreatedAt)
	assert.True(t, strings.HasPrefix(a.URI, "file://"))
	assert.Len(t, a.ContentHash, 64)
	assert.Equal(t, "image/"+a.ContentHash[:2]+"/"+a.ContentHash, a.BlobName())

	pdf, _ := ingest(t, f.store, TypePDF, []byte("%PDF-1.7 body"))
	assert.Equal(t, "application/pdf", pdf.MimeType)
	assert.Nil(t, pdf.Width)
	assert.Nil(t, pdf.Height)
}

func TestIngest_CallerSuppliedMetadataWins(t *testing.T) {
	f := newFixture(t)

	a, _, err := f.store.Ingest(context.Background(), Source{
		Reader:     bytes.NewReader(pngBytes(t, 3, 2)),
		Type:       TypeImage,
		MimeType:   "image/x-custom",
		Dimensions: &Dimensions{Width: 30, Height: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, "image/x-custom", a.MimeType)
	assert.Equal(t, 30, *a.Width)
	assert.Equal(t, 20, *a.Height)
	assert.Empty(t, a.OriginalFilename)
}

func TestIngestFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.dir, "passport.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 passport"), 0o600))

	a, created, err := f.store.IngestFile(context.Background(), path, TypePDF, "", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "passport.pdf", a.OriginalFilename)
}

func TestDeleteAsset_RefusedWhileReferenced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := ingest(t, f.store, TypeImage, pngBytes(t, 2, 2))
	f.refs.set(a.ID, 2)

	err := f.store.DeleteAsset(ctx, a.ID)
	require.ErrorIs(t, err, ErrAssetInUse)
	var inUse *InUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, 2, inUse.References)

	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Len(t, f.blobFiles(t), 1)

	f.refs.set(a.ID, 0)
	require.NoError(t, f.store.DeleteAsset(ctx, a.ID))
	assert.Empty(t, f.blobFiles(t))

	_, err = f.store.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAssetNotFound)
	assert.ErrorIs(t, f.store.DeleteAsset(ctx, a.ID), ErrAssetNotFound)
}

func TestDeleteAsset_RefusedWhenReferencesUnknown(t *testing.T) {
	f := newFixture(t)
	a, _ := ingest(t, f.store, TypeImage, pngBytes(t, 2, 2))
	errLocked := errors.New("vault is locked")
	f.refs.mu.Lock()
	f.refs.err = errLocked
	f.refs.mu.Unlock()

	err := f.store.DeleteAsset(context.Background(), a.ID)
	assert.ErrorIs(t, err, errLocked)
	assert.Len(t, f.blobFiles(t), 1)

	_, err = f.store.Unreferenced(context.Background())
	assert.ErrorIs(t, err, errLocked)
}

func TestDeleteAsset_ReingestAfterDeleteCreatesNewAsset(t *testing.T) {
	f := newFixture(t)
	data := pngBytes(t, 2, 2)
	a, _ := ingest(t, f.store, TypeImage, data)
	require.NoError(t, f.store.DeleteAsset(context.Background(), a.ID))

	b, created := ingest(t, f.store, TypeImage, data)
	assert.True(t, created)
	assert.NotEqual(t, a.ID, b.ID)
}

// stuckBlobs is a LocalBlobs whose deletes fail.
type stuckBlobs struct {
	*LocalBlobs
	err error
}

func (b *stuckBlobs) Delete(ctx context.Context, name string) error { return b.err }

func TestDeleteAsset_BlobFailureLeavesNoDanglingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	blobs := &stuckBlobs{LocalBlobs: f.blobs, err: errors.New("permission denied")}
	store := NewStore(f.index, blobs, f.refs,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithSpoolDir(f.dir),
	)

	data := pngBytes(t, 2, 2)
	a, _ := ingest(t, store, TypeImage, data)
	require.NoError(t, store.DeleteAsset(ctx, a.ID))

	_, err := store.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAssetNotFound)

	// The next ingest of the same bytes must not return the deleted asset.
	b, created := ingest(t, store, TypeImage, data)
	assert.True(t, created)
	assert.NotEqual(t, a.ID, b.ID)
	share, err := store.Share(ctx, b.ID)
	require.NoError(t, err)
	got, err := io.ReadAll(share)
	require.NoError(t, err)
	require.NoError(t, share.Close())
	assert.Equal(t, data, got)
}

func TestReference_UnknownAssetSkipsCallback(t *testing.T) {
	f := newFixture(t)
	a, _ := ingest(t, f.store, TypeDocument, []byte("known"))

	called := false
	err := f.store.Reference(context.Background(), []string{a.ID, "missing"}, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrAssetNotFound)
	assert.False(t, called)

	errStop := errors.New("item gone")
	err = f.store.Reference(context.Background(), []string{a.ID}, func() error { return errStop })
	assert.ErrorIs(t, err, errStop)
}

func TestReference_DeleteWaitsForRecordedReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := ingest(t, f.store, TypeDocument, []byte("shared scan"))

	deleted := make(chan error, 1)
	err := f.store.Reference(ctx, []string{a.ID}, func() error {
		go func() { deleted <- f.store.DeleteAsset(ctx, a.ID) }()
		select {
		case err := <-deleted:
			t.Errorf("DeleteAsset ran while a reference was being recorded: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
		f.refs.set(a.ID, 1)
		return nil
	})
	require.NoError(t, err)

	select {
	case err := <-deleted:
		assert.ErrorIs(t, err, ErrAssetInUse)
	case <-time.After(time.Second):
		t.Fatal("DeleteAsset did not return")
	}
	_, err = f.store.Get(ctx, a.ID)
	assert.NoError(t, err)
	assert.Len(t, f.blobFiles(t), 1)
}

func TestGetAssetsByIDs_PreservesRequestOrder(t *testing.T) {
	f := newFixture(t)
	a, _ := ingest(t, f.store, TypeDocument, []byte("a"))
	b, _ := ingest(t, f.store, TypeDocument, []byte("b"))

	got, err := f.store.GetAssetsByIDs(context.Background(), []string{b.ID, "missing", a.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)

	got, err = f.store.GetAssetsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestShare(t *testing.T) {
	f := newFixture(t)
	a, _ := ingest(t, f.store, TypeDocument, []byte("insurance policy"))

	sh, err := f.store.Share(context.Background(), a.ID)
	require.NoError(t, err)
	defer sh.Close()

	body, err := io.ReadAll(sh)
	require.NoError(t, err)
	assert.Equal(t, "insurance policy", string(body))
	assert.Equal(t, "scan.bin", sh.Filename)
	assert.Equal(t, a.MimeType, sh.MimeType)
	assert.Equal(t, int64(16), sh.Size)
}

func TestUnreferenced(t *testing.T) {
	f := newFixture(t)
	used, _ := ingest(t, f.store, TypeDocument, []byte("used"))
	orphan, _ := ingest(t, f.store, TypeDocument, []byte("orphan"))
	f.refs.set(used.ID, 1)

	got, err := f.store.Unreferenced(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, orphan.ID, got[0].ID)
}

func TestIndex_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assets.db")
	ctx := context.Background()

	idx, err := OpenIndex(path)
	require.NoError(t, err)
	w, h := 5, 6
	a := &Asset{
		ID: "a1", Type: TypeImage, URI: "file:///x", MimeType: "image/png", Size: 10,
		Width: &w, Height: &h, ContentHash: strings.Repeat("ab", 32), CreatedAt: fixedNow,
	}
	require.NoError(t, idx.Insert(ctx, a))
	dup := *a
	dup.ID = "a2"
	assert.ErrorIs(t, idx.Insert(ctx, &dup), ErrDuplicate)
	require.NoError(t, idx.Close())

	idx, err = OpenIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	v, err := idx.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)

	got, err := idx.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestLocalBlobs_RejectsEscapingNames(t *testing.T) {
	b, err := NewLocalBlobs(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, b.Put(ctx, "../escape", strings.NewReader("x"), 1, ""))
	_, err = b.Open(ctx, "image/ab/missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.NoError(t, b.Delete(ctx, "image/ab/missing"))
}

func TestLocalBlobs_SizeMismatchDiscardsFile(t *testing.T) {
	b, err := NewLocalBlobs(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.Error(t, b.Put(ctx, "document/aa/short", strings.NewReader("abc"), 10, ""))
	_, err = b.Open(ctx, "document/aa/short")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestIngest_RefusesWhenDiskIsFull(t *testing.T) {
	f := newFixture(t)
	f.store = NewStore(f.index, f.blobs, f.refs,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithDiskCheck(f.dir, ^uint64(0)>>1),
	)

	_, _, err := f.store.Ingest(context.Background(), Source{Reader: strings.NewReader("x"), Type: TypeDocument})
	assert.ErrorIs(t, err, ErrInsufficientDisk)
	assert.Empty(t, f.blobFiles(t))
}
