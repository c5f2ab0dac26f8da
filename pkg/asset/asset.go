// Package asset stores binary attachments (photos, scans, documents) by
// content. Identical bytes of the same kind are stored once; every asset is
// described by a metadata row in an SQLite index and its bytes live in a
// Blobs backend under a content-addressed name.
package asset

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/disk"
)

// Type is the kind of an asset.
type Type string

const (
	TypeImage    Type = "image"
	TypePDF      Type = "pdf"
	TypeDocument Type = "document"
)

// Types lists every valid asset type.
var Types = []Type{TypeImage, TypePDF, TypeDocument}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeImage, TypePDF, TypeDocument:
		return true
	}
	return false
}

// ParseType converts s into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

// Errors
var (
	ErrAssetNotFound      = errors.New("asset: asset not found")
	ErrAssetInUse         = errors.New("asset: asset is referenced by vault items")
	ErrEmptyAsset         = errors.New("asset: asset has no content")
	ErrInvalidType        = errors.New("asset: invalid asset type")
	ErrBlobNotFound       = errors.New("asset: blob not found")
	ErrInsufficientDisk   = disk.ErrInsufficient
	ErrDuplicate          = errors.New("asset: asset with this content already indexed")
	ErrNoReferenceTracker = errors.New("asset: no reference tracker configured")
)

// InUseError is returned when deleting an asset that vault items still
// reference. The message tells the user how to proceed.
type InUseError struct {
	AssetID    string
	References int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("asset: %s is attached to %d item(s); detach it from those items before deleting", e.AssetID, e.References)
}

func (e *InUseError) Is(target error) bool { return target == ErrAssetInUse }

// Dimensions are the pixel size of an image.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Asset describes one stored binary.
type Asset struct {
	ID               string    `json:"id"`
	Type             Type      `json:"type"`
	URI              string    `json:"uri"`
	OriginalFilename string    `json:"originalFilename,omitempty"`
	MimeType         string    `json:"mimeType"`
	Size             int64     `json:"size"`
	Width            *int      `json:"width,omitempty"`
	Height           *int      `json:"height,omitempty"`
	ContentHash      string    `json:"contentHash"`
	CreatedAt        time.Time `json:"createdAt"`
}

// BlobName returns the name of the asset's bytes in a Blobs backend.
func (a *Asset) BlobName() string { return BlobName(a.Type, a.ContentHash) }

// BlobName is the content-addressed name for bytes with hash of kind t.
func BlobName(t Type, hash string) string {
	if len(hash) < 2 {
		return string(t) + "/" + hash
	}
	return string(t) + "/" + hash[:2] + "/" + hash
}

// Source is the input of Store.Ingest.
type Source struct {
	Reader     io.Reader
	Type       Type
	Filename   string
	MimeType   string
	Dimensions *Dimensions
}

// Share is a read-only view of an asset's content for handing to other
// applications. The caller must Close it.
type Share struct {
	io.ReadCloser
	Filename string
	MimeType string
	Size     int64
}

// References reports how many vault items point at an asset. It fails
// when the count is unknown, e.g. while the vault is locked.
type References interface {
	ReferenceCount(assetID string) (int, error)
}
