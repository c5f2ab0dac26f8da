package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/asset"
)

// Ingester stores attachment content and returns its asset.
type Ingester interface {
	Ingest(ctx context.Context, src asset.Source) (*asset.Asset, bool, error)
}

// ErrLegacyImageUnreadable is reported for embedded images whose content
// cannot be located.
var ErrLegacyImageUnreadable = errors.New("vault: legacy image content unavailable")

// MigrateLegacyImages moves embedded images into the asset store and
// replaces them with asset references. Images that fail to migrate stay
// embedded and their errors are returned together. It returns the number
// of images migrated.
func (m *Manager) MigrateLegacyImages(ctx context.Context, ing Ingester) (int, error) {
	type job struct {
		itemID string
		img    LegacyImage
	}

	m.mu.RLock()
	if m.state != StateReady {
		m.mu.RUnlock()
		return 0, ErrLocked
	}
	epoch := m.epoch
	var jobs []job
	for _, it := range m.items {
		for _, img := range it.Clone().Images {
			jobs = append(jobs, job{itemID: it.ID, img: img})
		}
	}
	m.mu.RUnlock()

	if len(jobs) == 0 {
		return 0, nil
	}

	// item id -> legacy image key -> asset id
	migrated := make(map[string]map[string]string)
	var errs []error
	for _, j := range jobs {
		data, err := legacyImageBytes(j.img)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %s image %s: %w", j.itemID, j.img.ID, err))
			continue
		}
		src := asset.Source{
			Reader:   bytes.NewReader(data),
			Type:     asset.TypeImage,
			Filename: j.img.Filename,
			MimeType: j.img.MimeType,
		}
		if j.img.Width != nil && j.img.Height != nil {
			src.Dimensions = &asset.Dimensions{Width: *j.img.Width, Height: *j.img.Height}
		}
		a, _, err := ing.Ingest(ctx, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %s image %s: %w", j.itemID, j.img.ID, err))
			continue
		}
		if migrated[j.itemID] == nil {
			migrated[j.itemID] = make(map[string]string)
		}
		migrated[j.itemID][legacyKey(j.img)] = a.ID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		// Ingested assets stay unreferenced and show up in asset gc.
		return 0, ErrLocked
	}

	now := m.now().UTC()
	count := 0
	for itemID, byKey := range migrated {
		it, ok := m.byID[itemID]
		if !ok {
			continue
		}
		var kept []LegacyImage
		for _, img := range it.Images {
			assetID, ok := byKey[legacyKey(img)]
			if !ok {
				kept = append(kept, img)
				continue
			}
			if !it.HasAsset(assetID) {
				it.AssetRefs = append(it.AssetRefs, AssetRef{AssetID: assetID, AddedAt: now})
				m.refs.add(assetID, it.ID)
			}
			count++
		}
		it.Images = kept
		m.touchLocked(it, now)
	}
	if count > 0 {
		m.markDirtyLocked()
		m.logger.Info("migrated legacy images", "count", count)
	}
	return count, errors.Join(errs...)
}

// legacyKey identifies an embedded image within its item. Images without
// ids are told apart by a digest of their whole content.
func legacyKey(img LegacyImage) string {
	sum := sha256.Sum256([]byte(img.Data))
	return img.ID + "\x00" + img.URI + "\x00" + hex.EncodeToString(sum[:])
}

// legacyImageBytes returns the content of an embedded image, either inline
// base64 (optionally as a data URI) or a local file.
func legacyImageBytes(img LegacyImage) ([]byte, error) {
	if img.Data != "" {
		data := img.Data
		if strings.HasPrefix(data, "data:") {
			i := strings.Index(data, ",")
			if i < 0 {
				return nil, fmt.Errorf("%w: malformed data URI", ErrLegacyImageUnreadable)
			}
			data = data[i+1:]
		}
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLegacyImageUnreadable, err)
		}
		return b, nil
	}

	path := img.URI
	if strings.HasPrefix(path, "file://") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLegacyImageUnreadable, err)
		}
		path = filepath.FromSlash(u.Path)
	}
	if path == "" || !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: unsupported uri %q", ErrLegacyImageUnreadable, img.URI)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLegacyImageUnreadable, err)
	}
	return b, nil
}
