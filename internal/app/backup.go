package app

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/asset"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/audit"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/backup"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/category"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/settings"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// RestoreResult summarizes a restore.
type RestoreResult struct {
	Header         *backup.Header
	ItemsRestored  int
	ItemsSkipped   int
	AssetsCreated  int
	AssetsExisting int
	Categories     int
}

// Backup writes an encrypted snapshot of the unlocked vault to w. Pending
// item changes are flushed first.
func (a *App) Backup(ctx context.Context, w io.Writer, opts backup.Options) (*backup.Header, error) {
	a.Touch()
	if a.Gate.Locked() {
		return nil, vault.ErrLocked
	}
	if err := a.Vault.Flush(ctx); err != nil {
		return nil, fmt.Errorf("app: pending changes not saved: %w", err)
	}

	snap, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	header, err := backup.Write(w, snap, opts)
	a.record(audit.OpBackup, "", err, map[string]string{
		"items":  fmt.Sprint(len(snap.Items)),
		"assets": fmt.Sprint(len(snap.Assets)),
	})
	return header, err
}

func (a *App) snapshot(ctx context.Context) (*backup.Snapshot, error) {
	snap := &backup.Snapshot{}
	for _, it := range a.Vault.Items() {
		snap.Items = append(snap.Items, *it)
	}
	for _, c := range a.Categories.List() {
		if !c.IsPreset {
			snap.Categories = append(snap.Categories, c)
		}
	}
	s := a.Settings.Get()
	snap.Settings = &s

	all, err := a.Assets.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, x := range all {
		data, err := a.readAsset(ctx, x.ID)
		if err != nil {
			return nil, err
		}
		snap.Assets = append(snap.Assets, backup.AssetEntry{Asset: *x, Data: data})
	}
	return snap, nil
}

func (a *App) readAsset(ctx context.Context, id string) ([]byte, error) {
	share, err := a.Assets.Share(ctx, id)
	if err != nil {
		return nil, err
	}
	defer share.Close()
	data, err := io.ReadAll(share)
	if err != nil {
		return nil, fmt.Errorf("app: failed to read asset %s: %w", id, err)
	}
	return data, nil
}

// Restore reads a backup and merges it into the unlocked vault. Assets are
// re-ingested, so content already present is reused and item references
// are rewritten to the local asset ids. Existing items with the same id
// are replaced only with overwrite, which also restores the settings.
func (a *App) Restore(ctx context.Context, r io.Reader, opts backup.Options, overwrite bool) (res *RestoreResult, err error) {
	a.Touch()
	if a.Gate.Locked() {
		return nil, vault.ErrLocked
	}
	defer func() { a.record(audit.OpRestore, "", err, nil) }()

	header, snap, err := backup.Read(r, opts)
	if err != nil {
		return nil, err
	}
	res = &RestoreResult{Header: header}

	remap := make(map[string]string, len(snap.Assets))
	for _, e := range snap.Assets {
		got, created, err := a.Assets.Ingest(ctx, asset.Source{
			Reader:     bytes.NewReader(e.Data),
			Type:       e.Asset.Type,
			Filename:   e.Asset.OriginalFilename,
			MimeType:   e.Asset.MimeType,
			Dimensions: dims(e.Asset),
		})
		if err != nil {
			return res, fmt.Errorf("app: failed to restore asset %s: %w", e.Asset.ID, err)
		}
		remap[e.Asset.ID] = got.ID
		if created {
			res.AssetsCreated++
		} else {
			res.AssetsExisting++
		}
	}

	merged := mergeCategories(a.Categories.List(), snap.Categories, overwrite)
	if err := a.Categories.Restore(ctx, merged); err != nil {
		return res, err
	}
	res.Categories = len(snap.Categories)

	items := make([]vault.Item, len(snap.Items))
	for i := range snap.Items {
		it := snap.Items[i]
		refs := make([]vault.AssetRef, 0, len(it.AssetRefs))
		for _, ref := range it.AssetRefs {
			if id, ok := remap[ref.AssetID]; ok {
				ref.AssetID = id
			}
			refs = append(refs, ref)
		}
		it.AssetRefs = refs
		items[i] = it
	}
	res.ItemsRestored, res.ItemsSkipped, err = a.Vault.RestoreItems(items, overwrite)
	if err != nil {
		return res, err
	}

	if overwrite && snap.Settings != nil {
		restored := *snap.Settings
		if _, err := a.Settings.Update(ctx, func(s *settings.AppSettings) { *s = restored }); err != nil {
			return res, err
		}
	}
	return res, a.Vault.Flush(ctx)
}

func dims(x asset.Asset) *asset.Dimensions {
	if x.Width == nil || x.Height == nil {
		return nil
	}
	return &asset.Dimensions{Width: *x.Width, Height: *x.Height}
}

// mergeCategories returns the custom categories after a restore: the
// current ones plus those of the backup, which win on an id clash only with
// overwrite.
func mergeCategories(current, restored []category.Category, overwrite bool) []category.Category {
	out := make([]category.Category, 0, len(current)+len(restored))
	index := make(map[string]int)
	for _, c := range current {
		if c.IsPreset {
			continue
		}
		index[c.ID] = len(out)
		out = append(out, c)
	}
	for _, c := range restored {
		i, exists := index[c.ID]
		switch {
		case !exists:
			index[c.ID] = len(out)
			out = append(out, c)
		case overwrite:
			out[i] = c
		}
	}
	return out
}
