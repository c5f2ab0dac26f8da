package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/asset"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/audit"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// AddAsset ingests the file at path.
func (a *App) AddAsset(ctx context.Context, path string, t asset.Type, mimeType string) (*asset.Asset, bool, error) {
	a.Touch()
	if a.Gate.Locked() {
		return nil, false, vault.ErrLocked
	}
	got, created, err := a.Assets.IngestFile(ctx, path, t, mimeType, nil)
	subject := ""
	if got != nil {
		subject = got.ID
	}
	a.record(audit.OpAssetIngest, subject, err, map[string]string{
		"type":    string(t),
		"created": fmt.Sprint(created),
	})
	return got, created, err
}

// AttachFile ingests path and attaches the resulting asset to an item.
func (a *App) AttachFile(ctx context.Context, itemID, path string, t asset.Type) (*vault.Item, *asset.Asset, error) {
	if a.Vault.GetItem(itemID) == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	got, _, err := a.AddAsset(ctx, path, t, "")
	if err != nil {
		return nil, nil, err
	}
	var it *vault.Item
	err = a.Assets.Reference(ctx, []string{got.ID}, func() error {
		if it = a.Vault.AttachAsset(itemID, got.ID); it == nil {
			return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		}
		return nil
	})
	if err != nil {
		return nil, got, err
	}
	a.record(audit.OpItemUpdate, itemID, nil, map[string]string{"attach": got.ID})
	return it, got, nil
}

// DetachAsset removes an item's reference to an asset.
func (a *App) DetachAsset(itemID, assetID string) (*vault.Item, error) {
	a.Touch()
	it := a.Vault.DetachAsset(itemID, assetID)
	if it == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	a.record(audit.OpItemUpdate, itemID, nil, map[string]string{"detach": assetID})
	return it, nil
}

// DeleteAsset deletes an asset no item references.
func (a *App) DeleteAsset(ctx context.Context, id string) error {
	a.Touch()
	err := a.Assets.DeleteAsset(ctx, id)
	if errors.Is(err, asset.ErrAssetInUse) {
		_ = a.Audit.Denied(audit.OpAssetDelete, a.source, id, err.Error())
		return err
	}
	a.record(audit.OpAssetDelete, id, err, nil)
	return err
}

// ExportAsset copies an asset's content to w and returns its suggested
// file name.
func (a *App) ExportAsset(ctx context.Context, id string, w io.Writer) (string, error) {
	a.Touch()
	if a.Gate.Locked() {
		return "", vault.ErrLocked
	}
	share, err := a.Assets.Share(ctx, id)
	if err != nil {
		return "", err
	}
	defer share.Close()
	_, err = io.Copy(w, share)
	a.record(audit.OpAssetShare, id, err, nil)
	if err != nil {
		return "", fmt.Errorf("app: failed to export asset %s: %w", id, err)
	}
	return share.Filename, nil
}

// CollectGarbage deletes every asset no item references and returns their
// ids. With dryRun nothing is deleted.
func (a *App) CollectGarbage(ctx context.Context, dryRun bool) ([]string, error) {
	a.Touch()
	unused, err := a.Assets.Unreferenced(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(unused))
	var errs []error
	for _, x := range unused {
		if !dryRun {
			if err := a.DeleteAsset(ctx, x.ID); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		ids = append(ids, x.ID)
	}
	return ids, errors.Join(errs...)
}

// MigrateLegacyImages moves images embedded in items into the asset store.
func (a *App) MigrateLegacyImages(ctx context.Context) (int, error) {
	n, err := a.Vault.MigrateLegacyImages(ctx, a.Assets)
	if n > 0 {
		a.logger.Info("migrated legacy images", "count", n)
	}
	return n, err
}
