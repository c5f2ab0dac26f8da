package app

import (
	"context"
	"fmt"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/audit"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/vault"
)

// AddItem validates d against its category and adds it to the vault.
func (a *App) AddItem(d vault.Draft) (*vault.Item, error) {
	a.Touch()
	if !a.Categories.Known(d.Type) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, d.Type)
	}
	if err := a.Categories.Validate(d.Type, d.Fields); err != nil {
		return nil, err
	}
	it, err := a.Vault.AddItem(d)
	subject := ""
	if it != nil {
		subject = it.ID
	}
	a.record(audit.OpItemAdd, subject, err, map[string]string{"type": d.Type})
	return it, err
}

// UpdateItem applies p. Changed fields are validated against the item's
// category, or the new one when p changes the type. Asset references the
// item does not hold yet must name stored assets.
func (a *App) UpdateItem(ctx context.Context, id string, p vault.Patch) (*vault.Item, error) {
	a.Touch()
	cur := a.Vault.GetItem(id)
	if cur == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	itemType, fields := cur.Type, cur.Fields
	if p.Type != nil && *p.Type != "" {
		if !a.Categories.Known(*p.Type) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, *p.Type)
		}
		itemType = *p.Type
	}
	if p.Fields != nil {
		if err := vault.ValidateFields(*p.Fields); err != nil {
			return nil, err
		}
		fields = *p.Fields
	}
	if p.Type != nil || p.Fields != nil {
		if err := a.Categories.Validate(itemType, fields); err != nil {
			return nil, err
		}
	}

	var added []string
	if p.AssetRefs != nil {
		for _, r := range *p.AssetRefs {
			if r.AssetID != "" && !cur.HasAsset(r.AssetID) {
				added = append(added, r.AssetID)
			}
		}
	}

	var it *vault.Item
	apply := func() error {
		if it = a.Vault.UpdateItem(id, p); it == nil {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		return nil
	}
	var err error
	if len(added) > 0 {
		err = a.Assets.Reference(ctx, added, apply)
	} else {
		err = apply()
	}
	a.record(audit.OpItemUpdate, id, err, nil)
	return it, err
}

// DeleteItem removes an item. Its assets stay until collected.
func (a *App) DeleteItem(id string) error {
	a.Touch()
	var err error
	if !a.Vault.DeleteItem(id) {
		err = fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	a.record(audit.OpItemDelete, id, err, nil)
	return err
}

// GetItem returns an item, recording the read.
func (a *App) GetItem(id string) (*vault.Item, error) {
	a.Touch()
	it := a.Vault.GetItem(id)
	if it == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	a.record(audit.OpItemRead, id, nil, nil)
	return it, nil
}

// SearchItems runs a vault search.
func (a *App) SearchItems(query string) []*vault.Item {
	a.Touch()
	return a.Vault.SearchItems(query)
}
