package app

import (
	"context"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/audit"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/category"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/settings"
)

// CreateCategory adds a user-defined category.
func (a *App) CreateCategory(ctx context.Context, d category.Draft) (*category.Category, error) {
	a.Touch()
	c, err := a.Categories.Create(ctx, d)
	subject := ""
	if c != nil {
		subject = c.ID
	}
	a.record(audit.OpCategoryChange, subject, err, map[string]string{"action": "create"})
	return c, err
}

// UpdateCategory replaces a user-defined category's definition.
func (a *App) UpdateCategory(ctx context.Context, id string, d category.Draft) (*category.Category, error) {
	a.Touch()
	c, err := a.Categories.Update(ctx, id, d)
	a.record(audit.OpCategoryChange, id, err, map[string]string{"action": "update"})
	return c, err
}

// DeleteCategory removes a user-defined category no item uses.
func (a *App) DeleteCategory(ctx context.Context, id string) error {
	a.Touch()
	err := a.Categories.Delete(ctx, id)
	a.record(audit.OpCategoryChange, id, err, map[string]string{"action": "delete"})
	return err
}

// ResetCategories drops every user-defined category. Items of dropped
// categories become orphaned.
func (a *App) ResetCategories(ctx context.Context) error {
	a.Touch()
	err := a.Categories.ResetToDefaults(ctx)
	a.record(audit.OpCategoryChange, "", err, map[string]string{"action": "reset"})
	return err
}

// UpdateSettings applies fn to the settings and saves them.
func (a *App) UpdateSettings(ctx context.Context, fn func(*settings.AppSettings)) (settings.AppSettings, error) {
	a.Touch()
	return a.Settings.Update(ctx, fn)
}
