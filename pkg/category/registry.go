package category

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/docstore"
)

// DocumentPrefix is the key prefix of the category document.
const DocumentPrefix = "categories.data"

// Usage counts vault items per category. It fails when the count is
// unknown, e.g. while the vault is locked.
type Usage interface {
	CountByType(categoryID string) (int, error)
}

// Resolved is the schema to use for an item type. Orphaned is set when the
// type names no known category; the Other preset stands in for display.
type Resolved struct {
	Category
	Orphaned bool
}

// Registry holds the presets and the user's categories.
type Registry struct {
	store  *docstore.Store[[]Category]
	usage  Usage
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu   sync.RWMutex
	list []*Category
	byID map[string]*Category
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides id allocation for custom categories.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// NewRegistry returns a registry holding only the presets until Load.
func NewRegistry(store *docstore.Store[[]Category], usage Usage, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		usage:  usage,
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.set(nil)
	return r
}

// Defaults produces the category document of a new vault.
func Defaults() []Category { return Presets() }

// Load reads the stored categories. On failure the registry falls back to
// the presets and the error is returned.
func (r *Registry) Load(ctx context.Context) error {
	stored, err := r.store.Load(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.set(nil)
		return err
	}
	r.set(stored)
	return nil
}

// set installs the presets followed by the custom categories of stored.
// Stored copies of presets are replaced by the current definitions.
func (r *Registry) set(stored []Category) {
	r.list = nil
	r.byID = make(map[string]*Category, len(PresetIDs)+len(stored))
	for _, p := range Presets() {
		p := p
		r.list = append(r.list, &p)
		r.byID[p.ID] = &p
	}
	for i := range stored {
		c := stored[i].Clone()
		if c.ID == "" || IsPreset(c.ID) {
			continue
		}
		if _, dup := r.byID[c.ID]; dup {
			r.logger.Warn("skipping duplicate category", "category_id", c.ID)
			continue
		}
		c.IsPreset = false
		r.list = append(r.list, c)
		r.byID[c.ID] = c
	}
}

func (r *Registry) snapshotLocked() []Category {
	out := make([]Category, len(r.list))
	for i, c := range r.list {
		out[i] = *c.Clone()
	}
	return out
}

// List returns all categories, presets first.
func (r *Registry) List() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Get returns the category with id.
func (r *Registry) Get(id string) (*Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
	}
	return c.Clone(), nil
}

// Known reports whether id names a category.
func (r *Registry) Known(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// Resolve returns the schema for an item type. Unknown types resolve to the
// Other preset, flagged as orphaned; the item itself keeps its type.
func (r *Registry) Resolve(id string) Resolved {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.byID[id]; ok {
		return Resolved{Category: *c.Clone()}
	}
	return Resolved{Category: *r.byID[Other].Clone(), Orphaned: true}
}

// Fields returns the field definitions for an item type.
func (r *Registry) Fields(id string) []FieldDefinition {
	return r.Resolve(id).Fields
}

// Validate checks item fields against the schema of itemType. Orphaned
// types are not validated.
func (r *Registry) Validate(itemType string, fields map[string]string) error {
	res := r.Resolve(itemType)
	if res.Orphaned {
		return nil
	}
	return res.ValidateFields(fields)
}

// Create adds a custom category and persists the registry.
func (r *Registry) Create(ctx context.Context, d Draft) (*Category, error) {
	if err := ValidateDraft(d); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	label := strings.TrimSpace(d.Label)
	for _, c := range r.list {
		if strings.EqualFold(c.Label, label) {
			return nil, fmt.Errorf("%w: %q", ErrCategoryExists, label)
		}
	}

	now := r.now().UTC()
	c := &Category{
		ID:        r.newID(),
		Label:     label,
		Icon:      d.Icon,
		Color:     d.Color,
		Fields:    cloneFields(d.Fields),
		CreatedAt: now,
		UpdatedAt: now,
	}
	next := append(r.snapshotLocked(), *c)
	if err := r.store.Save(ctx, next); err != nil {
		return nil, err
	}
	r.list = append(r.list, c)
	r.byID[c.ID] = c
	r.logger.Info("category created", "category_id", c.ID)
	return c.Clone(), nil
}

// Update replaces the definition of a custom category.
func (r *Registry) Update(ctx context.Context, id string, d Draft) (*Category, error) {
	if IsPreset(id) {
		return nil, ErrPresetImmutable
	}
	if err := ValidateDraft(d); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
	}
	label := strings.TrimSpace(d.Label)
	for _, c := range r.list {
		if c.ID != id && strings.EqualFold(c.Label, label) {
			return nil, fmt.Errorf("%w: %q", ErrCategoryExists, label)
		}
	}

	updated := cur.Clone()
	updated.Label = label
	updated.Icon = d.Icon
	updated.Color = d.Color
	updated.Fields = cloneFields(d.Fields)
	updated.UpdatedAt = r.now().UTC()
	if updated.UpdatedAt.Before(updated.CreatedAt) {
		updated.UpdatedAt = updated.CreatedAt
	}

	next := r.snapshotLocked()
	for i := range next {
		if next[i].ID == id {
			next[i] = *updated
		}
	}
	if err := r.store.Save(ctx, next); err != nil {
		return nil, err
	}
	*cur = *updated
	return updated.Clone(), nil
}

// Delete removes a custom category no item uses.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if IsPreset(id) {
		return ErrPresetImmutable
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
	}
	n, err := r.usage.CountByType(id)
	if err != nil {
		return fmt.Errorf("category: count items of %s: %w", id, err)
	}
	if n > 0 {
		return &InUseError{CategoryID: id, Items: n}
	}

	next := make([]Category, 0, len(r.list)-1)
	for _, c := range r.list {
		if c.ID != id {
			next = append(next, *c.Clone())
		}
	}
	if err := r.store.Save(ctx, next); err != nil {
		return err
	}
	r.set(next)
	r.logger.Info("category deleted", "category_id", id)
	return nil
}

// ResetToDefaults drops every custom category. Items of removed categories
// become orphans and keep their data.
func (r *Registry) ResetToDefaults(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Save(ctx, Presets()); err != nil {
		return err
	}
	r.set(nil)
	return nil
}

// Restore replaces the custom categories with those of cats, e.g. from a
// backup. Presets in cats are ignored.
func (r *Registry) Restore(ctx context.Context, cats []Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.snapshotLocked()
	r.set(cats)
	if err := r.store.Save(ctx, r.snapshotLocked()); err != nil {
		r.set(prev)
		return err
	}
	return nil
}

func cloneFields(in []FieldDefinition) []FieldDefinition {
	c := Category{Fields: in}
	return c.Clone().Fields
}
