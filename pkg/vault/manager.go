// Package vault keeps the in-memory source of truth for vault items.
//
// Mutations apply to memory immediately and return; a single background
// flusher persists the then-current item set. A failed save never rolls
// back an edit. While the vault is locked no item data stays resident.
package vault

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults
const (
	DefaultRetryDelay   = 2 * time.Second
	DefaultFlushTimeout = 30 * time.Second

	maxRefreshAttempts = 3
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateLocked State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ItemStore persists the full item set as one document.
type ItemStore interface {
	Load(ctx context.Context) ([]Item, error)
	Save(ctx context.Context, items []Item) error
}

// Manager owns the vault items while the vault is unlocked.
type Manager struct {
	store        ItemStore
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
	retryDelay   time.Duration
	flushTimeout time.Duration

	mu      sync.RWMutex
	state   State
	items   []*Item
	byID    map[string]*Item
	refs    refIndex
	loadErr error

	// epoch changes on every lock; flush results from an older epoch are
	// discarded. gen counts mutations, saved is the last gen persisted.
	epoch    uint64
	gen      uint64
	saved    uint64
	flushErr error
	flushed  chan struct{} // closed and replaced after every flush attempt

	// lockSnapshot holds unsaved items taken at lock time until written.
	lockSnapshot []Item

	// flushMu keeps a single save or load in flight at a time.
	flushMu sync.Mutex

	wake      chan struct{}
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger that receives persistence diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides item id allocation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// WithRetryDelay sets the pause before retrying a failed background save.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// WithFlushTimeout bounds each background save.
func WithFlushTimeout(d time.Duration) Option {
	return func(m *Manager) { m.flushTimeout = d }
}

// NewManager returns a locked Manager and starts its flusher.
func NewManager(store ItemStore, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		logger:       slog.Default(),
		now:          time.Now,
		newID:        uuid.NewString,
		retryDelay:   DefaultRetryDelay,
		flushTimeout: DefaultFlushTimeout,
		state:        StateLocked,
		refs:         refIndex{},
		byID:         map[string]*Item{},
		flushed:      make(chan struct{}),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.run()
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Err returns the error of the last load, if any. The vault is usable
// (empty) when it is set.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadErr
}

// FlushErr returns the error of the last background save, if any.
func (m *Manager) FlushErr() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flushErr
}

// Dirty reports whether in-memory changes are not yet persisted.
func (m *Manager) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen != m.saved
}

// Unlock moves a locked vault to Loading and loads the items.
func (m *Manager) Unlock(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state == StateReady {
		m.mu.Unlock()
		return nil
	}
	m.state = StateLoading
	m.mu.Unlock()

	return m.Refresh(ctx)
}

// Refresh reloads the items from the store. Unsaved changes are persisted
// first; if that fails the in-memory state is kept and the error returned.
// A load failure leaves the vault Ready and empty with Err set. Mutations
// made while the load is in flight are never overwritten: they are saved
// and the load is repeated, up to maxRefreshAttempts times, after which
// the in-memory items are kept as they are.
func (m *Manager) Refresh(ctx context.Context) error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	m.saveLockSnapshot()

	for attempt := 1; ; attempt++ {
		m.mu.RLock()
		state, epoch, pending := m.state, m.epoch, m.gen != m.saved
		m.mu.RUnlock()
		if state == StateLocked {
			return ErrLocked
		}
		if state == StateReady && pending {
			if err := m.flushLocked(ctx); err != nil {
				return err
			}
		}

		m.mu.RLock()
		gen := m.gen
		m.mu.RUnlock()

		items, err := m.store.Load(ctx)

		m.mu.Lock()
		if m.epoch != epoch || m.state == StateLocked {
			// Locked while loading; the result must not become resident.
			m.mu.Unlock()
			return ErrLocked
		}
		if m.state == StateReady && m.gen != gen {
			m.mu.Unlock()
			if attempt < maxRefreshAttempts {
				continue
			}
			m.logger.Warn("vault items changed during refresh; keeping in-memory items")
			return nil
		}
		m.setItems(items)
		m.loadErr = err
		m.state = StateReady
		m.epoch++
		m.gen, m.saved = 0, 0
		m.signalFlushedLocked()
		m.mu.Unlock()
		if err != nil {
			m.logger.Error("failed to load vault items", "error", err)
		}
		return err
	}
}

// setItems replaces the resident items and rebuilds the reference index.
// Callers hold m.mu.
func (m *Manager) setItems(items []Item) {
	m.items = make([]*Item, 0, len(items))
	m.byID = make(map[string]*Item, len(items))
	for i := range items {
		it := items[i].Clone()
		if it.ID == "" {
			it.ID = m.newID()
		}
		if _, dup := m.byID[it.ID]; dup {
			m.logger.Warn("skipping duplicate vault item", "item_id", it.ID)
			continue
		}
		if it.Fields == nil {
			it.Fields = map[string]string{}
		}
		m.items = append(m.items, it)
		m.byID[it.ID] = it
	}
	m.refs = buildRefIndex(m.items)
}

// Lock clears all items from memory at once. Changes not yet persisted are
// kept aside and saved before the next load, so a later refresh never
// reads a version older than what the user saw.
func (m *Manager) Lock() {
	m.mu.Lock()
	var snapshot []Item
	if m.state == StateReady && m.gen != m.saved {
		snapshot = m.snapshotLocked()
		m.lockSnapshot = snapshot
	}
	m.epoch++
	m.state = StateLocked
	m.items = nil
	m.byID = map[string]*Item{}
	m.refs = refIndex{}
	m.loadErr = nil
	m.flushErr = nil
	m.gen, m.saved = 0, 0
	m.signalFlushedLocked()
	m.mu.Unlock()

	if snapshot == nil {
		return
	}
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	m.saveLockSnapshot()
}

// saveLockSnapshot persists the changes set aside by Lock, if any.
// Callers hold m.flushMu.
func (m *Manager) saveLockSnapshot() {
	m.mu.Lock()
	snapshot := m.lockSnapshot
	m.lockSnapshot = nil
	m.mu.Unlock()
	if snapshot == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.flushTimeout)
	defer cancel()
	if err := m.store.Save(ctx, snapshot); err != nil {
		m.logger.Warn("failed to persist vault items before lock", "error", err)
	}
}

// HandleLockChange reacts to lock gate transitions.
func (m *Manager) HandleLockChange(ctx context.Context, locked bool) {
	if locked {
		m.Lock()
		return
	}
	if err := m.Unlock(ctx); err != nil {
		m.logger.Warn("vault opened with load error", "error", err)
	}
}

// AddItem creates an item from d and returns it immediately. Persistence
// happens in the background.
func (m *Manager) AddItem(d Draft) (*Item, error) {
	if err := ValidateDraft(d); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return nil, ErrLocked
	}

	now := m.now().UTC()
	it := &Item{
		ID:           m.newID(),
		Type:         d.Type,
		Label:        d.Label,
		Fields:       cloneFields(d.Fields),
		CustomFields: m.withCustomFieldIDs(d.CustomFields),
		AssetRefs:    normalizeRefs(d.AssetRefs, now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.items = append(m.items, it)
	m.byID[it.ID] = it
	m.refs.addItem(it)
	m.markDirtyLocked()
	return it.Clone(), nil
}

// UpdateItem applies p to the item with id. It returns nil when the id is
// unknown or the vault is not ready.
func (m *Manager) UpdateItem(id string, p Patch) *Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return nil
	}
	it, ok := m.byID[id]
	if !ok {
		return nil
	}

	now := m.now().UTC()
	m.refs.removeItem(it)
	if p.Type != nil && *p.Type != "" {
		it.Type = *p.Type
	}
	if p.Label != nil {
		it.Label = *p.Label
	}
	if p.Fields != nil {
		it.Fields = cloneFields(*p.Fields)
	}
	if p.CustomFields != nil {
		it.CustomFields = m.withCustomFieldIDs(*p.CustomFields)
	}
	if p.AssetRefs != nil {
		it.AssetRefs = normalizeRefs(*p.AssetRefs, now)
	}
	m.touchLocked(it, now)
	m.refs.addItem(it)
	m.markDirtyLocked()
	return it.Clone()
}

// DeleteItem removes the item with id. Referenced assets are left alone.
func (m *Manager) DeleteItem(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return false
	}
	it, ok := m.byID[id]
	if !ok {
		return false
	}

	delete(m.byID, id)
	m.items = slices.DeleteFunc(m.items, func(x *Item) bool { return x.ID == id })
	m.refs.removeItem(it)
	m.markDirtyLocked()
	return true
}

// AttachAsset adds a reference from the item to assetID. Attaching an
// already referenced asset is a no-op.
func (m *Manager) AttachAsset(itemID, assetID string) *Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady || assetID == "" {
		return nil
	}
	it, ok := m.byID[itemID]
	if !ok {
		return nil
	}
	if it.HasAsset(assetID) {
		return it.Clone()
	}

	now := m.now().UTC()
	it.AssetRefs = append(it.AssetRefs, AssetRef{AssetID: assetID, AddedAt: now})
	m.refs.add(assetID, itemID)
	m.touchLocked(it, now)
	m.markDirtyLocked()
	return it.Clone()
}

// DetachAsset removes the item's reference to assetID. The asset itself is
// not deleted.
func (m *Manager) DetachAsset(itemID, assetID string) *Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return nil
	}
	it, ok := m.byID[itemID]
	if !ok {
		return nil
	}
	if !it.HasAsset(assetID) {
		return it.Clone()
	}

	it.AssetRefs = slices.DeleteFunc(it.AssetRefs, func(r AssetRef) bool { return r.AssetID == assetID })
	m.refs.remove(assetID, itemID)
	m.touchLocked(it, m.now().UTC())
	m.markDirtyLocked()
	return it.Clone()
}

// GetItem returns a copy of the item, or nil.
func (m *Manager) GetItem(id string) *Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if it, ok := m.byID[id]; ok {
		return it.Clone()
	}
	return nil
}

// Items returns copies of all items in insertion order.
func (m *Manager) Items() []*Item {
	return m.filter(func(*Item) bool { return true })
}

// GetItemsByType returns the items of one category.
func (m *Manager) GetItemsByType(t string) []*Item {
	return m.filter(func(it *Item) bool { return it.Type == t })
}

// OrphanedItems returns items whose type is not a known category.
func (m *Manager) OrphanedItems(known func(categoryID string) bool) []*Item {
	return m.filter(func(it *Item) bool { return !known(it.Type) })
}

func (m *Manager) filter(keep func(*Item) bool) []*Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Item, 0, len(m.items))
	for _, it := range m.items {
		if keep(it) {
			out = append(out, it.Clone())
		}
	}
	return out
}

// ReferenceCount returns how many items reference assetID. It fails while
// the vault is not loaded, since the answer would be unknown.
func (m *Manager) ReferenceCount(assetID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return 0, ErrLocked
	}
	return len(m.refs[assetID]), nil
}

// ItemsReferencing returns the sorted ids of items referencing assetID.
func (m *Manager) ItemsReferencing(assetID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.refs[assetID]))
	for id := range m.refs[assetID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CountByType returns how many items belong to categoryID.
func (m *Manager) CountByType(categoryID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return 0, ErrLocked
	}
	n := 0
	for _, it := range m.items {
		if it.Type == categoryID {
			n++
		}
	}
	return n, nil
}

// Close stops the flusher, persists outstanding changes and locks the
// manager for good.
func (m *Manager) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()

		m.flushMu.Lock()
		m.saveLockSnapshot()
		err = m.flushLocked(ctx)
		m.flushMu.Unlock()

		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		m.Lock()
	})
	return err
}

// touchLocked re-stamps UpdatedAt, never earlier than CreatedAt.
func (m *Manager) touchLocked(it *Item, now time.Time) {
	if now.Before(it.CreatedAt) {
		now = it.CreatedAt
	}
	it.UpdatedAt = now
}

func (m *Manager) withCustomFieldIDs(in []CustomField) []CustomField {
	if len(in) == 0 {
		return nil
	}
	out := make([]CustomField, len(in))
	for i, cf := range in {
		if cf.ID == "" {
			cf.ID = m.newID()
		}
		out[i] = cf
	}
	return out
}

func cloneFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// normalizeRefs drops empty and repeated asset ids and stamps missing
// AddedAt values.
func normalizeRefs(in []AssetRef, now time.Time) []AssetRef {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]AssetRef, 0, len(in))
	for _, r := range in {
		if r.AssetID == "" || seen[r.AssetID] {
			continue
		}
		seen[r.AssetID] = true
		if r.AddedAt.IsZero() {
			r.AddedAt = now
		}
		out = append(out, r)
	}
	return out
}
