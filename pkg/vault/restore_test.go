package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RestoreItems(t *testing.T) {
	created := t0.Add(-48 * time.Hour)
	store := &memStore{items: []Item{
		{ID: "a", Type: "card", Label: "old", AssetRefs: []AssetRef{{AssetID: "x"}}},
	}}
	m := unlocked(t, store)

	backup := []Item{
		{ID: "a", Type: "card", Label: "from backup", AssetRefs: []AssetRef{{AssetID: "y"}}, CreatedAt: created},
		{ID: "b", Type: "note", Label: "new", CreatedAt: created, UpdatedAt: created.Add(time.Hour)},
	}

	restored, skipped, err := m.RestoreItems(backup, false)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, "old", m.GetItem("a").Label)

	b := m.GetItem("b")
	require.NotNil(t, b)
	assert.Equal(t, created, b.CreatedAt)
	assert.Equal(t, created.Add(time.Hour), b.UpdatedAt)
	assert.NotNil(t, b.Fields)

	restored, skipped, err = m.RestoreItems(backup, true)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)
	assert.Equal(t, 0, skipped)

	a := m.GetItem("a")
	assert.Equal(t, "from backup", a.Label)
	assert.Equal(t, created, a.UpdatedAt)
	n, _ := m.ReferenceCount("x")
	assert.Equal(t, 0, n)
	n, _ = m.ReferenceCount("y")
	assert.Equal(t, 1, n)

	items := m.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Flush(ctx))
	assert.Len(t, store.stored(), 2)
}

func TestManager_RestoreItemsRejectsInvalid(t *testing.T) {
	m := unlocked(t, &memStore{})

	_, _, err := m.RestoreItems([]Item{{Type: "note"}}, false)
	assert.ErrorIs(t, err, ErrInvalidItem)
	_, _, err = m.RestoreItems([]Item{{ID: "z", Fields: map[string]string{"bad key": "v"}}}, false)
	assert.ErrorIs(t, err, ErrInvalidItem)
	assert.Empty(t, m.Items())

	m.Lock()
	_, _, err = m.RestoreItems([]Item{{ID: "z"}}, false)
	assert.ErrorIs(t, err, ErrLocked)
}
