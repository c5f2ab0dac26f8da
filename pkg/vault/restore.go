package vault

import "fmt"

// RestoreItems merges items from a backup, keeping their ids and
// timestamps. An item whose id already exists is replaced when overwrite
// is set and skipped otherwise.
func (m *Manager) RestoreItems(items []Item, overwrite bool) (restored, skipped int, err error) {
	for i := range items {
		if items[i].ID == "" {
			return 0, 0, fmt.Errorf("%w: restored item %d has no id", ErrInvalidItem, i)
		}
		if err := ValidateFields(items[i].Fields); err != nil {
			return 0, 0, fmt.Errorf("item %s: %w", items[i].ID, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return 0, 0, ErrLocked
	}

	now := m.now().UTC()
	for i := range items {
		it := items[i].Clone()
		if it.Fields == nil {
			it.Fields = map[string]string{}
		}
		it.AssetRefs = normalizeRefs(it.AssetRefs, now)
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		if it.UpdatedAt.Before(it.CreatedAt) {
			it.UpdatedAt = it.CreatedAt
		}

		old, exists := m.byID[it.ID]
		switch {
		case exists && !overwrite:
			skipped++
			continue
		case exists:
			m.refs.removeItem(old)
			idx := m.indexLocked(it.ID)
			m.items[idx] = it
		default:
			m.items = append(m.items, it)
		}
		m.byID[it.ID] = it
		m.refs.addItem(it)
		restored++
	}
	if restored > 0 {
		m.markDirtyLocked()
	}
	return restored, skipped, nil
}

func (m *Manager) indexLocked(id string) int {
	for i, it := range m.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
