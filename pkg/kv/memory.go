package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Backend. It backs ephemeral vaults and tests.
type Memory struct {
	mu    sync.RWMutex
	data  map[string][]byte
	limit int
}

// NewMemory returns an empty Memory backend with the given value ceiling.
// A non-positive limit selects DefaultMaxValueSize.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultMaxValueSize
	}
	return &Memory{data: make(map[string][]byte), limit: limit}
}

func (m *Memory) MaxValueSize() int { return m.limit }

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkWrite(key, value, m.limit); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Keys returns the sorted keys that start with prefix.
func (m *Memory) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
