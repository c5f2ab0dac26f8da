package vault

import (
	"context"
	"errors"
	"time"
)

// markDirtyLocked records a mutation and wakes the flusher. Repeated
// wake-ups coalesce into one pending signal.
func (m *Manager) markDirtyLocked() {
	m.gen++
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// signalFlushedLocked wakes Flush waiters.
func (m *Manager) signalFlushedLocked() {
	close(m.flushed)
	m.flushed = make(chan struct{})
}

// snapshotLocked deep-copies the current items in order.
func (m *Manager) snapshotLocked() []Item {
	out := make([]Item, len(m.items))
	for i, it := range m.items {
		out[i] = *it.Clone()
	}
	return out
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case <-m.wake:
		}

		for {
			pending, err := m.flushOnce()
			if err == nil && !pending {
				break
			}
			if err == nil {
				continue
			}
			select {
			case <-m.stop:
				return
			case <-time.After(m.retryDelay):
			}
		}
	}
}

// flushOnce saves the current snapshot if anything changed. It reports
// whether changes remain afterwards.
func (m *Manager) flushOnce() (pending bool, err error) {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	m.saveLockSnapshot()

	ctx, cancel := context.WithTimeout(context.Background(), m.flushTimeout)
	defer cancel()
	if err := m.flushLocked(ctx); err != nil {
		return true, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.gen != m.saved, nil
}

// flushLocked persists the items as they are now. Callers hold m.flushMu.
func (m *Manager) flushLocked(ctx context.Context) error {
	m.mu.RLock()
	if m.state != StateReady || m.gen == m.saved {
		m.mu.RUnlock()
		return nil
	}
	snapshot := m.snapshotLocked()
	gen, epoch := m.gen, m.epoch
	m.mu.RUnlock()

	err := m.store.Save(ctx, snapshot)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		// Locked meanwhile; nothing of this epoch is resident any more.
		return nil
	}
	defer m.signalFlushedLocked()
	if err != nil {
		m.flushErr = err
		m.logger.Warn("failed to persist vault items", "error", err, "pending_changes", m.gen-m.saved)
		return err
	}
	m.flushErr = nil
	if gen > m.saved {
		m.saved = gen
	}
	return nil
}

// Flush waits until every mutation made before the call is persisted, the
// vault locks, or ctx ends. Background retries continue meanwhile.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	target, epoch := m.gen, m.epoch
	if m.gen != m.saved {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
	m.mu.Unlock()

	for {
		m.mu.RLock()
		if m.closed {
			m.mu.RUnlock()
			return ErrClosed
		}
		if m.epoch != epoch || m.state != StateReady || m.saved >= target {
			m.mu.RUnlock()
			return nil
		}
		ch, lastErr := m.flushed, m.flushErr
		m.mu.RUnlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return errors.Join(ctx.Err(), lastErr)
		}
	}
}
