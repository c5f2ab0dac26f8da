package kv

import (
	"context"
	"sync"
)

// Op names recorded by Injected.
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
)

// Call is one operation observed by Injected.
type Call struct {
	Op  string
	Key string
	Err error
}

// Fault decides whether an operation on key fails. A nil return lets the
// call through to the wrapped backend.
type Fault func(op, key string) error

// Injected wraps a Backend with programmable failures and a call journal.
// It simulates sandboxed runtimes where the secure store rejects access or
// never answers.
type Injected struct {
	inner Backend

	mu      sync.Mutex
	fault   Fault
	hang    func(op, key string) bool
	journal []Call
}

// NewInjected wraps inner.
func NewInjected(inner Backend) *Injected {
	return &Injected{inner: inner}
}

// SetFault installs f; nil clears it.
func (b *Injected) SetFault(f Fault) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fault = f
}

// SetHang makes matching operations block until their context ends.
func (b *Injected) SetHang(h func(op, key string) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hang = h
}

// FailAll makes every operation of kind op fail with err.
func (b *Injected) FailAll(op string, err error) {
	b.SetFault(func(o, _ string) error {
		if o == op {
			return err
		}
		return nil
	})
}

// Journal returns the recorded calls in order.
func (b *Injected) Journal() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.journal...)
}

// ResetJournal discards recorded calls.
func (b *Injected) ResetJournal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal = nil
}

func (b *Injected) MaxValueSize() int { return MaxValueSize(b.inner) }

func (b *Injected) Get(ctx context.Context, key string) ([]byte, error) {
	if err := b.before(ctx, OpGet, key); err != nil {
		return nil, err
	}
	v, err := b.inner.Get(ctx, key)
	b.record(OpGet, key, err)
	return v, err
}

func (b *Injected) Set(ctx context.Context, key string, value []byte) error {
	if err := b.before(ctx, OpSet, key); err != nil {
		return err
	}
	err := b.inner.Set(ctx, key, value)
	b.record(OpSet, key, err)
	return err
}

func (b *Injected) Delete(ctx context.Context, key string) error {
	if err := b.before(ctx, OpDelete, key); err != nil {
		return err
	}
	err := b.inner.Delete(ctx, key)
	b.record(OpDelete, key, err)
	return err
}

func (b *Injected) before(ctx context.Context, op, key string) error {
	b.mu.Lock()
	fault, hang := b.fault, b.hang
	b.mu.Unlock()

	if hang != nil && hang(op, key) {
		<-ctx.Done()
		b.record(op, key, ctx.Err())
		return ctx.Err()
	}
	if fault != nil {
		if err := fault(op, key); err != nil {
			b.record(op, key, err)
			return err
		}
	}
	return nil
}

func (b *Injected) record(op, key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal = append(b.journal, Call{Op: op, Key: key, Err: err})
}
