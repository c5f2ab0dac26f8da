// Package kv defines the secure key-value backend the vault persists into.
//
// The backend mirrors what mobile secure stores offer: small values under
// namespaced string keys, a hard per-value size ceiling, and no multi-key
// transactions. Operations may fail transiently; callers treat
// ErrUnavailable as retryable.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxValueSize is the per-value ceiling of the platform secure store.
const DefaultMaxValueSize = 2048

// Errors
var (
	ErrNotFound      = errors.New("kv: key not found")
	ErrValueTooLarge = errors.New("kv: value exceeds size ceiling")
	ErrUnavailable   = errors.New("kv: backend unavailable")
	ErrInvalidKey    = errors.New("kv: key is empty")
)

// Backend is a secure key-value store with a per-value size ceiling.
//
// Get returns ErrNotFound when the key is absent. Delete of an absent key
// succeeds.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Limited is implemented by backends that report their value ceiling.
type Limited interface {
	MaxValueSize() int
}

// MaxValueSize returns the ceiling of b, or DefaultMaxValueSize when b does
// not report one.
func MaxValueSize(b Backend) int {
	if l, ok := b.(Limited); ok && l.MaxValueSize() > 0 {
		return l.MaxValueSize()
	}
	return DefaultMaxValueSize
}

// checkWrite validates a key and value against limit.
func checkWrite(key string, value []byte, limit int) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(value) > limit {
		return fmt.Errorf("%w: %q is %d bytes (max %d)", ErrValueTooLarge, key, len(value), limit)
	}
	return nil
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
