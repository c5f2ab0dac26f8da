// Package docstore persists one logical document in a kv.Backend.
//
// It is the only layer that talks to the secure backend for documents.
// Chunks are written before the meta record so a reader never sees a meta
// record pointing at chunks that were not written yet; the meta write is
// the commit point. Loads are all-or-nothing and fall back to the
// document's default value.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/chunk"
	"github.com/PRATHAM1ST/IdLocker-sub001/pkg/kv"
)

// Defaults
const (
	DefaultCallTimeout = 5 * time.Second
	DefaultRetries     = 2
	DefaultBackoff     = 100 * time.Millisecond

	// maxProbe bounds the search for leaked chunk keys past the known count.
	maxProbe = 64
)

// Errors
var (
	ErrLoadFailed = errors.New("docstore: load failed")
	ErrTimeout    = fmt.Errorf("docstore: backend call timed out: %w", kv.ErrUnavailable)
)

// PersistError reports which write of a save failed.
type PersistError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("docstore: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("docstore: %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Store persists a document of type T under a key prefix.
type Store[T any] struct {
	backend  kv.Backend
	keys     chunk.Keys
	codec    *chunk.Codec
	defaults func() T

	margin  int
	timeout time.Duration
	retries int
	backoff time.Duration
	logger  *slog.Logger
	onError func(error)

	mu        sync.Mutex
	lastCount int
}

type config struct {
	margin  int
	timeout time.Duration
	retries int
	backoff time.Duration
	logger  *slog.Logger
	onError func(error)
}

// Option configures a Store.
type Option func(*config)

// WithMargin reserves margin bytes below the backend ceiling per chunk.
func WithMargin(margin int) Option {
	return func(c *config) { c.margin = margin }
}

// WithCallTimeout bounds every backend call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithRetries sets how often a transiently failing write is retried.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *config) {
		c.retries = n
		c.backoff = backoff
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithOnError registers a hook that receives load and cleanup errors.
func WithOnError(fn func(error)) Option {
	return func(c *config) { c.onError = fn }
}

// New returns a Store for the document under prefix. defaults produces the
// value returned when no document is stored or the stored one is unusable.
func New[T any](backend kv.Backend, prefix string, defaults func() T, opts ...Option) (*Store[T], error) {
	cfg := config{
		margin:  chunk.DefaultMargin,
		timeout: DefaultCallTimeout,
		retries: DefaultRetries,
		backoff: DefaultBackoff,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if prefix == "" {
		return nil, errors.New("docstore: key prefix is required")
	}
	if defaults == nil {
		defaults = func() T { var zero T; return zero }
	}

	codec, err := chunk.New(kv.MaxValueSize(backend), cfg.margin)
	if err != nil {
		return nil, fmt.Errorf("docstore: %w", err)
	}

	return &Store[T]{
		backend:  backend,
		keys:     chunk.Keys{Prefix: prefix},
		codec:    codec,
		defaults: defaults,
		margin:   cfg.margin,
		timeout:  cfg.timeout,
		retries:  cfg.retries,
		backoff:  cfg.backoff,
		logger:   cfg.logger.With("document", prefix),
		onError:  cfg.onError,
	}, nil
}

// Prefix returns the key prefix of the document.
func (s *Store[T]) Prefix() string { return s.keys.Prefix }

// Load returns the stored document. A missing document yields the default
// value and a nil error. Any failure yields the default value together with
// the error, which is also reported to the diagnostic channel; callers must
// not treat it as fatal.
func (s *Store[T]) Load(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, count, err := s.load(ctx)
	if err != nil {
		s.report("load", err)
		return s.defaults(), err
	}
	s.lastCount = count
	return doc, nil
}

func (s *Store[T]) load(ctx context.Context) (T, int, error) {
	var zero T

	raw, err := s.get(ctx, s.keys.Meta())
	if errors.Is(err, kv.ErrNotFound) {
		return s.defaults(), 0, nil
	}
	if err != nil {
		return zero, 0, fmt.Errorf("%w: read %q: %w", ErrLoadFailed, s.keys.Meta(), err)
	}

	meta, err := chunk.UnmarshalMeta(raw)
	if err != nil {
		return zero, 0, fmt.Errorf("docstore: %s: %w", s.keys.Prefix, err)
	}

	parts := make(map[int][]byte, meta.ChunkCount)
	for i := 0; i < meta.ChunkCount; i++ {
		part, err := s.get(ctx, s.keys.Chunk(i))
		if errors.Is(err, kv.ErrNotFound) {
			// Join reports the gap as corruption.
			continue
		}
		if err != nil {
			return zero, 0, fmt.Errorf("%w: read %q: %w", ErrLoadFailed, s.keys.Chunk(i), err)
		}
		parts[i] = part
	}

	var doc T
	if err := chunk.Decode(meta, parts, &doc); err != nil {
		return zero, 0, fmt.Errorf("docstore: %s: %w", s.keys.Prefix, err)
	}
	return doc, meta.ChunkCount, nil
}

// Save encodes doc and writes its chunks followed by the meta record, then
// removes chunk keys the previous version used but this one does not.
func (s *Store[T]) Save(ctx context.Context, doc T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, parts, err := s.codec.Encode(doc)
	if err != nil {
		return &PersistError{Op: "encode", Err: err}
	}
	metaRaw, err := chunk.MarshalMeta(meta)
	if err != nil {
		return &PersistError{Op: "encode meta", Err: err}
	}

	prev := s.previousCount(ctx)

	for i, part := range parts {
		key := s.keys.Chunk(i)
		if err := s.set(ctx, key, part); err != nil {
			return &PersistError{Op: "write chunk", Key: key, Err: err}
		}
	}
	if err := s.set(ctx, s.keys.Meta(), metaRaw); err != nil {
		return &PersistError{Op: "write meta", Key: s.keys.Meta(), Err: err}
	}
	s.lastCount = meta.ChunkCount

	s.removeStale(ctx, prev, meta.ChunkCount)
	return nil
}

// Clear removes the document. The meta record goes first so the document
// disappears atomically for readers.
func (s *Store[T]) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.previousCount(ctx)
	if err := s.del(ctx, s.keys.Meta()); err != nil {
		return &PersistError{Op: "delete meta", Key: s.keys.Meta(), Err: err}
	}
	s.lastCount = 0
	s.removeStale(ctx, prev, 0)
	return nil
}

// previousCount returns the chunk count of the currently stored version,
// falling back to what this store last wrote when the meta is unreadable.
func (s *Store[T]) previousCount(ctx context.Context) int {
	raw, err := s.get(ctx, s.keys.Meta())
	if err != nil {
		return s.lastCount
	}
	meta, err := chunk.UnmarshalMeta(raw)
	if err != nil {
		return s.lastCount
	}
	return max(meta.ChunkCount, s.lastCount)
}

// removeStale deletes trailing chunk keys from an older, longer version and
// then probes for keys leaked by interrupted saves. Failures are reported
// but never fail the save: the meta record no longer references these keys.
func (s *Store[T]) removeStale(ctx context.Context, prevCount, newCount int) {
	for _, i := range chunk.StaleIndices(prevCount, newCount) {
		key := s.keys.Chunk(i)
		if err := s.del(ctx, key); err != nil {
			s.report("delete stale chunk", &PersistError{Op: "delete stale chunk", Key: key, Err: err})
		}
	}

	for i := max(prevCount, newCount); i < max(prevCount, newCount)+maxProbe; i++ {
		key := s.keys.Chunk(i)
		if _, err := s.get(ctx, key); err != nil {
			return
		}
		s.logger.Debug("removing leaked chunk", "key", key)
		if err := s.del(ctx, key); err != nil {
			s.report("delete leaked chunk", &PersistError{Op: "delete leaked chunk", Key: key, Err: err})
			return
		}
	}
}

func (s *Store[T]) get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.call(ctx, func(ctx context.Context) error {
		v, err := s.backend.Get(ctx, key)
		out = v
		return err
	})
	return out, err
}

// set writes key, retrying transient failures with linear backoff.
func (s *Store[T]) set(ctx context.Context, key string, value []byte) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * s.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = s.call(ctx, func(ctx context.Context) error {
			return s.backend.Set(ctx, key, value)
		})
		if err == nil || !kv.IsTransient(err) || ctx.Err() != nil {
			return err
		}
		s.logger.Debug("retrying write", "key", key, "attempt", attempt+1, "error", err)
	}
	return err
}

func (s *Store[T]) del(ctx context.Context, key string) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.backend.Delete(ctx, key)
	})
}

// call runs fn under the per-call timeout. The timeout is enforced even if
// the backend ignores its context; a late result is discarded.
func (s *Store[T]) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

func (s *Store[T]) report(op string, err error) {
	s.logger.Warn("document "+op+" failed", "error", err)
	if s.onError != nil {
		s.onError(err)
	}
}
