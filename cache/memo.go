// Package cache provides a memoize-with-explicit-bust primitive for derived,
// display-only values. Nothing that needs authoritative data may read through it.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backend stores opaque values with a time-to-live.
type Backend interface {
	// Get reports ok=false on a miss.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Memo caches the result of a loader per key for ttl. A backend failure
// degrades to calling the loader; it is logged, never returned.
//
// A Bust that lands while a load is running wins: the loaded value is
// returned to that caller but not stored.
type Memo[T any] struct {
	backend Backend
	prefix  string
	ttl     time.Duration
	log     *zap.Logger

	mu   sync.Mutex
	gens map[string]uint64
}

func NewMemo[T any](backend Backend, prefix string, ttl time.Duration, log *zap.Logger) *Memo[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Memo[T]{backend: backend, prefix: prefix, ttl: ttl, log: log, gens: map[string]uint64{}}
}

func (m *Memo[T]) key(k string) string {
	return m.prefix + ":" + k
}

func (m *Memo[T]) generation(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[key]
}

// Get returns the cached value for k, or calls load and caches its result.
// Loader errors are returned and not cached.
func (m *Memo[T]) Get(ctx context.Context, k string, load func(context.Context) (T, error)) (T, error) {
	key := m.key(k)

	raw, ok, err := m.backend.Get(ctx, key)
	if err != nil {
		m.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		m.log.Warn("dropping undecodable cache entry", zap.String("key", key))
	}

	gen := m.generation(key)
	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	raw, err = json.Marshal(v)
	if err != nil {
		m.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return v, nil
	}

	// a Bust either bumps the generation before this check or deletes after the Set
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[key] != gen {
		m.log.Debug("skipping cache write after concurrent bust", zap.String("key", key))
		return v, nil
	}
	if err := m.backend.Set(ctx, key, raw, m.ttl); err != nil {
		m.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

// Bust drops k so the next Get reloads it. Loads already running for k
// will not store their result.
func (m *Memo[T]) Bust(ctx context.Context, k string) error {
	key := m.key(k)
	m.mu.Lock()
	m.gens[key]++
	m.mu.Unlock()
	return m.backend.Delete(ctx, key)
}
