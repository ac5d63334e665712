package cache

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Backend for single-instance deployments and tests.
type Local struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

type localEntry struct {
	val     []byte
	expires time.Time
}

func NewLocal() *Local {
	return &Local{entries: map[string]localEntry{}, now: time.Now}
}

func (l *Local) Get(_ context.Context, key string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !l.now().Before(e.expires) {
		delete(l.entries, key)
		return nil, false, nil
	}
	return e.val, true, nil
}

func (l *Local) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := localEntry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = l.now().Add(ttl)
	}
	l.entries[key] = e
	return nil
}

func (l *Local) Delete(_ context.Context, keys ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, k := range keys {
		delete(l.entries, k)
	}
	return nil
}
