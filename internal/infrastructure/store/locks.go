package store

import (
	"context"
	"fmt"
	"sync"
)

// LockTable hands out exclusive in-process locks by key. Entries are
// reference counted and dropped once nobody holds or waits on them.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*keyLock)}
}

// Acquire locks every key in the given order, blocking until all are held or
// ctx is done. The returned func releases them.
func (t *LockTable) Acquire(ctx context.Context, keys []string) (func(), error) {
	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			t.unlock(held[i])
		}
	}
	for _, key := range keys {
		if err := t.lock(ctx, key); err != nil {
			release()
			return nil, fmt.Errorf("%w: waiting for %s: %v", ErrConcurrencyConflict, key, err)
		}
		held = append(held, key)
	}
	return release, nil
}

func (t *LockTable) lock(ctx context.Context, key string) error {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		t.drop(key, l)
		return ctx.Err()
	}
}

func (t *LockTable) unlock(key string) {
	t.mu.Lock()
	l := t.locks[key]
	t.mu.Unlock()
	<-l.ch
	t.drop(key, l)
}

func (t *LockTable) drop(key string, l *keyLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
}
