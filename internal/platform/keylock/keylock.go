// Package keylock provides context-aware mutual exclusion keyed by string (entity id, audit id).
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Locks hands out one exclusive lock per key. Entries are dropped once no goroutine holds or
// waits on them, so the map stays bounded by the number of keys in use.
type Locks struct {
	mu sync.Mutex
	m  map[string]*entry
}

// New returns an empty lock set.
func New() *Locks {
	return &Locks{m: make(map[string]*entry)}
}

// Lock blocks until the lock for key is held or ctx is done. The returned func releases it.
func (l *Locks) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.release(key, e, false)
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { l.release(key, e, true) }) }, nil
}

func (l *Locks) release(key string, e *entry, held bool) {
	if held {
		e.sem.Release(1)
	}
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.m, key)
	}
	l.mu.Unlock()
}

// Len returns the number of keys currently held or awaited.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
