// Package keylock provides per-key mutexes that can be awaited with a context.
//
// Locks are reference counted and dropped from the map as soon as no caller
// holds or waits on them, so the map only grows with the number of keys in
// active use.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Map is a set of named mutexes. The zero value is ready to use.
type Map struct {
	mu    sync.Mutex
	locks map[string]*lock
}

type lock struct {
	sem  *semaphore.Weighted
	refs int
}

// Lock blocks until the lock for key is held or ctx is done.
// The returned function releases the lock and is safe to call more than once.
func (m *Map) Lock(ctx context.Context, key string) (func(), error) {
	l := m.ref(key)
	if err := l.sem.Acquire(ctx, 1); err != nil {
		m.unref(key, l)
		return nil, err
	}
	return m.unlocker(key, l), nil
}

// TryLock acquires the lock for key without waiting.
func (m *Map) TryLock(key string) (func(), bool) {
	l := m.ref(key)
	if !l.sem.TryAcquire(1) {
		m.unref(key, l)
		return nil, false
	}
	return m.unlocker(key, l), true
}

// Len returns the number of keys currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Map) unlocker(key string, l *lock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			m.unref(key, l)
		})
	}
}

func (m *Map) ref(key string) *lock {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[string]*lock)
	}
	l, ok := m.locks[key]
	if !ok {
		l = &lock{sem: semaphore.NewWeighted(1)}
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *Map) unref(key string, l *lock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 && m.locks[key] == l {
		delete(m.locks, key)
	}
}
