// Package inflight deduplicates concurrent calls that share a key.
//
// Unlike singleflight, the shared call is owned by its waiters: it runs on a
// context detached from any single caller and is canceled only when every
// waiter has given up.
package inflight

import (
	"context"
	"fmt"
	"sync"
)

// Group runs at most one call per key at a time. The zero value is ready to use.
type Group[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
}

type call[T any] struct {
	done    chan struct{}
	val     T
	err     error
	waiters int
	cancel  context.CancelFunc
}

// Do runs fn for key unless a call for key is already in flight, in which case
// it waits for that call. shared reports whether the result came from a call
// started by another caller.
//
// If ctx is done before the call finishes, Do returns ctx.Err(). The call
// keeps running while at least one waiter remains.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (v T, err error, shared bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call[T])
	}
	if c, ok := g.calls[key]; ok {
		c.waiters++
		g.mu.Unlock()
		v, err = g.wait(ctx, key, c)
		return v, err, true
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &call[T]{done: make(chan struct{}), waiters: 1, cancel: cancel}
	g.calls[key] = c
	g.mu.Unlock()

	go g.run(runCtx, key, c, fn)
	v, err = g.wait(ctx, key, c)
	return v, err, false
}

// Waiters returns the number of callers waiting on key.
func (g *Group[T]) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}

func (g *Group[T]) run(ctx context.Context, key string, c *call[T], fn func(context.Context) (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("inflight: call for %q panicked: %v", key, r)
		}
		c.cancel()
		g.forget(key, c)
		close(c.done)
	}()
	c.val, c.err = fn(ctx)
}

func (g *Group[T]) wait(ctx context.Context, key string, c *call[T]) (T, error) {
	select {
	case <-c.done:
		g.mu.Lock()
		c.waiters--
		g.mu.Unlock()
		return c.val, c.err
	case <-ctx.Done():
		g.mu.Lock()
		c.waiters--
		last := c.waiters == 0
		if last && g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
		if last {
			c.cancel()
		}
		var zero T
		return zero, ctx.Err()
	}
}

func (g *Group[T]) forget(key string, c *call[T]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls[key] == c {
		delete(g.calls, key)
	}
}
