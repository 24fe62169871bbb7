// Package memory provides a size-bounded, in-memory LRU cache whose entries
// can be pinned against eviction.
package memory

import (
	"container/list"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultMaxSize is the default weight bound, in bytes.
const DefaultMaxSize = 64 << 20

type entry[V any] struct {
	key    string
	value  V
	weight int64
	pins   int
	elem   *list.Element
}

// Cache is a weighted LRU. Pinned entries are never evicted but still count
// toward Size. All methods are safe for concurrent use.
type Cache[V any] struct {
	maxSize int64
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry[V]
	lru     *list.List // front is most recently used
	size    int64
}

// Option configures a Cache.
type Option func(*cacheConfig)

type cacheConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for eviction events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *cacheConfig) {
		c.logger = logger
	}
}

// New returns a cache bounded to maxSize total weight. Non-positive sizes use
// DefaultMaxSize.
func New[V any](maxSize int64, opts ...Option) *Cache[V] {
	cfg := cacheConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache[V]{
		maxSize: maxSize,
		logger:  cfg.logger,
		entries: make(map[string]*entry[V]),
		lru:     list.New(),
	}
}

func (c *Cache[V]) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.lru.MoveToFront(e.elem)
	return e.value, true
}

// Exist reports whether key is cached without touching its recency.
func (c *Cache[V]) Exist(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Put stores value under key unless key is already present. It reports
// whether the value was stored. A value heavier than the whole cache is
// rejected.
func (c *Cache[V]) Put(key string, value V, weight int64) bool {
	if weight < 0 {
		weight = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return false
	}
	if weight > c.maxSize {
		c.log().Debug("memory cache rejected oversized value", "key", key, "weight", weight, "max_size", c.maxSize)
		return false
	}
	e := &entry[V]{key: key, value: value, weight: weight}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.size += weight
	c.trimToSize(c.maxSize)
	return true
}

// Remove deletes key, pinned or not, and returns its value.
func (c *Cache[V]) Remove(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.remove(e)
	return e.value, true
}

// Retain pins key so eviction skips it. Pins nest.
func (c *Cache[V]) Retain(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.pins++
	return true
}

// Release drops one pin from key. Once unpinned the entry is evictable again
// and the cache is trimmed.
func (c *Cache[V]) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.pins == 0 {
		return
	}
	e.pins--
	if e.pins == 0 {
		c.trimToSize(c.maxSize)
	}
}

// TrimToSize evicts least recently used unpinned entries until Size is at
// most target.
func (c *Cache[V]) TrimToSize(target int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trimToSize(target)
}

// Clear removes every entry, pinned or not.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	size := c.size
	c.entries = make(map[string]*entry[V])
	c.lru.Init()
	c.size = 0
	c.log().Debug("memory cache cleared", "bytes", size)
}

// Size returns the total weight of cached entries.
func (c *Cache[V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// MaxSize returns the weight bound.
func (c *Cache[V]) MaxSize() int64 { return c.maxSize }

// Len returns the number of entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) String() string {
	return fmt.Sprintf("MemoryCache(maxSize=%d)", c.maxSize)
}

func (c *Cache[V]) trimToSize(target int64) {
	for el := c.lru.Back(); el != nil && c.size > target; {
		prev := el.Prev()
		e := el.Value.(*entry[V])
		if e.pins == 0 {
			c.remove(e)
			c.log().Debug("memory cache evicted", "key", e.key, "weight", e.weight)
		}
		el = prev
	}
}

func (c *Cache[V]) remove(e *entry[V]) {
	c.lru.Remove(e.elem)
	delete(c.entries, e.key)
	c.size -= e.weight
}
