// Package disk provides a journaled, size-bounded LRU cache on the local
// filesystem.
//
// Each entry is a data file plus an optional metadata file, both named after
// the sha256 of the caller's key. Every change is recorded in an append-only
// journal that is replayed on open and compacted when it grows redundant.
// I/O failures never escape the Cache API: they are logged and reported as a
// miss, a nil Editor or false.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/MaTriXy/Sketch/internal/keylock"
)

const (
	defaultMaxSize         = 100 << 20
	defaultAppVersion      = 1
	defaultInternalVersion = 1
	defaultDirPerm         = 0o700
)

// Cache is a lazily opened disk LRU cache.
type Cache struct {
	dir             string
	maxSize         int64
	appVersion      int
	internalVersion int
	dirPerm         os.FileMode
	logger          *slog.Logger
	keys            *KeyMapper

	mu      sync.Mutex
	store   *store
	version int

	locks keylock.Map

	gets atomic.Int64
	hits atomic.Int64
}

// Option configures a disk cache.
type Option func(*Cache)

// WithMaxSize sets the maximum total size in bytes of data and metadata files.
func WithMaxSize(n int64) Option {
	return func(c *Cache) {
		c.maxSize = n
	}
}

// WithAppVersion sets the application version. Changing it invalidates all
// cached entries.
func WithAppVersion(v int) Option {
	return func(c *Cache) {
		c.appVersion = v
	}
}

// WithInternalVersion sets the format version of the stored entries.
func WithInternalVersion(v int) Option {
	return func(c *Cache) {
		c.internalVersion = v
	}
}

// WithDirPerm sets the permissions used when creating the cache directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithLogger sets the logger for cache events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithKeyMapper shares a KeyMapper between caches.
func WithKeyMapper(m *KeyMapper) Option {
	return func(c *Cache) {
		c.keys = m
	}
}

// New creates a disk cache rooted at dir. The directory is opened on first use.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("disk: cache dir is empty")
	}
	c := &Cache{
		dir:             dir,
		maxSize:         defaultMaxSize,
		appVersion:      defaultAppVersion,
		internalVersion: defaultInternalVersion,
		dirPerm:         defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxSize <= 0 {
		return nil, fmt.Errorf("disk: max size must be > 0, got %d", c.maxSize)
	}
	v, err := UnionVersion(c.appVersion, c.internalVersion)
	if err != nil {
		return nil, err
	}
	c.version = v
	if c.keys == nil {
		c.keys = NewKeyMapper(defaultKeyMapperSize)
	}
	return c, nil
}

func (c *Cache) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func (c *Cache) open() (*store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		return c.store, nil
	}
	s, wiped, err := openStore(c.dir, c.version, c.maxSize, c.dirPerm)
	if wiped {
		c.log().Warn("disk cache wiped", "dir", c.dir, "version", c.version)
	}
	if err != nil {
		return nil, err
	}
	c.store = s
	c.log().Debug("disk cache opened", "dir", c.dir, "size", s.currentSize(), "entries", s.len())
	return s, nil
}

// Get returns a snapshot of the entry for key, or nil on a miss.
// The caller must Close the snapshot.
func (c *Cache) Get(key string) *Snapshot {
	s, err := c.open()
	if err != nil {
		c.log().Warn("disk cache open failed", "dir", c.dir, "error", err)
		return nil
	}
	snap, err := s.get(c.keys.Map(key))
	if err != nil {
		c.log().Warn("disk cache get failed", "key", key, "error", err)
		snap = nil
	}

	gets := c.gets.Add(1)
	hits := c.hits.Load()
	if snap != nil {
		hits = c.hits.Add(1)
	}
	c.log().Debug("disk cache get",
		"dir", c.dir,
		"key", key,
		"hit", snap != nil,
		"hit_ratio", fmt.Sprintf("%.2f", float64(hits)/float64(gets)),
	)
	if snap == nil {
		return nil
	}
	return &Snapshot{cache: c, key: key, snap: snap}
}

// Edit begins writing the entry for key. It returns nil if another edit of
// the same key is in progress or the cache cannot be opened.
func (c *Cache) Edit(key string) *Editor {
	s, err := c.open()
	if err != nil {
		c.log().Warn("disk cache open failed", "dir", c.dir, "error", err)
		return nil
	}
	ed, err := s.edit(c.keys.Map(key))
	if err != nil {
		c.log().Warn("disk cache edit failed", "key", key, "error", err)
		return nil
	}
	if ed == nil {
		c.log().Debug("disk cache edit busy", "key", key)
		return nil
	}
	return &Editor{cache: c, key: key, ed: ed}
}

// Remove deletes the entry for key. It reports false when there was no
// readable entry or the entry is being edited.
func (c *Cache) Remove(key string) bool {
	s, err := c.open()
	if err != nil {
		c.log().Warn("disk cache open failed", "dir", c.dir, "error", err)
		return false
	}
	ok, err := s.remove(c.keys.Map(key))
	if err != nil {
		c.log().Warn("disk cache remove failed", "key", key, "error", err)
	}
	if ok {
		c.log().Debug("disk cache remove", "key", key)
	}
	return ok
}

// Exist reports whether a readable entry exists for key.
func (c *Cache) Exist(key string) bool {
	s, err := c.open()
	if err != nil {
		return false
	}
	return s.exist(c.keys.Map(key))
}

// Clear deletes every entry and the cache directory itself. The cache reopens
// on next use.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		if err := c.store.close(); err != nil {
			c.log().Warn("disk cache close failed", "dir", c.dir, "error", err)
		}
		c.store = nil
	}
	size, _ := dirSize(c.dir)
	if err := os.RemoveAll(c.dir); err != nil {
		c.log().Warn("disk cache clear failed", "dir", c.dir, "error", err)
		return
	}
	c.log().Warn("disk cache cleared", "dir", c.dir, "bytes", size)
}

// Close flushes and closes the journal. In-progress edits are aborted.
// Later calls reopen the cache.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return
	}
	if err := c.store.close(); err != nil {
		c.log().Warn("disk cache close failed", "dir", c.dir, "error", err)
	}
	c.store = nil
}

// Size returns the total bytes of readable entries, 0 when not open.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	s := c.store
	c.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.currentSize()
}

// Len returns the number of readable entries, 0 when not open.
func (c *Cache) Len() int {
	c.mu.Lock()
	s := c.store
	c.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.len()
}

// MaxSize returns the configured size bound.
func (c *Cache) MaxSize() int64 { return c.maxSize }

// Directory returns the cache root.
func (c *Cache) Directory() string { return c.dir }

// Version returns the union of the app and internal versions.
func (c *Cache) Version() int { return c.version }

// LockEdit serializes writers of key. Callers hold the lock across their
// check-then-write sequence so concurrent producers do not race.
func (c *Cache) LockEdit(ctx context.Context, key string) (func(), error) {
	return c.locks.Lock(ctx, key)
}

// TryLockEdit is LockEdit without waiting.
func (c *Cache) TryLockEdit(key string) (func(), bool) {
	return c.locks.TryLock(key)
}

func (c *Cache) String() string {
	return fmt.Sprintf("DiskCache(%s,maxSize=%d,appVersion=%d,internalVersion=%d)",
		c.dir, c.maxSize, c.appVersion, c.internalVersion)
}

// Editor writes one entry. Exactly one of Commit or Abort must be called.
type Editor struct {
	cache *Cache
	key   string
	ed    *edit
}

// Key returns the caller's key.
func (e *Editor) Key() string { return e.key }

// Data returns the writer for the entry's data file.
func (e *Editor) Data() (io.Writer, error) { return e.ed.writer(0) }

// Metadata returns the writer for the entry's metadata file. Entries edited
// without it keep their previous metadata.
func (e *Editor) Metadata() (io.Writer, error) { return e.ed.writer(1) }

// Commit publishes the written files.
func (e *Editor) Commit() error {
	if err := e.ed.commit(); err != nil {
		e.cache.log().Warn("disk cache commit failed", "key", e.key, "error", err)
		return err
	}
	e.cache.log().Debug("disk cache commit", "key", e.key)
	return nil
}

// Abort discards the written files.
func (e *Editor) Abort() {
	if err := e.ed.abort(); err != nil {
		e.cache.log().Warn("disk cache abort failed", "key", e.key, "error", err)
		return
	}
	e.cache.log().Debug("disk cache abort", "key", e.key)
}

// Snapshot is a read view of one entry. It stays readable when the entry is
// replaced or removed after Get returned.
type Snapshot struct {
	cache *Cache
	key   string
	snap  *snapshot
}

// Key returns the caller's key.
func (s *Snapshot) Key() string { return s.key }

// File returns the path of the data file.
func (s *Snapshot) File() string { return s.snap.data.Name() }

// DataSize returns the length of the data file.
func (s *Snapshot) DataSize() int64 { return s.snap.dataSize }

// Data returns a fresh reader over the data file.
func (s *Snapshot) Data() io.Reader {
	return io.NewSectionReader(s.snap.data, 0, s.snap.dataSize)
}

// Metadata returns a fresh reader over the metadata file, if any.
func (s *Snapshot) Metadata() (io.Reader, bool) {
	if s.snap.meta == nil {
		return nil, false
	}
	return io.NewSectionReader(s.snap.meta, 0, s.snap.metaSize), true
}

// Edit begins an edit of the snapshot's entry.
func (s *Snapshot) Edit() *Editor { return s.cache.Edit(s.key) }

// Remove deletes the snapshot's entry. The snapshot stays readable.
func (s *Snapshot) Remove() bool { return s.cache.Remove(s.key) }

// Close releases the file handles.
func (s *Snapshot) Close() error { return s.snap.close() }
