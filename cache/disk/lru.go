package disk

import (
	"bufio"
	"container/list"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	metaSuffix  = ".meta"
	dirtySuffix = ".tmp"

	// rebuildThreshold is the number of redundant journal lines tolerated
	// before the journal is compacted.
	rebuildThreshold = 2000
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("disk: cache is closed")

type entry struct {
	key         string
	size        int64
	readable    bool
	dirtyOnLoad bool
	editor      *edit
	elem        *list.Element
}

// store is a journaled LRU of file pairs: a data file and an optional
// metadata file per key. A single mutex guards the journal, the LRU order and
// size accounting. File contents are written and read outside the lock.
type store struct {
	dir     string
	version int
	maxSize int64

	mu           sync.Mutex
	entries      map[string]*entry
	lru          *list.List // front is most recently used
	size         int64
	redundantOps int
	journal      *os.File
	writer       *bufio.Writer
	closed       bool
}

// openStore opens or creates the store in dir. A directory holding no
// journal, a journal written for another version, and a journal that cannot
// be replayed all lead to a wipe of dir.
func openStore(dir string, version int, maxSize int64, dirPerm os.FileMode) (s *store, wiped bool, err error) {
	s = &store{
		dir:     dir,
		version: version,
		maxSize: maxSize,
		entries: make(map[string]*entry),
		lru:     list.New(),
	}

	restoreBackup(dir)
	if _, statErr := os.Stat(dir); statErr == nil {
		if err := s.readJournal(); err == nil {
			s.processJournal()
			if err := s.rebuildJournal(); err != nil {
				return nil, false, err
			}
			s.trimToSize()
			return s, false, nil
		}
		s.entries = make(map[string]*entry)
		s.lru.Init()
		s.size = 0
		if err := os.RemoveAll(dir); err != nil {
			return nil, false, fmt.Errorf("disk: wipe %s: %w", dir, err)
		}
		wiped = true
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, wiped, err
	}
	if err := s.rebuildJournal(); err != nil {
		return nil, wiped, err
	}
	return s, wiped, nil
}

func (s *store) dataPath(key string) string { return filepath.Join(s.dir, key) }
func (s *store) metaPath(key string) string { return filepath.Join(s.dir, key+metaSuffix) }
func (s *store) cleanPaths(key string) []string {
	return []string{s.dataPath(key), s.metaPath(key)}
}
func (s *store) dirtyPaths(key string) []string {
	return []string{s.dataPath(key) + dirtySuffix, s.metaPath(key) + dirtySuffix}
}

func (s *store) entryFor(key string) *entry {
	if e, ok := s.entries[key]; ok {
		return e
	}
	e := &entry{key: key}
	e.elem = s.lru.PushFront(e)
	s.entries[key] = e
	return e
}

func (s *store) drop(e *entry) {
	s.lru.Remove(e.elem)
	delete(s.entries, e.key)
}

// get opens a snapshot of a readable entry, or returns nil when there is none.
func (s *store) get(key string) (*snapshot, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	e, ok := s.entries[key]
	if !ok || !e.readable {
		return nil, nil
	}

	data, err := os.Open(s.dataPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Removed behind our back; forget it.
			s.removeEntry(e)
			return nil, nil
		}
		return nil, err
	}
	snap := &snapshot{key: key, data: data}
	if info, err := data.Stat(); err == nil {
		snap.dataSize = info.Size()
	}
	if meta, err := os.Open(s.metaPath(key)); err == nil {
		snap.meta = meta
		if info, err := meta.Stat(); err == nil {
			snap.metaSize = info.Size()
		}
	}

	s.redundantOps++
	s.lru.MoveToFront(e.elem)
	if err := s.appendJournal(opRead, key); err != nil {
		snap.close()
		return nil, err
	}
	if err := s.maybeRebuild(); err != nil {
		snap.close()
		return nil, err
	}
	return snap, nil
}

// edit begins an edit of key. It returns nil when another edit of the same
// key is in progress.
func (s *store) edit(key string) (*edit, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	if e, ok := s.entries[key]; ok && e.editor != nil {
		return nil, nil
	}
	e := s.entryFor(key)
	ed := &edit{store: s, entry: e}
	e.editor = ed
	if err := s.appendJournal(opDirty, key); err != nil {
		e.editor = nil
		if !e.readable {
			s.drop(e)
		}
		return nil, err
	}
	return ed, nil
}

// complete finishes ed, publishing its files when success is true.
func (s *store) complete(ed *edit, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := ed.entry
	if e.editor != ed {
		return errors.New("disk: edit already completed")
	}
	e.editor = nil

	if s.closed {
		removeFiles(s.dirtyPaths(e.key)...)
		return ErrClosed
	}

	var commitErr error
	if success {
		commitErr = s.publish(ed)
		success = commitErr == nil
	}
	if !success {
		removeFiles(s.dirtyPaths(e.key)...)
	}

	s.redundantOps++
	var err error
	if e.readable {
		err = s.appendJournal(opClean, e.key, e.size)
	} else {
		s.drop(e)
		err = s.appendJournal(opRemove, e.key)
	}
	if err == nil {
		s.trimToSize()
		err = s.maybeRebuild()
	}
	return errors.Join(commitErr, err)
}

// publish renames the edit's dirty files over the clean ones and updates the
// size accounting. Called with s.mu held.
func (s *store) publish(ed *edit) error {
	e := ed.entry
	if !e.readable && !ed.written[0] {
		return errors.New("disk: new entry committed without data")
	}
	if e.readable && !ed.written[0] {
		if _, err := os.Stat(s.dataPath(e.key)); err != nil {
			return fmt.Errorf("disk: entry data evicted during edit: %w", err)
		}
	}

	dirty := s.dirtyPaths(e.key)
	clean := s.cleanPaths(e.key)
	for i := range ed.written {
		if !ed.written[i] {
			continue
		}
		if err := os.Rename(dirty[i], clean[i]); err != nil {
			return err
		}
	}

	var size int64
	for _, p := range clean {
		if info, err := os.Stat(p); err == nil {
			size += info.Size()
		}
	}
	if e.readable {
		s.size -= e.size
	}
	e.readable = true
	e.size = size
	s.size += size
	s.lru.MoveToFront(e.elem)
	return nil
}

// remove deletes a readable entry that is not being edited.
func (s *store) remove(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	e, ok := s.entries[key]
	if !ok || e.editor != nil || !e.readable {
		return false, nil
	}
	if err := s.removeEntry(e); err != nil {
		return false, err
	}
	return true, s.maybeRebuild()
}

func (s *store) exist(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && e.readable && !s.closed
}

// removeEntry deletes e's files and records the removal. Called with s.mu held.
func (s *store) removeEntry(e *entry) error {
	removeFiles(s.cleanPaths(e.key)...)
	if e.readable {
		s.size -= e.size
	}
	s.redundantOps++
	s.drop(e)
	return s.appendJournal(opRemove, e.key)
}

// trimToSize evicts least recently used readable entries until the store
// fits. An entry under edit loses its published files but keeps its editor.
// Called with s.mu held.
func (s *store) trimToSize() {
	for el := s.lru.Back(); el != nil && s.size > s.maxSize; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if e.readable {
			if e.editor != nil {
				removeFiles(s.cleanPaths(e.key)...)
				s.size -= e.size
				e.size = 0
				e.readable = false
				s.redundantOps++
			} else {
				_ = s.removeEntry(e)
			}
		}
		el = prev
	}
}

func (s *store) maybeRebuild() error {
	if s.redundantOps >= rebuildThreshold && s.redundantOps >= len(s.entries) {
		return s.rebuildJournal()
	}
	return nil
}

func (s *store) currentSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *store) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.readable {
			n++
		}
	}
	return n
}

// close aborts in-progress edits and closes the journal.
func (s *store) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, e := range s.entries {
		if e.editor != nil {
			e.editor.closeFiles()
			removeFiles(s.dirtyPaths(e.key)...)
		}
	}
	var err error
	if s.writer != nil {
		err = s.writer.Flush()
	}
	if s.journal != nil {
		err = errors.Join(err, s.journal.Close())
	}
	s.journal = nil
	s.writer = nil
	return err
}

func removeFiles(paths ...string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
