package disk

import (
	"io"
	"os"
	"sync"
)

// edit holds the dirty files of one in-progress edit.
type edit struct {
	store *store
	entry *entry

	mu      sync.Mutex
	files   [2]*os.File
	written [2]bool
}

func (ed *edit) writer(index int) (io.Writer, error) {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	if f := ed.files[index]; f != nil {
		return f, nil
	}
	path := ed.store.dirtyPaths(ed.entry.key)[index]
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	ed.files[index] = f
	ed.written[index] = true
	return f, nil
}

func (ed *edit) closeFiles() error {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	var firstErr error
	for i, f := range ed.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		ed.files[i] = nil
	}
	return firstErr
}

func (ed *edit) commit() error {
	if err := ed.closeFiles(); err != nil {
		_ = ed.store.complete(ed, false)
		return err
	}
	return ed.store.complete(ed, true)
}

func (ed *edit) abort() error {
	_ = ed.closeFiles()
	return ed.store.complete(ed, false)
}

// snapshot holds open handles on an entry's files. On POSIX systems the
// handles stay readable after the entry is replaced or removed.
type snapshot struct {
	key      string
	data     *os.File
	dataSize int64
	meta     *os.File
	metaSize int64
}

func (s *snapshot) close() error {
	err := s.data.Close()
	if s.meta != nil {
		if mErr := s.meta.Close(); err == nil {
			err = mErr
		}
	}
	return err
}
