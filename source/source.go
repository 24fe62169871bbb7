// Package source describes where fetched image bytes live and where they came
// from.
package source

import (
	"bytes"
	"io"
	"os"

	"github.com/MaTriXy/Sketch/cache/disk"
)

// DataFrom records the tier that produced a result.
type DataFrom int

const (
	MemoryCache DataFrom = iota
	Memory
	ResultCache
	DownloadCache
	Local
	Network
)

func (d DataFrom) String() string {
	switch d {
	case MemoryCache:
		return "MEMORY_CACHE"
	case Memory:
		return "MEMORY"
	case ResultCache:
		return "RESULT_CACHE"
	case DownloadCache:
		return "DOWNLOAD_CACHE"
	case Local:
		return "LOCAL"
	case Network:
		return "NETWORK"
	default:
		return "UNKNOWN"
	}
}

// DataSource is a re-readable byte source. Each Open returns an independent
// reader; Close releases whatever backs the source.
type DataSource interface {
	DataFrom() DataFrom
	Open() (io.ReadCloser, error)
	Close() error
}

// Bytes is an in-memory DataSource.
type Bytes struct {
	data []byte
	from DataFrom
}

// NewBytes wraps data.
func NewBytes(data []byte, from DataFrom) *Bytes {
	return &Bytes{data: data, from: from}
}

func (b *Bytes) DataFrom() DataFrom { return b.from }

func (b *Bytes) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

func (b *Bytes) Close() error { return nil }

// Bytes returns the underlying slice. Callers must not modify it.
func (b *Bytes) Bytes() []byte { return b.data }

// Size returns the number of bytes.
func (b *Bytes) Size() int64 { return int64(len(b.data)) }

// File is a DataSource backed by a path on the local filesystem.
type File struct {
	path string
	from DataFrom
}

// NewFile returns a source reading path.
func NewFile(path string, from DataFrom) *File {
	return &File{path: path, from: from}
}

func (f *File) DataFrom() DataFrom { return f.from }

func (f *File) Open() (io.ReadCloser, error) {
	return os.Open(f.path) //nolint:gosec // path comes from the request
}

func (f *File) Close() error { return nil }

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Snapshot is a DataSource over a disk cache snapshot. Closing it releases
// the snapshot.
type Snapshot struct {
	snap *disk.Snapshot
	from DataFrom
}

// NewSnapshot takes ownership of snap.
func NewSnapshot(snap *disk.Snapshot, from DataFrom) *Snapshot {
	return &Snapshot{snap: snap, from: from}
}

func (s *Snapshot) DataFrom() DataFrom { return s.from }

func (s *Snapshot) Open() (io.ReadCloser, error) {
	return io.NopCloser(s.snap.Data()), nil
}

func (s *Snapshot) Close() error { return s.snap.Close() }

// Size returns the length of the cached data.
func (s *Snapshot) Size() int64 { return s.snap.DataSize() }

// Path returns the cache file backing the snapshot.
func (s *Snapshot) Path() string { return s.snap.File() }

// ReadAll returns the full contents of src.
func ReadAll(src DataSource) ([]byte, error) {
	if b, ok := src.(*Bytes); ok {
		return b.data, nil
	}
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
