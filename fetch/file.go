package fetch

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/source"
)

// FileFactory fetches file:// URIs and absolute paths.
type FileFactory struct{}

// NewFileFactory returns a factory for local files.
func NewFileFactory() *FileFactory { return &FileFactory{} }

func (FileFactory) Create(req *request.Request) (Fetcher, bool, error) {
	raw := req.URI()
	switch {
	case strings.HasPrefix(raw, "file://"):
		u, err := url.Parse(raw)
		if err != nil {
			return nil, true, &request.UriInvalidError{URI: raw, Reason: err.Error()}
		}
		if u.Path == "" {
			return nil, true, &request.UriInvalidError{URI: raw, Reason: "empty path"}
		}
		return &fileFetcher{uri: raw, path: filepath.FromSlash(u.Path)}, true, nil
	case filepath.IsAbs(raw):
		return &fileFetcher{uri: raw, path: filepath.Clean(raw)}, true, nil
	default:
		return nil, false, nil
	}
}

type fileFetcher struct {
	uri  string
	path string
}

func (f *fileFetcher) Fetch(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{URI: f.uri, Err: errors.Join(ErrNotFound, err)}
		}
		return nil, &Error{URI: f.uri, Err: err}
	}
	if info.IsDir() {
		return nil, &Error{URI: f.uri, Err: errors.New("fetch: path is a directory")}
	}

	src := source.NewFile(f.path, source.Local)
	mimeType := MimeTypeFromExtension(f.path)
	if mimeType == "" {
		mimeType = sniffSource(src)
	}
	return &Result{Source: src, MimeType: mimeType}, nil
}

func sniffSource(src source.DataSource) string {
	rc, err := src.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(rc, head)
	return SniffMimeType(head[:n])
}
