package fetch

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/source"
)

const resourceScheme = "resource://"

// ResourceFactory fetches resource://name URIs from a filesystem, typically
// an embed.FS bundled with the program.
type ResourceFactory struct {
	fsys fs.FS
}

// NewResourceFactory returns a factory reading from fsys.
func NewResourceFactory(fsys fs.FS) *ResourceFactory {
	return &ResourceFactory{fsys: fsys}
}

func (f *ResourceFactory) Create(req *request.Request) (Fetcher, bool, error) {
	raw := req.URI()
	if !strings.HasPrefix(raw, resourceScheme) {
		return nil, false, nil
	}
	name := strings.TrimPrefix(raw, resourceScheme)
	if !fs.ValidPath(name) || name == "." {
		return nil, true, &request.UriInvalidError{URI: raw, Reason: "invalid resource name"}
	}
	return &resourceFetcher{fsys: f.fsys, uri: raw, name: name}, true, nil
}

type resourceFetcher struct {
	fsys fs.FS
	uri  string
	name string
}

func (r *resourceFetcher) Fetch(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(r.fsys, r.name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{URI: r.uri, Err: errors.Join(ErrNotFound, err)}
		}
		return nil, &Error{URI: r.uri, Err: err}
	}
	mimeType := MimeTypeFromExtension(r.name)
	if mimeType == "" {
		mimeType = SniffMimeType(data)
	}
	return &Result{Source: source.NewBytes(data, source.Local), MimeType: mimeType}, nil
}
