package fetch

import (
	"context"

	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/source"
)

// Result is fetched content and its MIME type, if known.
type Result struct {
	Source   source.DataSource
	MimeType string
}

// DataFrom reports where the content came from.
func (r *Result) DataFrom() source.DataFrom { return r.Source.DataFrom() }

// Fetcher fetches the content of one request.
type Fetcher interface {
	Fetch(ctx context.Context) (*Result, error)
}

// Factory builds Fetchers for the URIs it recognizes. Create reports false
// for URIs it does not handle and an error for URIs it handles but cannot
// parse.
type Factory interface {
	Create(req *request.Request) (Fetcher, bool, error)
}

// NetworkFetcher is implemented by Fetchers that leave the local machine.
type NetworkFetcher interface {
	Fetcher
	Network() bool
}

// IsNetwork reports whether f reaches the network.
func IsNetwork(f Fetcher) bool {
	nf, ok := f.(NetworkFetcher)
	return ok && nf.Network()
}

// Registry is an ordered list of Factories.
type Registry struct {
	factories []Factory
}

// NewRegistry returns a registry consulting factories in order.
func NewRegistry(factories ...Factory) *Registry {
	return &Registry{factories: append([]Factory(nil), factories...)}
}

// Factories returns the registered factories in order.
func (r *Registry) Factories() []Factory {
	return append([]Factory(nil), r.factories...)
}

// Fetcher returns a Fetcher from the first factory accepting req.
func (r *Registry) Fetcher(req *request.Request) (Fetcher, error) {
	for _, f := range r.factories {
		fetcher, ok, err := f.Create(req)
		if err != nil {
			return nil, err
		}
		if ok {
			return fetcher, nil
		}
	}
	return nil, &Error{URI: req.URI(), Err: ErrNoFetcher}
}
