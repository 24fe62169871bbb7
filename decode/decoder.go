package decode

import (
	"context"

	"github.com/MaTriXy/Sketch/fetch"
	"github.com/MaTriXy/Sketch/request"
)

// Decoder decodes one fetched result.
type Decoder interface {
	Decode(ctx context.Context) (*Result, error)
}

// Factory builds Decoders for the data it understands.
type Factory interface {
	Create(req *request.Request, fetched *fetch.Result) (Decoder, bool)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(req *request.Request, fetched *fetch.Result) (Decoder, bool)

func (f FactoryFunc) Create(req *request.Request, fetched *fetch.Result) (Decoder, bool) {
	return f(req, fetched)
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

// Decoder returns a Decoder from the first factory accepting fetched.
func (r *Registry) Decoder(req *request.Request, fetched *fetch.Result) (Decoder, error) {
	for _, f := range r.factories {
		if d, ok := f.Create(req, fetched); ok {
			return d, nil
		}
	}
	return nil, &Error{URI: req.URI(), MimeType: fetched.MimeType, Err: ErrNoDecoder}
}
