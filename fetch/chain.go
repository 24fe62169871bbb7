package fetch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MaTriXy/Sketch/request"
)

// Interceptor observes or short-circuits a fetch. Implementations call
// chain.Proceed to continue with the next interceptor.
type Interceptor interface {
	Intercept(ctx context.Context, chain *Chain) (*Result, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(ctx context.Context, chain *Chain) (*Result, error)

func (f InterceptorFunc) Intercept(ctx context.Context, chain *Chain) (*Result, error) {
	return f(ctx, chain)
}

// Chain is the position of one interceptor in a fetch pipeline.
type Chain struct {
	req          *request.Request
	interceptors []Interceptor
	index        int
	logger       *slog.Logger
}

// NewChain returns a chain that runs interceptors in order. The last
// interceptor must not proceed.
func NewChain(req *request.Request, interceptors []Interceptor, logger *slog.Logger) *Chain {
	return &Chain{req: req, interceptors: interceptors, logger: logger}
}

// Request returns the request seen by the current interceptor.
func (c *Chain) Request() *request.Request { return c.req }

// Logger returns the pipeline logger.
func (c *Chain) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Proceed runs the rest of the chain with req.
func (c *Chain) Proceed(ctx context.Context, req *request.Request) (*Result, error) {
	if c.index >= len(c.interceptors) {
		return nil, errors.New("fetch: interceptor chain exhausted")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	next := &Chain{req: req, interceptors: c.interceptors, index: c.index + 1, logger: c.logger}
	return c.interceptors[c.index].Intercept(ctx, next)
}

// Terminal is the last interceptor: it picks a Fetcher from registry and runs
// it. Requests limited to local depth may not use network fetchers.
func Terminal(registry *Registry) Interceptor {
	return InterceptorFunc(func(ctx context.Context, chain *Chain) (*Result, error) {
		req := chain.Request()
		f, err := registry.Fetcher(req)
		if err != nil {
			return nil, err
		}
		if req.Depth() != request.DepthNetwork && IsNetwork(f) {
			return nil, &request.DepthError{Key: req.Key(), Depth: req.Depth(), Tier: "network"}
		}
		chain.Logger().Debug("fetching", "uri", req.URI())
		return f.Fetch(ctx)
	})
}
