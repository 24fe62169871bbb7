package decode

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/MaTriXy/Sketch/fetch"
	"github.com/MaTriXy/Sketch/request"
)

// Interceptor observes or short-circuits a decode.
type Interceptor interface {
	Intercept(ctx context.Context, chain *Chain) (*Result, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(ctx context.Context, chain *Chain) (*Result, error)

func (f InterceptorFunc) Intercept(ctx context.Context, chain *Chain) (*Result, error) {
	return f(ctx, chain)
}

// FetchFunc runs the fetch pipeline for a request.
type FetchFunc func(ctx context.Context, req *request.Request) (*fetch.Result, error)

// Chain is the position of one interceptor in a decode pipeline.
type Chain struct {
	req          *request.Request
	interceptors []Interceptor
	index        int
	logger       *slog.Logger
	fetched      *lazyFetch
}

type lazyFetch struct {
	fn  FetchFunc
	mu  sync.Mutex
	res *fetch.Result
}

// NewChain returns a chain running interceptors in order. fetchFn backs
// Chain.Fetch.
func NewChain(req *request.Request, interceptors []Interceptor, fetchFn FetchFunc, logger *slog.Logger) *Chain {
	return &Chain{
		req:          req,
		interceptors: interceptors,
		logger:       logger,
		fetched:      &lazyFetch{fn: fetchFn},
	}
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

// Fetch runs the fetch pipeline for the current request once per chain and
// returns its result. Failed fetches are not remembered.
func (c *Chain) Fetch(ctx context.Context) (*fetch.Result, error) {
	lf := c.fetched
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.res != nil {
		return lf.res, nil
	}
	if lf.fn == nil {
		return nil, errors.New("decode: chain has no fetch pipeline")
	}
	res, err := lf.fn(ctx, c.req)
	if err != nil {
		return nil, err
	}
	lf.res = res
	return res, nil
}

// Close releases the data fetched by the chain, if any. The chain's owner
// calls it after the outermost Proceed returns; interceptors may proceed any
// number of times before that.
func (c *Chain) Close() error {
	lf := c.fetched
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.res == nil {
		return nil
	}
	err := lf.res.Source.Close()
	lf.res = nil
	return err
}

// Proceed runs the rest of the chain with req.
func (c *Chain) Proceed(ctx context.Context, req *request.Request) (*Result, error) {
	if c.index >= len(c.interceptors) {
		return nil, errors.New("decode: interceptor chain exhausted")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	next := &Chain{
		req:          req,
		interceptors: c.interceptors,
		index:        c.index + 1,
		logger:       c.logger,
		fetched:      c.fetched,
	}
	return c.interceptors[c.index].Intercept(ctx, next)
}

// Terminal is the last interceptor: it fetches, picks a Decoder from registry
// and decodes. When pool is non-nil each decode holds one unit of it.
func Terminal(registry *Registry, pool *semaphore.Weighted) Interceptor {
	return InterceptorFunc(func(ctx context.Context, chain *Chain) (*Result, error) {
		req := chain.Request()
		fetched, err := chain.Fetch(ctx)
		if err != nil {
			return nil, err
		}

		dec, err := registry.Decoder(req, fetched)
		if err != nil {
			return nil, err
		}
		if pool != nil {
			if err := pool.Acquire(ctx, 1); err != nil {
				return nil, err
			}
			defer pool.Release(1)
		}
		res, err := dec.Decode(ctx)
		if err != nil {
			return nil, err
		}
		chain.Logger().Debug("decoded",
			"uri", req.URI(),
			"size", res.Image.String(),
			"data_from", res.DataFrom.String(),
			"transformeds", res.Transformeds,
		)
		return res, nil
	})
}
