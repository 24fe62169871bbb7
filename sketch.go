package sketch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/MaTriXy/Sketch/cache/disk"
	"github.com/MaTriXy/Sketch/decode"
	"github.com/MaTriXy/Sketch/fetch"
	"github.com/MaTriXy/Sketch/internal/inflight"
	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/source"
)

// Sketch executes image requests.
//
// A Sketch owns its caches and is safe for concurrent use. Identical
// requests that overlap in time share one fetch and decode.
type Sketch struct {
	logger *slog.Logger

	memory        *MemoryCache
	memorySet     bool
	downloadCache *disk.Cache
	resultCache   *disk.Cache

	fetcherFactories   []fetch.Factory
	decoderFactories   []decode.Factory
	fetchInterceptors  []fetch.Interceptor
	decodeInterceptors []decode.Interceptor

	decodeConcurrency   int
	prefetchConcurrency int
	httpTimeout         time.Duration
	httpMaxBytes        int64
	resourceFS          fs.FS
	ociOpts             []fetch.OCIOption

	fetchers    *fetch.Registry
	decoders    *decode.Registry
	fetchChain  []fetch.Interceptor
	decodeChain []decode.Interceptor
	pool        *semaphore.Weighted

	inflight inflight.Group[*decode.Result]
}

// New creates a Sketch with the given options.
//
// Without options the Sketch has a memory cache of [DefaultMemoryCacheSize]
// and no disk caches. Use [WithCacheDir] to enable both disk caches.
func New(opts ...Option) (*Sketch, error) {
	s := &Sketch{
		decodeConcurrency:   defaultConcurrency(),
		prefetchConcurrency: defaultConcurrency(),
		httpTimeout:         fetch.DefaultHTTPTimeout,
		httpMaxBytes:        fetch.DefaultHTTPMaxBytes,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Close()
			return nil, err
		}
	}
	if !s.memorySet {
		s.memory = NewMemoryCache(DefaultMemoryCacheSize, s.log())
	}

	factories := append([]fetch.Factory(nil), s.fetcherFactories...)
	factories = append(factories,
		fetch.NewHTTPFactory(
			fetch.WithHTTPTimeout(s.httpTimeout),
			fetch.WithHTTPMaxBytes(s.httpMaxBytes),
			fetch.WithHTTPLogger(s.log()),
		),
		fetch.NewFileFactory(),
		fetch.NewBase64Factory(),
		fetch.NewOCIFactory(append([]fetch.OCIOption{fetch.WithOCILogger(s.log())}, s.ociOpts...)...),
	)
	if s.resourceFS != nil {
		factories = append(factories, fetch.NewResourceFactory(s.resourceFS))
	}
	s.fetchers = fetch.NewRegistry(factories...)
	s.decoders = decode.NewRegistry(append(append([]decode.Factory(nil), s.decoderFactories...), decode.NewBitmapFactory())...)
	s.pool = semaphore.NewWeighted(int64(s.decodeConcurrency))

	s.fetchChain = append([]fetch.Interceptor(nil), s.fetchInterceptors...)
	if s.downloadCache != nil {
		s.fetchChain = append(s.fetchChain, fetch.NewDownloadCacheInterceptor(s.downloadCache))
	}
	s.fetchChain = append(s.fetchChain, fetch.Terminal(s.fetchers))

	s.decodeChain = append([]decode.Interceptor(nil), s.decodeInterceptors...)
	if s.resultCache != nil {
		s.decodeChain = append(s.decodeChain, decode.NewResultCacheInterceptor(s.resultCache))
	}
	s.decodeChain = append(s.decodeChain,
		decode.NewTransformationInterceptor(),
		decode.Terminal(s.decoders, s.pool),
	)
	return s, nil
}

func (s *Sketch) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Load builds a request for uri and executes it.
func (s *Sketch) Load(ctx context.Context, uri string, opts ...request.Option) (*decode.Result, error) {
	req, err := request.New(uri, opts...)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, req)
}

// Execute runs req through the memory cache and, on a miss, the fetch and
// decode pipelines.
//
// Concurrent calls for requests with the same key share one execution and
// receive the same result. A caller that gives up stops waiting; the shared
// execution is canceled only once no caller is waiting for it. Failures are
// not cached: a later identical request starts over.
func (s *Sketch) Execute(ctx context.Context, req *request.Request) (*decode.Result, error) {
	start := time.Now()
	req, err := req.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.fetchers.Fetcher(req); err != nil {
		return nil, err
	}

	key := req.Key()
	if res, ok := s.readMemory(req, key); ok {
		s.log().Debug("request done", "key", key, "data_from", res.DataFrom.String(), "duration", time.Since(start))
		return res, nil
	}
	if req.Depth() == request.DepthMemory {
		return nil, &request.DepthError{Key: key, Depth: req.Depth(), Tier: "local"}
	}

	res, err, shared := s.inflight.Do(ctx, key, func(ctx context.Context) (*decode.Result, error) {
		return s.run(ctx, req, key)
	})
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			level = slog.LevelDebug
		}
		s.log().Log(ctx, level, "request failed", "key", key, "shared", shared, "error", err)
		return nil, err
	}
	s.log().Debug("request done",
		"key", key,
		"data_from", res.DataFrom.String(),
		"shared", shared,
		"duration", time.Since(start),
	)
	return res, nil
}

func (s *Sketch) readMemory(req *request.Request, key string) (*decode.Result, bool) {
	if s.memory == nil || !req.MemoryCachePolicy().ReadEnabled() {
		return nil, false
	}
	res, ok := s.memory.Get(key)
	if !ok {
		return nil, false
	}
	return res.WithDataFrom(source.MemoryCache), true
}

// run is one shared execution for key.
func (s *Sketch) run(ctx context.Context, req *request.Request, key string) (*decode.Result, error) {
	// A call for key may have finished between the caller's miss and now.
	if res, ok := s.readMemory(req, key); ok {
		return res, nil
	}

	s.log().Debug("request start", "key", key)
	chain := decode.NewChain(req, s.decodeChain, s.fetch, s.log())
	defer func() {
		if err := chain.Close(); err != nil {
			s.log().Debug("release fetched data", "key", key, "error", err)
		}
	}()
	res, err := chain.Proceed(ctx, req)
	if err != nil {
		return nil, err
	}
	// Canceled work never reaches the caches.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.memory != nil && req.MemoryCachePolicy().WriteEnabled() {
		s.memory.Put(key, res, res.Weight())
	}
	return res, nil
}

func (s *Sketch) fetch(ctx context.Context, req *request.Request) (*fetch.Result, error) {
	return fetch.NewChain(req, s.fetchChain, s.log()).Proceed(ctx, req)
}

// Prefetch executes reqs concurrently to warm the caches and returns the
// first error.
func (s *Sketch) Prefetch(ctx context.Context, reqs ...*request.Request) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.prefetchConcurrency)
	for _, req := range reqs {
		g.Go(func() error {
			_, err := s.Execute(ctx, req)
			return err
		})
	}
	return g.Wait()
}

// MemoryCache returns the memory cache, or nil if disabled.
func (s *Sketch) MemoryCache() *MemoryCache { return s.memory }

// DownloadCache returns the download disk cache, or nil if disabled.
func (s *Sketch) DownloadCache() *disk.Cache { return s.downloadCache }

// ResultCache returns the result disk cache, or nil if disabled.
func (s *Sketch) ResultCache() *disk.Cache { return s.resultCache }

// Fetchers returns the fetcher registry in lookup order.
func (s *Sketch) Fetchers() *fetch.Registry { return s.fetchers }

// Decoders returns the decoder registry in lookup order.
func (s *Sketch) Decoders() *decode.Registry { return s.decoders }

// Close releases the disk caches' open files. The caches reopen on next use.
func (s *Sketch) Close() {
	if s.downloadCache != nil {
		s.downloadCache.Close()
	}
	if s.resultCache != nil {
		s.resultCache.Close()
	}
}
