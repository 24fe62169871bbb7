package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaTriXy/Sketch/cache/disk"
	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/source"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type countingFactory struct {
	prefix string
	data   []byte
	from   source.DataFrom
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (f *countingFactory) Create(req *request.Request) (Fetcher, bool, error) {
	if len(req.URI()) < len(f.prefix) || req.URI()[:len(f.prefix)] != f.prefix {
		return nil, false, nil
	}
	return f, true, nil
}

func (f *countingFactory) Fetch(ctx context.Context) (*Result, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Source: source.NewBytes(f.data, f.from), MimeType: "image/png"}, nil
}

func (f *countingFactory) Network() bool { return f.from == source.Network }

func readResult(t *testing.T, res *Result) []byte {
	t.Helper()
	data, err := source.ReadAll(res.Source)
	require.NoError(t, err)
	require.NoError(t, res.Source.Close())
	return data
}

func run(ctx context.Context, req *request.Request, interceptors ...Interceptor) (*Result, error) {
	return NewChain(req, interceptors, nil).Proceed(ctx, req)
}

func TestRegistryFirstMatchWins(t *testing.T) {
	t.Parallel()

	first := &countingFactory{prefix: "x://", data: []byte("first"), from: source.Memory}
	second := &countingFactory{prefix: "x://", data: []byte("second"), from: source.Memory}
	reg := NewRegistry(first, second)

	res, err := run(context.Background(), request.MustNew("x://a"), Terminal(reg))
	require.NoError(t, err)
	assert.Equal(t, "first", string(readResult(t, res)))
	assert.Zero(t, second.calls.Load())
}

func TestRegistryNoFetcher(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(NewHTTPFactory()).Fetcher(request.MustNew("gopher://x"))
	require.ErrorIs(t, err, ErrNoFetcher)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "gopher://x", fe.URI)
}

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) Interceptor {
		return InterceptorFunc(func(ctx context.Context, chain *Chain) (*Result, error) {
			order = append(order, name)
			return chain.Proceed(ctx, chain.Request())
		})
	}
	f := &countingFactory{prefix: "x://", data: []byte("d"), from: source.Memory}
	_, err := run(context.Background(), request.MustNew("x://a"), mark("a"), mark("b"), Terminal(NewRegistry(f)))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestChainShortCircuit(t *testing.T) {
	t.Parallel()

	f := &countingFactory{prefix: "x://", data: []byte("d"), from: source.Memory}
	stub := InterceptorFunc(func(context.Context, *Chain) (*Result, error) {
		return &Result{Source: source.NewBytes([]byte("stub"), source.Memory)}, nil
	})
	res, err := run(context.Background(), request.MustNew("x://a"), stub, Terminal(NewRegistry(f)))
	require.NoError(t, err)
	assert.Equal(t, "stub", string(readResult(t, res)))
	assert.Zero(t, f.calls.Load())
}

func TestTerminalDepthLocalRejectsNetwork(t *testing.T) {
	t.Parallel()

	f := &countingFactory{prefix: "x://", data: []byte("d"), from: source.Network}
	req := request.MustNew("x://a", request.WithDepth(request.DepthLocal))
	_, err := run(context.Background(), req, Terminal(NewRegistry(f)))
	var depthErr *request.DepthError
	require.ErrorAs(t, err, &depthErr)
	assert.Zero(t, f.calls.Load())
}

func TestFileFetcher(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o600))
	noExt := filepath.Join(dir, "photo")
	require.NoError(t, os.WriteFile(noExt, pngHeader, 0o600))
	reg := NewRegistry(NewFileFactory())

	for _, uri := range []string{path, "file://" + filepath.ToSlash(path), noExt} {
		res, err := run(context.Background(), request.MustNew(uri), Terminal(reg))
		require.NoError(t, err, uri)
		assert.Equal(t, source.Local, res.DataFrom())
		assert.Equal(t, "image/png", res.MimeType)
		assert.Equal(t, pngHeader, readResult(t, res))
	}

	_, err := run(context.Background(), request.MustNew(filepath.Join(dir, "missing.png")), Terminal(reg))
	require.ErrorIs(t, err, ErrNotFound)

	_, ok, err := NewFileFactory().Create(request.MustNew("relative/path.png"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResourceFetcher(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{"icons/logo.png": {Data: pngHeader}}
	reg := NewRegistry(NewResourceFactory(fsys))

	res, err := run(context.Background(), request.MustNew("resource://icons/logo.png"), Terminal(reg))
	require.NoError(t, err)
	assert.Equal(t, source.Local, res.DataFrom())
	assert.Equal(t, "image/png", res.MimeType)

	_, err = run(context.Background(), request.MustNew("resource://icons/none.png"), Terminal(reg))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = reg.Fetcher(request.MustNew("resource://../escape.png"))
	require.ErrorIs(t, err, request.ErrInvalidURI)
}

func TestDownloadCacheInterceptor(t *testing.T) {
	t.Parallel()

	cache, err := disk.New(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	f := &countingFactory{prefix: "x://", data: []byte("network bytes"), from: source.Network}
	chain := []Interceptor{NewDownloadCacheInterceptor(cache), Terminal(NewRegistry(f))}

	res, err := run(context.Background(), request.MustNew("x://a"), chain...)
	require.NoError(t, err)
	assert.Equal(t, source.Network, res.DataFrom())
	assert.Equal(t, "network bytes", string(readResult(t, res)))

	res, err = run(context.Background(), request.MustNew("x://a", request.WithSize(10, 10)), chain...)
	require.NoError(t, err)
	assert.Equal(t, source.DownloadCache, res.DataFrom(), "download cache is keyed by uri only")
	assert.Equal(t, "image/png", res.MimeType)
	assert.Equal(t, "network bytes", string(readResult(t, res)))
	assert.Equal(t, int32(1), f.calls.Load())

	res, err = run(context.Background(), request.MustNew("x://a", request.WithDownloadCachePolicy(request.Disabled)), chain...)
	require.NoError(t, err)
	assert.Equal(t, source.Network, res.DataFrom())
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestDownloadCacheWriteOnlyAndLocal(t *testing.T) {
	t.Parallel()

	cache, err := disk.New(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	local := &countingFactory{prefix: "l://", data: []byte("local"), from: source.Local}
	net := &countingFactory{prefix: "n://", data: []byte("net"), from: source.Network}
	chain := []Interceptor{NewDownloadCacheInterceptor(cache), Terminal(NewRegistry(local, net))}

	_, err = run(context.Background(), request.MustNew("l://a"), chain...)
	require.NoError(t, err)
	assert.False(t, cache.Exist("l://a"), "local bytes are not copied into the cache")

	req := request.MustNew("n://a", request.WithDownloadCachePolicy(request.WriteOnly))
	for range 2 {
		res, err := run(context.Background(), req, chain...)
		require.NoError(t, err)
		assert.Equal(t, source.Network, res.DataFrom())
	}
	assert.True(t, cache.Exist("n://a"))
	assert.Equal(t, int32(2), net.calls.Load())

	res, err := run(context.Background(), request.MustNew("n://a", request.WithDepth(request.DepthLocal)), chain...)
	require.NoError(t, err, "cached bytes satisfy local depth")
	assert.Equal(t, source.DownloadCache, res.DataFrom())
	require.NoError(t, res.Source.Close())
}

func TestDownloadCacheConcurrentMissesFetchOnce(t *testing.T) {
	t.Parallel()

	cache, err := disk.New(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	f := &countingFactory{prefix: "x://", data: []byte("shared"), from: source.Network, delay: 20 * time.Millisecond}
	chain := []Interceptor{NewDownloadCacheInterceptor(cache), Terminal(NewRegistry(f))}

	const goroutines = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := run(context.Background(), request.MustNew("x://a"), chain...)
			if err != nil {
				t.Errorf("fetch error = %v", err)
				return
			}
			data, err := source.ReadAll(res.Source)
			if err != nil || string(data) != "shared" {
				t.Errorf("data = %q, err = %v", data, err)
			}
			_ = res.Source.Close()
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRetryInterceptor(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	flaky := InterceptorFunc(func(context.Context, *Chain) (*Result, error) {
		if calls.Add(1) < 3 {
			return nil, &Error{URI: "x://a", StatusCode: 503, Err: ErrHTTPStatus}
		}
		return &Result{Source: source.NewBytes([]byte("ok"), source.Network)}, nil
	})
	res, err := run(context.Background(), request.MustNew("x://a"), RetryInterceptor(3, time.Millisecond), flaky)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(readResult(t, res)))
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	notFound := InterceptorFunc(func(context.Context, *Chain) (*Result, error) {
		calls.Add(1)
		return nil, &Error{URI: "x://a", StatusCode: 404, Err: ErrHTTPStatus}
	})
	_, err = run(context.Background(), request.MustNew("x://a"), RetryInterceptor(5, time.Millisecond), notFound)
	require.ErrorIs(t, err, ErrHTTPStatus)
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, Retryable(&Error{Err: ErrTimeout}))
	assert.True(t, Retryable(&Error{StatusCode: 429, Err: ErrHTTPStatus}))
	assert.False(t, Retryable(&Error{StatusCode: 400, Err: ErrHTTPStatus}))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(errors.New("plain")))
	assert.False(t, Retryable(nil))
}

func TestMimeHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "image/png", MimeTypeFromExtension("/a/b.PNG"))
	assert.Equal(t, "image/jpeg", MimeTypeFromExtension("x.jpg"))
	assert.Equal(t, "", MimeTypeFromExtension("noext"))
	assert.Equal(t, "image/png", SniffMimeType(pngHeader))
	assert.Equal(t, "image/gif", SniffMimeType([]byte("GIF89a......")))
	assert.Equal(t, "", SniffMimeType(nil))
}

