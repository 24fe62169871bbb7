package decode

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaTriXy/Sketch/cache/disk"
	"github.com/MaTriXy/Sketch/fetch"
	"github.com/MaTriXy/Sketch/internal/testutil"
	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/resize"
	"github.com/MaTriXy/Sketch/source"
	"github.com/MaTriXy/Sketch/transform"
)

type countingFetch struct {
	data  []byte
	mime  string
	calls atomic.Int32
}

func (f *countingFetch) fetch(context.Context, *request.Request) (*fetch.Result, error) {
	f.calls.Add(1)
	return &fetch.Result{Source: source.NewBytes(f.data, source.Network), MimeType: f.mime}, nil
}

func decodeWith(t *testing.T, req *request.Request, f *countingFetch, interceptors ...Interceptor) (*Result, error) {
	t.Helper()
	all := append(interceptors, Terminal(NewRegistry(NewBitmapFactory()), nil))
	chain := NewChain(req, all, f.fetch, nil)
	defer chain.Close()
	return chain.Proceed(context.Background(), req)
}

func TestBitmapDecodeOriginalSize(t *testing.T) {
	t.Parallel()

	f := &countingFetch{data: testutil.PNG(t, 40, 30), mime: "image/png"}
	res, err := decodeWith(t, request.MustNew("x://a"), f)
	require.NoError(t, err)

	assert.Equal(t, 40, res.Image.Width())
	assert.Equal(t, 30, res.Image.Height())
	assert.Equal(t, ImageInfo{Width: 40, Height: 30, MimeType: "image/png", ExifOrientation: 1}, res.Info)
	assert.Equal(t, source.Network, res.DataFrom)
	assert.Empty(t, res.Transformeds)
	assert.Equal(t, int64(40*30*4), res.Weight())
}

func TestBitmapDecodeLessPixelsSubsamples(t *testing.T) {
	t.Parallel()

	f := &countingFetch{data: testutil.PNG(t, 400, 200), mime: "image/png"}
	res, err := decodeWith(t, request.MustNew("x://a", request.WithSize(100, 100)), f)
	require.NoError(t, err)

	assert.Equal(t, 100, res.Image.Width())
	assert.Equal(t, 50, res.Image.Height())
	assert.Equal(t, []string{InSampledTransformed(4)}, res.Transformeds)
	assert.Equal(t, 400, res.Info.Width, "info keeps the encoded size")
}

func TestBitmapDecodeExactlyCrops(t *testing.T) {
	t.Parallel()

	f := &countingFetch{data: testutil.PNG(t, 400, 200), mime: "image/png"}
	req := request.MustNew("x://a",
		request.WithSize(100, 100),
		request.WithPrecision(resize.Exactly),
		request.WithScale(resize.CenterCrop),
	)
	res, err := decodeWith(t, req, f)
	require.NoError(t, err)

	assert.Equal(t, 100, res.Image.Width())
	assert.Equal(t, 100, res.Image.Height())
	assert.Equal(t, []string{
		InSampledTransformed(2),
		ResizedTransformed(100, 100, resize.Exactly, resize.CenterCrop),
	}, res.Transformeds)
}

func TestBitmapDecodeExactlyUpscales(t *testing.T) {
	t.Parallel()

	f := &countingFetch{data: testutil.PNG(t, 20, 20), mime: "image/png"}
	req := request.MustNew("x://a", request.WithSize(50, 40), request.WithPrecision(resize.Exactly))
	res, err := decodeWith(t, req, f)
	require.NoError(t, err)

	assert.Equal(t, 50, res.Image.Width())
	assert.Equal(t, 40, res.Image.Height())
	_, ok := transform.FindTransformed(res.Transformeds, "ResizedTransformed")
	assert.True(t, ok)
	_, ok = transform.FindTransformed(res.Transformeds, "InSampledTransformed")
	assert.False(t, ok)
}

func TestBitmapDecodeExifOrientation(t *testing.T) {
	t.Parallel()

	f := &countingFetch{data: testutil.JPEG(t, 20, 10, 6), mime: "image/jpeg"}
	res, err := decodeWith(t, request.MustNew("x://a"), f)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Image.Width())
	assert.Equal(t, 20, res.Image.Height())
	assert.Equal(t, 6, res.Info.ExifOrientation)
	assert.Equal(t, 10, res.Info.Width)
	assert.Equal(t, 20, res.Info.Height)
	assert.Equal(t, []string{ExifOrientationTransformed(6)}, res.Transformeds)
}

func TestReadOrientation(t *testing.T) {
	t.Parallel()

	for _, o := range []int{1, 3, 6, 8} {
		assert.Equal(t, o, readOrientation(testutil.JPEG(t, 4, 4, o)), "orientation %d", o)
	}
	assert.Equal(t, 1, readOrientation(testutil.PNG(t, 4, 4)))
	assert.Equal(t, 1, readOrientation([]byte{0xFF, 0xD8, 0xFF}))
}

func TestBitmapDecodeUnknownMimeSniffs(t *testing.T) {
	t.Parallel()

	f := &countingFetch{data: testutil.PNG(t, 8, 8)}
	res, err := decodeWith(t, request.MustNew("x://a"), f)
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.Info.MimeType)
}

func TestBitmapDecodeGarbage(t *testing.T) {
	t.Parallel()

	f := &countingFetch{data: []byte("not an image"), mime: "image/png"}
	_, err := decodeWith(t, request.MustNew("x://a"), f)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "x://a", derr.URI)
}

func TestBitmapDecodeRejectsOversizedImage(t *testing.T) {
	t.Parallel()

	f := &countingFetch{data: testutil.PNG(t, 40, 30), mime: "image/png"}
	req := request.MustNew("x://a")
	chain := NewChain(req, []Interceptor{Terminal(NewRegistry(NewBitmapFactory(WithMaxPixels(40*30-1))), nil)}, f.fetch, nil)
	defer chain.Close()

	_, err := chain.Proceed(context.Background(), req)
	require.ErrorIs(t, err, ErrImageTooLarge)
	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "image/png", de.MimeType)

	res, err := decodeWith(t, req, &countingFetch{data: f.data, mime: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, 40, res.Image.Width())
}

func TestRegistryNoDecoder(t *testing.T) {
	t.Parallel()

	f := &countingFetch{data: []byte("%PDF"), mime: "application/pdf"}
	_, err := decodeWith(t, request.MustNew("x://a"), f)
	assert.ErrorIs(t, err, ErrNoDecoder)
}

func TestChainFetchRunsOnce(t *testing.T) {
	t.Parallel()

	f := &countingFetch{data: testutil.PNG(t, 8, 8), mime: "image/png"}
	peek := InterceptorFunc(func(ctx context.Context, chain *Chain) (*Result, error) {
		fetched, err := chain.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		assert.Equal(t, "image/png", fetched.MimeType)
		return chain.Proceed(ctx, chain.Request())
	})
	_, err := decodeWith(t, request.MustNew("x://a"), f, peek)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestChainFetchedSourceOutlivesRepeatedProceed(t *testing.T) {
	t.Parallel()

	cache, err := disk.New(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()
	ed := cache.Edit("x://a")
	require.NotNil(t, ed)
	w, err := ed.Data()
	require.NoError(t, err)
	_, err = w.Write(testutil.PNG(t, 8, 8))
	require.NoError(t, err)
	require.NoError(t, ed.Commit())

	var fetched *fetch.Result
	fetchFn := func(context.Context, *request.Request) (*fetch.Result, error) {
		snap := cache.Get("x://a")
		require.NotNil(t, snap)
		fetched = &fetch.Result{Source: source.NewSnapshot(snap, source.DownloadCache), MimeType: "image/png"}
		return fetched, nil
	}
	twice := InterceptorFunc(func(ctx context.Context, chain *Chain) (*Result, error) {
		if _, err := chain.Proceed(ctx, chain.Request()); err != nil {
			return nil, err
		}
		return chain.Proceed(ctx, chain.Request())
	})

	req := request.MustNew("x://a")
	chain := NewChain(req, []Interceptor{twice, Terminal(NewRegistry(NewBitmapFactory()), nil)}, fetchFn, nil)
	res, err := chain.Proceed(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, source.DownloadCache, res.DataFrom)

	require.NoError(t, chain.Close())
	_, err = source.ReadAll(fetched.Source)
	require.Error(t, err, "closing the chain releases the snapshot")
	require.NoError(t, chain.Close())
}

func TestChainShortCircuitSkipsFetch(t *testing.T) {
	t.Parallel()

	f := &countingFetch{data: testutil.PNG(t, 8, 8), mime: "image/png"}
	want := &Result{Image: NewImage(testutil.Gradient(2, 2)), DataFrom: source.Memory}
	stop := InterceptorFunc(func(context.Context, *Chain) (*Result, error) { return want, nil })

	res, err := decodeWith(t, request.MustNew("x://a"), f, stop)
	require.NoError(t, err)
	assert.Same(t, want, res)
	assert.Zero(t, f.calls.Load())
}

func TestTransformationInterceptor(t *testing.T) {
	t.Parallel()

	f := &countingFetch{data: testutil.PNG(t, 30, 10), mime: "image/png"}
	req := request.MustNew("x://a", request.WithTransformations(
		transform.NewRotate(90),
		transform.NewRotate(0),
		transform.NewBlur(2),
	))
	res, err := decodeWith(t, req, f, NewTransformationInterceptor())
	require.NoError(t, err)

	assert.Equal(t, 10, res.Image.Width())
	assert.Equal(t, 30, res.Image.Height())
	assert.Equal(t, []string{transform.RotateTransformed(90), transform.BlurTransformed(2)}, res.Transformeds)
}

func TestResultCacheRoundTrip(t *testing.T) {
	t.Parallel()

	cache, err := disk.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	f := &countingFetch{data: testutil.PNG(t, 64, 32), mime: "image/png"}
	req := request.MustNew("x://a",
		request.WithSize(16, 16),
		request.WithPrecision(resize.Exactly),
		request.WithTransformations(transform.NewRotate(90)),
	)
	chain := func() []Interceptor {
		return []Interceptor{NewResultCacheInterceptor(cache), NewTransformationInterceptor()}
	}

	first, err := decodeWith(t, req, f, chain()...)
	require.NoError(t, err)
	assert.Equal(t, source.Network, first.DataFrom)
	assert.True(t, cache.Exist(req.ResultCacheKey()))

	second, err := decodeWith(t, req, f, chain()...)
	require.NoError(t, err)
	assert.Equal(t, source.ResultCache, second.DataFrom)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, first.Transformeds, second.Transformeds)
	assert.Equal(t, first.Info, second.Info)
	assert.Equal(t, imaging.Clone(first.Image.Image()).Pix, imaging.Clone(second.Image.Image()).Pix)
}

func TestResultCacheSkipsUnchangedImages(t *testing.T) {
	t.Parallel()

	cache, err := disk.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	f := &countingFetch{data: testutil.PNG(t, 8, 8), mime: "image/png"}
	req := request.MustNew("x://a")
	_, err = decodeWith(t, req, f, NewResultCacheInterceptor(cache))
	require.NoError(t, err)
	assert.Zero(t, cache.Len())
}

func TestResultCachePolicies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		policy    request.CachePolicy
		wantCalls int32
		wantFrom  source.DataFrom
	}{
		{name: "enabled", policy: request.Enabled, wantCalls: 0, wantFrom: source.ResultCache},
		{name: "read only", policy: request.ReadOnly, wantCalls: 0, wantFrom: source.ResultCache},
		{name: "write only", policy: request.WriteOnly, wantCalls: 1, wantFrom: source.Network},
		{name: "disabled", policy: request.Disabled, wantCalls: 1, wantFrom: source.Network},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cache, err := disk.New(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(cache.Close)

			warm := &countingFetch{data: testutil.PNG(t, 64, 64), mime: "image/png"}
			req := request.MustNew("x://a", request.WithSize(8, 8))
			_, err = decodeWith(t, req, warm, NewResultCacheInterceptor(cache))
			require.NoError(t, err)
			require.True(t, cache.Exist(req.ResultCacheKey()))

			f := &countingFetch{data: warm.data, mime: "image/png"}
			req = request.MustNew("x://a", request.WithSize(8, 8), request.WithResultCachePolicy(tt.policy))
			res, err := decodeWith(t, req, f, NewResultCacheInterceptor(cache))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, f.calls.Load())
			assert.Equal(t, tt.wantFrom, res.DataFrom)
		})
	}
}

func TestResultCacheDropsCorruptEntry(t *testing.T) {
	t.Parallel()

	cache, err := disk.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	req := request.MustNew("x://a", request.WithSize(8, 8))
	ed := cache.Edit(req.ResultCacheKey())
	require.NotNil(t, ed)
	w, err := ed.Data()
	require.NoError(t, err)
	_, err = w.Write([]byte("junk"))
	require.NoError(t, err)
	require.NoError(t, ed.Commit())

	f := &countingFetch{data: testutil.PNG(t, 64, 64), mime: "image/png"}
	res, err := decodeWith(t, req, f, NewResultCacheInterceptor(cache))
	require.NoError(t, err)
	assert.Equal(t, source.Network, res.DataFrom)
	assert.Equal(t, int32(1), f.calls.Load())
}
