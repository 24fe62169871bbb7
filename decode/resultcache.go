package decode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zstd"

	"github.com/MaTriXy/Sketch/cache/disk"
	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/source"
)

const (
	pixelFormatNRGBA = "nrgba+zstd"

	// maxCachedPixels bounds decompression of a cache entry.
	maxCachedPixels = 1 << 28
)

var (
	pixelEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
	pixelDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(maxCachedPixels*4))
)

type resultMetadata struct {
	Format       string            `json:"format"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Info         ImageInfo         `json:"info"`
	Transformeds []string          `json:"transformeds"`
	Extras       map[string]string `json:"extras,omitempty"`
}

// ResultCacheInterceptor stores decoded and transformed images on disk,
// keyed by the request key, and serves them without fetching or decoding.
// Only results carrying at least one transformed tag are stored.
type ResultCacheInterceptor struct {
	cache *disk.Cache
}

// NewResultCacheInterceptor returns an interceptor over cache. A nil cache
// disables it.
func NewResultCacheInterceptor(cache *disk.Cache) *ResultCacheInterceptor {
	return &ResultCacheInterceptor{cache: cache}
}

func (rc *ResultCacheInterceptor) Intercept(ctx context.Context, chain *Chain) (*Result, error) {
	req := chain.Request()
	policy := req.ResultCachePolicy()
	if rc.cache == nil || policy == request.Disabled {
		return chain.Proceed(ctx, req)
	}
	key := req.ResultCacheKey()

	if policy.ReadEnabled() {
		if res := rc.read(chain, key); res != nil {
			return res, nil
		}
	}
	if !policy.WriteEnabled() {
		return chain.Proceed(ctx, req)
	}

	unlock, err := rc.cache.LockEdit(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if policy.ReadEnabled() {
		if res := rc.read(chain, key); res != nil {
			return res, nil
		}
	}

	res, err := chain.Proceed(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(res.Transformeds) > 0 {
		rc.write(ctx, chain, key, res)
	}
	return res, nil
}

func (rc *ResultCacheInterceptor) read(chain *Chain, key string) *Result {
	snap := rc.cache.Get(key)
	if snap == nil {
		return nil
	}
	defer snap.Close()

	res, err := decodeCachedResult(snap)
	if err != nil {
		chain.Logger().Warn("result cache entry unreadable", "key", key, "error", err)
		snap.Remove()
		return nil
	}
	return res
}

func (rc *ResultCacheInterceptor) write(ctx context.Context, chain *Chain, key string, res *Result) {
	ed := rc.cache.Edit(key)
	if ed == nil {
		return
	}
	if err := encodeCachedResult(ed, res); err != nil {
		chain.Logger().Warn("result cache write failed", "key", key, "error", err)
		ed.Abort()
		return
	}
	if ctx.Err() != nil {
		ed.Abort()
		return
	}
	_ = ed.Commit()
}

func encodeCachedResult(ed *disk.Editor, res *Result) error {
	nrgba := imaging.Clone(res.Image.Image())
	b := nrgba.Bounds()

	w, err := ed.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(pixelEncoder.EncodeAll(nrgba.Pix, nil)); err != nil {
		return err
	}

	mw, err := ed.Metadata()
	if err != nil {
		return err
	}
	return json.NewEncoder(mw).Encode(resultMetadata{
		Format:       pixelFormatNRGBA,
		Width:        b.Dx(),
		Height:       b.Dy(),
		Info:         res.Info,
		Transformeds: res.Transformeds,
		Extras:       res.Extras,
	})
}

func decodeCachedResult(snap *disk.Snapshot) (*Result, error) {
	mr, ok := snap.Metadata()
	if !ok {
		return nil, errors.New("missing metadata")
	}
	var meta resultMetadata
	if err := json.NewDecoder(mr).Decode(&meta); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	if meta.Format != pixelFormatNRGBA {
		return nil, fmt.Errorf("unknown pixel format %q", meta.Format)
	}
	if meta.Width <= 0 || meta.Height <= 0 || int64(meta.Width)*int64(meta.Height) > maxCachedPixels {
		return nil, fmt.Errorf("invalid dimensions %dx%d", meta.Width, meta.Height)
	}

	compressed, err := io.ReadAll(snap.Data())
	if err != nil {
		return nil, err
	}
	want := meta.Width * meta.Height * 4
	pix, err := pixelDecoder.DecodeAll(compressed, make([]byte, 0, want))
	if err != nil {
		return nil, fmt.Errorf("pixels: %w", err)
	}
	if len(pix) != want {
		return nil, fmt.Errorf("pixels: got %d bytes, want %d", len(pix), want)
	}

	img := &image.NRGBA{Pix: pix, Stride: meta.Width * 4, Rect: image.Rect(0, 0, meta.Width, meta.Height)}
	return &Result{
		Image:        NewImage(img),
		Info:         meta.Info,
		DataFrom:     source.ResultCache,
		Transformeds: meta.Transformeds,
		Extras:       meta.Extras,
	}, nil
}
