package fetch

import (
	"context"
	"encoding/json"
	"io"

	"github.com/MaTriXy/Sketch/cache/disk"
	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/source"
)

type downloadMetadata struct {
	MimeType string `json:"mimeType,omitempty"`
}

// DownloadCacheInterceptor serves raw bytes from a disk cache keyed by the
// request URI, and stores bytes fetched from the network.
//
// Producers of the same key are serialized with the cache's edit lock and
// re-check the cache after acquiring it, so concurrent misses download once.
// The entry is committed or aborted before the lock is released.
type DownloadCacheInterceptor struct {
	cache *disk.Cache
}

// NewDownloadCacheInterceptor returns an interceptor over cache. A nil cache
// disables it.
func NewDownloadCacheInterceptor(cache *disk.Cache) *DownloadCacheInterceptor {
	return &DownloadCacheInterceptor{cache: cache}
}

func (d *DownloadCacheInterceptor) Intercept(ctx context.Context, chain *Chain) (*Result, error) {
	req := chain.Request()
	policy := req.DownloadCachePolicy()
	if d.cache == nil || policy == request.Disabled {
		return chain.Proceed(ctx, req)
	}
	key := req.DownloadCacheKey()

	if policy.ReadEnabled() {
		if res := d.read(key); res != nil {
			return res, nil
		}
	}
	if !policy.WriteEnabled() {
		return chain.Proceed(ctx, req)
	}

	unlock, err := d.cache.LockEdit(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if policy.ReadEnabled() {
		if res := d.read(key); res != nil {
			return res, nil
		}
	}

	res, err := chain.Proceed(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.DataFrom() != source.Network {
		return res, nil
	}
	d.write(ctx, chain, key, res)
	return res, nil
}

func (d *DownloadCacheInterceptor) read(key string) *Result {
	snap := d.cache.Get(key)
	if snap == nil {
		return nil
	}
	var meta downloadMetadata
	if r, ok := snap.Metadata(); ok {
		_ = json.NewDecoder(r).Decode(&meta)
	}
	return &Result{Source: source.NewSnapshot(snap, source.DownloadCache), MimeType: meta.MimeType}
}

func (d *DownloadCacheInterceptor) write(ctx context.Context, chain *Chain, key string, res *Result) {
	ed := d.cache.Edit(key)
	if ed == nil {
		return
	}
	if err := writeDownload(ed, res); err != nil {
		chain.Logger().Warn("download cache write failed", "key", key, "error", err)
		ed.Abort()
		return
	}
	if ctx.Err() != nil {
		ed.Abort()
		return
	}
	_ = ed.Commit()
}

func writeDownload(ed *disk.Editor, res *Result) error {
	w, err := ed.Data()
	if err != nil {
		return err
	}
	rc, err := res.Source.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return err
	}
	mw, err := ed.Metadata()
	if err != nil {
		return err
	}
	return json.NewEncoder(mw).Encode(downloadMetadata{MimeType: res.MimeType})
}
