// Package request defines the immutable image request and its cache key.
package request

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/MaTriXy/Sketch/resize"
	"github.com/MaTriXy/Sketch/transform"
)

// SizeResolver supplies the target size once it is known.
type SizeResolver func(ctx context.Context) (resize.Size, error)

// Request describes one image load. It is immutable once built; every
// modifying method returns a copy.
type Request struct {
	uri             string
	size            resize.Size
	sizeResolver    SizeResolver
	precision       resize.PrecisionDecider
	scale           resize.ScaleDecider
	transformations []transform.Transformation

	memoryCachePolicy   CachePolicy
	resultCachePolicy   CachePolicy
	downloadCachePolicy CachePolicy
	depth               Depth

	extras  Extras
	headers http.Header

	key string
}

// Option configures a Request.
type Option func(*Request)

// WithSize sets a fixed target size. The zero size keeps the original
// dimensions.
func WithSize(width, height int) Option {
	return func(r *Request) {
		r.size = resize.NewSize(width, height)
		r.sizeResolver = nil
	}
}

// WithSizeResolver defers the target size until Resolve.
func WithSizeResolver(fn SizeResolver) Option {
	return func(r *Request) {
		r.sizeResolver = fn
	}
}

// WithPrecision sets a fixed precision.
func WithPrecision(p resize.Precision) Option {
	return func(r *Request) {
		r.precision = resize.FixedPrecision(p)
	}
}

// WithPrecisionDecider picks the precision from the image size.
func WithPrecisionDecider(d resize.PrecisionDecider) Option {
	return func(r *Request) {
		r.precision = d
	}
}

// WithScale sets a fixed scale anchor.
func WithScale(s resize.Scale) Option {
	return func(r *Request) {
		r.scale = resize.FixedScale(s)
	}
}

// WithScaleDecider picks the scale anchor from the image size.
func WithScaleDecider(d resize.ScaleDecider) Option {
	return func(r *Request) {
		r.scale = d
	}
}

// WithTransformations appends transformations, applied in order.
func WithTransformations(ts ...transform.Transformation) Option {
	return func(r *Request) {
		r.transformations = append(r.transformations, ts...)
	}
}

// WithMemoryCachePolicy sets the memory cache policy.
func WithMemoryCachePolicy(p CachePolicy) Option {
	return func(r *Request) {
		r.memoryCachePolicy = p
	}
}

// WithResultCachePolicy sets the result (decoded) disk cache policy.
func WithResultCachePolicy(p CachePolicy) Option {
	return func(r *Request) {
		r.resultCachePolicy = p
	}
}

// WithDownloadCachePolicy sets the download (raw bytes) disk cache policy.
func WithDownloadCachePolicy(p CachePolicy) Option {
	return func(r *Request) {
		r.downloadCachePolicy = p
	}
}

// WithDepth bounds the tiers the engine may use.
func WithDepth(d Depth) Option {
	return func(r *Request) {
		r.depth = d
	}
}

// WithExtra attaches a parameter. When affectsKey is true the parameter is
// part of the RequestKey.
func WithExtra(key string, value any, affectsKey bool) Option {
	return func(r *Request) {
		r.extras = r.extras.with(key, value, affectsKey)
	}
}

// WithHTTPHeader adds a header sent by network fetchers.
func WithHTTPHeader(key, value string) Option {
	return func(r *Request) {
		if r.headers == nil {
			r.headers = make(http.Header)
		}
		r.headers.Add(key, value)
	}
}

// New builds a request for uri.
func New(uri string, opts ...Option) (*Request, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, &UriInvalidError{URI: uri, Reason: "empty"}
	}
	r := &Request{
		uri:       uri,
		precision: resize.FixedPrecision(resize.LessPixels),
		scale:     resize.FixedScale(resize.CenterCrop),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.precision == nil {
		r.precision = resize.FixedPrecision(resize.LessPixels)
	}
	if r.scale == nil {
		r.scale = resize.FixedScale(resize.CenterCrop)
	}
	r.key = r.buildKey()
	return r, nil
}

// MustNew is New for requests built from constants.
func MustNew(uri string, opts ...Option) *Request {
	r, err := New(uri, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// NewBuilder returns a copy of r with opts applied.
func (r *Request) NewBuilder(opts ...Option) *Request {
	c := r.clone()
	for _, opt := range opts {
		opt(c)
	}
	c.key = c.buildKey()
	return c
}

// Resolve returns a copy of r whose size is fixed. Requests without a size
// resolver are returned unchanged.
func (r *Request) Resolve(ctx context.Context) (*Request, error) {
	if r.sizeResolver == nil {
		return r, nil
	}
	size, err := r.sizeResolver(ctx)
	if err != nil {
		return nil, fmt.Errorf("request: resolve size for %q: %w", r.uri, err)
	}
	c := r.clone()
	c.size = size
	c.sizeResolver = nil
	c.key = c.buildKey()
	return c, nil
}

// Resolved reports whether the size is known.
func (r *Request) Resolved() bool { return r.sizeResolver == nil }

func (r *Request) URI() string                               { return r.uri }
func (r *Request) Size() resize.Size                         { return r.size }
func (r *Request) PrecisionDecider() resize.PrecisionDecider { return r.precision }
func (r *Request) ScaleDecider() resize.ScaleDecider         { return r.scale }
func (r *Request) MemoryCachePolicy() CachePolicy            { return r.memoryCachePolicy }
func (r *Request) ResultCachePolicy() CachePolicy            { return r.resultCachePolicy }
func (r *Request) DownloadCachePolicy() CachePolicy          { return r.downloadCachePolicy }
func (r *Request) Depth() Depth                              { return r.depth }
func (r *Request) Extras() Extras                            { return r.extras }

// Transformations returns the transformations in application order.
func (r *Request) Transformations() []transform.Transformation {
	return append([]transform.Transformation(nil), r.transformations...)
}

// HTTPHeaders returns a copy of the extra request headers.
func (r *Request) HTTPHeaders() http.Header { return r.headers.Clone() }

// Key returns the RequestKey: a deterministic encoding of every field that
// affects the decoded pixels.
func (r *Request) Key() string { return r.key }

// DownloadCacheKey identifies the raw bytes of the request's URI.
func (r *Request) DownloadCacheKey() string { return r.uri }

// ResultCacheKey identifies the decoded and transformed result on disk.
func (r *Request) ResultCacheKey() string { return r.key }

func (r *Request) String() string {
	return fmt.Sprintf("Request(%s)", r.key)
}

func (r *Request) clone() *Request {
	c := *r
	c.transformations = append([]transform.Transformation(nil), r.transformations...)
	c.headers = r.headers.Clone()
	return &c
}

func (r *Request) buildKey() string {
	var params []string
	if r.sizeResolver != nil {
		params = append(params, "_size=lazy")
	} else if !r.size.IsEmpty() {
		params = append(params, "_size="+r.size.String())
	}
	params = append(params,
		"_precision="+r.precision.Key(),
		"_scale="+r.scale.Key(),
	)
	if keys := transform.Keys(r.transformations); len(keys) > 0 {
		params = append(params, "_transformations=["+strings.Join(keys, ",")+"]")
	}
	if extras := r.extras.keyString(); extras != "" {
		params = append(params, "_extras="+extras)
	}
	sep := "?"
	if strings.Contains(r.uri, "?") {
		sep = "&"
	}
	return r.uri + sep + strings.Join(params, "&")
}
