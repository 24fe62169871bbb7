package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	nethttp "net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MaTriXy/Sketch/internal/inflight"
	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/source"
)

const (
	// DefaultHTTPTimeout bounds a single HTTP download.
	DefaultHTTPTimeout = 20 * time.Second

	// DefaultHTTPMaxBytes bounds the body of a single HTTP download.
	DefaultHTTPMaxBytes = 64 << 20

	// maxDrainBytes bounds how much of an unread body is drained to keep
	// the connection reusable.
	maxDrainBytes = 64 << 10
)

// HTTPFactory fetches http and https URIs. Concurrent downloads of the same
// URL and headers share one round trip, which is canceled once every caller
// waiting on it has given up.
type HTTPFactory struct {
	client   *nethttp.Client
	headers  nethttp.Header
	timeout  time.Duration
	maxBytes int64
	logger   *slog.Logger

	group inflight.Group[*Result]
}

// HTTPOption configures an HTTPFactory.
type HTTPOption func(*HTTPFactory)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *nethttp.Client) HTTPOption {
	return func(f *HTTPFactory) {
		f.client = client
	}
}

// WithHTTPHeaders sets additional headers on each request.
func WithHTTPHeaders(headers nethttp.Header) HTTPOption {
	return func(f *HTTPFactory) {
		if headers == nil {
			return
		}
		f.headers = headers.Clone()
	}
}

// WithHTTPTimeout bounds each download. Zero disables the bound.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(f *HTTPFactory) {
		f.timeout = d
	}
}

// WithHTTPMaxBytes bounds the response body. A larger body fails with
// ErrTooLarge. Zero or less disables the bound.
func WithHTTPMaxBytes(n int64) HTTPOption {
	return func(f *HTTPFactory) {
		f.maxBytes = n
	}
}

// WithHTTPLogger sets the logger for download events.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(f *HTTPFactory) {
		f.logger = logger
	}
}

// NewHTTPFactory returns a factory for http and https URIs.
func NewHTTPFactory(opts ...HTTPOption) *HTTPFactory {
	f := &HTTPFactory{
		client:   nethttp.DefaultClient,
		timeout:  DefaultHTTPTimeout,
		maxBytes: DefaultHTTPMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = nethttp.DefaultClient
	}
	return f
}

func (f *HTTPFactory) log() *slog.Logger {
	if f.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.logger
}

func (f *HTTPFactory) Create(req *request.Request) (Fetcher, bool, error) {
	raw := req.URI()
	scheme, _, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, false, nil
	}
	scheme = strings.ToLower(scheme)
	if scheme != "http" && scheme != "https" {
		return nil, false, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, true, &request.UriInvalidError{URI: raw, Reason: err.Error()}
	}
	if u.Host == "" {
		return nil, true, &request.UriInvalidError{URI: raw, Reason: "missing host"}
	}
	return &httpFetcher{factory: f, url: u.String(), headers: req.HTTPHeaders()}, true, nil
}

type httpFetcher struct {
	factory *HTTPFactory
	url     string
	headers nethttp.Header
}

func (h *httpFetcher) Network() bool { return true }

func (h *httpFetcher) Fetch(ctx context.Context) (*Result, error) {
	f := h.factory
	res, err, shared := f.group.Do(ctx, h.groupKey(), func(ctx context.Context) (*Result, error) {
		return f.download(ctx, h.url, h.headers)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		f.log().Debug("http download shared", "url", h.url)
	}
	return res, nil
}

func (h *httpFetcher) groupKey() string {
	if len(h.headers) == 0 {
		return h.url
	}
	var b strings.Builder
	b.WriteString(h.url)
	for _, k := range slices.Sorted(maps.Keys(h.headers)) {
		fmt.Fprintf(&b, "\n%s: %s", k, strings.Join(h.headers[k], ","))
	}
	return b.String()
}

func (f *HTTPFactory) download(ctx context.Context, rawURL string, headers nethttp.Header) (*Result, error) {
	parent := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := f.newRequest(ctx, rawURL, headers)
	if err != nil {
		return nil, &request.UriInvalidError{URI: rawURL, Reason: err.Error()}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.mapError(parent, rawURL, err)
	}
	defer func() {
		_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{URI: rawURL, StatusCode: resp.StatusCode, Err: ErrHTTPStatus}
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, f.tooLarge(rawURL)
	}
	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, f.mapError(parent, rawURL, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, f.tooLarge(rawURL)
	}

	mimeType := stripParams(resp.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		if sniffed := SniffMimeType(data); sniffed != "" {
			mimeType = sniffed
		}
	}

	f.log().Debug("http download",
		"url", rawURL,
		"status", resp.StatusCode,
		"bytes", len(data),
		"mime", mimeType,
		"duration", time.Since(start),
	)
	return &Result{Source: source.NewBytes(data, source.Network), MimeType: mimeType}, nil
}

func (f *HTTPFactory) newRequest(ctx context.Context, rawURL string, headers nethttp.Header) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range f.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	for key, values := range headers {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return req, nil
}

// mapError reports a timeout as ErrTimeout unless the caller itself gave up.
func (f *HTTPFactory) mapError(parent context.Context, rawURL string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{URI: rawURL, Err: fmt.Errorf("%w after %s", ErrTimeout, f.timeout)}
	}
	return &Error{URI: rawURL, Err: err}
}

func (f *HTTPFactory) tooLarge(rawURL string) error {
	return &Error{URI: rawURL, Err: fmt.Errorf("%w: body exceeds %d bytes", ErrTooLarge, f.maxBytes)}
}
