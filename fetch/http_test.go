package fetch

import (
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/source"
)

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	var gotHeader string
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotHeader = r.Header.Get("X-Token")
		w.Header().Set("Content-Type", "image/png; charset=binary")
		_, _ = w.Write(pngHeader)
	}))
	t.Cleanup(server.Close)

	reg := NewRegistry(NewHTTPFactory(WithHTTPClient(server.Client())))
	req := request.MustNew(server.URL+"/a.png", request.WithHTTPHeader("X-Token", "secret"))
	res, err := run(context.Background(), req, Terminal(reg))
	require.NoError(t, err)
	assert.Equal(t, source.Network, res.DataFrom())
	assert.Equal(t, "image/png", res.MimeType)
	assert.Equal(t, pngHeader, readResult(t, res))
	assert.Equal(t, "secret", gotHeader)
}

func TestHTTPFetcherSniffsMissingContentType(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngHeader)
	}))
	t.Cleanup(server.Close)

	res, err := run(context.Background(), request.MustNew(server.URL), Terminal(NewRegistry(NewHTTPFactory())))
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.MimeType)
}

func TestHTTPFetcherStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		nethttp.Error(w, "gone", nethttp.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	_, err := run(context.Background(), request.MustNew(server.URL+"/missing.png"), Terminal(NewRegistry(NewHTTPFactory())))
	require.ErrorIs(t, err, ErrHTTPStatus)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, nethttp.StatusNotFound, fe.StatusCode)
}

func TestHTTPFetcherTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	reg := NewRegistry(NewHTTPFactory(WithHTTPTimeout(50 * time.Millisecond)))
	_, err := run(context.Background(), request.MustNew(server.URL), Terminal(reg))
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, Retryable(err))
}

func TestHTTPFetcherCallerCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	reg := NewRegistry(NewHTTPFactory(WithHTTPTimeout(time.Second)))
	_, err := run(ctx, request.MustNew(server.URL), Terminal(reg))
	require.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled), "err = %v", err)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestHTTPFetcherSharesConcurrentDownloads(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write(pngHeader)
	}))
	t.Cleanup(server.Close)

	factory := NewHTTPFactory()
	reg := NewRegistry(factory)
	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Different sizes give different request keys but the same URL.
			req := request.MustNew(server.URL+"/a.png", request.WithSize(10+i, 10))
			res, err := run(context.Background(), req, Terminal(reg))
			if err != nil {
				t.Errorf("fetch error = %v", err)
				return
			}
			_ = res.Source.Close()
		}()
	}
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPFactoryCreate(t *testing.T) {
	t.Parallel()

	f := NewHTTPFactory()
	tests := []struct {
		uri     string
		matched bool
		wantErr bool
	}{
		{"https://example.com/a.png", true, false},
		{"HTTP://example.com/a.png", true, false},
		{"http:///nohost.png", true, true},
		{"ftp://example.com/a.png", false, false},
		{"/abs/path.png", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			_, ok, err := f.Create(request.MustNew(tt.uri))
			assert.Equal(t, tt.matched, ok)
			if tt.wantErr {
				require.ErrorIs(t, err, request.ErrInvalidURI)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestHTTPFetcherCancelsDownloadWhenCallersLeave(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	aborted := make(chan struct{})
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		close(started)
		<-r.Context().Done()
		close(aborted)
	}))
	t.Cleanup(server.Close)

	reg := NewRegistry(NewHTTPFactory(WithHTTPTimeout(10 * time.Second)))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := run(ctx, request.MustNew(server.URL+"/a.png"), Terminal(reg))
		errc <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("download kept running after its only caller canceled")
	}
}

func TestHTTPFetcherSharedDownloadSurvivesOneCaller(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
		select {
		case <-release:
			_, _ = w.Write(pngHeader)
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)

	factory := NewHTTPFactory()
	reg := NewRegistry(factory)
	key := (&httpFetcher{url: server.URL + "/a.png"}).groupKey()
	leaving, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := run(leaving, request.MustNew(server.URL+"/a.png"), Terminal(reg))
		errc <- err
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)

	resc := make(chan *Result, 1)
	go func() {
		res, err := run(context.Background(), request.MustNew(server.URL+"/a.png", request.WithSize(5, 5)), Terminal(reg))
		if err != nil {
			t.Errorf("fetch error = %v", err)
		}
		resc <- res
	}()
	require.Eventually(t, func() bool { return factory.group.Waiters(key) == 2 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
	close(release)

	res := <-resc
	require.NotNil(t, res)
	assert.Equal(t, pngHeader, readResult(t, res))
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPFetcherMaxBytes(t *testing.T) {
	t.Parallel()

	body := make([]byte, 100)
	tests := []struct {
		name    string
		chunked bool
	}{
		{"content length", false},
		{"chunked", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
				if tt.chunked {
					w.(nethttp.Flusher).Flush()
				}
				_, _ = w.Write(body)
			}))
			t.Cleanup(server.Close)

			reg := NewRegistry(NewHTTPFactory(WithHTTPMaxBytes(10)))
			_, err := run(context.Background(), request.MustNew(server.URL), Terminal(reg))
			require.ErrorIs(t, err, ErrTooLarge)
			var fe *Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, server.URL, fe.URI)

			reg = NewRegistry(NewHTTPFactory(WithHTTPMaxBytes(int64(len(body)))))
			res, err := run(context.Background(), request.MustNew(server.URL), Terminal(reg))
			require.NoError(t, err)
			assert.Len(t, readResult(t, res), len(body))
		})
	}
}
