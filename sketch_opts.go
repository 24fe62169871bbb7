package sketch

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/MaTriXy/Sketch/cache/disk"
	"github.com/MaTriXy/Sketch/decode"
	"github.com/MaTriXy/Sketch/fetch"
)

// Option configures a Sketch.
type Option func(*Sketch) error

// Default cache limits and versions for WithCacheDir.
const (
	DefaultMemoryCacheSize   int64 = 64 << 20  // 64 MB
	DefaultDownloadCacheSize int64 = 300 << 20 // 300 MB
	DefaultResultCacheSize   int64 = 200 << 20 // 200 MB

	// Internal versions keep the two disk caches in separate namespaces and
	// invalidate them when their on-disk formats change.
	DownloadCacheInternalVersion = 1
	ResultCacheInternalVersion   = 2
)

func defaultConcurrency() int {
	return max(runtime.GOMAXPROCS(0), 1)
}

// --- Logging ---

// WithLogger sets the logger for the Sketch and everything it creates.
// Set it before cache options so the caches log through it.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sketch) error {
		s.logger = logger
		return nil
	}
}

// --- Cache Options ---

// WithMemoryCache sets the memory cache. A nil cache disables memory caching.
func WithMemoryCache(cache *MemoryCache) Option {
	return func(s *Sketch) error {
		s.memory = cache
		s.memorySet = true
		return nil
	}
}

// WithDownloadCache sets the disk cache for downloaded bytes.
func WithDownloadCache(cache *disk.Cache) Option {
	return func(s *Sketch) error {
		s.downloadCache = cache
		return nil
	}
}

// WithResultCache sets the disk cache for decoded and transformed images.
func WithResultCache(cache *disk.Cache) Option {
	return func(s *Sketch) error {
		s.resultCache = cache
		return nil
	}
}

// WithCacheDir enables both disk caches with default sizes in
// subdirectories of dir.
//
// This creates:
//   - dir/download/ - downloaded bytes (300 MB)
//   - dir/result/   - decoded and transformed images (200 MB)
//
// appVersion tags both caches; changing it invalidates them. For custom
// sizes use [WithDownloadCache] and [WithResultCache].
func WithCacheDir(dir string, appVersion int) Option {
	return func(s *Sketch) error {
		if dir == "" {
			return errors.New("sketch: cache dir is empty")
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}

		download, err := disk.New(filepath.Join(dir, "download"),
			disk.WithMaxSize(DefaultDownloadCacheSize),
			disk.WithAppVersion(appVersion),
			disk.WithInternalVersion(DownloadCacheInternalVersion),
			disk.WithLogger(s.log()),
		)
		if err != nil {
			return err
		}
		s.downloadCache = download

		result, err := disk.New(filepath.Join(dir, "result"),
			disk.WithMaxSize(DefaultResultCacheSize),
			disk.WithAppVersion(appVersion),
			disk.WithInternalVersion(ResultCacheInternalVersion),
			disk.WithLogger(s.log()),
		)
		if err != nil {
			return err
		}
		s.resultCache = result
		return nil
	}
}

// --- Pipeline Options ---

// WithFetcherFactories registers fetcher factories ahead of the built-in ones.
func WithFetcherFactories(factories ...fetch.Factory) Option {
	return func(s *Sketch) error {
		s.fetcherFactories = append(s.fetcherFactories, factories...)
		return nil
	}
}

// WithDecoderFactories registers decoder factories ahead of the built-in one.
func WithDecoderFactories(factories ...decode.Factory) Option {
	return func(s *Sketch) error {
		s.decoderFactories = append(s.decoderFactories, factories...)
		return nil
	}
}

// WithFetchInterceptors adds interceptors that run before the download
// cache and the fetchers.
func WithFetchInterceptors(interceptors ...fetch.Interceptor) Option {
	return func(s *Sketch) error {
		s.fetchInterceptors = append(s.fetchInterceptors, interceptors...)
		return nil
	}
}

// WithDecodeInterceptors adds interceptors that run before the result
// cache, transformations and decoders.
func WithDecodeInterceptors(interceptors ...decode.Interceptor) Option {
	return func(s *Sketch) error {
		s.decodeInterceptors = append(s.decodeInterceptors, interceptors...)
		return nil
	}
}

// WithDecodeConcurrency bounds the number of decodes running at once.
// The default is GOMAXPROCS.
func WithDecodeConcurrency(n int) Option {
	return func(s *Sketch) error {
		if n < 1 {
			return errors.New("sketch: decode concurrency must be positive")
		}
		s.decodeConcurrency = n
		return nil
	}
}

// WithPrefetchConcurrency bounds the number of requests Prefetch runs at once.
func WithPrefetchConcurrency(n int) Option {
	return func(s *Sketch) error {
		if n < 1 {
			return errors.New("sketch: prefetch concurrency must be positive")
		}
		s.prefetchConcurrency = n
		return nil
	}
}

// --- Fetcher Options ---

// WithHTTPTimeout sets the timeout of each HTTP download.
func WithHTTPTimeout(d time.Duration) Option {
	return func(s *Sketch) error {
		s.httpTimeout = d
		return nil
	}
}

// WithHTTPMaxBytes bounds the body of each HTTP download. Zero or less
// disables the bound.
func WithHTTPMaxBytes(n int64) Option {
	return func(s *Sketch) error {
		s.httpMaxBytes = n
		return nil
	}
}

// WithResourceFS serves resource:// URIs from fsys.
func WithResourceFS(fsys fs.FS) Option {
	return func(s *Sketch) error {
		s.resourceFS = fsys
		return nil
	}
}

// WithOCIPlainHTTP enables plain HTTP (no TLS) for oci:// registries.
// This is useful for local development registries.
func WithOCIPlainHTTP(enabled bool) Option {
	return func(s *Sketch) error {
		s.ociOpts = append(s.ociOpts, fetch.WithOCIPlainHTTP(enabled))
		return nil
	}
}

// WithOCIDockerConfig reads oci:// registry credentials from
// ~/.docker/config.json.
func WithOCIDockerConfig() Option {
	return func(s *Sketch) error {
		s.ociOpts = append(s.ociOpts, fetch.WithOCIDockerConfig())
		return nil
	}
}
