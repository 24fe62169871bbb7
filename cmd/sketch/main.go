// Command sketch loads one image through the pipeline and writes the result.
//
// Configuration comes from SKETCH_* environment variables (and a .env file),
// overridden by flags:
//
//	sketch -uri https://example.com/a.jpg -width 500 -height 300 \
//	    -precision SAME_ASPECT_RATIO -circle -out a.png
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/disintegration/imaging"
	"github.com/felixge/fgprof"

	sketch "github.com/MaTriXy/Sketch"
	"github.com/MaTriXy/Sketch/cache/disk"
	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/resize"
	"github.com/MaTriXy/Sketch/transform"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	base, err := loadEnv()
	if err != nil {
		return err
	}
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:], base)
	if err != nil {
		return err
	}
	level, err := cfg.logLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts, err := cfg.options(logger)
	if err != nil {
		return err
	}
	s, err := sketch.New(opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	reqOpts, err := cfg.requestOptions()
	if err != nil {
		return err
	}
	req, err := request.New(cfg.uri, reqOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stopProfiles, err := startProfiles(cfg)
	if err != nil {
		return err
	}
	res, err := loadN(ctx, s, req, cfg.iterations)
	if perr := stopProfiles(); perr != nil {
		logger.Warn("profile", "error", perr)
	}
	if err != nil {
		return err
	}

	fmt.Printf("uri=%s size=%dx%d info=%s data_from=%s transformeds=%v\n",
		req.URI(),
		res.Image.Width(),
		res.Image.Height(),
		res.Info,
		res.DataFrom,
		res.Transformeds,
	)
	if cfg.out == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.out), 0o750); err != nil {
		return err
	}
	return imaging.Save(res.Image.Image(), cfg.out)
}

// loadN executes req n times and returns the last result.
func loadN(ctx context.Context, s *sketch.Sketch, req *request.Request, n int) (*sketch.Result, error) {
	var res *sketch.Result
	for i := range n {
		start := time.Now()
		var err error
		res, err = s.Execute(ctx, req)
		if err != nil {
			return nil, err
		}
		if n > 1 {
			fmt.Printf("iteration=%d data_from=%s elapsed=%s\n", i, res.DataFrom, time.Since(start))
		}
	}
	return res, nil
}

func (c config) requestOptions() ([]request.Option, error) {
	precision, err := resize.ParsePrecision(c.precision)
	if err != nil {
		return nil, err
	}
	scale, err := resize.ParseScale(c.scale)
	if err != nil {
		return nil, err
	}
	opts := []request.Option{
		request.WithSize(c.width, c.height),
		request.WithPrecision(precision),
		request.WithScale(scale),
	}

	var ts []transform.Transformation
	if c.rotate != 0 {
		ts = append(ts, transform.NewRotate(c.rotate))
	}
	if c.circle {
		ts = append(ts, transform.NewCircleCrop(scale))
	}
	if c.corners > 0 {
		ts = append(ts, transform.NewRoundedCorners(c.corners))
	}
	if c.blur > 0 {
		ts = append(ts, transform.NewBlur(c.blur))
	}
	if c.mask != "" {
		m, err := transform.NewMask(c.mask, c.maskAlpha)
		if err != nil {
			return nil, err
		}
		ts = append(ts, m)
	}
	if len(ts) > 0 {
		opts = append(opts, request.WithTransformations(ts...))
	}
	return opts, nil
}

func openDiskCaches(c config, logger *slog.Logger) ([]sketch.Option, error) {
	download, err := disk.New(filepath.Join(c.CacheDir, "download"),
		disk.WithMaxSize(c.DownloadCacheSize),
		disk.WithAppVersion(c.AppVersion),
		disk.WithInternalVersion(sketch.DownloadCacheInternalVersion),
		disk.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	result, err := disk.New(filepath.Join(c.CacheDir, "result"),
		disk.WithMaxSize(c.ResultCacheSize),
		disk.WithAppVersion(c.AppVersion),
		disk.WithInternalVersion(sketch.ResultCacheInternalVersion),
		disk.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return []sketch.Option{sketch.WithDownloadCache(download), sketch.WithResultCache(result)}, nil
}

// startProfiles starts the profiles requested in cfg. The returned function
// stops them and writes the heap profile.
func startProfiles(cfg config) (func() error, error) {
	var stops []func() error

	if cfg.fgProfile != "" {
		fgFile, err := os.Create(cfg.fgProfile)
		if err != nil {
			return nil, err
		}
		stopFG := fgprof.Start(fgFile, fgprof.FormatPprof)
		stops = append(stops, func() error {
			return errors.Join(stopFG(), fgFile.Close())
		})
	}

	if cfg.cpuProfile != "" {
		cpuFile, err := os.Create(cfg.cpuProfile)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(cpuFile); err != nil {
			_ = cpuFile.Close()
			return nil, err
		}
		stops = append(stops, func() error {
			pprof.StopCPUProfile()
			return cpuFile.Close()
		})
	}

	if cfg.memProfile != "" {
		stops = append(stops, func() error {
			runtime.GC()
			f, err := os.Create(cfg.memProfile)
			if err != nil {
				return err
			}
			return errors.Join(pprof.WriteHeapProfile(f), f.Close())
		})
	}

	return func() error {
		var errs []error
		for _, stop := range stops {
			errs = append(errs, stop())
		}
		return errors.Join(errs...)
	}, nil
}
