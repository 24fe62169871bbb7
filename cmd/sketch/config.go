package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"

	sketch "github.com/MaTriXy/Sketch"
)

// envConfig is read from the environment and an optional .env file.
type envConfig struct {
	CacheDir          string        `env:"SKETCH_CACHE_DIR"`
	MemoryCacheSize   int64         `env:"SKETCH_MEMORY_CACHE_SIZE" envDefault:"67108864"`
	DownloadCacheSize int64         `env:"SKETCH_DOWNLOAD_CACHE_SIZE" envDefault:"314572800"`
	ResultCacheSize   int64         `env:"SKETCH_RESULT_CACHE_SIZE" envDefault:"209715200"`
	AppVersion        int           `env:"SKETCH_APP_VERSION" envDefault:"1"`
	HTTPTimeout       time.Duration `env:"SKETCH_HTTP_TIMEOUT" envDefault:"20s"`
	LogLevel          string        `env:"SKETCH_LOG_LEVEL" envDefault:"info"`
}

type config struct {
	envConfig

	uri        string
	out        string
	width      int
	height     int
	precision  string
	scale      string
	rotate     int
	circle     bool
	corners    int
	blur       float64
	mask       string
	maskAlpha  float64
	iterations int
	plainHTTP  bool

	cpuProfile string
	memProfile string
	fgProfile  string
}

func loadEnv() (envConfig, error) {
	_ = godotenv.Load()

	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return envConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// parseFlags reads flags over the environment defaults in base.
func parseFlags(fs *flag.FlagSet, args []string, base envConfig) (config, error) {
	cfg := config{envConfig: base}

	fs.StringVar(&cfg.uri, "uri", "", "image uri: http(s)://, file://, absolute path, data:, oci://")
	fs.StringVar(&cfg.out, "out", "", "output file; the format follows the extension")
	fs.IntVar(&cfg.width, "width", 0, "target width (0 keeps the original size)")
	fs.IntVar(&cfg.height, "height", 0, "target height")
	fs.StringVar(&cfg.precision, "precision", "LESS_PIXELS", "precision: LESS_PIXELS, SAME_ASPECT_RATIO, EXACTLY")
	fs.StringVar(&cfg.scale, "scale", "CENTER_CROP", "scale: START_CROP, CENTER_CROP, END_CROP, FILL")
	fs.IntVar(&cfg.rotate, "rotate", 0, "rotate clockwise by degrees")
	fs.BoolVar(&cfg.circle, "circle", false, "crop to a circle")
	fs.IntVar(&cfg.corners, "corners", 0, "round corners by radius")
	fs.Float64Var(&cfg.blur, "blur", 0, "gaussian blur radius")
	fs.StringVar(&cfg.mask, "mask", "", "overlay color, e.g. #ff0000")
	fs.Float64Var(&cfg.maskAlpha, "mask-alpha", 0.5, "overlay opacity")
	fs.IntVar(&cfg.iterations, "iterations", 1, "number of times to load the image")
	fs.BoolVar(&cfg.plainHTTP, "plain-http", false, "use plain HTTP for oci:// registries")
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "disk cache directory (empty disables disk caches)")
	fs.IntVar(&cfg.AppVersion, "app-version", cfg.AppVersion, "disk cache app version")
	fs.DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "HTTP download timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	fs.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	fs.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if cfg.uri == "" {
		return config{}, errors.New("-uri is required")
	}
	if cfg.iterations < 1 {
		return config{}, errors.New("-iterations must be positive")
	}
	return cfg, nil
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// options builds the Sketch options for cfg.
func (c config) options(logger *slog.Logger) ([]sketch.Option, error) {
	opts := []sketch.Option{
		sketch.WithLogger(logger),
		sketch.WithHTTPTimeout(c.HTTPTimeout),
		sketch.WithOCIPlainHTTP(c.plainHTTP),
		sketch.WithOCIDockerConfig(),
	}
	if c.MemoryCacheSize > 0 {
		opts = append(opts, sketch.WithMemoryCache(sketch.NewMemoryCache(c.MemoryCacheSize, logger)))
	} else {
		opts = append(opts, sketch.WithMemoryCache(nil))
	}
	if c.CacheDir != "" {
		caches, err := openDiskCaches(c, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, caches...)
	}
	return opts, nil
}
