// Package config loads the YAML configuration file and overlays command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen   string        `yaml:"listen"`
	Log      LogConfig     `yaml:"log"`
	Cache    CacheConfig   `yaml:"cache"`
	Fallback string        `yaml:"fallback"`
	Storage  StorageConfig `yaml:"storage"`
	Render   RenderConfig  `yaml:"render"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type CacheConfig struct {
	Dir     string `yaml:"dir"`
	Width   int    `yaml:"width"`   // width of the stored rendition
	Quality int    `yaml:"quality"` // JPEG quality, 1-100
}

type StorageConfig struct {
	Backend string `yaml:"backend"` // s3, gcs, http or dir
	Bucket  string `yaml:"bucket"`
	// ObjectName replaces the requested file name in the remote key when set.
	ObjectName     string        `yaml:"objectName"`
	Region         string        `yaml:"region"`
	Endpoint       string        `yaml:"endpoint"`
	PathStyle      bool          `yaml:"pathStyle"`
	ProjectID      string        `yaml:"projectID"`
	KeyFile        string        `yaml:"keyFile"`
	BaseURL        string        `yaml:"baseURL"`
	Dir            string        `yaml:"dir"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxObjectBytes int64         `yaml:"maxObjectBytes"`
}

type RenderConfig struct {
	MaxDimension int `yaml:"maxDimension"`
	// MaxPixels caps width*height of a source image before it is decoded.
	MaxPixels int `yaml:"maxPixels"`
	Workers   int `yaml:"workers"`
}

func Default() *Config {
	return &Config{
		Listen: ":3000",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 10,
			Compress:   true,
		},
		Cache: CacheConfig{
			Dir:     "./cache",
			Width:   800,
			Quality: 80,
		},
		Fallback: "./image-not-found.jpg",
		Storage: StorageConfig{
			Backend:        "s3",
			Timeout:        30 * time.Second,
			MaxObjectBytes: 32 << 20,
		},
		Render: RenderConfig{
			MaxDimension: 4096,
			MaxPixels:    50_000_000,
			Workers:      runtime.NumCPU(),
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Flags holds command line overrides. Only flags that were set are applied.
type Flags struct {
	fs *pflag.FlagSet

	ConfigPath  string
	ShowVersion bool

	listen, cacheDir, fallback, logLevel, backend, bucket string
}

func NewFlags(name string) *Flags {
	f := &Flags{fs: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	f.fs.StringVarP(&f.ConfigPath, "config", "c", os.Getenv("IMAGE_CACHE_CONFIG"), "Path to the YAML config file")
	f.fs.BoolVar(&f.ShowVersion, "version", false, "Print version and exit")
	f.fs.StringVarP(&f.listen, "listen", "l", "", "Address to listen on, e.g. :3000")
	f.fs.StringVar(&f.cacheDir, "cache-dir", "", "Local cache directory")
	f.fs.StringVar(&f.fallback, "fallback", "", "Image served when resolution fails")
	f.fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.fs.StringVar(&f.backend, "storage-backend", "", "Object store backend: s3, gcs, http or dir")
	f.fs.StringVar(&f.bucket, "bucket", "", "Bucket name")
	return f
}

func (f *Flags) Parse(args []string) error {
	return f.fs.Parse(args)
}

func (f *Flags) Usage() string {
	return f.fs.FlagUsages()
}

func (f *Flags) Apply(cfg *Config) {
	set := func(name string, dst *string, v string) {
		if f.fs.Changed(name) {
			*dst = v
		}
	}
	set("listen", &cfg.Listen, f.listen)
	set("cache-dir", &cfg.Cache.Dir, f.cacheDir)
	set("fallback", &cfg.Fallback, f.fallback)
	set("log-level", &cfg.Log.Level, f.logLevel)
	set("storage-backend", &cfg.Storage.Backend, f.backend)
	set("bucket", &cfg.Storage.Bucket, f.bucket)
}

// FieldError names the offending config field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func newFieldError(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// Validate checks the config and normalises paths to absolute ones.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Listen == "" {
		return newFieldError("listen", "must not be empty")
	}
	if c.Cache.Dir == "" {
		return newFieldError("cache.dir", "must not be empty")
	}
	if c.Cache.Width <= 0 {
		return newFieldError("cache.width", "must be positive")
	}
	if c.Cache.Quality < 1 || c.Cache.Quality > 100 {
		return newFieldError("cache.quality", "must be within 1-100")
	}
	if c.Fallback == "" {
		return newFieldError("fallback", "must not be empty")
	}
	if c.Render.MaxDimension <= 0 {
		return newFieldError("render.maxDimension", "must be positive")
	}
	if c.Render.MaxPixels <= 0 {
		return newFieldError("render.maxPixels", "must be positive")
	}
	if c.Render.Workers < 0 {
		return newFieldError("render.workers", "must not be negative")
	}
	if c.Storage.Timeout <= 0 {
		return newFieldError("storage.timeout", "must be positive")
	}
	if c.Storage.MaxObjectBytes < 0 {
		return newFieldError("storage.maxObjectBytes", "must not be negative")
	}
	if strings.ContainsAny(c.Storage.ObjectName, "/\\") {
		return newFieldError("storage.objectName", "must be a single path segment")
	}

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	switch c.Storage.Backend {
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return newFieldError("storage.bucket", "required for "+c.Storage.Backend)
		}
	case "http":
		if c.Storage.BaseURL == "" {
			return newFieldError("storage.baseURL", "required for http")
		}
	case "dir":
		if c.Storage.Dir == "" {
			return newFieldError("storage.dir", "required for dir")
		}
	default:
		return newFieldError("storage.backend", "must be one of s3|gcs|http|dir")
	}

	for _, p := range []*string{&c.Cache.Dir, &c.Fallback} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}
