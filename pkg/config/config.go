// Package config loads optional TOML configuration for the mandelbrot CLI.
//
// Every setting has a default in code and every render setting can be
// overridden by a command-line flag, so a config file is never required.
//
// Example file:
//
//	[render]
//	width = 1920
//	height = 1080
//	threads = 8
//	output = "mandelbrot.png"
//	format = "png"
//	banding = "even"
//
//	[cache]
//	backend = "redis"
//	ttl = "24h"
//	redis_addr = "localhost:6379"
//
//	[server]
//	addr = ":8080"
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/mandelbrot/pkg/errors"
)

const appName = "mandelbrot"

// Cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// ValidBackends is the set of supported cache backends.
var ValidBackends = map[string]bool{
	BackendFile:  true,
	BackendRedis: true,
	BackendNone:  true,
}

// Config is the decoded configuration file.
type Config struct {
	Render RenderConfig `toml:"render"`
	Cache  CacheConfig  `toml:"cache"`
	Server ServerConfig `toml:"server"`
}

// RenderConfig holds defaults for the render and bench commands.
// Zero values mean "not set".
type RenderConfig struct {
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	Threads     int    `toml:"threads"`
	Output      string `toml:"output"`
	Format      string `toml:"format"`
	Banding     string `toml:"banding"`
	Compression string `toml:"compression"`
}

// CacheConfig selects and configures the artifact cache.
type CacheConfig struct {
	Backend       string   `toml:"backend"`
	Dir           string   `toml:"dir"`
	TTL           Duration `toml:"ttl"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	RedisPrefix   string   `toml:"redis_prefix"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Duration is a time.Duration written as a Go duration string ("90s", "24h").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Render: RenderConfig{
			Output: "mandelbrot.png",
		},
		Cache: CacheConfig{
			Backend:     BackendFile,
			TTL:         Duration{7 * 24 * time.Hour},
			RedisPrefix: appName + ":",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load reads the TOML file at path on top of Default.
// Unknown keys are rejected so that typos do not pass silently.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "config file %s not found", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.New(errors.ErrCodeInvalidConfiguration,
			"unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when given. With an empty path it loads the file
// at DefaultPath if one exists and otherwise returns Default.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	def, err := DefaultPath()
	if err != nil {
		return Default(), nil
	}
	if _, err := os.Stat(def); err != nil {
		return Default(), nil
	}
	return Load(def)
}

// DefaultPath returns $XDG_CONFIG_HOME/mandelbrot/config.toml, falling back
// to ~/.config/mandelbrot/config.toml.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// CacheDir returns the configured cache directory, or
// $XDG_CACHE_HOME/mandelbrot (~/.cache/mandelbrot) when none is set.
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// Validate checks values that can be verified without other packages.
// Render values are validated again by the pipeline once flags are applied.
func (c *Config) Validate() error {
	if c.Render.Width < 0 || c.Render.Height < 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration,
			"render size must not be negative, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Render.Threads < 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration,
			"render threads must not be negative, got %d", c.Render.Threads)
	}
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if !ValidBackends[c.Cache.Backend] {
		return errors.New(errors.ErrCodeInvalidConfiguration,
			"invalid cache backend: %q (must be one of: file, redis, none)", c.Cache.Backend)
	}
	if c.Cache.Backend == BackendRedis && c.Cache.RedisAddr == "" {
		return errors.New(errors.ErrCodeInvalidConfiguration, "cache backend redis requires redis_addr")
	}
	if c.Cache.TTL.Duration < 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "cache ttl must not be negative")
	}
	return nil
}
