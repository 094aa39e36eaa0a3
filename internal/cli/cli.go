// Package cli implements the mandelbrot command-line interface.
//
// # Commands
//
//   - render: render one image and print the elapsed render seconds
//   - bench: sweep thread counts and print a speedup table
//   - serve: run the HTTP render service
//   - cache: inspect or clear the file cache
//
// Machine-readable results (elapsed seconds, the bench table) are written to
// stdout. Logs and status lines go to stderr so that stdout can be piped.
//
// # Configuration
//
// Settings come from built-in defaults, then the TOML config file, then
// explicit flags. See package config for the file format.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which includes
// per-render band counts and cache decisions.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/mandelbrot/pkg/buildinfo"
	"github.com/matzehuels/mandelbrot/pkg/cache"
	"github.com/matzehuels/mandelbrot/pkg/config"
	"github.com/matzehuels/mandelbrot/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for display and cache key prefixes.
	appName = "mandelbrot"

	// defaultMaxThreads is the upper end of the bench sweep.
	defaultMaxThreads = 40
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Config is loaded before any subcommand runs.
	Config *config.Config

	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Config: config.Default(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Render the Mandelbrot set in parallel",
		Long: `mandelbrot rasterizes the Mandelbrot set into a grayscale image, splitting
the rows into bands that are rendered concurrently.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(c.configPath)
			if err != nil {
				return err
			}
			c.Config = cfg
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/mandelbrot/config.toml)")

	root.AddCommand(c.renderCommand())
	root.AddCommand(c.benchCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner. With useCache false the runner never
// touches a cache, which keeps timings honest.
func (c *CLI) newRunner(ctx context.Context, useCache bool) (*pipeline.Runner, error) {
	if !useCache {
		return pipeline.NewRunner(cache.NewNullCache(), nil, c.Logger), nil
	}
	store, err := c.openCache(ctx)
	if err != nil {
		return nil, err
	}
	runner := pipeline.NewRunner(store, cacheKeyer(c.Config.Cache), c.Logger)
	runner.TTL = c.Config.Cache.TTL.Duration
	return runner, nil
}

// openCache opens the backend selected in the config file.
func (c *CLI) openCache(ctx context.Context) (cache.Cache, error) {
	cc := c.Config.Cache
	switch cc.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendRedis:
		c.Logger.Debug("using redis cache", "addr", cc.RedisAddr, "db", cc.RedisDB)
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cc.RedisAddr,
			Password: cc.RedisPassword,
			DB:       cc.RedisDB,
		})
	default:
		dir, err := c.Config.CacheDir()
		if err != nil {
			c.Logger.Warn("no cache directory, caching disabled", "error", err)
			return cache.NewNullCache(), nil
		}
		c.Logger.Debug("using file cache", "dir", dir)
		return cache.NewFileCache(dir)
	}
}

// cacheKeyer namespaces redis keys with the configured prefix. File caches
// live in a per-user directory and need no namespace.
func cacheKeyer(cc config.CacheConfig) cache.Keyer {
	if cc.Backend == config.BackendRedis {
		return cache.Namespace(cache.NewDefaultKeyer(), cc.RedisPrefix)
	}
	return cache.NewDefaultKeyer()
}

// =============================================================================
// Flag Helpers
// =============================================================================

// intSetting returns the flag value if the user set it, otherwise the config
// value when non-zero, otherwise the flag's default.
func intSetting(cmd *cobra.Command, name string, flagVal, cfgVal int) int {
	if cmd.Flags().Changed(name) || cfgVal == 0 {
		return flagVal
	}
	return cfgVal
}

// stringSetting is intSetting for strings.
func stringSetting(cmd *cobra.Command, name, flagVal, cfgVal string) string {
	if cmd.Flags().Changed(name) || cfgVal == "" {
		return flagVal
	}
	return cfgVal
}
