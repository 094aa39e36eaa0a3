package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/mandelbrot/pkg/band"
	"github.com/matzehuels/mandelbrot/pkg/errors"
	"github.com/matzehuels/mandelbrot/pkg/pipeline"
	"github.com/matzehuels/mandelbrot/pkg/sink"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	width    int
	height   int
	threads  int    // number of bands rendered concurrently
	output   string // output file path
	format   string // png, tiff or bmp; inferred from output when empty
	banding  string // even or legacy
	compress string // default, none, speed or best
	useCache bool   // consult and fill the artifact cache
	refresh  bool   // with useCache, skip the lookup but still store
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	opts := renderOpts{output: pipeline.DefaultOutput}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the Mandelbrot set to an image file",
		Long: `Render the Mandelbrot set to a grayscale image file.

The image rows are split into --thread-num bands rendered concurrently. The
elapsed render time in seconds is printed to stdout.`,
		Example: `  mandelbrot render --width 1920 --height 1080 --thread-num 8
  mandelbrot render --width 800 --height 800 --thread-num 4 -o out.tiff`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.applyRenderConfig(cmd, &opts); err != nil {
				return err
			}
			return c.runRender(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.width, "width", 0, "image width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", 0, "image height in pixels")
	cmd.Flags().IntVar(&opts.threads, "thread-num", 0, "number of bands rendered concurrently")
	cmd.Flags().StringVarP(&opts.output, "output", "o", opts.output, "output file")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: png, tiff, bmp (default from output extension)")
	cmd.Flags().StringVar(&opts.banding, "banding", "", "banding strategy: even (default), legacy")
	cmd.Flags().StringVar(&opts.compress, "compression", "", "encoder effort: default, none, speed, best")
	cmd.Flags().BoolVar(&opts.useCache, "cache", false, "reuse a cached image when one exists")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "with --cache, render again and overwrite the cached image")

	return cmd
}

// applyRenderConfig fills unset flags from the config file and checks that
// the required settings are present.
func (c *CLI) applyRenderConfig(cmd *cobra.Command, opts *renderOpts) error {
	rc := c.Config.Render
	opts.width = intSetting(cmd, "width", opts.width, rc.Width)
	opts.height = intSetting(cmd, "height", opts.height, rc.Height)
	opts.threads = intSetting(cmd, "thread-num", opts.threads, rc.Threads)
	opts.output = stringSetting(cmd, "output", opts.output, rc.Output)
	opts.format = stringSetting(cmd, "format", opts.format, rc.Format)
	opts.banding = stringSetting(cmd, "banding", opts.banding, rc.Banding)
	opts.compress = stringSetting(cmd, "compression", opts.compress, rc.Compression)

	return requireSettings(cmd, map[string]int{
		"width":      opts.width,
		"height":     opts.height,
		"thread-num": opts.threads,
	})
}

// requireSettings reports the first flag, in a stable order, that was
// neither given nor configured. Explicit zero values are left for the
// pipeline to reject.
func requireSettings(cmd *cobra.Command, values map[string]int) error {
	for _, name := range []string{"width", "height", "thread-num"} {
		v, ok := values[name]
		if !ok || v != 0 || cmd.Flags().Changed(name) {
			continue
		}
		return errors.New(errors.ErrCodeInvalidConfiguration,
			"--%s is required (or set it in the [render] section of the config file)", name)
	}
	return nil
}

func (c *CLI) runRender(ctx context.Context, out io.Writer, opts renderOpts) error {
	if err := errors.ValidateOutputPath(opts.output); err != nil {
		return err
	}
	format, err := resolveFormat(opts.format, opts.output)
	if err != nil {
		return err
	}
	compression, err := sink.ParseCompression(opts.compress)
	if err != nil {
		return err
	}

	runner, err := c.newRunner(ctx, opts.useCache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer runner.Close()

	popts := pipeline.Options{
		Width:       opts.width,
		Height:      opts.height,
		Threads:     opts.threads,
		Banding:     band.Strategy(opts.banding),
		Format:      format,
		Compression: compression,
		Refresh:     opts.refresh,
		Logger:      c.Logger,
	}
	prog := newProgress(c.Logger)

	var (
		elapsed time.Duration
		bands   int
		cached  bool
		write   func() error
	)
	if opts.useCache {
		res, err := runner.Execute(ctx, popts)
		if err != nil {
			return err
		}
		elapsed, bands, cached = res.Stats.RenderTime, res.Stats.Bands, res.CacheHit
		write = func() error { return writeOutput(opts.output, res.Data) }
	} else {
		img, err := runner.Render(ctx, popts)
		if err != nil {
			return err
		}
		elapsed, bands = img.Elapsed, len(img.Bands)
		write = func() error {
			return sink.WriteFile(opts.output, img.Pixels, img.Bounds, format, sink.WithCompression(compression))
		}
	}

	// A cache hit did no rendering, so there is no time to report.
	if cached {
		printInfo("Served from cache, no render time measured")
	} else {
		fmt.Fprintln(out, formatSeconds(elapsed))
	}

	if err := write(); err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Wrote %s", opts.output))
	printFile(opts.output)
	printRenderStats(opts.width, opts.height, bands, cached)
	return nil
}

// resolveFormat picks the explicit format, or infers it from the output path.
func resolveFormat(format, output string) (sink.Format, error) {
	if format != "" {
		return sink.ParseFormat(format)
	}
	return sink.FormatFromPath(output), nil
}

// writeOutput writes already-encoded image bytes to path.
func writeOutput(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write %s", path)
	}
	return nil
}

// formatSeconds renders a duration as plain decimal seconds, e.g. "0.0123".
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
