package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/mandelbrot/pkg/band"
	"github.com/matzehuels/mandelbrot/pkg/errors"
	"github.com/matzehuels/mandelbrot/pkg/pipeline"
)

// benchOpts holds the command-line flags for the bench command.
type benchOpts struct {
	width      int
	height     int
	maxThreads int    // sweep 1..maxThreads
	repeat     int    // renders averaged per thread count
	banding    string // even or legacy
	tui        bool   // live table instead of a spinner
}

// benchRow is one line of the thread-scaling table.
type benchRow struct {
	Threads int
	Elapsed time.Duration
	Speedup float64 // Elapsed at one thread divided by Elapsed
}

// benchCommand creates the bench command.
func (c *CLI) benchCommand() *cobra.Command {
	opts := benchOpts{maxThreads: defaultMaxThreads, repeat: 1}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure render time for every thread count up to --max-threads",
		Long: `Render the same image with 1, 2, ... --max-threads bands and print one
tab-separated line per thread count to stdout:

  threads	seconds	speedup

speedup is the one-thread time divided by the time at that thread count.
Nothing is written to disk and the cache is never used.`,
		Example: `  mandelbrot bench --width 2000 --height 2000 --max-threads 16 > scaling.tsv
  mandelbrot bench --width 1000 --height 1000 --tui`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := c.Config.Render
			opts.width = intSetting(cmd, "width", opts.width, rc.Width)
			opts.height = intSetting(cmd, "height", opts.height, rc.Height)
			opts.banding = stringSetting(cmd, "banding", opts.banding, rc.Banding)
			if err := requireSettings(cmd, map[string]int{"width": opts.width, "height": opts.height}); err != nil {
				return err
			}
			return c.runBenchCmd(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.width, "width", 0, "image width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", 0, "image height in pixels")
	cmd.Flags().IntVar(&opts.maxThreads, "max-threads", opts.maxThreads, "largest thread count to measure")
	cmd.Flags().IntVar(&opts.repeat, "repeat", opts.repeat, "renders averaged per thread count")
	cmd.Flags().StringVar(&opts.banding, "banding", "", "banding strategy: even (default), legacy")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show a live results table")

	return cmd
}

func (c *CLI) runBenchCmd(ctx context.Context, out io.Writer, opts benchOpts) error {
	runner, err := c.newRunner(ctx, false)
	if err != nil {
		return err
	}
	defer runner.Close()

	base := pipeline.Options{
		Width:   opts.width,
		Height:  opts.height,
		Banding: band.Strategy(opts.banding),
		Logger:  c.Logger,
	}

	var rows []benchRow
	if opts.tui {
		rows, err = runBenchTUI(ctx, runner, base, opts.maxThreads, opts.repeat)
	} else {
		rows, err = runBenchSpinner(ctx, runner, base, opts.maxThreads, opts.repeat)
	}
	if err != nil {
		return err
	}

	c.Logger.Debug("benchmark finished",
		"width", opts.width,
		"height", opts.height,
		"thread_counts", len(rows),
		"repeat", opts.repeat)
	return writeBenchTSV(out, rows)
}

func runBenchSpinner(ctx context.Context, runner *pipeline.Runner, base pipeline.Options, maxThreads, repeat int) ([]benchRow, error) {
	spinner := newSpinnerWithContext(ctx, benchMessage(1, maxThreads))
	spinner.Start()

	rows, err := runBench(ctx, runner, base, maxThreads, repeat, func(r benchRow) {
		if r.Threads < maxThreads {
			spinner.SetMessage(benchMessage(r.Threads+1, maxThreads))
		}
	})
	if err != nil {
		spinner.StopWithError("Benchmark failed")
		return nil, err
	}
	spinner.StopWithSuccess(fmt.Sprintf("Measured %d thread counts", len(rows)))
	return rows, nil
}

func benchMessage(n, total int) string {
	return fmt.Sprintf("Benchmarking %d/%d threads", n, total)
}

// runBench renders base once per repeat for each thread count from 1 to
// maxThreads and records the mean render time. report, if non-nil, is called
// after each thread count completes.
func runBench(ctx context.Context, runner *pipeline.Runner, base pipeline.Options, maxThreads, repeat int, report func(benchRow)) ([]benchRow, error) {
	if maxThreads < 1 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "max-threads must be >= 1, got %d", maxThreads)
	}
	if repeat < 1 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "repeat must be >= 1, got %d", repeat)
	}

	rows := make([]benchRow, 0, maxThreads)
	var baseline time.Duration
	for n := 1; n <= maxThreads; n++ {
		var total time.Duration
		for i := 0; i < repeat; i++ {
			if err := ctx.Err(); err != nil {
				return rows, err
			}
			opts := base
			opts.Threads = n
			img, err := runner.Render(ctx, opts)
			if err != nil {
				return rows, fmt.Errorf("threads=%d: %w", n, err)
			}
			total += img.Elapsed
		}

		row := benchRow{Threads: n, Elapsed: total / time.Duration(repeat)}
		if n == 1 {
			baseline = row.Elapsed
		}
		row.Speedup = speedup(baseline, row.Elapsed)
		rows = append(rows, row)
		if report != nil {
			report(row)
		}
	}
	return rows, nil
}

func speedup(baseline, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(baseline) / float64(d)
}

// writeBenchTSV writes one "threads\tseconds\tspeedup" line per row.
func writeBenchTSV(w io.Writer, rows []benchRow) error {
	for _, r := range rows {
		_, err := fmt.Fprintf(w, "%d\t%s\t%s\n",
			r.Threads, formatSeconds(r.Elapsed), strconv.FormatFloat(r.Speedup, 'f', 3, 64))
		if err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "write benchmark results")
		}
	}
	return nil
}
