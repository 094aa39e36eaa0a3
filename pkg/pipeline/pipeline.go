// Package pipeline runs the render → encode → cache pipeline for Mandelbrot
// images.
//
// This package is shared by the CLI and the HTTP service so that both apply
// the same validation, defaults and caching rules.
//
// # Architecture
//
// A render has two stages:
//
//  1. Render: partition the image into bands and fill one shared buffer with
//     one goroutine per band
//  2. Encode: turn the finished buffer into PNG, TIFF or BMP bytes
//
// [Runner.Render] runs the first stage only and returns the raw buffer.
// [Runner.Execute] runs both and stores the encoded bytes in the cache.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Width:   1920,
//	    Height:  1080,
//	    Threads: 8,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Stats.RenderTime.Seconds())
//
// # Determinism
//
// The bytes of a render depend only on size, view, iteration limit and
// format. Thread count and banding strategy change how the work is split,
// never the result, which is why neither appears in cache keys.
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/mandelbrot/pkg/band"
	"github.com/matzehuels/mandelbrot/pkg/cache"
	"github.com/matzehuels/mandelbrot/pkg/errors"
	"github.com/matzehuels/mandelbrot/pkg/fractal"
	"github.com/matzehuels/mandelbrot/pkg/sink"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Server
// =============================================================================

const (
	// DefaultOutput is the output file name used by the CLI.
	DefaultOutput = "mandelbrot.png"

	// MaxServeDimension caps width and height for HTTP requests.
	MaxServeDimension = 4096
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for one render.
type Options struct {
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	Threads int           `json:"threads"`
	Banding band.Strategy `json:"banding,omitempty"`
	Format  sink.Format   `json:"format,omitempty"`

	// Compression trades encode time for file size; it never changes pixels.
	Compression sink.Compression `json:"compression,omitempty"`

	// View is the plane rectangle to draw; the zero value selects fractal.DefaultView.
	View fractal.Rect `json:"-"`

	// Refresh skips the cache lookup but still stores the result.
	Refresh bool `json:"refresh,omitempty"`

	// Logger receives the per-render log lines. Runner fills it with its own
	// logger when nil, so callers can pass a request-scoped logger instead.
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Image is a finished render: the raw grayscale buffer and how it was produced.
type Image struct {
	// Pixels holds Width*Height bytes in row-major order.
	Pixels []byte

	Bounds fractal.Bounds

	// Bands lists the partition the render ran with.
	Bands []band.Band

	// Elapsed covers partitioning, spawning, rendering and joining the bands.
	Elapsed time.Duration
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// ID identifies the run in logs and HTTP responses.
	ID string

	// Image is nil when the encoded bytes came from the cache.
	Image *Image

	// Data holds the encoded image.
	Data []byte

	Format sink.Format

	Stats Stats

	// CacheHit reports whether Data came from the cache.
	CacheHit bool
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Bands      int
	RenderTime time.Duration
	EncodeTime time.Duration
	Bytes      int
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks required fields and applies defaults.
// The thread count is checked first so that an invalid count is reported
// before anything else is looked at or allocated.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := errors.ValidateThreads(o.Threads); err != nil {
		return err
	}
	if err := errors.ValidateDimensions(o.Width, o.Height); err != nil {
		return err
	}

	s, err := band.ParseStrategy(string(o.Banding))
	if err != nil {
		return err
	}
	o.Banding = s

	f, err := sink.ParseFormat(string(o.Format))
	if err != nil {
		return err
	}
	o.Format = f

	c, err := sink.ParseCompression(string(o.Compression))
	if err != nil {
		return err
	}
	o.Compression = c

	if o.View == (fractal.Rect{}) {
		o.View = fractal.DefaultView
	}
	if !o.View.Valid() {
		return errors.New(errors.ErrCodeInvalidConfiguration,
			"view %v does not span a positive area", o.View)
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	o.validated = true
	return nil
}

// Bounds returns the image size as fractal bounds.
func (o *Options) Bounds() fractal.Bounds {
	return fractal.Bounds{Width: o.Width, Height: o.Height}
}

// ArtifactKeyOpts returns cache key options for the encoded render.
func (o *Options) ArtifactKeyOpts() cache.ArtifactKeyOpts {
	return cache.ArtifactKeyOpts{
		Width:       o.Width,
		Height:      o.Height,
		UpperLeft:   [2]float64{real(o.View.UpperLeft), imag(o.View.UpperLeft)},
		LowerRight:  [2]float64{real(o.View.LowerRight), imag(o.View.LowerRight)},
		Limit:       fractal.IterationLimit,
		Format:      string(o.Format),
		Compression: string(o.Compression),
	}
}
