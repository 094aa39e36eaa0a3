package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/mandelbrot/pkg/band"
	"github.com/matzehuels/mandelbrot/pkg/cache"
	"github.com/matzehuels/mandelbrot/pkg/errors"
	"github.com/matzehuels/mandelbrot/pkg/fractal"
	"github.com/matzehuels/mandelbrot/pkg/observability"
	"github.com/matzehuels/mandelbrot/pkg/sink"
)

// cacheKeyType labels cache events for observability hooks.
const cacheKeyType = "artifact"

// BandFunc fills the bytes of one band. pixels is exactly b.Len() bytes long;
// bounds and view describe the whole image.
type BandFunc func(pixels []byte, bounds fractal.Bounds, view fractal.Rect, b band.Band)

// RenderBand is the BandFunc used by default.
func RenderBand(pixels []byte, bounds fractal.Bounds, view fractal.Rect, b band.Band) {
	fractal.RenderRows(pixels, bounds, view, b.Top, b.Height)
}

// Runner encapsulates pipeline execution with caching.
// Both CLI and server use it so that caching rules live in one place.
//
// The Runner holds no per-render state. Multiple goroutines can safely use
// the same Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// TTL is how long encoded images stay cached; zero selects cache.TTLArtifact.
	TTL time.Duration

	// BandFunc renders each band; nil selects RenderBand.
	BandFunc BandFunc
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute renders and encodes an image, consulting the cache first.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	result := &Result{
		ID:     uuid.NewString(),
		Format: opts.Format,
	}
	logger := opts.Logger
	hooks := observability.Cache()
	cacheKey := r.Keyer.ArtifactKey(opts.ArtifactKeyOpts())

	// Try cache first (unless refresh requested)
	if !opts.Refresh {
		data, hit, err := r.Cache.Get(ctx, cacheKey)
		if err != nil {
			logger.Warn("cache lookup failed", "id", result.ID, "error", err)
		}
		if err == nil && hit {
			hooks.OnCacheHit(ctx, cacheKeyType)
			result.Data = data
			result.CacheHit = true
			result.Stats.Bytes = len(data)
			logger.Info("served from cache",
				"id", result.ID,
				"bytes", len(data))
			return result, nil
		}
		hooks.OnCacheMiss(ctx, cacheKeyType)
	}

	// Stage 1: Render
	img, err := r.render(ctx, result.ID, opts)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	result.Image = img
	result.Stats.Bands = len(img.Bands)
	result.Stats.RenderTime = img.Elapsed

	logger.Info("rendered image",
		"id", result.ID,
		"width", opts.Width,
		"height", opts.Height,
		"bands", len(img.Bands),
		"duration", img.Elapsed)

	// Stage 2: Encode
	encodeStart := time.Now()
	var buf bytes.Buffer
	if err := sink.Encode(&buf, img.Pixels, img.Bounds, opts.Format, sink.WithCompression(opts.Compression)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	result.Data = buf.Bytes()
	result.Stats.EncodeTime = time.Since(encodeStart)
	result.Stats.Bytes = len(result.Data)

	logger.Debug("encoded image",
		"id", result.ID,
		"format", opts.Format,
		"compression", opts.Compression,
		"bytes", len(result.Data),
		"duration", result.Stats.EncodeTime)

	// Cache the result
	if err := r.Cache.Set(ctx, cacheKey, result.Data, r.ttl()); err != nil {
		logger.Warn("cache store failed", "id", result.ID, "error", err)
	} else {
		hooks.OnCacheSet(ctx, cacheKeyType, len(result.Data))
	}

	return result, nil
}

// Render fills a fresh pixel buffer using one goroutine per band and returns
// it once every band has finished. It never reads or writes the cache.
//
// If any band fails, by error or panic, the whole render fails and no image
// is returned.
func (r *Runner) Render(ctx context.Context, opts Options) (*Image, error) {
	r.applyLogger(&opts)
	return r.render(ctx, uuid.NewString(), opts)
}

func (r *Runner) render(ctx context.Context, id string, opts Options) (*Image, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := opts.Bounds()
	pixels := make([]byte, bounds.Len())
	fill := r.BandFunc
	if fill == nil {
		fill = RenderBand
	}

	start := time.Now()
	bands, err := band.Partition(bounds, opts.View, opts.Threads, opts.Banding)
	if err != nil {
		return nil, err
	}

	hooks := observability.Render()
	hooks.OnRenderStart(ctx, id, bounds.Width, bounds.Height, len(bands))

	var g errgroup.Group
	for _, b := range bands {
		g.Go(func() (err error) {
			bandStart := time.Now()
			defer func() {
				if p := recover(); p != nil {
					err = errors.FromPanic(p)
				}
				hooks.OnBandComplete(ctx, id, b.Index, b.Height, time.Since(bandStart), err)
			}()
			fill(pixels[b.Start:b.End:b.End], bounds, opts.View, b)
			return nil
		})
	}
	err = g.Wait()
	elapsed := time.Since(start)
	hooks.OnRenderComplete(ctx, id, elapsed, err)

	if err != nil {
		opts.Logger.Error("render failed",
			"id", id,
			"code", errors.GetCode(err),
			"error", err)
		return nil, err
	}

	opts.Logger.Debug("joined bands",
		"id", id,
		"bands", len(bands),
		"strategy", opts.Banding,
		"duration", elapsed)

	return &Image{
		Pixels:  pixels,
		Bounds:  bounds,
		Bands:   bands,
		Elapsed: elapsed,
	}, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func (r *Runner) ttl() time.Duration {
	if r.TTL > 0 {
		return r.TTL
	}
	return cache.TTLArtifact
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
