package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/mandelbrot/pkg/band"
	"github.com/matzehuels/mandelbrot/pkg/cache"
	"github.com/matzehuels/mandelbrot/pkg/errors"
	"github.com/matzehuels/mandelbrot/pkg/fractal"
	"github.com/matzehuels/mandelbrot/pkg/observability"
	"github.com/matzehuels/mandelbrot/pkg/sink"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func newTestRunner(c cache.Cache) *Runner {
	return NewRunner(c, nil, quietLogger())
}

func reference(bounds fractal.Bounds) []byte {
	pixels := make([]byte, bounds.Len())
	fractal.Render(pixels, bounds, fractal.DefaultView)
	return pixels
}

// recordingHooks counts render and cache events.
type recordingHooks struct {
	mu        sync.Mutex
	starts    int
	bands     int
	bandErrs  int
	completes int
	lastErr   error
	hits      int
	misses    int
	sets      int
}

func (h *recordingHooks) OnRenderStart(context.Context, string, int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
}

func (h *recordingHooks) OnBandComplete(_ context.Context, _ string, _, _ int, _ time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bands++
	if err != nil {
		h.bandErrs++
	}
}

func (h *recordingHooks) OnRenderComplete(_ context.Context, _ string, _ time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completes++
	h.lastErr = err
}

func (h *recordingHooks) OnCacheHit(context.Context, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits++
}

func (h *recordingHooks) OnCacheMiss(context.Context, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.misses++
}

func (h *recordingHooks) OnCacheSet(context.Context, string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sets++
}

func installHooks(t *testing.T) *recordingHooks {
	t.Helper()
	h := &recordingHooks{}
	observability.SetRenderHooks(h)
	observability.SetCacheHooks(h)
	t.Cleanup(observability.Reset)
	return h
}

func TestRenderDeterministicAcrossThreads(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(nil)

	for _, size := range []fractal.Bounds{{Width: 37, Height: 23}, {Width: 64, Height: 5}, {Width: 3, Height: 50}} {
		want := reference(size)
		for _, strategy := range []band.Strategy{band.StrategyEven, band.StrategyLegacy} {
			for _, threads := range []int{1, 2, 3, 4, 7, 8, 16, 40, 64} {
				img, err := r.Render(ctx, Options{
					Width:   size.Width,
					Height:  size.Height,
					Threads: threads,
					Banding: strategy,
				})
				if err != nil {
					t.Fatalf("%dx%d %s threads=%d: %v", size.Width, size.Height, strategy, threads, err)
				}
				if !bytes.Equal(img.Pixels, want) {
					t.Errorf("%dx%d %s threads=%d: output differs from single-pass render",
						size.Width, size.Height, strategy, threads)
				}
			}
		}
	}
}

func TestRenderScenarioFourThreadsMatchesOne(t *testing.T) {
	ctx := context.Background()
	r := newTestRunner(nil)

	one, err := r.Render(ctx, Options{Width: 100, Height: 100, Threads: 1})
	if err != nil {
		t.Fatalf("threads=1: %v", err)
	}
	four, err := r.Render(ctx, Options{Width: 100, Height: 100, Threads: 4})
	if err != nil {
		t.Fatalf("threads=4: %v", err)
	}
	if len(four.Pixels) != 10000 {
		t.Fatalf("buffer size = %d, want 10000", len(four.Pixels))
	}
	if !bytes.Equal(one.Pixels, four.Pixels) {
		t.Error("4-thread render differs from 1-thread render")
	}
	if len(four.Bands) != 4 {
		t.Errorf("bands = %d, want 4", len(four.Bands))
	}
}

func TestRenderSinglePixel(t *testing.T) {
	img, err := newTestRunner(nil).Render(context.Background(), Options{Width: 1, Height: 1, Threads: 1})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(img.Pixels) != 1 || img.Pixels[0] != 253 {
		t.Errorf("pixels = %v, want [253]", img.Pixels)
	}
}

func TestRenderZeroThreadsRejectedBeforeWork(t *testing.T) {
	h := installHooks(t)
	called := false
	r := newTestRunner(nil)
	r.BandFunc = func([]byte, fractal.Bounds, fractal.Rect, band.Band) { called = true }

	for _, threads := range []int{0, -1} {
		img, err := r.Render(context.Background(), Options{Width: 100, Height: 100, Threads: threads})
		if img != nil {
			t.Errorf("threads=%d: got image, want nil", threads)
		}
		if !errors.Is(err, errors.ErrCodeInvalidConfiguration) {
			t.Errorf("threads=%d: error = %v, want INVALID_CONFIGURATION", threads, err)
		}
	}
	if called {
		t.Error("band function ran for an invalid thread count")
	}
	if h.starts != 0 || h.completes != 0 {
		t.Errorf("hooks fired: starts=%d completes=%d", h.starts, h.completes)
	}
}

func TestRenderInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		code errors.Code
	}{
		{"zero width", Options{Width: 0, Height: 10, Threads: 1}, errors.ErrCodeInvalidConfiguration},
		{"negative height", Options{Width: 10, Height: -1, Threads: 1}, errors.ErrCodeInvalidConfiguration},
		{"bad banding", Options{Width: 10, Height: 10, Threads: 1, Banding: "striped"}, errors.ErrCodeInvalidConfiguration},
		{"bad format", Options{Width: 10, Height: 10, Threads: 1, Format: "gif"}, errors.ErrCodeInvalidFormat},
		{"inverted view", Options{Width: 10, Height: 10, Threads: 1,
			View: fractal.Rect{UpperLeft: complex(1, -1), LowerRight: complex(-1, 1)}}, errors.ErrCodeInvalidConfiguration},
	}
	r := newTestRunner(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Render(context.Background(), tt.opts)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestRenderBandsReceiveCappedSlices(t *testing.T) {
	r := newTestRunner(nil)
	r.BandFunc = func(pixels []byte, bounds fractal.Bounds, view fractal.Rect, b band.Band) {
		if len(pixels) != b.Len() || cap(pixels) != len(pixels) {
			panic("band slice not capped to its range")
		}
		RenderBand(pixels, bounds, view, b)
	}

	img, err := r.Render(context.Background(), Options{Width: 50, Height: 31, Threads: 6})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Equal(img.Pixels, reference(fractal.Bounds{Width: 50, Height: 31})) {
		t.Error("output differs from reference")
	}
}

func TestRenderBandFailureAbortsRender(t *testing.T) {
	tests := []struct {
		name  string
		panic any
		code  errors.Code
	}{
		{"string panic", "boom", errors.ErrCodeWorkerFailure},
		{"error panic", io.ErrUnexpectedEOF, errors.ErrCodeWorkerFailure},
		{"invariant panic", errors.New(errors.ErrCodeInvariantViolation, "bad band"), errors.ErrCodeInvariantViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := installHooks(t)
			r := newTestRunner(nil)
			r.BandFunc = func(pixels []byte, bounds fractal.Bounds, view fractal.Rect, b band.Band) {
				if b.Index == 2 {
					panic(tt.panic)
				}
				RenderBand(pixels, bounds, view, b)
			}

			img, err := r.Render(context.Background(), Options{Width: 20, Height: 20, Threads: 4})
			if img != nil {
				t.Error("failed render returned an image")
			}
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
			if h.bands != 4 {
				t.Errorf("band completions = %d, want 4", h.bands)
			}
			if h.bandErrs != 1 {
				t.Errorf("failed bands = %d, want 1", h.bandErrs)
			}
			if h.completes != 1 || h.lastErr == nil {
				t.Errorf("render completion: count=%d err=%v", h.completes, h.lastErr)
			}
		})
	}
}

func TestRenderMalformedBandIsInvariantViolation(t *testing.T) {
	r := newTestRunner(nil)
	r.BandFunc = func(pixels []byte, bounds fractal.Bounds, view fractal.Rect, b band.Band) {
		// Every band claims one row more than it owns.
		fractal.RenderRows(pixels, bounds, view, b.Top, b.Height+1)
	}
	_, err := r.Render(context.Background(), Options{Width: 8, Height: 8, Threads: 2})
	if !errors.Is(err, errors.ErrCodeInvariantViolation) {
		t.Errorf("error = %v, want INVARIANT_VIOLATION", err)
	}
}

func TestRenderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRunner(nil).Render(ctx, Options{Width: 10, Height: 10, Threads: 2})
	if err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRenderHooks(t *testing.T) {
	h := installHooks(t)
	_, err := newTestRunner(nil).Render(context.Background(), Options{Width: 10, Height: 10, Threads: 3})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if h.starts != 1 || h.bands != 3 || h.completes != 1 || h.lastErr != nil {
		t.Errorf("hooks: starts=%d bands=%d completes=%d err=%v", h.starts, h.bands, h.completes, h.lastErr)
	}
}

func TestExecuteEncodesPNG(t *testing.T) {
	res, err := newTestRunner(nil).Execute(context.Background(), Options{Width: 16, Height: 9, Threads: 3})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ID == "" {
		t.Error("result has no ID")
	}
	if res.Format != sink.FormatPNG {
		t.Errorf("format = %s, want png", res.Format)
	}
	if res.CacheHit {
		t.Error("null cache reported a hit")
	}
	if res.Stats.Bands != 3 || res.Stats.Bytes != len(res.Data) {
		t.Errorf("stats = %+v", res.Stats)
	}

	img, err := png.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 9 {
		t.Errorf("decoded bounds = %v", img.Bounds())
	}
}

func TestExecuteCacheIgnoresThreadCount(t *testing.T) {
	h := installHooks(t)
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := newTestRunner(fc)
	ctx := context.Background()

	first, err := r.Execute(ctx, Options{Width: 30, Height: 20, Threads: 1})
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if first.CacheHit {
		t.Error("first run should miss")
	}

	second, err := r.Execute(ctx, Options{Width: 30, Height: 20, Threads: 8, Banding: band.StrategyLegacy})
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !second.CacheHit {
		t.Error("second run should hit regardless of thread count")
	}
	if second.Image != nil {
		t.Error("cache hit should not carry a rendered image")
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Error("cached bytes differ from rendered bytes")
	}

	refreshed, err := r.Execute(ctx, Options{Width: 30, Height: 20, Threads: 2, Refresh: true})
	if err != nil {
		t.Fatalf("refresh Execute: %v", err)
	}
	if refreshed.CacheHit {
		t.Error("refresh should bypass the cache lookup")
	}

	if h.hits != 1 || h.misses != 1 || h.sets != 2 {
		t.Errorf("cache hooks: hits=%d misses=%d sets=%d", h.hits, h.misses, h.sets)
	}
}

func TestExecuteFormatChangesKey(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := newTestRunner(fc)
	ctx := context.Background()

	if _, err := r.Execute(ctx, Options{Width: 10, Height: 10, Threads: 1}); err != nil {
		t.Fatal(err)
	}
	res, err := r.Execute(ctx, Options{Width: 10, Height: 10, Threads: 1, Format: sink.FormatBMP})
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHit {
		t.Error("bmp request served png bytes from cache")
	}
}

func TestExecuteLogsThroughOptionsLogger(t *testing.T) {
	r := newTestRunner(nil)
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	_, err := r.Execute(context.Background(), Options{
		Width:   8,
		Height:  8,
		Threads: 2,
		Logger:  logger.With("request_id", "req-42"),
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"joined bands", "rendered image", "encoded image", "request_id=req-42"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderFailureLogsThroughOptionsLogger(t *testing.T) {
	r := newTestRunner(nil)
	r.BandFunc = func([]byte, fractal.Bounds, fractal.Rect, band.Band) { panic("boom") }
	var buf bytes.Buffer

	_, err := r.Render(context.Background(), Options{
		Width:   4,
		Height:  4,
		Threads: 1,
		Logger:  log.NewWithOptions(&buf, log.Options{}),
	})
	if err == nil {
		t.Fatal("expected a worker failure")
	}
	if !strings.Contains(buf.String(), "render failed") {
		t.Errorf("log output = %q, want a render failed line", buf.String())
	}
}

func TestExecuteCompressionChangesKeyNotPixels(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := newTestRunner(fc)
	ctx := context.Background()

	stored, err := r.Execute(ctx, Options{Width: 32, Height: 32, Threads: 2, Compression: sink.CompressionNone})
	if err != nil {
		t.Fatal(err)
	}
	packed, err := r.Execute(ctx, Options{Width: 32, Height: 32, Threads: 2, Compression: sink.CompressionBest})
	if err != nil {
		t.Fatal(err)
	}
	if packed.CacheHit {
		t.Error("best compression request served uncompressed bytes from cache")
	}
	if len(stored.Data) <= len(packed.Data) {
		t.Errorf("uncompressed %d bytes, best %d bytes", len(stored.Data), len(packed.Data))
	}
	if !bytes.Equal(stored.Image.Pixels, packed.Image.Pixels) {
		t.Error("compression changed the rendered pixels")
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{Width: 4, Height: 4, Threads: 2}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	if opts.Banding != band.DefaultStrategy {
		t.Errorf("banding = %s, want %s", opts.Banding, band.DefaultStrategy)
	}
	if opts.Format != sink.DefaultFormat {
		t.Errorf("format = %s, want %s", opts.Format, sink.DefaultFormat)
	}
	if opts.Compression != sink.CompressionDefault {
		t.Errorf("compression = %s, want %s", opts.Compression, sink.CompressionDefault)
	}
	if opts.View != fractal.DefaultView {
		t.Errorf("view = %v, want default", opts.View)
	}
	if opts.Logger == nil {
		t.Error("logger not defaulted")
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Errorf("second call: %v", err)
	}

	key := opts.ArtifactKeyOpts()
	if key.Limit != fractal.IterationLimit || key.UpperLeft != [2]float64{-1, 1} || key.LowerRight != [2]float64{1, -1} {
		t.Errorf("artifact key opts = %+v", key)
	}
}

func BenchmarkRender(b *testing.B) {
	r := newTestRunner(nil)
	ctx := context.Background()
	for _, threads := range []int{1, 2, 4, 8} {
		b.Run(fmt.Sprintf("threads=%d", threads), func(b *testing.B) {
			opts := Options{Width: 400, Height: 300, Threads: threads}
			for i := 0; i < b.N; i++ {
				if _, err := r.Render(ctx, opts); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
