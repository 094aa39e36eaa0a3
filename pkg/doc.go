// Package pkg provides the libraries behind the mandelbrot renderer.
//
// # Overview
//
// The renderer rasterizes the Mandelbrot set into an 8-bit grayscale image.
// Rows are split into bands that render concurrently into one shared buffer;
// the result is identical for every thread count.
//
// # Architecture
//
// The data flow for one render:
//
//	[pipeline] Options (size, threads, banding, format)
//	         ↓
//	    [band] package (partition rows into disjoint byte ranges)
//	         ↓
//	    [fractal] package (pixel → point mapping, escape time, per-row fill)
//	         ↓   one goroutine per band, joined by errgroup
//	    [sink] package (PNG, TIFF or BMP encoding)
//	         ↓
//	    [cache] package (file, Redis or no cache)
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/matzehuels/mandelbrot/pkg/pipeline"
//	    "github.com/matzehuels/mandelbrot/pkg/sink"
//	)
//
//	runner := pipeline.NewRunner(nil, nil, nil)
//	img, err := runner.Render(context.Background(), pipeline.Options{
//	    Width:   1920,
//	    Height:  1080,
//	    Threads: 8,
//	})
//	if err != nil {
//	    return err
//	}
//	err = sink.WriteFile("mandelbrot.png", img.Pixels, img.Bounds, sink.FormatPNG)
//
// # Main Packages
//
// [fractal] - Pixel to complex-plane mapping, the escape-time test and the
// row renderer. Pure functions with no allocation in the hot loop.
//
// [band] - Row partitioning. Two strategies: even (exactly n bands whose
// heights differ by at most one) and legacy (height/n+1 rows per band).
//
// [pipeline] - The parallel orchestrator plus encode and cache stages,
// shared by the CLI and the HTTP service.
//
// [sink] - Grayscale image encoders.
//
// [cache] - Byte caches for encoded images, keyed by everything that changes
// the output bytes and nothing else.
//
// [config] - Optional TOML configuration.
//
// [errors] - Coded errors and input validation.
//
// [observability] - Hooks for render and cache events.
//
// [buildinfo] - Version information injected at build time.
package pkg
