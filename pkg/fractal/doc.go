// Package fractal implements the escape-time rendering of the Mandelbrot set.
//
// The package is the pure, single-threaded half of the engine: it maps pixels
// to points of the complex plane, decides whether a point escapes, and fills a
// grayscale pixel buffer for a rectangle of the plane. It knows nothing about
// goroutines; the parallel split lives in the band and pipeline packages.
//
// # Coordinates
//
// Pixel space has its origin in the top-left corner with Y growing downward.
// The plane rectangle is described by its upper-left and lower-right corners,
// so the imaginary part decreases as the pixel row grows:
//
//	UpperLeft ─────────────┐
//	    │                  │
//	    └──────────── LowerRight
//
// [PixelToPoint] accepts corner inputs outside the strict pixel grid, so that
// (Width, Height) maps exactly onto LowerRight.
//
// # Pixel values
//
// [Render] writes one byte per pixel: 0 for points that never escaped within
// [IterationLimit] iterations, and 255-n for points that escaped at iteration n.
// Fast-escaping points are therefore bright.
package fractal
