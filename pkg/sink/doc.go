// Package sink encodes rendered pixel buffers into image files.
//
// A "sink" takes the row-major grayscale buffer produced by the engine and
// writes it as a single-channel 8-bit image of the same width and height.
// Byte row*width+col becomes pixel (col, row); 0 is black.
//
// Supported formats:
//
//   - PNG: the default, via image/png
//   - TIFF: via golang.org/x/image/tiff
//   - BMP: via golang.org/x/image/bmp
//
// Basic usage:
//
//	err := sink.WriteFile("mandelbrot.png", pixels, bounds, sink.FormatPNG)
//
// [WithCompression] trades encode time for file size. It never changes the
// decoded pixels.
//
// [Encode] writes to any io.Writer, which is how the HTTP service streams
// responses and how the pipeline fills the artifact cache.
package sink
