package sink

import (
	"bufio"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/matzehuels/mandelbrot/pkg/errors"
	"github.com/matzehuels/mandelbrot/pkg/fractal"
)

// Format names an output encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
)

// DefaultFormat is used when no format is configured.
const DefaultFormat = FormatPNG

// ValidFormats is the set of supported output formats.
var ValidFormats = map[Format]bool{
	FormatPNG:  true,
	FormatTIFF: true,
	FormatBMP:  true,
}

var contentTypes = map[Format]string{
	FormatPNG:  "image/png",
	FormatTIFF: "image/tiff",
	FormatBMP:  "image/bmp",
}

// ParseFormat converts a flag or config value into a Format.
// The empty string selects DefaultFormat and "tif" is accepted for TIFF.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return DefaultFormat, nil
	case "tif":
		return FormatTIFF, nil
	}
	if !ValidFormats[f] {
		return "", errors.New(errors.ErrCodeInvalidFormat,
			"invalid output format: %q (must be one of: png, tiff, bmp)", s)
	}
	return f, nil
}

// FormatFromPath infers the format from a file extension, falling back to
// DefaultFormat for unknown or missing extensions.
func FormatFromPath(path string) Format {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if f, err := ParseFormat(ext); err == nil && ext != "" {
		return f
	}
	return DefaultFormat
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if ct, ok := contentTypes[f]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Extension returns the conventional file extension of f, without the dot.
func (f Format) Extension() string {
	return string(f)
}

// Compression selects how hard the encoder works to shrink the file.
// BMP output is always uncompressed.
type Compression string

const (
	CompressionDefault Compression = "default"
	CompressionNone    Compression = "none"
	CompressionSpeed   Compression = "speed"
	CompressionBest    Compression = "best"
)

// ParseCompression converts a flag or config value into a Compression.
// The empty string selects CompressionDefault.
func ParseCompression(s string) (Compression, error) {
	c := Compression(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case "":
		return CompressionDefault, nil
	case CompressionDefault, CompressionNone, CompressionSpeed, CompressionBest:
		return c, nil
	}
	return "", errors.New(errors.ErrCodeInvalidConfiguration,
		"invalid compression: %q (must be one of: default, none, speed, best)", s)
}

// Option configures encoding.
type Option func(*encoder)

type encoder struct {
	pngLevel  png.CompressionLevel
	tiffComp  tiff.CompressionType
	predictor bool
}

// WithCompression applies c to the PNG and TIFF encoders.
//
//	none   PNG stored blocks, TIFF uncompressed
//	speed  PNG fastest deflate, TIFF deflate
//	best   PNG best deflate, TIFF deflate with horizontal predictor
func WithCompression(c Compression) Option {
	return func(e *encoder) {
		switch c {
		case CompressionNone:
			e.pngLevel = png.NoCompression
			e.tiffComp = tiff.Uncompressed
		case CompressionSpeed:
			e.pngLevel = png.BestSpeed
		case CompressionBest:
			e.pngLevel = png.BestCompression
			e.predictor = true
		}
	}
}

// Encode writes pixels as a grayscale image of the given bounds to w.
// pixels must hold exactly bounds.Len() bytes.
func Encode(w io.Writer, pixels []byte, bounds fractal.Bounds, format Format, opts ...Option) error {
	img, err := Gray(pixels, bounds)
	if err != nil {
		return err
	}

	e := encoder{pngLevel: png.DefaultCompression, tiffComp: tiff.Deflate}
	for _, opt := range opts {
		opt(&e)
	}

	switch format {
	case FormatPNG, "":
		enc := png.Encoder{CompressionLevel: e.pngLevel}
		err = enc.Encode(w, img)
	case FormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: e.tiffComp, Predictor: e.predictor})
	case FormatBMP:
		err = bmp.Encode(w, img)
	default:
		return errors.New(errors.ErrCodeInvalidFormat, "unsupported output format: %q", format)
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "encode %s", format)
	}
	return nil
}

// Gray wraps pixels in an *image.Gray without copying.
func Gray(pixels []byte, bounds fractal.Bounds) (*image.Gray, error) {
	if err := errors.ValidateDimensions(bounds.Width, bounds.Height); err != nil {
		return nil, err
	}
	if len(pixels) != bounds.Len() {
		return nil, errors.New(errors.ErrCodeInvariantViolation,
			"pixel buffer holds %d bytes, %dx%d image needs %d",
			len(pixels), bounds.Width, bounds.Height, bounds.Len())
	}
	return &image.Gray{
		Pix:    pixels,
		Stride: bounds.Width,
		Rect:   image.Rect(0, 0, bounds.Width, bounds.Height),
	}, nil
}

// WriteFile encodes pixels into a new file at path, replacing any existing file.
// Failures to create, write or flush the file are reported as IO_FAILURE.
func WriteFile(path string, pixels []byte, bounds fractal.Bounds, format Format, opts ...Option) error {
	if err := errors.ValidateOutputPath(path); err != nil {
		return err
	}
	// Reject a malformed buffer before an existing file is truncated.
	if _, err := Gray(pixels, bounds); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", path)
	}

	bw := bufio.NewWriter(f)
	if err := Encode(bw, pixels, bounds, format, opts...); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrap(errors.ErrCodeIO, err, "write %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "close %s", path)
	}
	return nil
}
