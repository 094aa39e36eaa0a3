package fractal

import (
	"github.com/matzehuels/mandelbrot/pkg/errors"
)

// Render fills pixels with the escape-time image of r.
//
// pixels must hold exactly bounds.Len() bytes; anything else is a programming
// error and Render panics with an *errors.Error coded
// errors.ErrCodeInvariantViolation. Every byte is written exactly once and no
// byte is read. A grid with zero height renders nothing.
func Render(pixels []byte, bounds Bounds, r Rect) {
	RenderRows(pixels, bounds, r, 0, bounds.Height)
}

// RenderRows fills pixels with rows [top, top+height) of the image that
// Render would produce for bounds and r. Points are mapped through the full
// bounds, so a row renders to the same bytes whichever band it belongs to.
//
// pixels must hold exactly bounds.Width*height bytes and the rows must lie
// inside bounds; violations panic like Render.
func RenderRows(pixels []byte, bounds Bounds, r Rect, top, height int) {
	if height < 0 || top < 0 || top+height > bounds.Height {
		panic(errors.New(errors.ErrCodeInvariantViolation,
			"rows [%d,%d) outside image of height %d", top, top+height, bounds.Height))
	}
	if want := bounds.Width * height; len(pixels) != want {
		panic(errors.New(errors.ErrCodeInvariantViolation,
			"pixel buffer holds %d bytes, %dx%d rows need %d",
			len(pixels), bounds.Width, height, want))
	}

	for row := 0; row < height; row++ {
		line := pixels[row*bounds.Width : (row+1)*bounds.Width]
		for col := range line {
			point := PixelToPoint(bounds, Pixel{X: col, Y: top + row}, r)
			line[col] = shade(EscapeTime(point, IterationLimit))
		}
	}
}

// shade converts an escape result into a gray level.
func shade(count uint32, escaped bool) byte {
	if !escaped {
		return 0
	}
	return byte(255 - count)
}
