package fractal

// Bounds is the size of a pixel grid.
type Bounds struct {
	Width  int
	Height int
}

// Len returns the number of pixels (and buffer bytes) covered by b.
func (b Bounds) Len() int {
	return b.Width * b.Height
}

// Pixel addresses a pixel by column (X) and row (Y).
type Pixel struct {
	X int
	Y int
}

// Rect is a region of the complex plane given by its corners.
// A well-formed Rect has real(UpperLeft) < real(LowerRight) and
// imag(UpperLeft) > imag(LowerRight).
type Rect struct {
	UpperLeft  complex128
	LowerRight complex128
}

// Valid reports whether r has the screen orientation described on Rect.
func (r Rect) Valid() bool {
	return real(r.UpperLeft) < real(r.LowerRight) && imag(r.UpperLeft) > imag(r.LowerRight)
}

// DefaultView is the square of the plane centred on the origin with
// half-width 1. It is the only view the renderer is asked to produce.
var DefaultView = Rect{
	UpperLeft:  complex(-1.0, 1.0),
	LowerRight: complex(1.0, -1.0),
}

// PixelToPoint maps pixel p of a grid with the given bounds onto the plane
// rectangle r. The transform is affine and performs no bounds checks; p may
// lie on the far edges (p.X == Width, p.Y == Height).
func PixelToPoint(bounds Bounds, p Pixel, r Rect) complex128 {
	w := real(r.LowerRight) - real(r.UpperLeft)
	h := imag(r.UpperLeft) - imag(r.LowerRight)
	return complex(
		real(r.UpperLeft)+float64(p.X)*w/float64(bounds.Width),
		imag(r.UpperLeft)-float64(p.Y)*h/float64(bounds.Height),
	)
}
