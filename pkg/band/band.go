package band

import (
	"fmt"
	"strings"

	"github.com/matzehuels/mandelbrot/pkg/errors"
	"github.com/matzehuels/mandelbrot/pkg/fractal"
)

// Strategy selects how rows are distributed across bands.
type Strategy string

const (
	// StrategyEven assigns floor/ceil shares of the rows to exactly n bands.
	StrategyEven Strategy = "even"

	// StrategyLegacy uses rowsPerBand = height/n + 1.
	StrategyLegacy Strategy = "legacy"
)

// DefaultStrategy is used when no strategy is configured.
const DefaultStrategy = StrategyEven

// ValidStrategies is the set of supported banding strategies.
var ValidStrategies = map[Strategy]bool{
	StrategyEven:   true,
	StrategyLegacy: true,
}

// ParseStrategy converts a flag or config value into a Strategy.
// The empty string selects DefaultStrategy.
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return DefaultStrategy, nil
	}
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if !ValidStrategies[st] {
		return "", errors.New(errors.ErrCodeInvalidConfiguration,
			"invalid banding strategy: %q (must be one of: even, legacy)", s)
	}
	return st, nil
}

// Band is a contiguous run of image rows assigned to one render task.
type Band struct {
	Index  int // position in the ordered band list
	Top    int // first row covered by the band
	Height int // number of rows, possibly zero
	Start  int // first byte of the band in the image buffer
	End    int // one past the last byte of the band

	// Bounds is the band's own pixel grid: full image width, band height.
	Bounds fractal.Bounds

	// View is the plane rectangle covered by the band's rows.
	View fractal.Rect
}

// Len returns the number of bytes owned by the band.
func (b Band) Len() int {
	return b.End - b.Start
}

// String implements fmt.Stringer for log output.
func (b Band) String() string {
	return fmt.Sprintf("band %d rows [%d,%d)", b.Index, b.Top, b.Top+b.Height)
}

// Partition splits an image of the given bounds, showing view, into bands for
// threads render tasks.
//
// A thread count below one, or bounds that do not describe a non-empty image,
// are rejected with errors.ErrCodeInvalidConfiguration before anything is
// computed.
func Partition(bounds fractal.Bounds, view fractal.Rect, threads int, s Strategy) ([]Band, error) {
	if err := errors.ValidateThreads(threads); err != nil {
		return nil, err
	}
	if err := errors.ValidateDimensions(bounds.Width, bounds.Height); err != nil {
		return nil, err
	}

	var rows []int
	switch s {
	case StrategyEven, "":
		rows = evenRows(bounds.Height, threads)
	case StrategyLegacy:
		rows = legacyRows(bounds.Height, threads)
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "unknown banding strategy: %q", s)
	}

	bands := make([]Band, len(rows))
	top := 0
	for i, h := range rows {
		bands[i] = newBand(i, top, h, bounds, view)
		top += h
	}
	return bands, nil
}

// newBand computes the byte range and plane corners of rows [top, top+height).
func newBand(index, top, height int, bounds fractal.Bounds, view fractal.Rect) Band {
	return Band{
		Index:  index,
		Top:    top,
		Height: height,
		Start:  top * bounds.Width,
		End:    (top + height) * bounds.Width,
		Bounds: fractal.Bounds{Width: bounds.Width, Height: height},
		View: fractal.Rect{
			UpperLeft:  fractal.PixelToPoint(bounds, fractal.Pixel{X: 0, Y: top}, view),
			LowerRight: fractal.PixelToPoint(bounds, fractal.Pixel{X: bounds.Width, Y: top + height}, view),
		},
	}
}

// evenRows returns n band heights summing to height.
func evenRows(height, n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = (i+1)*height/n - i*height/n
	}
	return rows
}

// legacyRows returns the heights of consecutive chunks of height/n+1 rows;
// the last chunk takes whatever is left.
func legacyRows(height, n int) []int {
	per := height/n + 1
	var rows []int
	for left := height; left > 0; left -= per {
		rows = append(rows, min(per, left))
	}
	return rows
}
