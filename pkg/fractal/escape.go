package fractal

// IterationLimit is the number of iterations after which a point is treated
// as a member of the set. It also fixes the grayscale resolution: every escape
// count is below 255, so 255-count always fits a byte.
const IterationLimit uint32 = 255

// EscapeTime iterates z = z*z + c from z = 0 at most limit times.
// It returns the iteration index at which |z|^2 first exceeded 4 and true,
// or 0 and false if c did not escape within limit iterations.
func EscapeTime(c complex128, limit uint32) (uint32, bool) {
	var z complex128
	for i := uint32(0); i < limit; i++ {
		z = z*z + c
		if re, im := real(z), imag(z); re*re+im*im > 4.0 {
			return i, true
		}
	}
	return 0, false
}
