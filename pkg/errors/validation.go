package errors

import (
	"unicode"
)

// MaxDimension bounds width and height so that width*height cannot overflow
// and a single render stays within a sane memory budget.
const MaxDimension = 1 << 16

// ValidateDimensions checks that both image dimensions are positive and
// within MaxDimension.
func ValidateDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return New(ErrCodeInvalidConfiguration, "image dimensions must be positive, got %dx%d", width, height)
	}
	if width > MaxDimension || height > MaxDimension {
		return New(ErrCodeInvalidConfiguration, "image dimensions too large (max %d), got %dx%d", MaxDimension, width, height)
	}
	return nil
}

// MaxThreads bounds the number of band tasks a single render may spawn.
const MaxThreads = 1 << 14

// ValidateThreads checks that at least one and at most MaxThreads render
// tasks were requested.
func ValidateThreads(n int) error {
	if n <= 0 {
		return New(ErrCodeInvalidConfiguration, "thread count must be >= 1, got %d", n)
	}
	if n > MaxThreads {
		return New(ErrCodeInvalidConfiguration, "thread count too large (max %d), got %d", MaxThreads, n)
	}
	return nil
}

// ValidateOutputPath validates a file path the rendered image is written to.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 4096 characters
//   - No null bytes or control characters
func ValidateOutputPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "output path cannot be empty")
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "output path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "output path contains invalid characters")
		}
	}

	return nil
}
