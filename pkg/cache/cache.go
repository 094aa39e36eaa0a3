// Package cache stores encoded renders so that identical requests skip the
// engine entirely.
//
// Rendering is deterministic: the bytes of an image depend on its size, view,
// iteration limit and output format, never on the number of band tasks or
// the banding strategy. Cache keys are built from exactly those inputs, so a
// render made with 1 thread serves a later request for 32.
//
// Three backends implement [Cache]:
//   - [FileCache]: one JSON file per entry, for CLI usage
//   - [RedisCache]: shared cache for the HTTP service
//   - [NullCache]: caching disabled
package cache

import (
	"context"
	"time"
)

// TTLArtifact is how long encoded images are kept.
const TTLArtifact = 7 * 24 * time.Hour

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the stored value and true, or nil and false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero keeps the entry forever.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// ArtifactKeyOpts lists every input that changes the bytes of an encoded render.
type ArtifactKeyOpts struct {
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	UpperLeft   [2]float64 `json:"upper_left"`
	LowerRight  [2]float64 `json:"lower_right"`
	Limit       uint32     `json:"limit"`
	Format      string     `json:"format"`
	Compression string     `json:"compression"`
}

// Keyer builds cache keys.
type Keyer interface {
	// ArtifactKey returns the key of an encoded render.
	ArtifactKey(opts ArtifactKeyOpts) string
}

// DefaultKeyer hashes key options into fixed-length keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ArtifactKey generates a key for an encoded render.
func (DefaultKeyer) ArtifactKey(opts ArtifactKeyOpts) string {
	return hashKey("artifact", opts)
}
