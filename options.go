package multimap

import (
	"math"

	"github.com/rs/zerolog"
)

const (
	// defaultConcurrencyLevel is the number of segments used when
	// WithConcurrencyLevel is not given.
	defaultConcurrencyLevel = 16
	// maxSegments bounds the segment count; segment selection uses the
	// top bits of a 64-bit spread hash, so this must stay well below 1<<32.
	maxSegments = 1 << 16
	// defaultLoadFactor is the fraction of a segment's bucket array that
	// may be occupied by distinct keys before the array is doubled.
	defaultLoadFactor = 0.75
	// defaultSizeHint is the initial capacity, in keys, of a new map.
	defaultSizeHint = 16
	// minSegmentTableLen is the smallest bucket array a segment is created with.
	minSegmentTableLen = 2
	// maxSegmentTableLen is the largest bucket array a segment grows to.
	// Beyond it, further growth silently stops and chains get longer.
	maxSegmentTableLen = 1 << 30
)

// MultiMapConfig defines configurable MultiMapOf options.
type MultiMapConfig struct {
	concurrencyLevel int
	sizeHint         int
	loadFactor       float64
	keyHash          any // func(key K, seed uintptr) uintptr
	logger           zerolog.Logger
	maxTableLen      int
}

func defaultConfig() *MultiMapConfig {
	return &MultiMapConfig{
		concurrencyLevel: defaultConcurrencyLevel,
		sizeHint:         defaultSizeHint,
		loadFactor:       defaultLoadFactor,
		logger:           zerolog.Nop(),
		maxTableLen:      maxSegmentTableLen,
	}
}

// WithConcurrencyLevel configures the estimated number of concurrently
// writing goroutines. The map is split into that many independently
// locked segments, rounded up to a power of two. Values less than one
// are ignored.
func WithConcurrencyLevel(level int) func(*MultiMapConfig) {
	return func(c *MultiMapConfig) {
		if level > 0 {
			c.concurrencyLevel = level
		}
	}
}

// WithPresize configures new MultiMapOf instance with capacity enough
// to hold sizeHint distinct keys without growing. The capacity is split
// evenly across segments. If sizeHint is zero or negative, the value
// is ignored.
func WithPresize(sizeHint int) func(*MultiMapConfig) {
	return func(c *MultiMapConfig) {
		if sizeHint > 0 {
			c.sizeHint = sizeHint
		}
	}
}

// WithLoadFactor configures the per-segment load factor: a segment's
// bucket array is doubled once it holds more than len*loadFactor keys.
// Non-positive and non-finite values are ignored.
func WithLoadFactor(loadFactor float64) func(*MultiMapConfig) {
	return func(c *MultiMapConfig) {
		if loadFactor > 0 && !math.IsInf(loadFactor, 0) {
			c.loadFactor = loadFactor
		}
	}
}

// WithKeyHasher sets a custom key hashing function.
// The seed is randomized per map. The returned hash is always passed
// through an avalanche step, so simple identity hashes are acceptable.
func WithKeyHasher[K comparable](keyHash func(key K, seed uintptr) uintptr) func(*MultiMapConfig) {
	return func(c *MultiMapConfig) {
		if keyHash != nil {
			c.keyHash = keyHash
		}
	}
}

// WithLogger sets the logger used to report segment growth and
// the lock-all fallback of aggregate operations.
// By default nothing is logged.
func WithLogger(logger zerolog.Logger) func(*MultiMapConfig) {
	return func(c *MultiMapConfig) {
		c.logger = logger
	}
}
