// Package multimap provides MultiMapOf, a concurrent hash multimap that
// associates each key with a set of distinct values.
package multimap

import (
	"fmt"
	"math/bits"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// MultiMapOf is a concurrent hash multimap: each key maps to a set of
// distinct values. It is safe for concurrent use by multiple goroutines
// without additional locking or coordination.
//
// The table is split into a fixed number of segments, chosen by the top
// bits of a spread key hash. Each segment owns a bucket array of
// immutable entry chains, a lock, and a few counters:
//   - Reads (Get, ContainsKey, ContainsEntry) never lock. They load the
//     segment's value counter first and then walk a chain that no writer
//     ever modifies in place.
//   - Writes lock exactly one segment for their whole duration, so writers
//     to different segments never contend.
//   - Each segment grows its own bucket array, reusing unchanged chain
//     tails, while readers keep walking the old array.
//   - Size, KeyCount, IsZero and ContainsValue read all segments
//     optimistically and lock every segment only under sustained writes.
//
// Iteration, through the views returned by KeySet, Entries, Values and
// AsMap, is weakly consistent: it never fails because of concurrent
// modification, it returns every element that was present for the whole
// iteration, and it may or may not return elements added or removed
// meanwhile. It is neither a live view nor a point-in-time snapshot.
//
// Keys and values of pointer, interface or channel type must not be nil;
// the single-pair operations panic with an error wrapping
// ErrInvalidArgument when they are.
//
// A MultiMapOf must be created with NewMultiMapOf and must not be copied
// after first use.
type MultiMapOf[K comparable, V comparable] struct {
	_ noCopy

	segments     []segment[K, V]
	segmentShift uint
	segmentMask  uint64
	keyHash      hashFunc[K]
	loadFactor   float64
	maxTableLen  int
	nilableKey   bool
	nilableValue bool
	logger       zerolog.Logger

	totalGrowths   atomic.Uint32
	cappedSegments atomic.Uint32
	lockedFallback atomic.Uint32
}

// NewMultiMapOf creates a new MultiMapOf instance.
//
// Parameters:
//   - WithConcurrencyLevel option for the number of segments
//   - WithPresize option for initial capacity
//   - WithLoadFactor option for the per-segment growth threshold
//   - WithKeyHasher option for a custom key hash
//   - WithLogger option for diagnostics
func NewMultiMapOf[K comparable, V comparable](
	options ...func(*MultiMapConfig),
) *MultiMapOf[K, V] {
	c := defaultConfig()
	for _, o := range options {
		o(c)
	}
	m := &MultiMapOf[K, V]{}
	m.init(c)
	return m
}

func (m *MultiMapOf[K, V]) init(c *MultiMapConfig) {
	segments := nextPowOf2(min(c.concurrencyLevel, maxSegments))
	m.segments = make([]segment[K, V], segments)
	m.segmentShift = uint(64 - bits.TrailingZeros(uint(segments)))
	m.segmentMask = uint64(segments - 1)
	m.keyHash = newHashFunc[K](c.keyHash)
	m.loadFactor = c.loadFactor
	m.maxTableLen = max(c.maxTableLen, minSegmentTableLen)
	m.nilableKey = nilable[K]()
	m.nilableValue = nilable[V]()
	m.logger = c.logger

	tableLen := calcSegmentTableLen(c.sizeHint, segments, c.loadFactor, m.maxTableLen)
	for i := range m.segments {
		m.segments[i].init(i, tableLen, c.loadFactor)
	}
}

// calcSegmentTableLen computes the initial bucket count of each segment
// so that sizeHint keys fit without growing.
// return value must be a power of 2
func calcSegmentTableLen(sizeHint, segments int, loadFactor float64, maxTableLen int) int {
	perSegment := (sizeHint + segments - 1) / segments
	tableLen := nextPowOf2(int(float64(perSegment)/loadFactor) + 1)
	return min(max(tableLen, minSegmentTableLen), nextPowOf2(maxTableLen))
}

// segmentFor returns the segment owning a spread hash.
func (m *MultiMapOf[K, V]) segmentFor(hash uint64) *segment[K, V] {
	if m.segmentMask == 0 {
		return &m.segments[0]
	}
	return &m.segments[(hash>>m.segmentShift)&m.segmentMask]
}

func (m *MultiMapOf[K, V]) hash(key K) uint64 {
	return spread(m.keyHash(key))
}

func (m *MultiMapOf[K, V]) checkKey(key K) error {
	if m.nilableKey && key == *new(K) {
		return errNilKey
	}
	return nil
}

func (m *MultiMapOf[K, V]) checkValue(value V) error {
	if m.nilableValue && value == *new(V) {
		return errNilValue
	}
	return nil
}

func (m *MultiMapOf[K, V]) checkValues(values []V) error {
	if !m.nilableValue {
		return nil
	}
	for _, v := range values {
		if err := m.checkValue(v); err != nil {
			return err
		}
	}
	return nil
}

// tryPut is Put reporting invalid arguments as an error.
func (m *MultiMapOf[K, V]) tryPut(key K, value V) (bool, error) {
	if err := m.checkKey(key); err != nil {
		return false, err
	}
	if err := m.checkValue(value); err != nil {
		return false, err
	}
	hash := m.hash(key)
	return m.segmentFor(hash).put(m, key, hash, value), nil
}

// Put associates value with key. It reports whether the pair was newly
// added; adding a pair that is already present changes nothing.
func (m *MultiMapOf[K, V]) Put(key K, value V) bool {
	added, err := m.tryPut(key, value)
	panicOnInvalid(err)
	return added
}

// PutAll associates every given value with key, under a single segment
// lock. It reports whether at least one pair was newly added.
func (m *MultiMapOf[K, V]) PutAll(key K, values ...V) bool {
	panicOnInvalid(m.checkKey(key))
	panicOnInvalid(m.checkValues(values))
	if len(values) == 0 {
		return false
	}
	hash := m.hash(key)
	return m.segmentFor(hash).putAll(m, key, hash, values)
}

// Get returns a live view of the values associated with key.
// The view is never nil and holds no reference to the current value set:
// each of its methods resolves the key again, so it reflects every later
// change, including removal and re-insertion of the key.
func (m *MultiMapOf[K, V]) Get(key K) KeyValues[K, V] {
	panicOnInvalid(m.checkKey(key))
	return KeyValues[K, V]{m: m, key: key}
}

// values resolves the current value set of key, or nil.
func (m *MultiMapOf[K, V]) values(key K) *valueSet[V] {
	hash := m.hash(key)
	return m.segmentFor(hash).get(key, hash)
}

// ContainsKey reports whether at least one value is associated with key.
func (m *MultiMapOf[K, V]) ContainsKey(key K) bool {
	panicOnInvalid(m.checkKey(key))
	hash := m.hash(key)
	return m.segmentFor(hash).containsKey(key, hash)
}

// ContainsEntry reports whether value is associated with key.
func (m *MultiMapOf[K, V]) ContainsEntry(key K, value V) bool {
	panicOnInvalid(m.checkKey(key))
	if m.checkValue(value) != nil {
		return false
	}
	hash := m.hash(key)
	return m.segmentFor(hash).containsEntry(key, hash, value)
}

// Remove removes a single key-value pair and reports whether it was
// present. When the last value of a key is removed, the key is removed too.
func (m *MultiMapOf[K, V]) Remove(key K, value V) bool {
	panicOnInvalid(m.checkKey(key))
	if m.checkValue(value) != nil {
		return false
	}
	hash := m.hash(key)
	return m.segmentFor(hash).remove(key, hash, value)
}

// RemoveAll removes key with all its values and returns the removed
// values in no particular order, or nil if the key was absent.
func (m *MultiMapOf[K, V]) RemoveAll(key K) []V {
	panicOnInvalid(m.checkKey(key))
	hash := m.hash(key)
	return m.segmentFor(hash).removeAll(key, hash)
}

// ReplaceValue atomically replaces oldValue with newValue among the
// values of key. It succeeds only if oldValue is currently associated
// with key; the other values of key are left untouched. If newValue is
// already associated with key, the key simply loses oldValue.
// Replacing a present value with itself succeeds without change.
func (m *MultiMapOf[K, V]) ReplaceValue(key K, oldValue, newValue V) bool {
	panicOnInvalid(m.checkKey(key))
	panicOnInvalid(m.checkValue(newValue))
	if m.checkValue(oldValue) != nil {
		return false
	}
	hash := m.hash(key)
	return m.segmentFor(hash).replaceValue(key, hash, oldValue, newValue)
}

// ReplaceValues atomically replaces all values of key with values and
// returns the values it displaced, or nil if the key was absent.
// An absent key is inserted unless values is empty; a present key
// with no new values is removed.
func (m *MultiMapOf[K, V]) ReplaceValues(key K, values ...V) []V {
	panicOnInvalid(m.checkKey(key))
	panicOnInvalid(m.checkValues(values))
	hash := m.hash(key)
	return m.segmentFor(hash).replaceValues(m, key, hash, values)
}

// Clear removes all pairs. Each segment is cleared under its own lock,
// so concurrent writers may leave pairs behind in already cleared
// segments.
func (m *MultiMapOf[K, V]) Clear() {
	for i := range m.segments {
		m.segments[i].clear(m.loadFactor)
	}
}

// String implement the formatting output interface fmt.Stringer
func (m *MultiMapOf[K, V]) String() string {
	const limit = 1024
	return strings.Replace(fmt.Sprint(m.ToMapWithLimit(limit)), "map[", "MultiMapOf[", 1)
}

// noCopy may be added to structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
//
// Note that it must not be embedded, due to the Lock and Unlock methods.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
