package multimap

import (
	"hash/maphash"
	"math/bits"
	"reflect"
)

// hashFunc computes the native (pre-spread) hash of a key.
type hashFunc[K comparable] func(key K) uint64

// newHashFunc returns the built-in comparable hasher bound to a fresh
// random seed, or wraps a user supplied hasher.
func newHashFunc[K comparable](custom any) hashFunc[K] {
	seed := maphash.MakeSeed()
	if keyHash, ok := custom.(func(key K, seed uintptr) uintptr); ok {
		s := uintptr(maphash.Comparable(seed, 0))
		return func(key K) uint64 {
			return uint64(keyHash(key, s))
		}
	}
	return func(key K) uint64 {
		return maphash.Comparable(seed, key)
	}
}

// spread applies a supplemental hash function to a native hash.
// Segment selection uses the upper bits and bucket selection the lower
// bits of the result, and both are masked by powers of two; without
// mixing, hashes that differ only in their lower or upper bits (identity
// hashes of small integers, pointer hashes) would pile into a single
// segment or bucket. The finalizer avalanches every input bit over
// the whole word.
func spread(h uint64) uint64 {
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// nextPowOf2 calculates the smallest power of 2 that is greater than or equal to n.
// Compatible with both 32-bit and 64-bit systems.
func nextPowOf2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// nilable reports whether the zero value of T is a nil reference,
// in which case the zero value is rejected as a key or value.
func nilable[T any]() bool {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Interface, reflect.Chan:
		return true
	default:
		return false
	}
}
