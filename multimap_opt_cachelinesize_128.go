//go:build multimap_opt_cachelinesize_128

package multimap

// CacheLineSize is fixed to 128 bytes, matching the adjacent-line
// prefetcher pairing on recent x86 and the line size of Apple silicon.
const CacheLineSize = 128
