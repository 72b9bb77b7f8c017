//go:build !multimap_opt_cachelinesize_128

package multimap

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is used in segment padding to prevent false sharing
// between neighbouring segment locks and counters.
// It's automatically calculated using the `golang.org/x/sys` package.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})
