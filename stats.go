package multimap

import (
	"fmt"
	"math"
	"strings"
)

// Stats returns statistics for the MultiMapOf. Just like other map
// methods, this one is thread-safe. Yet it's an O(N) operation,
// so it should be used only for diagnostics or debugging purposes.
func (m *MultiMapOf[K, V]) Stats() *MultiMapStats {
	stats := &MultiMapStats{
		Segments:        len(m.segments),
		TotalGrowths:    m.totalGrowths.Load(),
		CappedSegments:  m.cappedSegments.Load(),
		LockedFallbacks: m.lockedFallback.Load(),
		MinChainLen:     math.MaxInt,
		MinSegmentKeys:  math.MaxInt,
	}
	for i := range m.segments {
		s := &m.segments[i]
		stats.Counter += int(s.count.Load())
		stats.KeyCounter += int(s.entryCount.Load())

		t := s.table.Load()
		stats.TotalBuckets += len(t.buckets)
		segmentKeys := 0
		for j := range t.buckets {
			chainLen := 0
			for e := t.buckets[j].Load(); e != nil; e = e.next {
				chainLen++
				if vs := e.values.Load(); vs != nil {
					stats.Size += vs.len()
				}
			}
			if chainLen == 0 {
				stats.EmptyBuckets++
			}
			stats.MinChainLen = min(stats.MinChainLen, chainLen)
			stats.MaxChainLen = max(stats.MaxChainLen, chainLen)
			segmentKeys += chainLen
		}
		stats.Keys += segmentKeys
		stats.MinSegmentKeys = min(stats.MinSegmentKeys, segmentKeys)
		stats.MaxSegmentKeys = max(stats.MaxSegmentKeys, segmentKeys)
	}
	return stats
}

// MultiMapStats is MultiMapOf statistics.
//
// Warning: map statistics are intended to be used for diagnostic
// purposes, not for production code. This means that breaking changes
// may be introduced into this struct even between minor releases.
type MultiMapStats struct {
	// Segments is the number of independently locked segments.
	Segments int
	// TotalBuckets is the sum of the bucket array lengths of all segments.
	TotalBuckets int
	// EmptyBuckets is the number of buckets that hold no entries.
	EmptyBuckets int
	// Keys is the exact number of distinct keys found by walking the
	// bucket arrays.
	Keys int
	// Size is the exact number of key-value pairs found by walking the
	// bucket arrays.
	Size int
	// KeyCounter is the number of keys according to the segment counters.
	// In case of concurrent modifications this number may be different
	// from Keys.
	KeyCounter int
	// Counter is the number of pairs according to the segment counters.
	// In case of concurrent modifications this number may be different
	// from Size.
	Counter int
	// MinChainLen is the minimum number of entries in a bucket chain.
	MinChainLen int
	// MaxChainLen is the maximum number of entries in a bucket chain.
	MaxChainLen int
	// MinSegmentKeys is the minimum number of keys held by a segment.
	MinSegmentKeys int
	// MaxSegmentKeys is the maximum number of keys held by a segment.
	MaxSegmentKeys int
	// TotalGrowths is the number of times a segment table grew.
	TotalGrowths uint32
	// CappedSegments is the number of segments that hit the maximum
	// table length and stopped growing.
	CappedSegments uint32
	// LockedFallbacks is the number of aggregate operations that had
	// to lock all segments.
	LockedFallbacks uint32
}

// ToString returns string representation of map stats.
func (s *MultiMapStats) ToString() string {
	var sb strings.Builder
	sb.WriteString("MultiMapStats{\n")
	sb.WriteString(fmt.Sprintf("Segments:        %d\n", s.Segments))
	sb.WriteString(fmt.Sprintf("TotalBuckets:    %d\n", s.TotalBuckets))
	sb.WriteString(fmt.Sprintf("EmptyBuckets:    %d\n", s.EmptyBuckets))
	sb.WriteString(fmt.Sprintf("Keys:            %d\n", s.Keys))
	sb.WriteString(fmt.Sprintf("Size:            %d\n", s.Size))
	sb.WriteString(fmt.Sprintf("KeyCounter:      %d\n", s.KeyCounter))
	sb.WriteString(fmt.Sprintf("Counter:         %d\n", s.Counter))
	sb.WriteString(fmt.Sprintf("MinChainLen:     %d\n", s.MinChainLen))
	sb.WriteString(fmt.Sprintf("MaxChainLen:     %d\n", s.MaxChainLen))
	sb.WriteString(fmt.Sprintf("MinSegmentKeys:  %d\n", s.MinSegmentKeys))
	sb.WriteString(fmt.Sprintf("MaxSegmentKeys:  %d\n", s.MaxSegmentKeys))
	sb.WriteString(fmt.Sprintf("TotalGrowths:    %d\n", s.TotalGrowths))
	sb.WriteString(fmt.Sprintf("CappedSegments:  %d\n", s.CappedSegments))
	sb.WriteString(fmt.Sprintf("LockedFallbacks: %d\n", s.LockedFallbacks))
	sb.WriteString("}\n")
	return sb.String()
}
