package multimap

import (
	"math"
)

// retriesBeforeLock is the number of optimistic passes an aggregate
// operation makes before it locks every segment.
const retriesBeforeLock = 2

// Size returns the number of key-value pairs in the map, clamped to
// math.MaxInt.
//
// The result is consistent with some instant during the call: segment
// counters are summed twice without locking and accepted when neither
// the sums nor any segment's modCount changed in between. Under
// continuous concurrent writes, all segments are locked instead.
func (m *MultiMapOf[K, V]) Size() int {
	return clampInt(m.sumCounters("size", func(s *segment[K, V]) int64 {
		return s.count.Load()
	}))
}

// KeyCount returns the number of distinct keys in the map, with the
// same consistency guarantee as Size.
func (m *MultiMapOf[K, V]) KeyCount() int {
	return clampInt(m.sumCounters("keyCount", func(s *segment[K, V]) int64 {
		return s.entryCount.Load()
	}))
}

func (m *MultiMapOf[K, V]) sumCounters(op string, counter func(s *segment[K, V]) int64) int64 {
	mc := make([]uint64, len(m.segments))
	for range retriesBeforeLock {
		var sum int64
		var mcsum uint64
		for i := range m.segments {
			s := &m.segments[i]
			sum += counter(s)
			mc[i] = s.modCount.Load()
			mcsum += mc[i]
		}
		if mcsum == 0 {
			return sum
		}
		check := int64(0)
		for i := range m.segments {
			s := &m.segments[i]
			check += counter(s)
			if mc[i] != s.modCount.Load() {
				check = -1
				break
			}
		}
		if check == sum {
			return sum
		}
	}

	m.lockAll(op)
	defer m.unlockAll()
	var sum int64
	for i := range m.segments {
		sum += counter(&m.segments[i])
	}
	return sum
}

// IsZero reports whether the map holds no pairs. It returns false as soon
// as any segment is seen non-empty; an all-empty pass is confirmed by a
// second pass over the modCounts.
func (m *MultiMapOf[K, V]) IsZero() bool {
	mc := make([]uint64, len(m.segments))
	var mcsum uint64
	for i := range m.segments {
		s := &m.segments[i]
		if s.count.Load() != 0 {
			return false
		}
		mc[i] = s.modCount.Load()
		mcsum += mc[i]
	}
	// If mcsum happens to be zero, then we know we got a snapshot before
	// any modifications at all were made.
	if mcsum != 0 {
		for i := range m.segments {
			s := &m.segments[i]
			if s.count.Load() != 0 || mc[i] != s.modCount.Load() {
				return false
			}
		}
	}
	return true
}

// ContainsValue reports whether value is associated with any key.
// It scans the whole map, so it is an O(N) operation.
func (m *MultiMapOf[K, V]) ContainsValue(value V) bool {
	if m.checkValue(value) != nil {
		return false
	}

	mc := make([]uint64, len(m.segments))
	for range retriesBeforeLock {
		var mcsum uint64
		for i := range m.segments {
			s := &m.segments[i]
			mc[i] = s.modCount.Load()
			mcsum += mc[i]
			if s.containsValue(value) {
				return true
			}
		}
		clean := true
		if mcsum != 0 {
			for i := range m.segments {
				if mc[i] != m.segments[i].modCount.Load() {
					clean = false
					break
				}
			}
		}
		if clean {
			return false
		}
	}

	m.lockAll("containsValue")
	defer m.unlockAll()
	for i := range m.segments {
		if m.segments[i].containsValue(value) {
			return true
		}
	}
	return false
}

// lockAll acquires every segment lock in index order. It is the only
// place where more than one segment lock is held at a time.
func (m *MultiMapOf[K, V]) lockAll(op string) {
	m.lockedFallback.Add(1)
	m.logger.Debug().
		Str("op", op).
		Int("segments", len(m.segments)).
		Msg("optimistic read retries exhausted, locking all segments")
	for i := range m.segments {
		m.segments[i].mu.Lock()
	}
}

func (m *MultiMapOf[K, V]) unlockAll() {
	for i := range m.segments {
		m.segments[i].mu.Unlock()
	}
}

func clampInt(n int64) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}
