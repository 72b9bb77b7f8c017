package multimap

// hashIterator walks entries from the last segment to the first, and
// within a segment from the last bucket to the first. Each segment's
// bucket array is loaded once, when the walk reaches that segment;
// a concurrent resize of the segment is therefore not seen.
type hashIterator[K comparable, V comparable] struct {
	m          *MultiMapOf[K, V]
	segmentIdx int
	bucketIdx  int
	table      *bucketArray[K, V]
	entry      *entryOf[K, V]
}

func newHashIterator[K comparable, V comparable](m *MultiMapOf[K, V]) hashIterator[K, V] {
	return hashIterator[K, V]{
		m:          m,
		segmentIdx: len(m.segments) - 1,
		bucketIdx:  -1,
	}
}

// nextEntry advances to the next entry and reports whether there is one.
func (it *hashIterator[K, V]) nextEntry() bool {
	if it.entry != nil {
		if it.entry = it.entry.next; it.entry != nil {
			return true
		}
	}
	for {
		for it.bucketIdx >= 0 {
			it.entry = it.table.buckets[it.bucketIdx].Load()
			it.bucketIdx--
			if it.entry != nil {
				return true
			}
		}
		if it.segmentIdx < 0 {
			it.table = nil
			return false
		}
		s := &it.m.segments[it.segmentIdx]
		it.segmentIdx--
		if s.count.Load() != 0 {
			it.table = s.table.Load()
			it.bucketIdx = len(it.table.buckets) - 1
		}
	}
}

// KeyIterator iterates over the distinct keys of a MultiMapOf.
// It is weakly consistent and never fails because of concurrent
// modification.
//
//	for it := m.KeySet().Iter(); it.Next(); {
//		fmt.Println(it.Key())
//	}
type KeyIterator[K comparable, V comparable] struct {
	it    hashIterator[K, V]
	key   K
	valid bool
}

// Next advances the iterator and reports whether a key is available.
func (it *KeyIterator[K, V]) Next() bool {
	it.valid = it.it.nextEntry()
	if it.valid {
		it.key = it.it.entry.key
	} else {
		it.key = *new(K)
	}
	return it.valid
}

// Key returns the current key.
func (it *KeyIterator[K, V]) Key() K {
	return it.key
}

// Remove removes the current key, with all its values, from the map.
// It reports whether anything was removed; a second call for the same
// key returns false.
func (it *KeyIterator[K, V]) Remove() bool {
	if !it.valid {
		return false
	}
	it.valid = false
	return it.it.m.RemoveAll(it.key) != nil
}

// EntryIterator iterates over all key-value pairs of a MultiMapOf.
// The values of a key are copied when the iterator reaches the key.
// It is weakly consistent and never fails because of concurrent
// modification.
type EntryIterator[K comparable, V comparable] struct {
	it     hashIterator[K, V]
	values []V
	pos    int
	entry  EntryOf[K, V]
	valid  bool
}

// Next advances the iterator and reports whether a pair is available.
func (it *EntryIterator[K, V]) Next() bool {
	for {
		if it.pos < len(it.values) {
			it.entry.value = it.values[it.pos]
			it.pos++
			it.valid = true
			return true
		}
		if !it.it.nextEntry() {
			it.values = nil
			it.entry = EntryOf[K, V]{}
			it.valid = false
			return false
		}
		e := it.it.entry
		it.entry.key = e.key
		it.values = nil
		if vs := e.values.Load(); vs != nil {
			it.values = vs.snapshot()
		}
		it.pos = 0
	}
}

// Entry returns the current pair.
func (it *EntryIterator[K, V]) Entry() EntryOf[K, V] {
	return it.entry
}

// Key returns the key of the current pair.
func (it *EntryIterator[K, V]) Key() K {
	return it.entry.key
}

// Value returns the value of the current pair.
func (it *EntryIterator[K, V]) Value() V {
	return it.entry.value
}

// Remove removes the current pair from the map and reports whether it
// was still present.
func (it *EntryIterator[K, V]) Remove() bool {
	if !it.valid {
		return false
	}
	it.valid = false
	return it.it.m.Remove(it.entry.key, it.entry.value)
}

// ValueIterator iterates over the values of all keys. A value associated
// with several keys is returned once per key.
type ValueIterator[K comparable, V comparable] struct {
	EntryIterator[K, V]
}

func (m *MultiMapOf[K, V]) keyIterator() *KeyIterator[K, V] {
	return &KeyIterator[K, V]{it: newHashIterator(m)}
}

func (m *MultiMapOf[K, V]) entryIterator() *EntryIterator[K, V] {
	return &EntryIterator[K, V]{it: newHashIterator(m)}
}

// All returns a weakly consistent iterator over all key-value pairs.
func (m *MultiMapOf[K, V]) All() func(yield func(K, V) bool) {
	return m.Range
}

// Range calls f for every key-value pair until f returns false.
// See EntryIterator for the consistency guarantees.
func (m *MultiMapOf[K, V]) Range(f func(key K, value V) bool) {
	for it := m.entryIterator(); it.Next(); {
		if !f(it.entry.key, it.entry.value) {
			return
		}
	}
}

// RangeKeys calls f for every distinct key until f returns false.
func (m *MultiMapOf[K, V]) RangeKeys(f func(key K) bool) {
	for it := m.keyIterator(); it.Next(); {
		if !f(it.key) {
			return
		}
	}
}

// rangeKeyValues calls f for every key with the key's value set.
func (m *MultiMapOf[K, V]) rangeKeyValues(f func(key K, vs *valueSet[V]) bool) {
	for it := newHashIterator(m); it.nextEntry(); {
		if vs := it.entry.values.Load(); vs != nil {
			if !f(it.entry.key, vs) {
				return
			}
		}
	}
}
