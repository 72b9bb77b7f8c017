package multimap

import (
	"math"
	"sync"
	"sync/atomic"
	"unsafe"
)

// entryOf links one key into a bucket chain.
//
// key, hash and next never change once the entry is published, so a
// reader that loaded a chain head can walk it without locking while a
// writer builds a new version of the chain. Only the value set pointer
// may be replaced, and only under the segment lock.
type entryOf[K comparable, V comparable] struct {
	key    K
	hash   uint64
	next   *entryOf[K, V]
	values atomic.Pointer[valueSet[V]]
}

func newEntryOf[K comparable, V comparable](
	key K,
	hash uint64,
	next *entryOf[K, V],
	vs *valueSet[V],
) *entryOf[K, V] {
	e := &entryOf[K, V]{key: key, hash: hash, next: next}
	e.values.Store(vs)
	return e
}

// cloneWithNext copies e onto a new tail. The clone shares e's value set.
func (e *entryOf[K, V]) cloneWithNext(next *entryOf[K, V]) *entryOf[K, V] {
	return newEntryOf(e.key, e.hash, next, e.values.Load())
}

// bucketArray is the bucket table of a segment. Slots are written only
// under the segment lock, and an array is never written again once it
// has been replaced by a larger one.
type bucketArray[K comparable, V comparable] struct {
	buckets []atomic.Pointer[entryOf[K, V]]
}

func newBucketArray[K comparable, V comparable](tableLen int) *bucketArray[K, V] {
	return &bucketArray[K, V]{buckets: make([]atomic.Pointer[entryOf[K, V]], tableLen)}
}

// head returns the first entry of the bucket hash falls into.
func (t *bucketArray[K, V]) head(hash uint64) (*entryOf[K, V], int) {
	idx := int(hash & uint64(len(t.buckets)-1))
	return t.buckets[idx].Load(), idx
}

// segment is one independently locked shard of a MultiMapOf.
//
// Concurrency rules:
//   - table, count, entryCount and modCount are written only while mu is held
//     and may be read without it.
//   - threshold and growthCapped are accessed only while mu is held.
//   - count is stored last by every write, so a reader that observes a
//     non-zero count also observes the chain state of the write that
//     produced it.
type segment[K comparable, V comparable] struct {
	//lint:ignore U1000 prevents false sharing
	pad [(CacheLineSize - unsafe.Sizeof(struct {
		id           int
		mu           sync.Mutex
		table        unsafe.Pointer
		count        atomic.Int64
		entryCount   atomic.Int64
		modCount     atomic.Uint64
		threshold    int
		growthCapped bool
	}{})%CacheLineSize) % CacheLineSize]byte

	id    int
	mu    sync.Mutex
	table atomic.Pointer[bucketArray[K, V]]
	// count is the number of values held by all entries.
	count atomic.Int64
	// entryCount is the number of distinct keys.
	entryCount atomic.Int64
	// modCount is bumped when entries are linked or unlinked.
	modCount     atomic.Uint64
	threshold    int
	growthCapped bool
}

func (s *segment[K, V]) init(id, tableLen int, loadFactor float64) {
	s.id = id
	s.setTable(newBucketArray[K, V](tableLen), loadFactor)
}

// setTable installs a bucket array and recomputes the resize threshold.
// Caller must hold the lock unless the segment is not yet published.
func (s *segment[K, V]) setTable(t *bucketArray[K, V], loadFactor float64) {
	if threshold := float64(len(t.buckets)) * loadFactor; threshold >= math.MaxInt {
		s.threshold = math.MaxInt
	} else {
		s.threshold = int(threshold)
	}
	s.table.Store(t)
}

// --- Lock-free reads ---

// findEntry walks the chain for key without locking. count is loaded
// first; an empty segment never touches its table.
func (s *segment[K, V]) findEntry(key K, hash uint64) *entryOf[K, V] {
	if s.count.Load() == 0 {
		return nil
	}
	e, _ := s.table.Load().head(hash)
	for ; e != nil; e = e.next {
		if e.hash == hash && e.key == key {
			return e
		}
	}
	return nil
}

// valuesOf returns e's value set, re-reading it under the lock if it
// loads as nil.
func (s *segment[K, V]) valuesOf(e *entryOf[K, V]) *valueSet[V] {
	if vs := e.values.Load(); vs != nil {
		return vs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.values.Load()
}

func (s *segment[K, V]) get(key K, hash uint64) *valueSet[V] {
	if e := s.findEntry(key, hash); e != nil {
		return s.valuesOf(e)
	}
	return nil
}

func (s *segment[K, V]) containsKey(key K, hash uint64) bool {
	return s.findEntry(key, hash) != nil
}

func (s *segment[K, V]) containsEntry(key K, hash uint64, value V) bool {
	vs := s.get(key, hash)
	return vs != nil && vs.contains(value)
}

// containsValue scans every entry of the current table. It never takes
// the lock, so it is also used while the caller holds it.
func (s *segment[K, V]) containsValue(value V) bool {
	if s.count.Load() == 0 {
		return false
	}
	t := s.table.Load()
	for i := range t.buckets {
		for e := t.buckets[i].Load(); e != nil; e = e.next {
			if vs := e.values.Load(); vs != nil && vs.contains(value) {
				return true
			}
		}
	}
	return false
}

// --- Locked writes ---

// findLocked is findEntry without the count fence. Caller must hold mu.
func (s *segment[K, V]) findLocked(key K, hash uint64) (*entryOf[K, V], *entryOf[K, V], int) {
	first, idx := s.table.Load().head(hash)
	for e := first; e != nil; e = e.next {
		if e.hash == hash && e.key == key {
			return e, first, idx
		}
	}
	return nil, first, idx
}

// linkLocked publishes a new entry at the head of its bucket, growing the
// table first when the key count would exceed the threshold.
// Caller must hold mu and have checked that key is absent.
func (s *segment[K, V]) linkLocked(m *MultiMapOf[K, V], key K, hash uint64, vs *valueSet[V]) {
	if int(s.entryCount.Load())+1 > s.threshold {
		s.rehash(m)
	}
	t := s.table.Load()
	first, idx := t.head(hash)
	t.buckets[idx].Store(newEntryOf(key, hash, first, vs))
	s.modCount.Add(1)
	s.entryCount.Add(1)
	s.count.Add(int64(vs.len()))
}

// unlinkLocked removes e from its chain. Entries behind e are reused,
// entries ahead of it are cloned onto the reused tail in reverse order,
// so concurrent readers always walk a complete chain. Caller must hold mu.
// The caller adjusts count.
func (s *segment[K, V]) unlinkLocked(e, first *entryOf[K, V], idx int) {
	newFirst := e.next
	for p := first; p != e; p = p.next {
		newFirst = p.cloneWithNext(newFirst)
	}
	s.table.Load().buckets[idx].Store(newFirst)
	s.modCount.Add(1)
	s.entryCount.Add(-1)
}

func (s *segment[K, V]) put(m *MultiMapOf[K, V], key K, hash uint64, value V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, _, _ := s.findLocked(key, hash); e != nil {
		if e.values.Load().add(value) {
			s.count.Add(1)
			return true
		}
		return false
	}
	s.linkLocked(m, key, hash, newValueSet(value))
	return true
}

func (s *segment[K, V]) putAll(m *MultiMapOf[K, V], key K, hash uint64, values []V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, _, _ := s.findLocked(key, hash); e != nil {
		vs := e.values.Load()
		added := 0
		for _, v := range values {
			if vs.add(v) {
				added++
			}
		}
		if added != 0 {
			s.count.Add(int64(added))
		}
		return added != 0
	}
	s.linkLocked(m, key, hash, newValueSet(values...))
	return true
}

func (s *segment[K, V]) remove(key K, hash uint64, value V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, first, idx := s.findLocked(key, hash)
	if e == nil {
		return false
	}
	vs := e.values.Load()
	if !vs.remove(value) {
		return false
	}
	if vs.len() == 0 {
		s.unlinkLocked(e, first, idx)
	}
	s.count.Add(-1)
	return true
}

func (s *segment[K, V]) removeAll(key K, hash uint64) []V {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, first, idx := s.findLocked(key, hash)
	if e == nil {
		return nil
	}
	removed := e.values.Load().snapshot()
	s.unlinkLocked(e, first, idx)
	s.count.Add(-int64(len(removed)))
	return removed
}

// replaceValue swaps oldValue for newValue in the key's value set.
// The set is rebuilt and swapped wholesale so lock-free readers see
// either the old or the new contents, never a set missing both values.
func (s *segment[K, V]) replaceValue(key K, hash uint64, oldValue, newValue V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _, _ := s.findLocked(key, hash)
	if e == nil {
		return false
	}
	old := e.values.Load()
	if !old.contains(oldValue) {
		return false
	}
	if oldValue == newValue {
		return true
	}
	values := old.snapshot()
	for i, v := range values {
		if v == oldValue {
			values[i] = newValue
			break
		}
	}
	vs := newValueSet(values...)
	e.values.Store(vs)
	s.count.Add(int64(vs.len() - old.len()))
	return true
}

// replaceValues installs a fresh value set for key and returns the
// values it displaced.
func (s *segment[K, V]) replaceValues(m *MultiMapOf[K, V], key K, hash uint64, values []V) []V {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, first, idx := s.findLocked(key, hash)
	if e == nil {
		if len(values) != 0 {
			s.linkLocked(m, key, hash, newValueSet(values...))
		}
		return nil
	}
	old := e.values.Load()
	if len(values) == 0 {
		removed := old.snapshot()
		s.unlinkLocked(e, first, idx)
		s.count.Add(-int64(len(removed)))
		return removed
	}
	vs := newValueSet(values...)
	e.values.Store(vs)
	s.count.Add(int64(vs.len() - old.len()))
	// old is unreachable from the table now and no longer changes.
	return old.snapshot()
}

// clear installs an empty table of the current length. Readers holding
// the old table keep walking it undisturbed.
func (s *segment[K, V]) clear(loadFactor float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count.Load() == 0 && s.entryCount.Load() == 0 {
		return
	}
	s.setTable(newBucketArray[K, V](len(s.table.Load().buckets)), loadFactor)
	s.modCount.Add(1)
	s.entryCount.Store(0)
	s.count.Store(0)
}

// --- Rehash ---

// rehash doubles the bucket array. Caller must hold mu.
//
// Because the table length is a power of two, each old bucket splits
// into at most two new buckets (same index, or index+oldLen). The
// trailing run of a chain whose entries all land in the same new bucket
// is reused as is; only the entries ahead of it are cloned. The old
// array is never written, so readers still walking it are unaffected.
func (s *segment[K, V]) rehash(m *MultiMapOf[K, V]) {
	oldTable := s.table.Load()
	oldLen := len(oldTable.buckets)
	if oldLen >= m.maxTableLen {
		s.threshold = math.MaxInt
		if !s.growthCapped {
			s.growthCapped = true
			m.cappedSegments.Add(1)
			m.logger.Warn().
				Int("segment", s.id).
				Int("tableLen", oldLen).
				Int64("keys", s.entryCount.Load()).
				Msg("segment reached maximum table length, growth stopped")
		}
		return
	}

	newLen := oldLen << 1
	newTable := newBucketArray[K, V](newLen)
	mask := uint64(newLen - 1)
	cloned := 0
	for i := range oldTable.buckets {
		e := oldTable.buckets[i].Load()
		if e == nil {
			continue
		}
		idx := e.hash & mask
		if e.next == nil {
			newTable.buckets[idx].Store(e)
			continue
		}

		lastRun := e
		lastIdx := idx
		for last := e.next; last != nil; last = last.next {
			if k := last.hash & mask; k != lastIdx {
				lastIdx = k
				lastRun = last
			}
		}
		newTable.buckets[lastIdx].Store(lastRun)

		for p := e; p != lastRun; p = p.next {
			k := p.hash & mask
			newTable.buckets[k].Store(p.cloneWithNext(newTable.buckets[k].Load()))
			cloned++
		}
	}
	s.setTable(newTable, m.loadFactor)
	m.totalGrowths.Add(1)

	m.logger.Debug().
		Int("segment", s.id).
		Int("oldLen", oldLen).
		Int("newLen", newLen).
		Int64("keys", s.entryCount.Load()).
		Int("cloned", cloned).
		Msg("segment table grown")
}
