package multimap

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"reflect"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"
)

var (
	testData      [128]string
	testDataLarge [128 << 10]string
)

func init() {
	for i := range testData {
		testData[i] = fmt.Sprintf("%b", i)
	}
	for i := range testDataLarge {
		testDataLarge[i] = fmt.Sprintf("%b", i)
	}
}

type structKey struct {
	Service  uint32
	Instance uint64
}

func sorted[V int | string](values []V) []V {
	out := slices.Clone(values)
	slices.Sort(out)
	return out
}

func sizeBasedOnRange[K comparable, V comparable](m *MultiMapOf[K, V]) int {
	size := 0
	m.Range(func(key K, value V) bool {
		size++
		return true
	})
	return size
}

func TestMultiMap_SegmentStructSize(t *testing.T) {
	t.Logf("CacheLineSize : %d", CacheLineSize)

	size := unsafe.Sizeof(segment[string, int]{})
	t.Log("segment size:", size)
	if size%CacheLineSize != 0 {
		t.Fatalf("segment is not a multiple of CacheLineSize: %d", size)
	}

	structType := reflect.TypeOf(segment[string, int]{})
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		t.Logf("Field: %-12s Type: %-40s Offset: %d Size: %d bytes\n",
			field.Name, field.Type, field.Offset, field.Type.Size())
	}
}

func TestMultiMapOf_Example(t *testing.T) {
	m := NewMultiMapOf[string, int]()
	m.Put("a", 1)
	m.Put("a", 2)
	m.Put("b", 3)

	if s := m.Size(); s != 3 {
		t.Fatalf("size of 3 was expected, got: %d", s)
	}
	if got := sorted(m.Get("a").Slice()); !slices.Equal(got, []int{1, 2}) {
		t.Fatalf("values of a do not match: %v", got)
	}
	if got := sorted(m.RemoveAll("a")); !slices.Equal(got, []int{1, 2}) {
		t.Fatalf("removed values do not match: %v", got)
	}
	if m.ContainsKey("a") {
		t.Fatal("a is still present after RemoveAll")
	}
	if s := m.Size(); s != 1 {
		t.Fatalf("size of 1 was expected, got: %d", s)
	}
}

func TestMultiMapOf_PutGetRemove(t *testing.T) {
	m := NewMultiMapOf[string, int]()
	for i, key := range testData {
		if !m.Put(key, i) {
			t.Fatalf("put of new pair %s=%d reported false", key, i)
		}
		if m.Put(key, i) {
			t.Fatalf("put of existing pair %s=%d reported true", key, i)
		}
		if !m.Get(key).Contains(i) {
			t.Fatalf("value not found for %s", key)
		}
		if !m.ContainsEntry(key, i) {
			t.Fatalf("entry not found for %s", key)
		}
	}
	for i, key := range testData {
		if !m.Remove(key, i) {
			t.Fatalf("remove of %s=%d reported false", key, i)
		}
		if m.Remove(key, i) {
			t.Fatalf("second remove of %s=%d reported true", key, i)
		}
		if m.Get(key).Contains(i) {
			t.Fatalf("value still present for %s", key)
		}
		if m.ContainsKey(key) {
			t.Fatalf("key %s still present after its last value was removed", key)
		}
	}
	if !m.IsZero() {
		t.Fatalf("map is not empty: %d", m.Size())
	}
}

func TestMultiMapOf_MissingEntry(t *testing.T) {
	m := NewMultiMapOf[string, string]()
	if m.ContainsKey("foo") {
		t.Fatal("key was not expected")
	}
	if vs := m.Get("foo"); !vs.IsEmpty() || vs.Len() != 0 || vs.Slice() != nil {
		t.Fatalf("empty view was expected: %v", vs)
	}
	if m.Remove("foo", "bar") {
		t.Fatal("remove of missing pair reported true")
	}
	if removed := m.RemoveAll("foo"); removed != nil {
		t.Fatalf("nil was expected: %v", removed)
	}
	if m.ContainsValue("bar") {
		t.Fatal("value was not expected")
	}
}

func TestMultiMapOf_EmptyStringKey(t *testing.T) {
	m := NewMultiMapOf[string, string]()
	m.Put("", "foobar")
	if got := m.Get("").Slice(); !slices.Equal(got, []string{"foobar"}) {
		t.Fatalf("value does not match: %v", got)
	}
}

func TestMultiMapOf_PutAll(t *testing.T) {
	m := NewMultiMapOf[int, int]()
	if m.PutAll(1) {
		t.Fatal("PutAll without values reported true")
	}
	if m.ContainsKey(1) {
		t.Fatal("PutAll without values created a key")
	}
	if !m.PutAll(1, 1, 2, 2, 3) {
		t.Fatal("PutAll of new values reported false")
	}
	if s := m.Size(); s != 3 {
		t.Fatalf("size of 3 was expected, got: %d", s)
	}
	if m.PutAll(1, 3, 2) {
		t.Fatal("PutAll of existing values reported true")
	}
	if !m.PutAll(1, 3, 4) {
		t.Fatal("PutAll with one new value reported false")
	}
	if got := sorted(m.Get(1).Slice()); !slices.Equal(got, []int{1, 2, 3, 4}) {
		t.Fatalf("values do not match: %v", got)
	}
}

func TestMultiMapOf_StructKeys(t *testing.T) {
	m := NewMultiMapOf[structKey, structKey]()
	for i := 1; i <= 1000; i++ {
		k := structKey{uint32(i), uint64(i)}
		m.Put(k, k)
		m.Put(k, structKey{})
	}
	for i := 1; i <= 1000; i++ {
		k := structKey{uint32(i), uint64(i)}
		if !m.ContainsEntry(k, k) || !m.ContainsEntry(k, structKey{}) {
			t.Fatalf("values not found for %v", k)
		}
	}
	if s := m.Size(); s != 2000 {
		t.Fatalf("size of 2000 was expected, got: %d", s)
	}
}

func TestMultiMapOf_HashCodeCollisions(t *testing.T) {
	const numEntries = 1000
	m := NewMultiMapOf[int, int](
		WithConcurrencyLevel(4),
		WithKeyHasher(func(_ int, _ uintptr) uintptr {
			// We intentionally use an awful hash function here to make sure
			// that the map copes with key collisions.
			return 42
		}),
	)
	for i := 0; i < numEntries; i++ {
		m.Put(i, i)
	}
	for i := 0; i < numEntries; i++ {
		if !m.ContainsEntry(i, i) {
			t.Fatalf("value not found for %d", i)
		}
	}
	for i := 0; i < numEntries; i += 2 {
		if !m.Remove(i, i) {
			t.Fatalf("remove failed for %d", i)
		}
	}
	for i := 0; i < numEntries; i++ {
		if m.ContainsKey(i) != (i%2 == 1) {
			t.Fatalf("unexpected presence of %d", i)
		}
	}
	stats := m.Stats()
	if stats.MaxSegmentKeys != numEntries/2 {
		t.Fatalf("all keys were expected in one segment: %s", stats.ToString())
	}
}

func TestMultiMapOf_ReplaceValue(t *testing.T) {
	m := NewMultiMapOf[string, int]()
	if m.ReplaceValue("a", 1, 2) {
		t.Fatal("replace on missing key reported true")
	}
	m.PutAll("a", 1, 2, 3)
	if m.ReplaceValue("a", 9, 4) {
		t.Fatal("replace of missing value reported true")
	}
	if !m.ReplaceValue("a", 1, 4) {
		t.Fatal("replace of present value reported false")
	}
	if got := sorted(m.Get("a").Slice()); !slices.Equal(got, []int{2, 3, 4}) {
		t.Fatalf("values do not match: %v", got)
	}
	if !m.ReplaceValue("a", 4, 4) {
		t.Fatal("replace with itself reported false")
	}
	// Replacing with an already present value merges the two.
	if !m.ReplaceValue("a", 2, 3) {
		t.Fatal("replace with present value reported false")
	}
	if got := sorted(m.Get("a").Slice()); !slices.Equal(got, []int{3, 4}) {
		t.Fatalf("values do not match: %v", got)
	}
	if s := m.Size(); s != 2 {
		t.Fatalf("size of 2 was expected, got: %d", s)
	}
}

func TestMultiMapOf_ReplaceValues(t *testing.T) {
	m := NewMultiMapOf[string, int]()
	if old := m.ReplaceValues("a"); old != nil {
		t.Fatalf("nil was expected: %v", old)
	}
	if m.ContainsKey("a") {
		t.Fatal("empty ReplaceValues created a key")
	}
	if old := m.ReplaceValues("a", 1, 2); old != nil {
		t.Fatalf("nil was expected: %v", old)
	}
	old := m.ReplaceValues("a", 3, 4, 5)
	if got := sorted(old); !slices.Equal(got, []int{1, 2}) {
		t.Fatalf("displaced values do not match: %v", got)
	}
	if s := m.Size(); s != 3 {
		t.Fatalf("size of 3 was expected, got: %d", s)
	}
	old = m.ReplaceValues("a")
	if got := sorted(old); !slices.Equal(got, []int{3, 4, 5}) {
		t.Fatalf("displaced values do not match: %v", got)
	}
	if m.ContainsKey("a") || !m.IsZero() {
		t.Fatal("ReplaceValues without values should remove the key")
	}
}

func TestMultiMapOf_Size(t *testing.T) {
	const numEntries = 1000
	m := NewMultiMapOf[string, int]()
	size := m.Size()
	if size != 0 {
		t.Fatalf("zero size expected: %d", size)
	}
	expectedSize := 0
	for i := 0; i < numEntries; i++ {
		m.Put(strconv.Itoa(i%100), i)
		expectedSize++
		size := m.Size()
		if size != expectedSize {
			t.Fatalf("size of %d was expected, got: %d", expectedSize, size)
		}
		rsize := sizeBasedOnRange(m)
		if size != rsize {
			t.Fatalf("size does not match number of entries in Range: %v, %v", size, rsize)
		}
	}
	if k := m.KeyCount(); k != 100 {
		t.Fatalf("100 keys were expected, got: %d", k)
	}
	for i := 0; i < numEntries; i++ {
		m.Remove(strconv.Itoa(i%100), i)
		expectedSize--
		size := m.Size()
		if size != expectedSize {
			t.Fatalf("size of %d was expected, got: %d", expectedSize, size)
		}
		rsize := sizeBasedOnRange(m)
		if size != rsize {
			t.Fatalf("size does not match number of entries in Range: %v, %v", size, rsize)
		}
	}
}

// TestMultiMapOf_SizeInvariant runs random single-threaded operations and
// checks Size against the sum of all value set lengths.
func TestMultiMapOf_SizeInvariant(t *testing.T) {
	const numOps = 20_000
	r := rand.New(rand.NewPCG(1, 2))
	m := NewMultiMapOf[int, int](WithConcurrencyLevel(4))
	for i := 0; i < numOps; i++ {
		k, v := r.IntN(64), r.IntN(16)
		switch r.IntN(6) {
		case 0, 1:
			m.Put(k, v)
		case 2:
			m.PutAll(k, v, v+1, v+2)
		case 3:
			m.Remove(k, v)
		case 4:
			if r.IntN(8) == 0 {
				m.RemoveAll(k)
			} else {
				m.ReplaceValue(k, v, r.IntN(16))
			}
		case 5:
			if r.IntN(4) == 0 {
				m.ReplaceValues(k, v)
			}
		}
		if i%97 != 0 {
			continue
		}
		sum := 0
		for key := range m.KeySet().All() {
			sum += m.Get(key).Len()
		}
		if size := m.Size(); size != sum {
			t.Fatalf("op %d: size %d does not match sum of value sets %d", i, size, sum)
		}
	}
}

func TestMultiMapOf_Clear(t *testing.T) {
	const numEntries = 1000
	m := NewMultiMapOf[string, int]()
	for i := 0; i < numEntries; i++ {
		m.Put(strconv.Itoa(i), i)
	}
	size := m.Size()
	if size != numEntries {
		t.Fatalf("size of %d was expected, got: %d", numEntries, size)
	}
	m.Clear()
	size = m.Size()
	if size != 0 {
		t.Fatalf("zero size was expected, got: %d", size)
	}
	if k := m.KeyCount(); k != 0 {
		t.Fatalf("zero keys were expected, got: %d", k)
	}
	rsize := sizeBasedOnRange(m)
	if rsize != 0 {
		t.Fatalf("zero number of entries in Range was expected, got: %d", rsize)
	}
	m.Put("a", 1)
	if !m.ContainsEntry("a", 1) {
		t.Fatal("map is unusable after Clear")
	}
}

func TestMultiMapOf_Resize(t *testing.T) {
	numEntries := 100_000
	if raceEnabled {
		numEntries = 10_000
	}
	m := NewMultiMapOf[string, int](WithConcurrencyLevel(4))
	initialBuckets := m.Stats().TotalBuckets

	for i := 0; i < numEntries; i++ {
		m.Put(strconv.Itoa(i), i)
	}
	stats := m.Stats()
	if stats.Keys != numEntries || stats.Size != numEntries {
		t.Fatalf("unexpected stats: %s", stats.ToString())
	}
	if stats.TotalGrowths == 0 || stats.TotalBuckets <= initialBuckets {
		t.Fatalf("table did not grow: %s", stats.ToString())
	}
	if stats.CappedSegments != 0 {
		t.Fatalf("no capped segment was expected: %s", stats.ToString())
	}
	for i := 0; i < numEntries; i++ {
		if !m.ContainsEntry(strconv.Itoa(i), i) {
			t.Fatalf("value not found for %d", i)
		}
	}
}

func TestMultiMapOf_String(t *testing.T) {
	m := NewMultiMapOf[string, int]()
	m.Put("a", 1)
	m.Put("b", 3)
	if s := m.String(); s != "MultiMapOf[a:[1] b:[3]]" {
		t.Fatalf("unexpected string: %s", s)
	}
}

func TestMultiMapOf_JSON(t *testing.T) {
	m := NewMultiMapOf[string, int]()
	m.PutAll("a", 1, 2)
	m.Put("b", 3)
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}

	var decoded MultiMapOf[string, int]
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if s := decoded.Size(); s != 3 {
		t.Fatalf("size of 3 was expected, got: %d", s)
	}
	if got := sorted(decoded.Get("a").Slice()); !slices.Equal(got, []int{1, 2}) {
		t.Fatalf("values do not match: %v", got)
	}

	if err := json.Unmarshal([]byte(`{"c":"x"}`), &decoded); err == nil {
		t.Fatal("decode error was expected")
	}
}

func TestMultiMapOf_ParallelPutsSharedKey(t *testing.T) {
	const numWorkers = 64
	m := NewMultiMapOf[string, int]()
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if !m.Put("shared", i) {
				t.Errorf("put of unique value %d reported false", i)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	if n := m.Get("shared").Len(); n != numWorkers {
		t.Fatalf("%d values were expected, got: %d", numWorkers, n)
	}
	if s := m.Size(); s != numWorkers {
		t.Fatalf("size of %d was expected, got: %d", numWorkers, s)
	}
}

func TestMultiMapOf_ParallelReplaceValue(t *testing.T) {
	const numWorkers = 32
	for round := 0; round < 20; round++ {
		m := NewMultiMapOf[string, int]()
		m.Put("k", 0)

		var wg sync.WaitGroup
		var wins atomic.Int32
		var winner atomic.Int64
		start := make(chan struct{})
		for i := 1; i <= numWorkers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				if m.ReplaceValue("k", 0, i) {
					wins.Add(1)
					winner.Store(int64(i))
				}
			}(i)
		}
		close(start)
		wg.Wait()

		if w := wins.Load(); w != 1 {
			t.Fatalf("exactly one winner was expected, got: %d", w)
		}
		if got := m.Get("k").Slice(); !slices.Equal(got, []int{int(winner.Load())}) {
			t.Fatalf("final values %v do not match winner %d", got, winner.Load())
		}
	}
}

func parallelSeqPutter(t *testing.T, m *MultiMapOf[string, int], storerIdx, iterations, numEntries int, cdone chan bool) {
	for i := 0; i < iterations; i++ {
		for j := 0; j < numEntries; j++ {
			if storerIdx == 0 || i%2 == 0 {
				m.Put(strconv.Itoa(j), j)
			} else {
				m.Remove(strconv.Itoa(j), j)
			}
		}
	}
	cdone <- true
}

func TestMultiMapOf_ParallelPuts(t *testing.T) {
	const numStorers = 4
	const numIters = 1_000
	const numEntries = 100
	m := NewMultiMapOf[string, int]()
	cdone := make(chan bool)
	for i := 0; i < numStorers; i++ {
		go parallelSeqPutter(t, m, i, numIters, numEntries, cdone)
	}
	// Wait for the goroutines to finish.
	for i := 0; i < numStorers; i++ {
		<-cdone
	}
	for i := 0; i < numEntries; i++ {
		vs := m.Get(strconv.Itoa(i))
		if vs.Len() > 1 {
			t.Fatalf("at most one value was expected for %d: %v", i, vs)
		}
		if vs.Len() == 1 && !vs.Contains(i) {
			t.Fatalf("values do not match for %d: %v", i, vs)
		}
	}
}

func parallelRandPutter(t *testing.T, m *MultiMapOf[string, int], numIters, numEntries int, cdone chan bool) {
	for i := 0; i < numIters; i++ {
		j := rand.IntN(numEntries)
		m.Put(strconv.Itoa(j), j)
	}
	cdone <- true
}

func parallelRandRemover(t *testing.T, m *MultiMapOf[string, int], numIters, numEntries int, cdone chan bool) {
	for i := 0; i < numIters; i++ {
		j := rand.IntN(numEntries)
		if removed := m.RemoveAll(strconv.Itoa(j)); removed != nil {
			if !slices.Equal(removed, []int{j}) {
				t.Errorf("values were not expected for %d: %v", j, removed)
			}
		}
	}
	cdone <- true
}

func parallelLoader(t *testing.T, m *MultiMapOf[string, int], numIters, numEntries int, cdone chan bool) {
	for i := 0; i < numIters; i++ {
		for j := 0; j < numEntries; j++ {
			// We must either see no value, or exactly j.
			if got := m.Get(strconv.Itoa(j)).Slice(); got != nil {
				if !slices.Equal(got, []int{j}) {
					t.Errorf("values were not expected for %d: %v", j, got)
				}
			}
		}
	}
	cdone <- true
}

func TestMultiMapOf_AtomicSnapshot(t *testing.T) {
	const numIters = 10_000
	const numEntries = 100
	m := NewMultiMapOf[string, int]()
	cdone := make(chan bool)
	// Update or delete random entry in parallel with loads.
	go parallelRandPutter(t, m, numIters, numEntries, cdone)
	go parallelRandRemover(t, m, numIters, numEntries, cdone)
	go parallelLoader(t, m, numIters/100, numEntries, cdone)
	// Wait for the goroutines to finish.
	for i := 0; i < 3; i++ {
		<-cdone
	}
}

func TestMultiMapOf_ParallelPutsAndRemoves(t *testing.T) {
	const numWorkers = 2
	const numIters = 50_000
	const numEntries = 1000
	m := NewMultiMapOf[string, int]()
	cdone := make(chan bool)
	// Update random entry in parallel with deletes.
	for i := 0; i < numWorkers; i++ {
		go parallelRandPutter(t, m, numIters, numEntries, cdone)
		go parallelRandRemover(t, m, numIters, numEntries, cdone)
	}
	// Wait for the goroutines to finish.
	for i := 0; i < 2*numWorkers; i++ {
		<-cdone
	}
	if s, r := m.Size(), sizeBasedOnRange(m); s != r {
		t.Fatalf("size does not match number of entries in Range: %v, %v", s, r)
	}
}

// TestMultiMapOf_ParallelResizeWithSize inserts keys from several
// goroutines, forcing many segment resizes, while another goroutine keeps
// reading Size. Size must never go backwards during an insert-only workload.
func TestMultiMapOf_ParallelResizeWithSize(t *testing.T) {
	const numWorkers = 8
	numEntries := 100_000
	if raceEnabled {
		numEntries = 20_000
	}
	m := NewMultiMapOf[int, int](WithConcurrencyLevel(4), WithPresize(1))

	var stop atomic.Bool
	sizerDone := make(chan struct{})
	go func() {
		defer close(sizerDone)
		last := 0
		for !stop.Load() {
			size := m.Size()
			if size < last {
				t.Errorf("size went backwards: %d after %d", size, last)
				return
			}
			if size > numEntries {
				t.Errorf("size exceeds inserted entries: %d", size)
				return
			}
			last = size
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < numEntries; i += numWorkers {
				m.Put(i, -i)
			}
		}(w)
	}
	wg.Wait()
	stop.Store(true)
	<-sizerDone

	if s := m.Size(); s != numEntries {
		t.Fatalf("size of %d was expected, got: %d", numEntries, s)
	}
	if k := m.KeyCount(); k != numEntries {
		t.Fatalf("%d keys were expected, got: %d", numEntries, k)
	}
	for i := 0; i < numEntries; i++ {
		if !m.ContainsEntry(i, -i) {
			t.Fatalf("value not found for %d", i)
		}
	}
	if g := m.Stats().TotalGrowths; g == 0 {
		t.Fatal("segments were expected to grow")
	}
}

func parallelRangePutter(m *MultiMapOf[int, int], numEntries int, stopFlag *int64, cdone chan bool) {
	for {
		for i := 0; i < numEntries; i++ {
			m.Put(i, i)
		}
		if atomic.LoadInt64(stopFlag) != 0 {
			break
		}
	}
	cdone <- true
}

func parallelRangeRemover(m *MultiMapOf[int, int], numEntries int, stopFlag *int64, cdone chan bool) {
	for {
		for i := 0; i < numEntries; i++ {
			m.RemoveAll(i)
		}
		if atomic.LoadInt64(stopFlag) != 0 {
			break
		}
	}
	cdone <- true
}

func TestMultiMapOf_ParallelRange(t *testing.T) {
	const numEntries = 10_000
	m := NewMultiMapOf[int, int](WithPresize(numEntries))
	for i := 0; i < numEntries; i++ {
		m.Put(i, i)
	}
	// Start goroutines that would be storing and deleting items in parallel.
	cdone := make(chan bool)
	stopFlag := int64(0)
	go parallelRangePutter(m, numEntries, &stopFlag, cdone)
	go parallelRangeRemover(m, numEntries, &stopFlag, cdone)
	// Iterate the map and verify that no duplicate keys were met.
	met := make(map[int]int)
	m.Range(func(key int, value int) bool {
		if key != value {
			t.Fatalf("got unexpected value for key %d: %d", key, value)
			return false
		}
		met[key] += 1
		return true
	})
	if len(met) == 0 {
		t.Fatal("no entries were met when iterating")
	}
	for k, c := range met {
		if c != 1 {
			t.Fatalf("met key %d multiple times: %d", k, c)
		}
	}
	// Make sure that both goroutines finish.
	atomic.StoreInt64(&stopFlag, 1)
	<-cdone
	<-cdone
}

func TestMultiMapOf_Stats(t *testing.T) {
	m := NewMultiMapOf[int, int](WithConcurrencyLevel(8))

	stats := m.Stats()
	if stats.Segments != 8 {
		t.Fatalf("unexpected number of segments: %d", stats.Segments)
	}
	if stats.Size != 0 || stats.Keys != 0 || stats.Counter != 0 || stats.KeyCounter != 0 {
		t.Fatalf("empty map was expected: %s", stats.ToString())
	}
	if stats.EmptyBuckets != stats.TotalBuckets {
		t.Fatalf("all buckets were expected to be empty: %s", stats.ToString())
	}

	for i := 0; i < 200; i++ {
		m.PutAll(i, i, -i-1)
	}
	stats = m.Stats()
	if stats.Keys != 200 || stats.KeyCounter != 200 {
		t.Fatalf("200 keys were expected: %s", stats.ToString())
	}
	if stats.Size != 400 || stats.Counter != 400 {
		t.Fatalf("400 pairs were expected: %s", stats.ToString())
	}
	if stats.MinSegmentKeys > stats.MaxSegmentKeys || stats.MaxChainLen == 0 {
		t.Fatalf("unexpected distribution: %s", stats.ToString())
	}
	t.Log(stats.ToString())
}

// TestMultiMapOf_IterationSeesStableKeys iterates while another goroutine
// keeps adding and removing keys of its own. Keys that are present for the
// whole iteration must all be returned.
func TestMultiMapOf_IterationSeesStableKeys(t *testing.T) {
	const stable = 500
	const churn = 5000
	m := NewMultiMapOf[int, int](WithConcurrencyLevel(8), WithPresize(1))
	for i := 0; i < stable; i++ {
		m.PutAll(i, i, -i-1)
	}

	var stop atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for !stop.Load() {
			for i := stable; i < stable+churn; i++ {
				m.Put(i, i)
			}
			for i := stable; i < stable+churn; i++ {
				m.RemoveAll(i)
			}
		}
	}()

	for round := 0; round < 20; round++ {
		met := make(map[int]int, stable)
		for it := m.Entries().Iter(); it.Next(); {
			if k := it.Key(); k < stable {
				met[k]++
			}
		}
		for i := 0; i < stable; i++ {
			if met[i] != 2 {
				stop.Store(true)
				<-done
				t.Fatalf("round %d: key %d met %d times, 2 expected", round, i, met[i])
			}
		}
	}
	stop.Store(true)
	<-done
}
