package multimap

import (
	"encoding/json"
	"iter"
	"math"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// minParallelBatchItems defines the minimum number of keys required for
// parallel batch processing. Below this threshold, serial processing is
// used to avoid the overhead of goroutine creation.
const minParallelBatchItems = 256

// Drain removes the map's contents key by key and yields every removed
// pair. Each key is removed with RemoveAll before its values are
// yielded, so a pair is yielded at most once even with several
// concurrent drainers. Pairs added concurrently may be left behind.
// Stopping the iteration early leaves the remaining keys in place.
func (m *MultiMapOf[K, V]) Drain() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for it := m.keyIterator(); it.Next(); {
			key := it.Key()
			for _, v := range m.RemoveAll(key) {
				if !yield(key, v) {
					return
				}
			}
		}
	}
}

// Load puts every pair of seq into the map and returns the number of
// pairs newly added. It stops at the first nil key or value and returns
// an error wrapping ErrInvalidArgument. Drain and Load together round
// trip the contents of a map.
func (m *MultiMapOf[K, V]) Load(seq iter.Seq2[K, V]) (int, error) {
	added, i := 0, 0
	var err error
	for key, value := range seq {
		var ok bool
		if ok, err = m.tryPut(key, value); err != nil {
			err = errors.Wrapf(err, "pair %d", i)
			break
		}
		if ok {
			added++
		}
		i++
	}
	return added, err
}

// FromMap imports key-value pairs from a standard Go map.
// Large sources are imported by several goroutines in parallel.
// Invalid keys or values are reported after the valid ones are stored.
//
// Parameters:
//   - source: standard Go map to import from
func (m *MultiMapOf[K, V]) FromMap(source map[K][]V) error {
	if len(source) < minParallelBatchItems {
		var firstErr error
		for key, values := range source {
			if err := m.putAllChecked(key, values); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	keys := make([]K, 0, len(source))
	for key := range source {
		keys = append(keys, key)
	}
	chunkSize, chunks := calcParallelism(len(keys), minParallelBatchItems, runtime.GOMAXPROCS(0))
	var g errgroup.Group
	for c := range chunks {
		start := c * chunkSize
		end := min(start+chunkSize, len(keys))
		g.Go(func() error {
			var firstErr error
			for _, key := range keys[start:end] {
				if err := m.putAllChecked(key, source[key]); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		})
	}
	return g.Wait()
}

func (m *MultiMapOf[K, V]) putAllChecked(key K, values []V) error {
	if err := m.checkKey(key); err != nil {
		return err
	}
	if err := m.checkValues(values); err != nil {
		return errors.Wrapf(err, "key %v", key)
	}
	if len(values) != 0 {
		hash := m.hash(key)
		m.segmentFor(hash).putAll(m, key, hash, values)
	}
	return nil
}

// calcParallelism calculates the number of goroutines for parallel processing.
//
// Parameters:
//   - items: Number of items to process.
//   - threshold: Minimum threshold to enable parallel processing.
//   - number of available CPU cores
//
// Returns:
//   - chunkSize: Number of items processed per goroutine
//   - chunks: Suggested degree of parallelism (number of goroutines).
func calcParallelism(items, threshold, cpus int) (chunkSize, chunks int) {
	// If the items is too small, use single-threaded processing.
	if items <= threshold {
		return items, 1
	}

	chunks = max(min(items/threshold, cpus), 1)

	chunkSize = (items + chunks - 1) / chunks

	return chunkSize, chunks
}

// ToMap collect all pairs and return a map[K][]V
func (m *MultiMapOf[K, V]) ToMap() map[K][]V {
	return m.ToMapWithLimit(-1)
}

// ToMapWithLimit collect up to limit keys into a map[K][]V, limit < 0 is no limit
func (m *MultiMapOf[K, V]) ToMapWithLimit(limit int) map[K][]V {
	if limit == 0 {
		return map[K][]V{}
	}
	if limit < 0 {
		limit = math.MaxInt
	}
	a := make(map[K][]V, min(m.KeyCount(), limit))
	m.rangeKeyValues(func(key K, vs *valueSet[V]) bool {
		if values := vs.snapshot(); len(values) != 0 {
			a[key] = values
			limit--
		}
		return limit > 0
	})
	return a
}

// Clone creates a copy of the map with the same segment count and
// load factor.
//
// Notes:
//   - The clone operation is not atomic with respect to concurrent modifications.
func (m *MultiMapOf[K, V]) Clone() *MultiMapOf[K, V] {
	c := &MultiMapOf[K, V]{}
	c.init(&MultiMapConfig{
		concurrencyLevel: len(m.segments),
		sizeHint:         m.KeyCount(),
		loadFactor:       m.loadFactor,
		logger:           m.logger,
		maxTableLen:      m.maxTableLen,
	})
	// Same hasher, so the clone's segments receive the same keys.
	c.keyHash = m.keyHash
	m.rangeKeyValues(func(key K, vs *valueSet[V]) bool {
		if values := vs.snapshot(); len(values) != 0 {
			hash := c.hash(key)
			c.segmentFor(hash).putAll(c, key, hash, values)
		}
		return true
	})
	return c
}

var (
	jsonMarshal   func(v any) ([]byte, error)
	jsonUnmarshal func(data []byte, v any) error
)

// SetDefaultJSONMarshal sets the default JSON serialization and deserialization functions.
// If not set, the standard library is used by default.
func SetDefaultJSONMarshal(marshal func(v any) ([]byte, error), unmarshal func(data []byte, v any) error) {
	jsonMarshal, jsonUnmarshal = marshal, unmarshal
}

// MarshalJSON JSON serialization, as an object mapping each key to the
// array of its values
func (m *MultiMapOf[K, V]) MarshalJSON() ([]byte, error) {
	if jsonMarshal != nil {
		return jsonMarshal(m.ToMap())
	}
	return json.Marshal(m.ToMap())
}

// UnmarshalJSON JSON deserialization. Decoded pairs are added to the
// current contents. A zero MultiMapOf, such as a struct field being
// decoded, is initialized with the default configuration first.
func (m *MultiMapOf[K, V]) UnmarshalJSON(data []byte) error {
	if m.segments == nil {
		m.init(defaultConfig())
	}
	var a map[K][]V
	if jsonUnmarshal != nil {
		if err := jsonUnmarshal(data, &a); err != nil {
			return err
		}
	} else {
		if err := json.Unmarshal(data, &a); err != nil {
			return errors.Wrap(err, "multimap: decode")
		}
	}
	return m.FromMap(a)
}
