package multimap

import (
	"fmt"
	"iter"

	"github.com/pkg/errors"
)

// EntryOf is an immutable key-value pair yielded by an entry iterator.
type EntryOf[K comparable, V comparable] struct {
	key   K
	value V
}

// Key returns the key of the pair.
func (e EntryOf[K, V]) Key() K { return e.key }

// Value returns the value of the pair.
func (e EntryOf[K, V]) Value() V { return e.value }

// SetValue always fails with ErrUnsupportedOperation. To change a pair,
// Remove it and Put the new one, or use ReplaceValue.
func (e EntryOf[K, V]) SetValue(V) error {
	return errors.WithStack(ErrUnsupportedOperation)
}

// String implement the formatting output interface fmt.Stringer
func (e EntryOf[K, V]) String() string {
	return fmt.Sprintf("%v=%v", e.key, e.value)
}

// KeyValues is a live view of the values associated with one key.
// It holds only the key: every method looks the key up again, so the
// view reflects the map's current state even after the key was removed
// and re-inserted. The zero KeyValues is not usable.
type KeyValues[K comparable, V comparable] struct {
	m   *MultiMapOf[K, V]
	key K
}

// Key returns the key the view is bound to.
func (kv KeyValues[K, V]) Key() K {
	return kv.key
}

// Len returns the current number of values of the key.
func (kv KeyValues[K, V]) Len() int {
	if vs := kv.m.values(kv.key); vs != nil {
		return vs.len()
	}
	return 0
}

// IsEmpty reports whether the key currently has no values.
func (kv KeyValues[K, V]) IsEmpty() bool {
	return kv.Len() == 0
}

// Contains reports whether value is currently associated with the key.
func (kv KeyValues[K, V]) Contains(value V) bool {
	return kv.m.ContainsEntry(kv.key, value)
}

// Add associates value with the key. See MultiMapOf.Put.
func (kv KeyValues[K, V]) Add(value V) bool {
	return kv.m.Put(kv.key, value)
}

// AddAll associates all values with the key. See MultiMapOf.PutAll.
func (kv KeyValues[K, V]) AddAll(values ...V) bool {
	return kv.m.PutAll(kv.key, values...)
}

// Remove dissociates value from the key. See MultiMapOf.Remove.
func (kv KeyValues[K, V]) Remove(value V) bool {
	return kv.m.Remove(kv.key, value)
}

// Clear removes the key with all its values. See MultiMapOf.RemoveAll.
func (kv KeyValues[K, V]) Clear() []V {
	return kv.m.RemoveAll(kv.key)
}

// All iterates over the values of the key's current value set.
func (kv KeyValues[K, V]) All() iter.Seq[V] {
	return func(yield func(V) bool) {
		if vs := kv.m.values(kv.key); vs != nil {
			vs.rangeValues(yield)
		}
	}
}

// Slice returns a copy of the key's current values, or nil.
func (kv KeyValues[K, V]) Slice() []V {
	if vs := kv.m.values(kv.key); vs != nil {
		return vs.snapshot()
	}
	return nil
}

// String implement the formatting output interface fmt.Stringer
func (kv KeyValues[K, V]) String() string {
	return fmt.Sprint(kv.Slice())
}

// KeySetView is a live view of the distinct keys of a MultiMapOf.
type KeySetView[K comparable, V comparable] struct {
	m *MultiMapOf[K, V]
}

// KeySet returns a live view of the distinct keys.
func (m *MultiMapOf[K, V]) KeySet() KeySetView[K, V] {
	return KeySetView[K, V]{m: m}
}

func (v KeySetView[K, V]) Len() int            { return v.m.KeyCount() }
func (v KeySetView[K, V]) IsEmpty() bool       { return v.m.IsZero() }
func (v KeySetView[K, V]) Contains(key K) bool { return v.m.ContainsKey(key) }
func (v KeySetView[K, V]) Clear()              { v.m.Clear() }

// Remove removes key with all its values and reports whether it was present.
func (v KeySetView[K, V]) Remove(key K) bool {
	return v.m.RemoveAll(key) != nil
}

// Iter returns a weakly consistent iterator over the keys.
func (v KeySetView[K, V]) Iter() *KeyIterator[K, V] {
	return v.m.keyIterator()
}

// All is the range-over-func form of Iter.
func (v KeySetView[K, V]) All() iter.Seq[K] {
	return v.m.RangeKeys
}

// EntrySetView is a live view of all key-value pairs of a MultiMapOf.
type EntrySetView[K comparable, V comparable] struct {
	m *MultiMapOf[K, V]
}

// Entries returns a live view of all key-value pairs.
func (m *MultiMapOf[K, V]) Entries() EntrySetView[K, V] {
	return EntrySetView[K, V]{m: m}
}

func (v EntrySetView[K, V]) Len() int                     { return v.m.Size() }
func (v EntrySetView[K, V]) IsEmpty() bool                { return v.m.IsZero() }
func (v EntrySetView[K, V]) Contains(key K, value V) bool { return v.m.ContainsEntry(key, value) }
func (v EntrySetView[K, V]) Remove(key K, value V) bool   { return v.m.Remove(key, value) }
func (v EntrySetView[K, V]) Clear()                       { v.m.Clear() }

// Iter returns a weakly consistent iterator over the pairs.
func (v EntrySetView[K, V]) Iter() *EntryIterator[K, V] {
	return v.m.entryIterator()
}

// All is the range-over-func form of Iter.
func (v EntrySetView[K, V]) All() iter.Seq2[K, V] {
	return v.m.Range
}

// ValuesView is a live view of the values of all keys. A value
// associated with several keys is counted once per key.
type ValuesView[K comparable, V comparable] struct {
	m *MultiMapOf[K, V]
}

// Values returns a live view of the values of all keys.
func (m *MultiMapOf[K, V]) Values() ValuesView[K, V] {
	return ValuesView[K, V]{m: m}
}

func (v ValuesView[K, V]) Len() int              { return v.m.Size() }
func (v ValuesView[K, V]) IsEmpty() bool         { return v.m.IsZero() }
func (v ValuesView[K, V]) Contains(value V) bool { return v.m.ContainsValue(value) }
func (v ValuesView[K, V]) Clear()                { v.m.Clear() }

// Remove removes one pair holding value, from whichever key the
// iteration reaches first, and reports whether a pair was removed.
func (v ValuesView[K, V]) Remove(value V) bool {
	if v.m.checkValue(value) != nil {
		return false
	}
	removed := false
	v.m.rangeKeyValues(func(key K, vs *valueSet[V]) bool {
		if vs.contains(value) && v.m.Remove(key, value) {
			removed = true
			return false
		}
		return true
	})
	return removed
}

// Iter returns a weakly consistent iterator over the values.
func (v ValuesView[K, V]) Iter() *ValueIterator[K, V] {
	return &ValueIterator[K, V]{EntryIterator: *v.m.entryIterator()}
}

// All is the range-over-func form of Iter.
func (v ValuesView[K, V]) All() iter.Seq[V] {
	return func(yield func(V) bool) {
		v.m.Range(func(_ K, value V) bool {
			return yield(value)
		})
	}
}

// MapView presents a MultiMapOf as a map from each key to the live view
// of its values.
type MapView[K comparable, V comparable] struct {
	m *MultiMapOf[K, V]
}

// AsMap returns a live map view of the multimap.
func (m *MultiMapOf[K, V]) AsMap() MapView[K, V] {
	return MapView[K, V]{m: m}
}

func (v MapView[K, V]) Len() int               { return v.m.KeyCount() }
func (v MapView[K, V]) IsEmpty() bool          { return v.m.IsZero() }
func (v MapView[K, V]) ContainsKey(key K) bool { return v.m.ContainsKey(key) }
func (v MapView[K, V]) Remove(key K) []V       { return v.m.RemoveAll(key) }
func (v MapView[K, V]) Clear()                 { v.m.Clear() }

// Get returns the live values of key, and whether key is currently present.
func (v MapView[K, V]) Get(key K) (KeyValues[K, V], bool) {
	kv := v.m.Get(key)
	return kv, v.m.ContainsKey(key)
}

// KeySet returns the live key view.
func (v MapView[K, V]) KeySet() KeySetView[K, V] {
	return v.m.KeySet()
}

// All iterates over the keys, each with the live view of its values.
func (v MapView[K, V]) All() iter.Seq2[K, KeyValues[K, V]] {
	return func(yield func(K, KeyValues[K, V]) bool) {
		v.m.RangeKeys(func(key K) bool {
			return yield(key, KeyValues[K, V]{m: v.m, key: key})
		})
	}
}
