package multimap

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// smallSetMax is the largest set kept as an immutable slice.
// Larger sets move into an xsync.Map, which has a sizeable fixed
// footprint but constant-time membership.
const smallSetMax = 8

// valueSet holds all values associated with one key.
//
// Reads never lock. Mutations must be serialized by the owner (the
// segment lock); they either publish a new small-slice state or update
// the concurrent map in place, so a reader always observes a complete set.
type valueSet[V comparable] struct {
	state atomic.Pointer[valueSetState[V]]
	n     atomic.Int64
}

// valueSetState is never modified once published, except for the
// large map which is safe for concurrent use on its own.
type valueSetState[V comparable] struct {
	small []V
	large *xsync.Map[V, struct{}]
}

func newValueSet[V comparable](values ...V) *valueSet[V] {
	vs := &valueSet[V]{}
	vs.state.Store(&valueSetState[V]{})
	for _, v := range values {
		vs.add(v)
	}
	return vs
}

func (vs *valueSet[V]) len() int {
	return int(vs.n.Load())
}

func (vs *valueSet[V]) contains(value V) bool {
	st := vs.state.Load()
	if st.large != nil {
		_, ok := st.large.Load(value)
		return ok
	}
	for _, v := range st.small {
		if v == value {
			return true
		}
	}
	return false
}

// add inserts value and reports whether the set grew.
// Caller must hold the owning segment lock.
func (vs *valueSet[V]) add(value V) bool {
	st := vs.state.Load()
	if st.large != nil {
		if _, loaded := st.large.LoadOrStore(value, struct{}{}); loaded {
			return false
		}
		vs.n.Add(1)
		return true
	}
	for _, v := range st.small {
		if v == value {
			return false
		}
	}
	if len(st.small) < smallSetMax {
		small := make([]V, len(st.small), len(st.small)+1)
		copy(small, st.small)
		vs.state.Store(&valueSetState[V]{small: append(small, value)})
		vs.n.Add(1)
		return true
	}
	large := xsync.NewMap[V, struct{}](xsync.WithPresize(2 * smallSetMax))
	for _, v := range st.small {
		large.Store(v, struct{}{})
	}
	large.Store(value, struct{}{})
	vs.state.Store(&valueSetState[V]{large: large})
	vs.n.Add(1)
	return true
}

// remove deletes value and reports whether it was present.
// Caller must hold the owning segment lock.
func (vs *valueSet[V]) remove(value V) bool {
	st := vs.state.Load()
	if st.large != nil {
		if _, loaded := st.large.LoadAndDelete(value); !loaded {
			return false
		}
		vs.n.Add(-1)
		return true
	}
	for i, v := range st.small {
		if v == value {
			small := make([]V, 0, len(st.small)-1)
			small = append(small, st.small[:i]...)
			small = append(small, st.small[i+1:]...)
			vs.state.Store(&valueSetState[V]{small: small})
			vs.n.Add(-1)
			return true
		}
	}
	return false
}

// rangeValues calls yield for each value. For large sets the traversal
// is weakly consistent, the same as xsync.Map.Range.
func (vs *valueSet[V]) rangeValues(yield func(V) bool) {
	st := vs.state.Load()
	if st.large != nil {
		st.large.Range(func(v V, _ struct{}) bool {
			return yield(v)
		})
		return
	}
	for _, v := range st.small {
		if !yield(v) {
			return
		}
	}
}

// snapshot copies the current values into a new slice.
func (vs *valueSet[V]) snapshot() []V {
	st := vs.state.Load()
	if st.large == nil {
		out := make([]V, len(st.small))
		copy(out, st.small)
		return out
	}
	out := make([]V, 0, vs.len())
	st.large.Range(func(v V, _ struct{}) bool {
		out = append(out, v)
		return true
	})
	return out
}
