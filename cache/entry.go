package cache

import "sync/atomic"

// Entry lifecycle states. The transition graph is strictly monotonic:
//
//	alive -> retired -> dead
//
// alive: present in the store, eligible for ordering and eviction.
// retired: removed from the store's visible content but possibly still
// linked in the access order, pending unlink by a drain.
// dead: unlinked and unmapped; terminal.
const (
	stateAlive int32 = iota
	stateRetired
	stateDead

	stateMask  = 0xff
	causeShift = 8
)

// entry is the unit of storage and eviction: an immutable key/value/weight
// record plus intrusive deque links and an atomic lifecycle word.
//
// The state word packs the lifecycle in its low byte and, once the entry is
// retired, the removal cause in the bits above it. Packing both into one
// word lets the retiring thread publish state and cause with a single CAS,
// so a concurrent drain can never observe a retired entry without its cause.
type entry[K comparable, V any] struct {
	key    K
	value  V
	weight int64

	// Deque links, mutated only under the eviction lock.
	prev, next *entry[K, V]

	state atomic.Int32
}

func newEntry[K comparable, V any](key K, value V, weight int64) *entry[K, V] {
	return &entry[K, V]{key: key, value: value, weight: weight}
}

// Key, Value and Weight implement policy.Node.
func (e *entry[K, V]) Key() K        { return e.key }
func (e *entry[K, V]) Value() V      { return e.value }
func (e *entry[K, V]) Weight() int64 { return e.weight }

func (e *entry[K, V]) isAlive() bool   { return e.state.Load()&stateMask == stateAlive }
func (e *entry[K, V]) isRetired() bool { return e.state.Load()&stateMask == stateRetired }
func (e *entry[K, V]) isDead() bool    { return e.state.Load()&stateMask == stateDead }

// retire transitions alive -> retired, recording the removal cause that a
// later drain will report when the entry dies. Returns false without any
// state change if the entry is already retired or dead, so racing removers
// cannot both claim the removal.
func (e *entry[K, V]) retire(cause RemovalCause) bool {
	return e.state.CompareAndSwap(stateAlive, stateRetired|int32(cause)<<causeShift)
}

// die transitions to dead, preserving the recorded cause. Returns true only
// for the caller that performed the transition; a dead entry stays dead.
func (e *entry[K, V]) die() bool {
	for {
		v := e.state.Load()
		if v&stateMask == stateDead {
			return false
		}
		if e.state.CompareAndSwap(v, stateDead|(v&^stateMask)) {
			return true
		}
	}
}

// removalCause returns the cause recorded when the entry was retired.
// Meaningful only for retired or dead entries.
func (e *entry[K, V]) removalCause() RemovalCause {
	return RemovalCause(e.state.Load() >> causeShift)
}
