// Package policy defines the contract between the bounded cache and a
// pluggable eviction-ordering policy. The cache owns the canonical access
// order (an intrusive deque, LRU at the head) and the drain protocol; the
// policy only decides where entries sit in that order and which entry to
// give up under capacity pressure.
package policy

// Node is the minimal view of a cache entry a policy operates on.
type Node[K comparable, V any] interface {
	Key() K
	Value() V
	Weight() int64
}

// Hooks expose O(1) operations on the cache's access-order deque.
// The head is the coldest (least recently used) end, the tail the hottest.
//
// Concurrency: all hook calls happen under the eviction lock. Hooks manage
// only the ordering; the cache owns the key->entry store and the entry
// lifecycle.
type Hooks[K comparable, V any] interface {
	// PushBack links the node at the hot end (used on admission).
	PushBack(Node[K, V])
	// MoveToBack promotes the node to the hot end.
	MoveToBack(Node[K, V])
	// Head returns the coldest linked node (or nil if empty).
	Head() Node[K, V]
	// Len returns the number of linked nodes.
	Len() int
}

// OrderPolicy is a cache-local policy instance bound to that cache's hooks.
// All methods are invoked under the eviction lock, by the draining goroutine
// only.
//
// Semantics:
//   - OnAdd places a newly linked entry in the order.
//   - OnAccess repositions an entry after a buffered read event is replayed.
//   - OnRemove is a notification to update policy-internal state before the
//     cache unlinks the node; the cache performs the actual unlink.
//   - Victim proposes the entry to evict while the cache is over capacity,
//     or nil when nothing is eligible.
type OrderPolicy[K comparable, V any] interface {
	OnAdd(Node[K, V])
	OnAccess(Node[K, V])
	OnRemove(Node[K, V])
	Victim() Node[K, V]
}

// Policy is a factory that creates a policy instance bound to a particular
// cache's hooks.
type Policy[K comparable, V any] interface {
	New(Hooks[K, V]) OrderPolicy[K, V]
}
