// Package slru implements a Segmented LRU eviction policy.
//
// Entries are tracked in two segments:
//   - probation: first-time admissions; evicted first
//   - protected: entries accessed at least once after admission
//
// A burst of one-shot insertions (a scan) only churns probation, so entries
// with repeated accesses survive workloads that defeat plain LRU. When the
// protected segment overflows its budget, its coldest entry is demoted back
// to probation rather than evicted.
//
// The cache's deque remains the canonical recency order; the policy keeps
// its own per-segment lists to answer Victim in O(1).
//
// Concurrency: all methods are called under the eviction lock.
package slru

import (
	"container/list"

	"github.com/IvanBrykalov/boundedcache/policy"
)

type slru[K comparable, V any] struct {
	h policy.Hooks[K, V]

	protectedCap int

	// Segment lists hold policy.Node values; Front() is the hot end.
	probation *list.List
	protected *list.List

	// Membership index; presence in protectedIdx decides the segment.
	probationIdx map[policy.Node[K, V]]*list.Element
	protectedIdx map[policy.Node[K, V]]*list.Element
}

type slruPolicy[K comparable, V any] struct {
	protectedCap int
}

// New constructs an SLRU policy factory. protectedCap bounds how many
// entries the protected segment may hold; a common choice is 80% of the
// expected resident entry count.
func New[K comparable, V any](protectedCap int) policy.Policy[K, V] {
	if protectedCap < 1 {
		protectedCap = 1
	}
	return slruPolicy[K, V]{protectedCap: protectedCap}
}

func (p slruPolicy[K, V]) New(h policy.Hooks[K, V]) policy.OrderPolicy[K, V] {
	return &slru[K, V]{
		h:            h,
		protectedCap: p.protectedCap,
		probation:    list.New(),
		protected:    list.New(),
		probationIdx: make(map[policy.Node[K, V]]*list.Element),
		protectedIdx: make(map[policy.Node[K, V]]*list.Element),
	}
}

// OnAdd admits into probation and links at the hot end of the deque.
func (q *slru[K, V]) OnAdd(n policy.Node[K, V]) {
	q.h.PushBack(n)
	q.probationIdx[n] = q.probation.PushFront(n)
}

// OnAccess promotes a probation entry to protected (demoting the coldest
// protected entry if the segment is over budget) and refreshes recency in
// both the segment list and the deque.
func (q *slru[K, V]) OnAccess(n policy.Node[K, V]) {
	if el, ok := q.protectedIdx[n]; ok {
		q.protected.MoveToFront(el)
		q.h.MoveToBack(n)
		return
	}
	el, ok := q.probationIdx[n]
	if !ok {
		// Not tracked: the entry was unlinked by an earlier write task.
		return
	}
	q.probation.Remove(el)
	delete(q.probationIdx, n)
	q.protectedIdx[n] = q.protected.PushFront(n)
	q.h.MoveToBack(n)

	for q.protected.Len() > q.protectedCap {
		cold := q.protected.Back()
		if cold == nil {
			break
		}
		demoted := cold.Value.(policy.Node[K, V])
		q.protected.Remove(cold)
		delete(q.protectedIdx, demoted)
		q.probationIdx[demoted] = q.probation.PushFront(demoted)
	}
}

// OnRemove drops the entry from whichever segment tracks it.
func (q *slru[K, V]) OnRemove(n policy.Node[K, V]) {
	if el, ok := q.probationIdx[n]; ok {
		q.probation.Remove(el)
		delete(q.probationIdx, n)
		return
	}
	if el, ok := q.protectedIdx[n]; ok {
		q.protected.Remove(el)
		delete(q.protectedIdx, n)
	}
}

// Victim proposes the coldest probation entry, falling back to the coldest
// protected entry when probation is empty.
func (q *slru[K, V]) Victim() policy.Node[K, V] {
	if el := q.probation.Back(); el != nil {
		return el.Value.(policy.Node[K, V])
	}
	if el := q.protected.Back(); el != nil {
		return el.Value.(policy.Node[K, V])
	}
	return nil
}
