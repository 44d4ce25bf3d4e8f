package cache

// accessOrder is the intrusive doubly linked deque that holds the eviction
// order: head is the coldest (least recently used) entry, tail the hottest.
// All mutation happens under the eviction lock; the deque is never read on
// the hot path.
type accessOrder[K comparable, V any] struct {
	head, tail *entry[K, V]
	n          int
}

// contains reports whether e is currently linked. Unlink nils both links,
// so a single-element deque is detected via the head pointer.
func (d *accessOrder[K, V]) contains(e *entry[K, V]) bool {
	return e.prev != nil || e.next != nil || d.head == e
}

// pushBack links e at the hot end in O(1).
func (d *accessOrder[K, V]) pushBack(e *entry[K, V]) {
	e.prev = d.tail
	e.next = nil
	if d.tail != nil {
		d.tail.next = e
	}
	d.tail = e
	if d.head == nil {
		d.head = e
	}
	d.n++
}

// moveToBack promotes a linked entry to the hot end in O(1).
func (d *accessOrder[K, V]) moveToBack(e *entry[K, V]) {
	if d.tail == e {
		return
	}
	// detach
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if d.head == e {
		d.head = e.next
	}
	// relink at tail
	e.prev = d.tail
	e.next = nil
	if d.tail != nil {
		d.tail.next = e
	}
	d.tail = e
	if d.head == nil {
		d.head = e
	}
}

// unlink removes e from the deque in O(1). Safe to call only for linked
// entries; callers guard with contains.
func (d *accessOrder[K, V]) unlink(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if d.head == e {
		d.head = e.next
	}
	if d.tail == e {
		d.tail = e.prev
	}
	e.prev, e.next = nil, nil
	d.n--
}

func (d *accessOrder[K, V]) first() *entry[K, V] { return d.head }
func (d *accessOrder[K, V]) len() int            { return d.n }
