package cache

import "sync"

// Write-buffer tasks are a closed set of tagged variants rather than
// closures: each one names the structural mutation the drain must apply to
// the access order, which keeps drains reproducible and testable.
type taskKind uint8

const (
	taskAdd    taskKind = iota // link n at the hot end
	taskUpdate                 // unlink+kill old, then link n
	taskDelete                 // unlink+kill n
)

type writeTask[K comparable, V any] struct {
	kind taskKind
	n    *entry[K, V]
	old  *entry[K, V] // taskUpdate only
}

// writeQueue is the pending-mutation FIFO. It is guarded by its own mutex,
// never by the eviction lock, so writers enqueue without contending with an
// in-flight drain. Unbounded in principle; in practice every mutation
// attempts a drain immediately after enqueueing, which keeps it short.
type writeQueue[K comparable, V any] struct {
	mu    sync.Mutex
	items []writeTask[K, V]
	head  int
}

func (q *writeQueue[K, V]) push(t writeTask[K, V]) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
}

// pop removes and returns the oldest task, if any.
func (q *writeQueue[K, V]) pop() (writeTask[K, V], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		// Reset storage so entry pointers do not outlive their tasks.
		q.items = q.items[:0]
		q.head = 0
		var zero writeTask[K, V]
		return zero, false
	}
	t := q.items[q.head]
	q.items[q.head] = writeTask[K, V]{}
	q.head++
	return t, true
}

func (q *writeQueue[K, V]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
