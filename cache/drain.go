package cache

import (
	"context"

	"github.com/IvanBrykalov/boundedcache/internal/buffer"
)

// Drain status coordinates who is responsible for replaying buffered events
// into the eviction order. Exactly one goroutine may be in drainProcessing
// at a time; that is enforced by the status transitions together with the
// eviction lock, and lets contending goroutines detect "someone else is
// already draining" without blocking.
const (
	// drainIdle — no drain is needed or running.
	drainIdle uint32 = iota
	// drainRequired — buffered work is pending and a drain must run.
	drainRequired
	// drainProcessing — a drain is in progress.
	drainProcessing
)

// afterRead records a read event on the given stripe and requests a drain
// once the stripe's pending estimate crosses the threshold. Lossy and
// non-blocking by design.
func (c *cache[K, V]) afterRead(e *entry[K, V], stripe uint64) {
	wc, _ := c.readBuffers.Record(stripe, e)
	pending := wc - c.readBuffers.DrainedAt(stripe)
	delayable := pending < buffer.ReadThreshold
	if c.shouldDrain(delayable) {
		c.scheduleDrain()
	}
}

// shouldDrain decides whether the caller ought to attempt a drain given
// whether its own event can tolerate delay.
func (c *cache[K, V]) shouldDrain(delayable bool) bool {
	switch c.drainStatus.Load() {
	case drainIdle:
		return !delayable
	case drainRequired:
		return true
	default: // drainProcessing
		return false
	}
}

// afterWrite enqueues the mutation task and always attempts a drain. The
// task is guaranteed to run exactly once: inline when this goroutine wins
// the eviction lock, otherwise by whichever drain runs next.
func (c *cache[K, V]) afterWrite(t writeTask[K, V]) {
	c.writeQueue.push(t)
	c.drainStatus.Store(drainRequired)
	c.tryDrain()
}

// scheduleDrain is the read path's drain request. When the eviction lock is
// contended the attempt is handed to the executor so a user-facing read
// never pays for maintenance; otherwise it is tried inline.
func (c *cache[K, V]) scheduleDrain() {
	if c.lock.Contended() {
		c.executor(c.tryDrain)
		return
	}
	c.tryDrain()
}

// tryDrain is the non-blocking drain entry point: it skips entirely when
// another goroutine holds the eviction lock.
func (c *cache[K, V]) tryDrain() {
	if !c.lock.TryLock() {
		return
	}
	events := c.maintenance()
	c.lock.Unlock()
	c.notify(events)
	c.rescheduleDrain()
}

// drainBlocking waits for the eviction lock and performs a full drain.
// Used by operations that require a consistent view.
func (c *cache[K, V]) drainBlocking(ctx context.Context) error {
	if err := c.lock.Lock(ctx); err != nil {
		return err
	}
	events := c.maintenance()
	c.lock.Unlock()
	c.notify(events)
	c.rescheduleDrain()
	return nil
}

// rescheduleDrain hands a follow-up drain to the executor when more work
// arrived while the previous drain was running.
func (c *cache[K, V]) rescheduleDrain() {
	if c.drainStatus.Load() == drainRequired {
		c.executor(c.tryDrain)
	}
}

// maintenance replays buffered events into the eviction order and evicts
// while over capacity. Caller must hold the eviction lock. Returns the
// removal notifications to deliver after the lock is released.
func (c *cache[K, V]) maintenance() []removalEvent[K, V] {
	c.drainStatus.Store(drainProcessing)

	c.runWriteTasks()
	c.readBuffers.DrainTo(c.onAccess)
	c.evictEntries()

	// Work that arrived during the drain flipped the status to required;
	// leave it that way so a follow-up drain gets scheduled.
	if !c.drainStatus.CompareAndSwap(drainProcessing, drainIdle) {
		c.drainStatus.Store(drainRequired)
	}
	c.metrics.Size(c.store.len(), c.weightedSize)
	return c.takeRemovals()
}

// runWriteTasks applies all enqueued mutation tasks in FIFO order.
func (c *cache[K, V]) runWriteTasks() {
	for {
		t, ok := c.writeQueue.pop()
		if !ok {
			return
		}
		switch t.kind {
		case taskAdd:
			c.link(t.n)
		case taskUpdate:
			c.makeDead(t.old)
			c.link(t.n)
		case taskDelete:
			c.makeDead(t.n)
		}
	}
}

// onAccess replays one buffered read event. Entries that a write task
// already unlinked are skipped.
func (c *cache[K, V]) onAccess(e *entry[K, V]) {
	if e.isAlive() && c.deque.contains(e) {
		c.pol.OnAccess(e)
	}
}

// link accounts the entry's weight and hands it to the policy for
// placement. The weight is added even when the entry was retired before its
// task drained: the matching delete task subtracts it again via makeDead,
// keeping the counter balanced.
func (c *cache[K, V]) link(n *entry[K, V]) {
	c.weightedSize = saturatingAdd(c.weightedSize, n.weight)
	if n.isAlive() {
		c.pol.OnAdd(n)
	}
}

// makeDead unlinks the entry, settles its weight and records the removal
// notification with the cause captured at retirement. Idempotent: only the
// call that performs the retired->dead transition has any effect.
func (c *cache[K, V]) makeDead(e *entry[K, V]) {
	if c.deque.contains(e) {
		c.pol.OnRemove(e)
		c.deque.unlink(e)
	}
	if !e.die() {
		return
	}
	c.weightedSize -= e.weight
	if c.weightedSize < 0 {
		c.weightedSize = 0
	}
	cause := e.removalCause()
	if cause == CauseSize {
		c.metrics.Evict(cause)
	}
	c.pendingRemovals = append(c.pendingRemovals, removalEvent[K, V]{
		key:   e.key,
		value: e.value,
		cause: cause,
	})
}

// evictEntries removes entries from the cold end while the weighted size
// exceeds the maximum. Every iteration either kills a positive-weight entry
// or returns, so the loop always terminates: the excess may belong to
// entries whose delete tasks have not drained yet, and their weight is
// refunded on a later pass.
func (c *cache[K, V]) evictEntries() {
	for c.weightedSize > c.maximum.Load() {
		e := c.evictionVictim()
		if e == nil {
			return
		}
		c.evictEntry(e)
	}
}

// evictionVictim returns the policy's victim, skipping zero-weight entries
// by walking the access order toward the hot end: weightless entries cannot
// relieve size pressure and are exempt from eviction. Falls back to a scan
// from the cold end when the victim's tail is all weightless, and returns
// nil when no positive-weight entry is linked at all.
func (c *cache[K, V]) evictionVictim() *entry[K, V] {
	v := c.pol.Victim()
	if v == nil {
		return nil
	}
	for e := v.(*entry[K, V]); e != nil; e = e.next {
		if e.weight > 0 {
			return e
		}
	}
	for e := c.deque.first(); e != nil; e = e.next {
		if e.weight > 0 {
			return e
		}
	}
	return nil
}

// evictEntry retires and kills one victim. If a racing removal already
// retired the entry, its recorded cause wins and the store mapping is
// already gone; the eviction then only completes the unlink.
func (c *cache[K, V]) evictEntry(e *entry[K, V]) {
	e.retire(CauseSize)
	c.store.removeEntry(e.key, e)
	c.makeDead(e)
}

// takeRemovals hands the accumulated notifications to the caller, which
// must deliver them after releasing the eviction lock.
func (c *cache[K, V]) takeRemovals() []removalEvent[K, V] {
	events := c.pendingRemovals
	c.pendingRemovals = nil
	return events
}

func saturatingAdd(a, b int64) int64 {
	s := a + b
	if s > maximumCapacity || s < a {
		return maximumCapacity
	}
	return s
}
