package cache

import (
	"context"
	"sync/atomic"
)

// evictionLock is the non-reentrant mutex guarding the access order, the
// weighted-size counter and the drain procedure. It is a buffered-channel
// mutex rather than a sync.Mutex for two reasons the drain protocol needs:
//
//   - Contended() exposes whether goroutines are queued waiting, used only
//     as a scheduling heuristic (defer opportunistic drains to the executor
//     instead of charging them to a user-facing call).
//   - Lock(ctx) makes the blocking acquire cancellable; a cancelled waiter
//     simply never acquires, so no partial drain state can be left behind.
type evictionLock struct {
	slot    chan struct{}
	waiters atomic.Int32
}

func newEvictionLock() *evictionLock {
	return &evictionLock{slot: make(chan struct{}, 1)}
}

// TryLock acquires the lock without blocking.
func (l *evictionLock) TryLock() bool {
	select {
	case l.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// Lock blocks until the lock is acquired or ctx is done, in which case it
// returns ctx.Err() without holding the lock.
func (l *evictionLock) Lock(ctx context.Context) error {
	if l.TryLock() {
		return nil
	}
	l.waiters.Add(1)
	defer l.waiters.Add(-1)
	select {
	case l.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the lock. Must only be called by the holder.
func (l *evictionLock) Unlock() {
	<-l.slot
}

// Contended reports whether goroutines are queued waiting for the lock.
// Heuristic only: the answer may be stale by the time it is used, which is
// fine for scheduling and never relied on for correctness.
func (l *evictionLock) Contended() bool {
	return l.waiters.Load() > 0
}
