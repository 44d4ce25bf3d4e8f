// Package buffer implements the striped, lossy ring buffers used to record
// read events without synchronizing on the eviction lock.
//
// Each stripe owns a fixed ring of slots plus two counters: writeCount, the
// number of events recorded on the stripe, and drainedAt, the value of
// writeCount observed by the most recent drain. The difference between the
// two is the stripe's pending-event estimate; once it reaches ReadThreshold
// the caller is expected to request a drain. Recording is best-effort: an
// occupied slot drops the event rather than blocking or overwriting.
package buffer

import (
	"sync/atomic"

	"github.com/IvanBrykalov/boundedcache/internal/util"
)

const (
	// ReadThreshold is the pending-event count at which a stripe asks for a
	// drain. Power of two, small enough to bound staleness of the eviction
	// order, large enough to amortize the drain over many reads.
	ReadThreshold = 32

	// DrainMax bounds how many events a single drain takes from one stripe,
	// so a hot stripe cannot starve the rest of the maintenance work.
	DrainMax = 2 * ReadThreshold

	ringSize = 128
	ringMask = ringSize - 1
)

// stripe is a single ring. writeCount and drainedAt sit on their own cache
// lines; the drained position is only touched under the eviction lock.
type stripe[E any] struct {
	writeCount util.PaddedAtomicInt64
	drainedAt  util.PaddedAtomicInt64
	drained    int64 // ring read position, eviction lock only
	slots      [ringSize]atomic.Pointer[E]
}

// Striped is a fixed set of stripes. The stripe count is rounded up to a
// power of two at construction and never changes.
type Striped[E any] struct {
	stripes []*stripe[E]
	mask    uint64
}

// NewStriped returns a buffer with n stripes (rounded up to a power of two).
func NewStriped[E any](n int) *Striped[E] {
	if n < 1 {
		n = 1
	}
	n = int(util.NextPow2(uint64(n)))
	stripes := make([]*stripe[E], n)
	for i := range stripes {
		stripes[i] = &stripe[E]{}
	}
	return &Striped[E]{
		stripes: stripes,
		mask:    uint64(n - 1),
	}
}

// Stripes returns the stripe count.
func (s *Striped[E]) Stripes() int { return len(s.stripes) }

// Record appends e to the stripe selected by idx. It returns the stripe's
// write count as observed before the append, and whether the event was
// recorded. A full slot drops the event: recency buffering is lossy, never
// blocking.
//
// Record may race with other writers on the same stripe; a lost increment
// only delays the next drain and is acceptable by design of the protocol.
func (s *Striped[E]) Record(idx uint64, e *E) (writeCount int64, recorded bool) {
	st := s.stripes[idx&s.mask]
	wc := st.writeCount.Load()
	slot := &st.slots[wc&ringMask]
	if slot.Load() != nil {
		return wc, false
	}
	slot.Store(e)
	st.writeCount.Store(wc + 1)
	return wc, true
}

// DrainedAt returns the stripe's write count as of its last drain.
func (s *Striped[E]) DrainedAt(idx uint64) int64 {
	return s.stripes[idx&s.mask].drainedAt.Load()
}

// WriteCount returns the stripe's current write count.
func (s *Striped[E]) WriteCount(idx uint64) int64 {
	return s.stripes[idx&s.mask].writeCount.Load()
}

// DrainStripe consumes up to DrainMax pending events from one stripe in
// recording order, invoking fn for each, then records the stripe's write
// count as its drain mark. Must be called with the eviction lock held.
func (s *Striped[E]) DrainStripe(i int, fn func(*E)) {
	st := s.stripes[i]
	wc := st.writeCount.Load()
	for n := 0; n < DrainMax; n++ {
		slot := &st.slots[st.drained&ringMask]
		e := slot.Load()
		if e == nil {
			break
		}
		slot.Store(nil)
		st.drained++
		fn(e)
	}
	st.drainedAt.Store(wc)
}

// DrainTo drains every stripe. Must be called with the eviction lock held.
func (s *Striped[E]) DrainTo(fn func(*E)) {
	for i := range s.stripes {
		s.DrainStripe(i, fn)
	}
}

// Discard empties every stripe without replaying the events, dropping all
// recorded references regardless of DrainMax. Must be called with the
// eviction lock held; used by Clear.
func (s *Striped[E]) Discard() {
	for _, st := range s.stripes {
		wc := st.writeCount.Load()
		for i := range st.slots {
			st.slots[i].Store(nil)
		}
		st.drained = wc
		st.drainedAt.Store(wc)
	}
}
