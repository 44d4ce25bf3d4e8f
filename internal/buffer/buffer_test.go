package buffer

import "testing"

// Record returns the pre-append write count and advances it by one.
func TestStriped_RecordCounts(t *testing.T) {
	t.Parallel()

	s := NewStriped[int](1)
	v := 7

	for i := int64(0); i < 10; i++ {
		wc, recorded := s.Record(0, &v)
		if !recorded {
			t.Fatalf("event %d must be recorded", i)
		}
		if wc != i {
			t.Fatalf("write count want %d (pre-append), got %d", i, wc)
		}
	}
	if got := s.WriteCount(0); got != 10 {
		t.Fatalf("WriteCount want 10, got %d", got)
	}
	if got := s.DrainedAt(0); got != 0 {
		t.Fatalf("DrainedAt before any drain want 0, got %d", got)
	}
}

// A full ring drops events instead of blocking or overwriting.
func TestStriped_DropsWhenFull(t *testing.T) {
	t.Parallel()

	s := NewStriped[int](1)
	v := 1

	for i := 0; i < ringSize; i++ {
		if _, recorded := s.Record(0, &v); !recorded {
			t.Fatalf("event %d must fit in the ring", i)
		}
	}

	wc, recorded := s.Record(0, &v)
	if recorded {
		t.Fatal("full ring must drop the event")
	}
	if wc != ringSize {
		t.Fatalf("dropped event must still report the write count, got %d", wc)
	}
	if got := s.WriteCount(0); got != ringSize {
		t.Fatalf("drop must not advance the write count, got %d", got)
	}
}

// DrainStripe consumes at most DrainMax events per call, in recording
// order, and marks how far the stripe had been written.
func TestStriped_DrainStripe(t *testing.T) {
	t.Parallel()

	s := NewStriped[int](1)
	values := make([]int, ringSize)
	for i := range values {
		values[i] = i
		if _, recorded := s.Record(0, &values[i]); !recorded {
			t.Fatalf("event %d must be recorded", i)
		}
	}

	var got []int
	s.DrainStripe(0, func(e *int) { got = append(got, *e) })

	if len(got) != DrainMax {
		t.Fatalf("one drain must take DrainMax=%d events, took %d", DrainMax, len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("drain order broken at %d: got %d", i, v)
		}
	}
	if s.DrainedAt(0) != ringSize {
		t.Fatalf("DrainedAt want %d, got %d", ringSize, s.DrainedAt(0))
	}

	// Second drain takes the remainder; freed slots accept new events.
	got = got[:0]
	s.DrainStripe(0, func(e *int) { got = append(got, *e) })
	if len(got) != ringSize-DrainMax {
		t.Fatalf("second drain want %d events, got %d", ringSize-DrainMax, len(got))
	}
	if _, recorded := s.Record(0, &values[0]); !recorded {
		t.Fatal("drained ring must accept events again")
	}
}

// Discard empties all stripes without replaying anything.
func TestStriped_Discard(t *testing.T) {
	t.Parallel()

	s := NewStriped[int](4)
	v := 1
	for i := uint64(0); i < 4; i++ {
		s.Record(i, &v)
	}

	s.Discard()

	for i := uint64(0); i < 4; i++ {
		if s.DrainedAt(i) != s.WriteCount(i) {
			t.Fatalf("stripe %d not fully discarded", i)
		}
	}
}

// Discard drops every occupied slot, not just DrainMax of them, and the
// stripe keeps recording and draining afterwards.
func TestStriped_DiscardFullRing(t *testing.T) {
	t.Parallel()

	s := NewStriped[int](1)
	v := 1
	for i := 0; i < ringSize; i++ {
		if _, recorded := s.Record(0, &v); !recorded {
			t.Fatalf("event %d must fit in the ring", i)
		}
	}

	s.Discard()

	replayed := 0
	s.DrainStripe(0, func(*int) { replayed++ })
	if replayed != 0 {
		t.Fatalf("discarded events must not replay, got %d", replayed)
	}

	// The stripe resumes normally after a full discard.
	if _, recorded := s.Record(0, &v); !recorded {
		t.Fatal("discarded ring must accept events again")
	}
	s.DrainStripe(0, func(*int) { replayed++ })
	if replayed != 1 {
		t.Fatalf("post-discard event must replay once, got %d", replayed)
	}
}

// The stripe count rounds up to a power of two and indexes wrap.
func TestStriped_StripeRounding(t *testing.T) {
	t.Parallel()

	if got := NewStriped[int](3).Stripes(); got != 4 {
		t.Fatalf("3 stripes must round to 4, got %d", got)
	}
	if got := NewStriped[int](0).Stripes(); got != 1 {
		t.Fatalf("0 stripes must round to 1, got %d", got)
	}

	s := NewStriped[int](2)
	v := 1
	s.Record(5, &v) // 5 & 1 == stripe 1
	if s.WriteCount(1) != 1 {
		t.Fatal("index must wrap by mask")
	}
}
