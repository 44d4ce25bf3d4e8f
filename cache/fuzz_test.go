//go:build go1.18

package cache

import (
	"strings"
	"testing"
)

// Fuzz basic Put/Get/Remove semantics under arbitrary string inputs.
// Guards against panics and ensures core invariants hold.
// NOTE: We cap key/value lengths to avoid pathological memory usage
// during fuzzing (this does not weaken the invariants we check).
func FuzzCache_PutGetRemove(f *testing.F) {
	// Seed corpus: empty, ASCII, Unicode, long strings.
	f.Add("", "")
	f.Add("a", "1")
	f.Add("b", "2")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		// Cap lengths to keep memory bounded during fuzzing.
		const limit = 1 << 12 // 4096
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		c := New[string, string](Options[string, string]{MaximumWeight: 16})
		t.Cleanup(func() { _ = c.Close() })

		// Put -> Get must return the same value.
		c.Put(k, v)
		got, ok := c.Get(k)
		if !ok || got != v {
			t.Fatalf("after Put/Get: want %q, got %q ok=%v", v, got, ok)
		}

		// PutIfAbsent on a present key must not overwrite.
		if _, inserted := c.PutIfAbsent(k, "other"); inserted {
			t.Fatalf("PutIfAbsent duplicate reported inserted")
		}
		if got2, ok := c.Get(k); !ok || got2 != v {
			t.Fatalf("after duplicate PutIfAbsent: want %q, got %q ok=%v", v, got2, ok)
		}

		// Remove must delete and return the value once.
		if old, ok := c.Remove(k); !ok || old != v {
			t.Fatalf("Remove want %q true, got %q %v", v, old, ok)
		}
		if _, ok := c.Get(k); ok {
			t.Fatalf("key must be absent after Remove")
		}

		// After removal, PutIfAbsent should succeed again.
		if _, inserted := c.PutIfAbsent(k, v); !inserted {
			t.Fatalf("PutIfAbsent after Remove must insert")
		}

		// The weighted size must settle within the bound.
		if ws := c.WeightedSize(); ws > c.Maximum() {
			t.Fatalf("weighted size %d exceeds maximum %d", ws, c.Maximum())
		}
	})
}
