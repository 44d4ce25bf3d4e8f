package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/boundedcache/policy/slru"
)

// recordingMetrics captures Metrics signals for assertions.
type recordingMetrics struct {
	mu      sync.Mutex
	hits    int
	misses  int
	evicts  map[RemovalCause]int
	entries int
	weight  int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{evicts: make(map[RemovalCause]int)}
}

func (m *recordingMetrics) Hit()  { m.mu.Lock(); m.hits++; m.mu.Unlock() }
func (m *recordingMetrics) Miss() { m.mu.Lock(); m.misses++; m.mu.Unlock() }
func (m *recordingMetrics) Evict(c RemovalCause) {
	m.mu.Lock()
	m.evicts[c]++
	m.mu.Unlock()
}
func (m *recordingMetrics) Size(entries int, weight int64) {
	m.mu.Lock()
	m.entries, m.weight = entries, weight
	m.mu.Unlock()
}

// newDeterministic builds a cache where every drain runs inline on the
// calling goroutine: one shard, one read-buffer stripe and a synchronous
// executor remove all scheduling nondeterminism.
func newDeterministic[K comparable, V any](t *testing.T, opt Options[K, V]) *cache[K, V] {
	t.Helper()
	opt.Shards = 1
	opt.ReadStripes = 1
	if opt.Executor == nil {
		opt.Executor = func(fn func()) { fn() }
	}
	c := New[K, V](opt).(*cache[K, V])
	c.stripeOf = func(K) uint64 { return 0 }
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// Basic Put/Get/PutIfAbsent/Replace/Remove semantics.
func TestCache_BasicOps(t *testing.T) {
	t.Parallel()

	c := newDeterministic(t, Options[string, int]{MaximumWeight: 8})

	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache must miss")
	}
	if old, had := c.Put("a", 1); had {
		t.Fatalf("fresh Put must not displace, got %v", old)
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get a want 1, got %v ok=%v", v, ok)
	}

	if old, had := c.Put("a", 11); !had || old != 1 {
		t.Fatalf("Put over existing must return old=1, got %v had=%v", old, had)
	}

	if _, inserted := c.PutIfAbsent("a", 2); inserted {
		t.Fatal("PutIfAbsent duplicate must not insert")
	}
	if v, ok := c.Get("a"); !ok || v != 11 {
		t.Fatalf("value must survive failed PutIfAbsent, got %v ok=%v", v, ok)
	}
	if v, inserted := c.PutIfAbsent("b", 2); !inserted || v != 2 {
		t.Fatalf("PutIfAbsent on absent key must insert, got %v %v", v, inserted)
	}

	if _, ok := c.Replace("zzz", 9); ok {
		t.Fatal("Replace on absent key must fail")
	}
	if _, ok := c.Get("zzz"); ok {
		t.Fatal("failed Replace must not insert")
	}
	if old, ok := c.Replace("b", 22); !ok || old != 2 {
		t.Fatalf("Replace b want old=2, got %v ok=%v", old, ok)
	}

	if c.ReplaceIf("b", 999, 0) {
		t.Fatal("ReplaceIf with wrong expected must fail")
	}
	if !c.ReplaceIf("b", 22, 23) {
		t.Fatal("ReplaceIf with matching expected must succeed")
	}
	if v, _ := c.Get("b"); v != 23 {
		t.Fatalf("want 23, got %v", v)
	}

	if old, ok := c.Remove("b"); !ok || old != 23 {
		t.Fatalf("Remove b want 23, got %v ok=%v", old, ok)
	}
	if _, ok := c.Remove("b"); ok {
		t.Fatal("second Remove must report absent")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("b must be absent after Remove")
	}
}

// Deterministic LRU eviction. Accessing "a" promotes it once the read
// buffer is replayed, so inserting "c" over capacity evicts "b".
func TestCache_EvictionLRU(t *testing.T) {
	t.Parallel()

	c := newDeterministic(t, Options[string, int]{MaximumWeight: 2})

	c.Put("a", 1) // order: a
	c.Put("b", 2) // order: a b
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expect hit for a")
	}
	c.Put("c", 3) // drain replays the read, then evicts the coldest (b)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b must be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a must survive (promoted)")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatal("c must be present")
	}
}

// GetQuietly must not count as an access: "a" stays coldest and is evicted.
func TestCache_GetQuietly_NoPromotion(t *testing.T) {
	t.Parallel()

	c := newDeterministic(t, Options[string, int]{MaximumWeight: 2})

	c.Put("a", 1)
	c.Put("b", 2)
	if v, ok := c.GetQuietly("a"); !ok || v != 1 {
		t.Fatalf("GetQuietly a want 1, got %v ok=%v", v, ok)
	}
	c.Put("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Fatal("a must be evicted: GetQuietly must not promote")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("b must survive")
	}
}

// Weigher-driven bounding: total weight, not entry count, is enforced.
func TestCache_WeightedEviction(t *testing.T) {
	t.Parallel()

	c := newDeterministic(t, Options[string, string]{
		MaximumWeight: 10,
		Weigher:       func(k, v string) int { return len(v) },
	})

	c.Put("a", "xxxx") // 4
	c.Put("b", "xxxx") // 4
	c.Put("c", "xxxx") // 4 -> 12 > 10, evict "a"
	c.CleanUp()

	if _, ok := c.Get("a"); ok {
		t.Fatal("a must be evicted by weight")
	}
	if got := c.WeightedSize(); got != 8 {
		t.Fatalf("WeightedSize want 8, got %d", got)
	}
	if c.Len() != 2 {
		t.Fatalf("Len want 2, got %d", c.Len())
	}
}

// Zero-weight entries are admitted and never evicted by size pressure.
func TestCache_ZeroWeightEntries(t *testing.T) {
	t.Parallel()

	c := newDeterministic(t, Options[string, string]{
		MaximumWeight: 2,
		Weigher:       func(k, v string) int { return len(v) },
	})

	c.Put("free", "")
	for i := 0; i < 8; i++ {
		c.Put("k"+strconv.Itoa(i), "xx")
	}
	c.CleanUp()

	if _, ok := c.Get("free"); !ok {
		t.Fatal("zero-weight entry must not be evicted by size")
	}
}

// One removal notification per removed entry with the right cause, fired
// outside the eviction lock.
func TestCache_RemovalListener_Causes(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	counts := make(map[string]int)
	c := newDeterministic(t, Options[string, int]{
		MaximumWeight: 2,
		OnRemoval: func(k string, v int, cause RemovalCause) {
			mu.Lock()
			counts[k+"/"+cause.String()]++
			mu.Unlock()
		},
	})

	c.Put("a", 1)
	c.Put("a", 2) // replaced
	c.Put("b", 3)
	c.Remove("b") // explicit
	c.Put("c", 4)
	c.Put("d", 5) // overflow: "a" is coldest -> size
	c.CleanUp()
	if err := c.Clear(context.Background()); err != nil { // explicit for the rest
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := map[string]int{
		"a/replaced": 1,
		"b/explicit": 1,
		"a/size":     1,
		"c/explicit": 1,
		"d/explicit": 1,
	}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Fatalf("removal notifications mismatch (-want +got):\n%s", diff)
	}
}

// Coldest returns entries least recently used first, after a full drain.
func TestCache_Coldest_Order(t *testing.T) {
	t.Parallel()

	c := newDeterministic(t, Options[string, int]{MaximumWeight: 10})

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Get("a") // buffered access; Coldest must observe it

	cold, err := c.Coldest(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, e := range cold {
		keys = append(keys, e.Key)
	}
	if diff := cmp.Diff([]string{"b", "c", "a"}, keys); diff != "" {
		t.Fatalf("coldest order mismatch (-want +got):\n%s", diff)
	}

	// A limit smaller than the population truncates from the cold end.
	cold, err = c.Coldest(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(cold) != 1 || cold[0].Key != "b" {
		t.Fatalf("Coldest(1) want [b], got %v", cold)
	}
}

// Untouched entries keep insertion order; an accessed subset moves to the
// hot end preserving its relative order.
func TestCache_OrderAfterAccess(t *testing.T) {
	t.Parallel()

	c := newDeterministic(t, Options[string, int]{MaximumWeight: 10})

	for i, k := range []string{"a", "b", "c", "d"} {
		c.Put(k, i)
	}

	cold, err := c.Coldest(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, e := range cold {
		keys = append(keys, e.Key)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, keys); diff != "" {
		t.Fatalf("insertion order mismatch (-want +got):\n%s", diff)
	}

	c.Get("a")
	c.Get("c")

	cold, err = c.Coldest(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	keys = keys[:0]
	for _, e := range cold {
		keys = append(keys, e.Key)
	}
	if diff := cmp.Diff([]string{"b", "d", "a", "c"}, keys); diff != "" {
		t.Fatalf("access reorder mismatch (-want +got):\n%s", diff)
	}
}

// Overflow removes exactly the coldest entries, in order, with one Size
// notification each.
func TestCache_EvictsInOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var evicted []string

	c := newDeterministic(t, Options[string, int]{
		MaximumWeight: 3,
		OnRemoval: func(k string, v int, cause RemovalCause) {
			if cause != CauseSize {
				t.Errorf("cause want size, got %v", cause)
			}
			mu.Lock()
			evicted = append(evicted, k)
			mu.Unlock()
		},
	})

	for i, k := range []string{"a", "b", "c", "d", "e"} {
		c.Put(k, i)
	}
	c.CleanUp()

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"a", "b"}, evicted); diff != "" {
		t.Fatalf("eviction order mismatch (-want +got):\n%s", diff)
	}
	if c.Len() != 3 {
		t.Fatalf("Len want 3, got %d", c.Len())
	}
}

// Clear empties the cache and reports every entry as explicitly removed.
func TestCache_Clear(t *testing.T) {
	t.Parallel()

	var removed atomic.Int64
	c := newDeterministic(t, Options[string, int]{
		MaximumWeight: 10,
		OnRemoval: func(k string, v int, cause RemovalCause) {
			if cause != CauseExplicit {
				t.Errorf("Clear cause want explicit, got %v", cause)
			}
			removed.Add(1)
		},
	})

	for i := 0; i < 5; i++ {
		c.Put("k"+strconv.Itoa(i), i)
	}
	if err := c.Clear(context.Background()); err != nil {
		t.Fatal(err)
	}

	if c.Len() != 0 {
		t.Fatalf("Len after Clear want 0, got %d", c.Len())
	}
	if got := c.WeightedSize(); got != 0 {
		t.Fatalf("WeightedSize after Clear want 0, got %d", got)
	}
	if removed.Load() != 5 {
		t.Fatalf("want 5 removal notifications, got %d", removed.Load())
	}
}

// SetCapacity shrinks eagerly and rejects negative maximums.
func TestCache_SetCapacity(t *testing.T) {
	t.Parallel()

	m := newRecordingMetrics()
	c := newDeterministic(t, Options[string, int]{MaximumWeight: 10, Metrics: m})

	for i := 0; i < 5; i++ {
		c.Put("k"+strconv.Itoa(i), i)
	}
	c.CleanUp()

	if err := c.SetCapacity(context.Background(), -1); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("want ErrInvalidCapacity, got %v", err)
	}

	if err := c.SetCapacity(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if c.Maximum() != 2 {
		t.Fatalf("Maximum want 2, got %d", c.Maximum())
	}
	if c.Len() != 2 {
		t.Fatalf("Len after shrink want 2, got %d", c.Len())
	}

	m.mu.Lock()
	evicted := m.evicts[CauseSize]
	m.mu.Unlock()
	if evicted != 3 {
		t.Fatalf("want 3 size evictions, got %d", evicted)
	}

	// Growing never evicts.
	if err := c.SetCapacity(context.Background(), 100); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len after grow want 2, got %d", c.Len())
	}
}

// Hit/Miss metrics reflect Get outcomes; Size is refreshed by drains.
func TestCache_Metrics(t *testing.T) {
	t.Parallel()

	m := newRecordingMetrics()
	c := newDeterministic(t, Options[string, int]{MaximumWeight: 10, Metrics: m})

	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("nope")
	c.CleanUp()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hits != 2 || m.misses != 1 {
		t.Fatalf("want hits=2 misses=1, got hits=%d misses=%d", m.hits, m.misses)
	}
	if m.entries != 1 || m.weight != 1 {
		t.Fatalf("want size 1/1, got %d/%d", m.entries, m.weight)
	}
}

// Singleflight: concurrent GetOrLoad calls for the same key trigger the
// Loader at most once; subsequent calls are cache hits.
func TestCache_GetOrLoad_Singleflight(t *testing.T) {
	var calls int64

	c := New[string, string](Options[string, string]{
		MaximumWeight: 64,
		Loader: func(_ context.Context, k string) (string, error) {
			atomic.AddInt64(&calls, 1)
			time.Sleep(5 * time.Millisecond) // simulate I/O
			return "v:" + k, nil
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	const N = 64
	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < N; i++ {
		g.Go(func() error {
			v, err := c.GetOrLoad(ctx, "k")
			if err != nil {
				return err
			}
			if v != "v:k" {
				t.Errorf("want v:k, got %q", v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("Loader must run once, ran %d times", got)
	}

	// Now resident: no further loads.
	if v, err := c.GetOrLoad(ctx, "k"); err != nil || v != "v:k" {
		t.Fatalf("resident GetOrLoad: %q %v", v, err)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("resident GetOrLoad must not load, ran %d times", got)
	}
}

// GetOrLoad without a configured Loader fails fast.
func TestCache_GetOrLoad_NoLoader(t *testing.T) {
	t.Parallel()

	c := newDeterministic(t, Options[string, string]{MaximumWeight: 8})
	if _, err := c.GetOrLoad(context.Background(), "k"); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("want ErrNoLoader, got %v", err)
	}
}

// Loader errors are returned and nothing is cached.
func TestCache_GetOrLoad_Error(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c := newDeterministic(t, Options[string, string]{
		MaximumWeight: 8,
		Loader: func(context.Context, string) (string, error) {
			return "", boom
		},
	})

	if _, err := c.GetOrLoad(context.Background(), "k"); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("failed load must not cache")
	}
}

// Close makes subsequent operations inert.
func TestCache_Close(t *testing.T) {
	t.Parallel()

	c := newDeterministic(t, Options[string, int]{MaximumWeight: 8})
	c.Put("a", 1)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get("a"); ok {
		t.Fatal("Get after Close must miss")
	}
	if _, had := c.Put("b", 2); had {
		t.Fatal("Put after Close must be inert")
	}
}

// New must reject a non-positive maximum outright.
func TestNew_InvalidMaximumPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for MaximumWeight=0")
		}
	}()
	New[string, int](Options[string, int]{MaximumWeight: 0})
}

// A segmented-LRU cache keeps re-accessed entries resident through a scan
// that would flush a strict LRU.
func TestCache_SLRUPolicy_ScanResistance(t *testing.T) {
	t.Parallel()

	c := newDeterministic(t, Options[string, int]{
		MaximumWeight: 4,
		Policy:        slru.New[string, int](2),
	})

	c.Put("hot1", 1)
	c.Put("hot2", 2)
	c.Get("hot1") // promote to protected
	c.Get("hot2")
	c.CleanUp()

	// Scan: a burst of one-shot keys churns probation only.
	for i := 0; i < 32; i++ {
		c.Put("scan"+strconv.Itoa(i), i)
	}
	c.CleanUp()

	if _, ok := c.Get("hot1"); !ok {
		t.Fatal("hot1 must survive the scan")
	}
	if _, ok := c.Get("hot2"); !ok {
		t.Fatal("hot2 must survive the scan")
	}
}

// A maximum far above the saturation point is clamped, not overflowed.
func TestNew_MaximumClamped(t *testing.T) {
	t.Parallel()

	c := newDeterministic(t, Options[string, int]{MaximumWeight: 1<<63 - 1})
	if c.Maximum() != maximumCapacity {
		t.Fatalf("want clamped maximum %d, got %d", maximumCapacity, c.Maximum())
	}
}
