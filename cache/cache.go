package cache

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"github.com/IvanBrykalov/boundedcache/internal/buffer"
	"github.com/IvanBrykalov/boundedcache/internal/singleflight"
	"github.com/IvanBrykalov/boundedcache/internal/util"
	"github.com/IvanBrykalov/boundedcache/policy"
	"github.com/IvanBrykalov/boundedcache/policy/lru"
)

// ErrNoLoader is returned by GetOrLoad when no Loader was configured in Options.
var ErrNoLoader = errors.New("cache: no Loader provided")

// ErrInvalidCapacity is returned by SetCapacity for negative maximums.
var ErrInvalidCapacity = errors.New("cache: negative capacity")

// maximumCapacity is the saturation point for the maximum and the weighted
// size. Arithmetic on the weighted size clamps here instead of overflowing
// when the configured maximum is effectively unbounded.
const maximumCapacity = int64(math.MaxInt64) - int64(math.MaxInt32)

// removalEvent is a deferred removal notification, collected under the
// eviction lock and delivered after it is released.
type removalEvent[K comparable, V any] struct {
	key   K
	value V
	cause RemovalCause
}

// cache bounds a sharded hash table by total entry weight, using buffered
// read/write events and a single-writer drain to keep a global eviction
// order without a shared lock on the hot path.
type cache[K comparable, V any] struct {
	drainStatus atomic.Uint32
	_           [util.CacheLineSize - 4]byte

	store       *store[K, V]
	readBuffers *buffer.Striped[entry[K, V]]
	writeQueue  writeQueue[K, V]
	lock        *evictionLock

	// deque, pol, weightedSize and pendingRemovals are guarded by lock.
	deque           accessOrder[K, V]
	pol             policy.OrderPolicy[K, V]
	weightedSize    int64
	pendingRemovals []removalEvent[K, V]

	maximum atomic.Int64

	// stripeOf selects the read-buffer stripe for a key; it shares the
	// store's hasher and is overridable for deterministic tests.
	stripeOf func(K) uint64

	weigher   func(K, V) int
	onRemoval func(K, V, RemovalCause)
	metrics   Metrics
	executor  func(func())
	loader    func(context.Context, K) (V, error)

	sf     singleflight.Group[K, V]
	closed atomic.Bool
}

// New constructs a cache with the provided Options. Panics if
// MaximumWeight <= 0.
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.MaximumWeight <= 0 {
		panic("MaximumWeight must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = lru.New[K, V]()
	}
	if opt.Weigher == nil {
		opt.Weigher = func(K, V) int { return 1 }
	}
	if opt.Executor == nil {
		opt.Executor = func(fn func()) { go fn() }
	}
	shards := opt.Shards
	if shards <= 0 {
		shards = util.ReasonableShardCount()
	}
	stripes := opt.ReadStripes
	if stripes <= 0 {
		stripes = util.ReasonableStripeCount()
	}

	c := &cache[K, V]{
		store:       newStore[K, V](shards),
		readBuffers: buffer.NewStriped[entry[K, V]](stripes),
		lock:        newEvictionLock(),
		weigher:     opt.Weigher,
		onRemoval:   opt.OnRemoval,
		metrics:     opt.Metrics,
		executor:    opt.Executor,
		loader:      opt.Loader,
	}
	c.stripeOf = func(key K) uint64 { return c.store.hash(key) }
	c.pol = opt.Policy.New(orderHooks[K, V]{c: c})
	maximum := opt.MaximumWeight
	if maximum > maximumCapacity {
		maximum = maximumCapacity
	}
	c.maximum.Store(maximum)
	return c
}

// ---- Cache[K,V] implementation ----

// Get returns the value for key and records a buffered read event. The read
// path never touches the eviction lock; at most it requests an asynchronous
// drain when the stripe's pending events cross the threshold.
func (c *cache[K, V]) Get(key K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	e := c.store.load(key)
	if e == nil || !e.isAlive() {
		c.metrics.Miss()
		if c.drainStatus.Load() == drainRequired {
			c.scheduleDrain()
		}
		var zero V
		return zero, false
	}
	c.metrics.Hit()
	c.afterRead(e, c.stripeOf(key))
	return e.value, true
}

// GetQuietly returns the value for key without recording a read event or
// requesting maintenance.
func (c *cache[K, V]) GetQuietly(key K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	e := c.store.load(key)
	if e == nil || !e.isAlive() {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put associates key with value and returns the displaced value, if any.
func (c *cache[K, V]) Put(key K, value V) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	n := newEntry(key, value, c.weigh(key, value))
	old := c.store.put(key, n)
	if old != nil {
		c.afterWrite(writeTask[K, V]{kind: taskUpdate, n: n, old: old})
		return old.value, true
	}
	c.afterWrite(writeTask[K, V]{kind: taskAdd, n: n})
	return zero, false
}

// PutIfAbsent inserts key only if absent. A hit on the existing entry
// counts as an access.
func (c *cache[K, V]) PutIfAbsent(key K, value V) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	n := newEntry(key, value, c.weigh(key, value))
	if existing := c.store.putIfAbsent(key, n); existing != nil {
		c.afterRead(existing, c.stripeOf(key))
		return existing.value, false
	}
	c.afterWrite(writeTask[K, V]{kind: taskAdd, n: n})
	return value, true
}

// Replace associates key with value only if the key is present.
func (c *cache[K, V]) Replace(key K, value V) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	n := newEntry(key, value, c.weigh(key, value))
	old := c.store.replace(key, n)
	if old == nil {
		return zero, false
	}
	c.afterWrite(writeTask[K, V]{kind: taskUpdate, n: n, old: old})
	return old.value, true
}

// ReplaceIf associates key with value only if the current value equals
// expected.
func (c *cache[K, V]) ReplaceIf(key K, expected, value V) bool {
	if c.closed.Load() {
		return false
	}
	n := newEntry(key, value, c.weigh(key, value))
	old := c.store.replaceIf(key, expected, n)
	if old == nil {
		return false
	}
	c.afterWrite(writeTask[K, V]{kind: taskUpdate, n: n, old: old})
	return true
}

// Remove deletes key and returns the removed value, if any. The key reads
// as absent the moment Remove returns; physical unlinking is deferred to
// the next drain.
func (c *cache[K, V]) Remove(key K) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}
	old := c.store.remove(key)
	if old == nil {
		return zero, false
	}
	c.afterWrite(writeTask[K, V]{kind: taskDelete, n: old})
	return old.value, true
}

// GetOrLoad returns the value for key, loading it via Options.Loader on
// miss and coalescing concurrent loads for the same key.
func (c *cache[K, V]) GetOrLoad(ctx context.Context, key K) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	if c.loader == nil {
		var zero V
		return zero, ErrNoLoader
	}
	return c.sf.Do(ctx, key, func() (V, error) {
		// Double-check after flight join.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := c.loader(ctx, key)
		if err == nil {
			c.Put(key, v)
		}
		return v, err
	})
}

// Clear empties the store and the eviction order under exclusive access,
// firing one removal notification per entry with cause CauseExplicit.
func (c *cache[K, V]) Clear(ctx context.Context) error {
	if err := c.lock.Lock(ctx); err != nil {
		return err
	}
	// Settle pending structural mutations so every resident entry is linked.
	c.runWriteTasks()
	for {
		e := c.deque.first()
		if e == nil {
			break
		}
		e.retire(CauseExplicit)
		c.store.removeEntry(e.key, e)
		c.makeDead(e)
	}
	c.readBuffers.Discard()
	c.metrics.Size(c.store.len(), c.weightedSize)
	events := c.takeRemovals()
	c.lock.Unlock()
	c.notify(events)
	return nil
}

// SetCapacity updates the maximum total weight, evicting eagerly if the
// cache now exceeds it.
func (c *cache[K, V]) SetCapacity(ctx context.Context, maximum int64) error {
	if maximum < 0 {
		return ErrInvalidCapacity
	}
	if maximum > maximumCapacity {
		maximum = maximumCapacity
	}
	if err := c.lock.Lock(ctx); err != nil {
		return err
	}
	c.maximum.Store(maximum)
	events := c.maintenance()
	c.lock.Unlock()
	c.notify(events)
	c.rescheduleDrain()
	return nil
}

// Coldest returns up to limit entries in eviction order, least recently
// used first, after a full drain.
func (c *cache[K, V]) Coldest(ctx context.Context, limit int) ([]Entry[K, V], error) {
	if limit < 0 {
		limit = 0
	}
	if err := c.lock.Lock(ctx); err != nil {
		return nil, err
	}
	events := c.maintenance()
	out := make([]Entry[K, V], 0, min(limit, c.deque.len()))
	for e := c.deque.first(); e != nil && len(out) < limit; e = e.next {
		out = append(out, Entry[K, V]{Key: e.key, Value: e.value, Weight: e.weight})
	}
	c.lock.Unlock()
	c.notify(events)
	c.rescheduleDrain()
	return out, nil
}

// CleanUp drains all buffered events and evicts while over capacity,
// blocking until done.
func (c *cache[K, V]) CleanUp() {
	_ = c.drainBlocking(context.Background())
}

// Len returns the number of resident entries.
func (c *cache[K, V]) Len() int { return c.store.len() }

// WeightedSize returns the combined weight of resident entries from a
// drained view.
func (c *cache[K, V]) WeightedSize() int64 {
	_ = c.lock.Lock(context.Background())
	events := c.maintenance()
	size := c.weightedSize
	c.lock.Unlock()
	c.notify(events)
	c.rescheduleDrain()
	return size
}

// Maximum returns the current maximum total weight.
func (c *cache[K, V]) Maximum() int64 { return c.maximum.Load() }

// Close marks the cache as closed. Future operations are ignored.
func (c *cache[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

// weigh computes the entry weight, clamping negatives to zero.
func (c *cache[K, V]) weigh(key K, value V) int64 {
	w := c.weigher(key, value)
	if w < 0 {
		w = 0
	}
	return int64(w)
}

// notify delivers removal notifications outside the eviction lock, exactly
// once per dead entry.
func (c *cache[K, V]) notify(events []removalEvent[K, V]) {
	if c.onRemoval == nil || len(events) == 0 {
		return
	}
	for _, ev := range events {
		c.onRemoval(ev.key, ev.value, ev.cause)
	}
}

// orderHooks adapts the cache's deque to policy.Hooks. All calls happen
// under the eviction lock.
type orderHooks[K comparable, V any] struct{ c *cache[K, V] }

func (h orderHooks[K, V]) PushBack(n policy.Node[K, V]) {
	h.c.deque.pushBack(n.(*entry[K, V]))
}

func (h orderHooks[K, V]) MoveToBack(n policy.Node[K, V]) {
	h.c.deque.moveToBack(n.(*entry[K, V]))
}

func (h orderHooks[K, V]) Head() policy.Node[K, V] {
	if e := h.c.deque.first(); e != nil {
		return e
	}
	return nil
}

func (h orderHooks[K, V]) Len() int { return h.c.deque.len() }
