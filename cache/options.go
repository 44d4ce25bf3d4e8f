package cache

import (
	"context"

	"github.com/IvanBrykalov/boundedcache/policy"
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	// Evict is invoked once per policy-driven eviction (cause Size).
	// Explicit removals and replacements reach the RemovalListener only.
	Evict(cause RemovalCause)
	// Size receives the resident entry count and total weight after each
	// completed maintenance cycle.
	Size(entries int, weight int64)
}

// Options configures the cache. Zero values are safe except MaximumWeight;
// sane defaults are applied in New():
//   - nil Weigher  => every entry weighs 1 (MaximumWeight bounds the count)
//   - nil Policy   => strict LRU
//   - nil Metrics  => NoopMetrics
//   - nil Executor => spawn a goroutine
//   - Shards/ReadStripes <= 0 => auto (rounded up to a power of two)
type Options[K comparable, V any] struct {
	// MaximumWeight is the total weight limit. Must be > 0; values above the
	// internal saturation point are clamped. With the default Weigher this
	// is simply the maximum entry count.
	MaximumWeight int64

	// Weigher maps an entry to its weight, called once per insertion.
	// Negative results are treated as 0.
	Weigher func(key K, value V) int

	// Policy is the pluggable eviction ordering (LRU/SLRU/...).
	Policy policy.Policy[K, V]

	// Shards is the backing store shard count. 0 = auto.
	Shards int

	// ReadStripes is the read-buffer stripe count. 0 = auto.
	ReadStripes int

	// OnRemoval is invoked exactly once per removed entry, outside the
	// eviction lock. Keep callbacks lightweight.
	OnRemoval func(key K, value V, cause RemovalCause)

	// Loader fetches a value on cache miss. Used by GetOrLoad.
	Loader func(ctx context.Context, key K) (V, error)

	// Executor runs deferred maintenance when the eviction lock is
	// contended. nil => go fn(). Tests may pass a synchronous executor for
	// determinism.
	Executor func(fn func())

	// Metrics receives Hit/Miss/Evict/Size signals.
	Metrics Metrics
}
