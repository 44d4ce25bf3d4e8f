// Package cache provides a concurrent, weight-bounded in-memory cache with
// amortized maintenance: reads and writes stay lock-free with respect to the
// eviction policy, and the policy state is caught up in batches by a single
// drainer.
//
// Design
//
//   - Storage: a sharded hash table (map[K]*entry per shard, each under its
//     own mutex) answers lookups. Shard count is a power of two chosen by a
//     heuristic (ReasonableShardCount). The table only ever holds live
//     entries; an entry removed from the table is retired before the shard
//     lock is released, so no reader can observe a removed entry as present.
//
//   - Recency: instead of updating an LRU list on every access, each Get
//     appends the touched entry to one of several striped ring buffers.
//     Buffers are lossy: when a stripe is full the event is dropped, never
//     blocking the reader. Writes enqueue small tasks on an unbounded FIFO
//     queue, which is never lossy.
//
//   - Drain: a tri-state status (idle/required/processing) plus a try-lock
//     elect a single goroutine to replay buffered events into the policy's
//     intrusive deque and evict while over the maximum weight. Reads request
//     a drain only when a stripe accumulates enough pending events; writes
//     request one always. When the lock is contended the drain is handed to
//     Options.Executor instead of blocking the caller.
//
//   - Lifecycle: every entry moves alive -> retired -> dead, monotonically.
//     Retired entries are out of the table but may still be linked in the
//     deque until their write task drains; dead entries are fully
//     disconnected and their weight settled.
//
//   - Policies: ordering is pluggable via the policy package. Strict LRU is
//     the default; a segmented LRU (policy/slru) resists scan pollution.
//
//   - Weighing: Options.Weigher assigns a weight per entry at insertion.
//     With the default weigher every entry weighs 1 and MaximumWeight is an
//     entry count.
//
//   - Notifications: Options.OnRemoval fires exactly once per removed entry,
//     after the eviction lock is released, with the cause recorded at the
//     moment the entry was retired (explicit, replaced, size).
//
//   - GetOrLoad: coalesces concurrent loads for the same key using
//     singleflight. If Loader is nil, GetOrLoad returns ErrNoLoader.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     NoopMetrics is the default; plug the Prometheus adapter to export them.
//
// Basic usage
//
//	// Bound by entry count: default weigher gives every entry weight 1.
//	c := cache.New[string, []byte](cache.Options[string, []byte]{MaximumWeight: 10_000})
//	c.Put("a", []byte("1"))
//	if v, ok := c.Get("a"); ok {
//	    _ = v // use value
//	}
//	c.Remove("a")
//
// Bounding by memory
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{
//	    MaximumWeight: 64 << 20,
//	    Weigher:       func(k string, v []byte) int { return len(k) + len(v) },
//	})
//
// With GetOrLoad (singleflight)
//
//	c := cache.New[string, string](cache.Options[string, string]{
//	    MaximumWeight: 1024,
//	    Loader: func(ctx context.Context, k string) (string, error) {
//	        // e.g. fetch from DB
//	        return "v:" + k, nil
//	    },
//	})
//	v, err := c.GetOrLoad(context.Background(), "key")
//
// Using an alternative policy (segmented LRU)
//
//	c := cache.New[string, string](cache.Options[string, string]{
//	    MaximumWeight: 50_000,
//	    Policy:        slru.New[string, string](40_000 /* protected */),
//	})
//
// Exporting metrics (Prometheus adapter)
//
//	m := prom.New(nil, "myapp", "cache", nil) // implements Metrics
//	c := cache.New[string, []byte](cache.Options[string, []byte]{
//	    MaximumWeight: 10_000,
//	    Metrics:       m,
//	})
//
// Consistency
//
// All methods are safe for concurrent use. Reads are linearizable against
// the table: a key reads as present exactly while its entry is live. The
// eviction order and the weighted size are weakly consistent — they lag the
// table by whatever events are still buffered. CleanUp, Coldest,
// WeightedSize and SetCapacity force a full drain first.
package cache
