package cache

import "context"

// RemovalCause explains why an entry was removed from the cache.
type RemovalCause int

const (
	// CauseExplicit — removed by Remove, ReplaceIf-miss cleanup or Clear.
	CauseExplicit RemovalCause = iota
	// CauseReplaced — displaced by a Put/Replace over the same key.
	CauseReplaced
	// CauseCollected — reclaimed by the runtime. Reserved for reference-based
	// collaborators; the core never produces it.
	CauseCollected
	// CauseSize — evicted to satisfy the maximum weight.
	CauseSize
	// CauseExpired — removed by an expiration collaborator. Reserved; the
	// core never produces it.
	CauseExpired
)

// String returns a stable label for the cause.
func (c RemovalCause) String() string {
	switch c {
	case CauseExplicit:
		return "explicit"
	case CauseReplaced:
		return "replaced"
	case CauseCollected:
		return "collected"
	case CauseSize:
		return "size"
	case CauseExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Evicted reports whether the removal was not requested by the caller.
func (c RemovalCause) Evicted() bool {
	return c == CauseCollected || c == CauseSize || c == CauseExpired
}

// Entry is a point-in-time snapshot of a cached entry, as returned by
// Coldest.
type Entry[K comparable, V any] struct {
	Key    K
	Value  V
	Weight int64
}

// Cache is a concurrent, weight-bounded key/value cache with a pluggable
// eviction policy. All methods are safe for concurrent use by multiple
// goroutines.
//
// Reads never block on the eviction lock: a Get is a store lookup plus a
// buffered recency event. Writes mutate the store, enqueue a deferred
// ordering task and opportunistically drain. Only the operations taking a
// context (and CleanUp) wait for the eviction lock.
type Cache[K comparable, V any] interface {
	// Get returns the value for key and a presence flag, recording a read
	// event against the eviction policy.
	Get(key K) (V, bool)

	// GetQuietly returns the value for key without recording a read event
	// or triggering maintenance. Intended for diagnostics.
	GetQuietly(key K) (V, bool)

	// Put associates key with value, returning the previous value if the
	// key was present.
	Put(key K, value V) (V, bool)

	// PutIfAbsent associates key with value only if the key is absent.
	// Returns the existing value and false when the key was present, or
	// value and true when it was inserted.
	PutIfAbsent(key K, value V) (V, bool)

	// Replace associates key with value only if the key is present.
	// Returns the previous value if the replacement happened.
	Replace(key K, value V) (V, bool)

	// ReplaceIf associates key with value only if the current value equals
	// expected. Equality follows the sync.Map CompareAndSwap contract:
	// interface comparison, panicking if the values' dynamic type is not
	// comparable.
	ReplaceIf(key K, expected, value V) bool

	// Remove deletes key, returning the removed value if it was present.
	Remove(key K) (V, bool)

	// GetOrLoad returns the value for key, loading it via Options.Loader on
	// miss; concurrent loads for the same key are coalesced. Returns
	// ErrNoLoader if no Loader was configured.
	GetOrLoad(ctx context.Context, key K) (V, error)

	// Clear removes every entry, firing a removal notification with cause
	// CauseExplicit for each. It waits for exclusive access; ctx bounds the
	// wait.
	Clear(ctx context.Context) error

	// SetCapacity changes the maximum total weight and eagerly evicts until
	// the cache fits. It waits for exclusive access; ctx bounds the wait.
	// Returns ErrInvalidCapacity for negative maximums.
	SetCapacity(ctx context.Context, maximum int64) error

	// Coldest returns up to limit entries in eviction order, least recently
	// used first, from a fully drained view. It waits for exclusive access;
	// ctx bounds the wait.
	Coldest(ctx context.Context, limit int) ([]Entry[K, V], error)

	// CleanUp performs all pending maintenance: replays buffered events and
	// evicts while over capacity. Blocks until the drain completes.
	CleanUp()

	// Len returns the number of resident entries.
	Len() int

	// WeightedSize returns the combined weight of resident entries from a
	// fully drained view.
	WeightedSize() int64

	// Maximum returns the current maximum total weight.
	Maximum() int64

	// Close marks the cache as closed. Future operations are ignored.
	Close() error
}
