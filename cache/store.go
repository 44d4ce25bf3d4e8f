package cache

import (
	"sync"

	"github.com/dolthub/maphash"

	"github.com/IvanBrykalov/boundedcache/internal/util"
)

// store is the backing associative map: sharded, each shard an independent
// mutex plus map[K]*entry. It is the single source of truth for "does this
// key currently have a value" and never takes the eviction lock.
//
// Invariant: the map only holds alive entries. Every operation that
// displaces an entry retires it inside the same critical section, so a key
// reads as absent the instant its removal returns, even though the entry
// stays linked in the access order until the next drain.
type store[K comparable, V any] struct {
	shards []*storeShard[K, V]
	hasher maphash.Hasher[K]
}

type storeShard[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*entry[K, V]
	_  util.CacheLinePad
}

func newStore[K comparable, V any](shardCount int) *store[K, V] {
	shardCount = int(util.NextPow2(uint64(shardCount)))
	shards := make([]*storeShard[K, V], shardCount)
	for i := range shards {
		shards[i] = &storeShard[K, V]{m: make(map[K]*entry[K, V])}
	}
	return &store[K, V]{
		shards: shards,
		hasher: maphash.NewHasher[K](),
	}
}

// hash exposes the key hash so the cache can reuse it for read-buffer
// stripe selection.
func (s *store[K, V]) hash(key K) uint64 { return s.hasher.Hash(key) }

func (s *store[K, V]) shardFor(key K) *storeShard[K, V] {
	return s.shards[util.StripeIndex(s.hasher.Hash(key), len(s.shards))]
}

// load returns the current entry for key, or nil. No side effects.
func (s *store[K, V]) load(key K) *entry[K, V] {
	sh := s.shardFor(key)
	sh.mu.Lock()
	e := sh.m[key]
	sh.mu.Unlock()
	return e
}

// put maps key to n, retiring any displaced entry with cause Replaced.
// Returns the displaced entry, or nil on a fresh insertion.
func (s *store[K, V]) put(key K, n *entry[K, V]) *entry[K, V] {
	sh := s.shardFor(key)
	sh.mu.Lock()
	old := sh.m[key]
	sh.m[key] = n
	if old != nil {
		old.retire(CauseReplaced)
	}
	sh.mu.Unlock()
	return old
}

// putIfAbsent maps key to n only if the key is unmapped. Returns the
// existing entry when the key was already present, nil when n was stored.
func (s *store[K, V]) putIfAbsent(key K, n *entry[K, V]) *entry[K, V] {
	sh := s.shardFor(key)
	sh.mu.Lock()
	if existing, ok := sh.m[key]; ok {
		sh.mu.Unlock()
		return existing
	}
	sh.m[key] = n
	sh.mu.Unlock()
	return nil
}

// replace maps key to n only if the key is already mapped, retiring the
// displaced entry. Returns the displaced entry, or nil if the key was
// absent (n is then discarded).
func (s *store[K, V]) replace(key K, n *entry[K, V]) *entry[K, V] {
	sh := s.shardFor(key)
	sh.mu.Lock()
	old, ok := sh.m[key]
	if !ok {
		sh.mu.Unlock()
		return nil
	}
	sh.m[key] = n
	old.retire(CauseReplaced)
	sh.mu.Unlock()
	return old
}

// replaceIf maps key to n only if the current value equals expected, using
// interface equality (the sync.Map CompareAndSwap contract: panics if the
// dynamic type of the values is not comparable).
func (s *store[K, V]) replaceIf(key K, expected V, n *entry[K, V]) *entry[K, V] {
	sh := s.shardFor(key)
	sh.mu.Lock()
	old, ok := sh.m[key]
	if !ok || any(old.value) != any(expected) {
		sh.mu.Unlock()
		return nil
	}
	sh.m[key] = n
	old.retire(CauseReplaced)
	sh.mu.Unlock()
	return old
}

// remove unmaps key, retiring the entry with cause Explicit. Returns the
// removed entry, or nil if the key was absent.
func (s *store[K, V]) remove(key K) *entry[K, V] {
	sh := s.shardFor(key)
	sh.mu.Lock()
	old, ok := sh.m[key]
	if !ok {
		sh.mu.Unlock()
		return nil
	}
	delete(sh.m, key)
	old.retire(CauseExplicit)
	sh.mu.Unlock()
	return old
}

// removeEntry unmaps key only if it still maps to expected. This is the
// eviction-side race check: when another goroutine already replaced or
// removed the mapping, the eviction becomes a no-op for the store.
func (s *store[K, V]) removeEntry(key K, expected *entry[K, V]) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	cur, ok := sh.m[key]
	if !ok || cur != expected {
		sh.mu.Unlock()
		return false
	}
	delete(sh.m, key)
	sh.mu.Unlock()
	return true
}

// len returns the number of mapped keys.
func (s *store[K, V]) len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.m)
		sh.mu.Unlock()
	}
	return total
}
