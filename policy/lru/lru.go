// Package lru implements the default strict-recency eviction policy.
package lru

import "github.com/IvanBrykalov/boundedcache/policy"

// lru is a textbook move-to-hot-end Least-Recently-Used policy. It delegates
// all ordering to the policy.Hooks provided by the cache: new and touched
// entries go to the tail, victims come from the head.
type lru[K comparable, V any] struct {
	h policy.Hooks[K, V]
}

type lruPolicy[K comparable, V any] struct{}

// New returns a Policy factory that constructs per-cache LRU instances.
func New[K comparable, V any]() policy.Policy[K, V] { return lruPolicy[K, V]{} }

// New implements policy.Policy by binding cache hooks.
func (lruPolicy[K, V]) New(h policy.Hooks[K, V]) policy.OrderPolicy[K, V] {
	return &lru[K, V]{h: h}
}

// OnAdd links the new entry at the hot end.
func (p *lru[K, V]) OnAdd(n policy.Node[K, V]) { p.h.PushBack(n) }

// OnAccess promotes the entry to the hot end.
func (p *lru[K, V]) OnAccess(n policy.Node[K, V]) { p.h.MoveToBack(n) }

// OnRemove is a no-op for pure LRU (no policy-internal state).
func (p *lru[K, V]) OnRemove(policy.Node[K, V]) {}

// Victim proposes the coldest linked entry.
func (p *lru[K, V]) Victim() policy.Node[K, V] { return p.h.Head() }
