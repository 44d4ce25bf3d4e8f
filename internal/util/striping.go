package util

import "runtime"

// ReasonableShardCount picks a practical default shard count for the backing
// store based on CPU parallelism. Heuristic: nextPow2(2*GOMAXPROCS), clamped
// to [1..256]. This sharply reduces lock contention without bloating memory
// overhead.
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 2)))
	if n < 1 {
		n = 1
	}
	if n > 256 {
		n = 256
	}
	return n
}

// ReasonableStripeCount picks a default number of read-buffer stripes.
// More stripes than shards: every read records an event, so the buffers see
// strictly more traffic than any one store shard. nextPow2(4*GOMAXPROCS),
// clamped to [1..128].
func ReasonableStripeCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 4)))
	if n < 1 {
		n = 1
	}
	if n > 128 {
		n = 128
	}
	return n
}

// StripeIndex maps a 64-bit hash to a stripe (or shard) index.
// Assumes the count is a power of two for the fast mask path, but remains
// correct for arbitrary counts (uses modulo).
func StripeIndex(hash uint64, count int) int {
	if count <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(count)) {
		return int(hash & uint64(count-1))
	}
	return int(hash % uint64(count))
}
