package counter

import "hash/fnv"

// ShardCount is the fixed number of lock shards in the in-memory store.
// Sharding by key hash removes cross-key contention without a global lock.
const ShardCount = 256

// ShardFor returns the shard index for a given counter key.
// Stable and deterministic: the same key always maps to the same shard.
// Uses FNV-32a (stdlib, fast, well-distributed).
func ShardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32()) % ShardCount
}
