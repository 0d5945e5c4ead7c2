package graph

import (
	"hash/maphash"
	"sync"
)

// ShardedMap is a key->value mapping partitioned into a fixed number of
// independent buckets, each behind its own mutex, so unrelated keys contend
// independently. Bucket count is fixed at construction and should be a
// power of two (see internal/config.Config.ShardCount); no cross-bucket
// operation is exposed, mirroring the teacher cache's per-shard index map
// protected by a single sync.RWMutex.
type ShardedMap[K comparable, V any] struct {
	buckets []shardBucket[K, V]
	mask    uint64
	seed    maphash.Seed
	hashFn  func(maphash.Seed, K) uint64
}

type shardBucket[K comparable, V any] struct {
	mu   sync.Mutex
	data map[K]V
}

// NewShardedMap constructs a ShardedMap with n buckets (rounded up to the
// next power of two, minimum 1) using hashFn to place keys.
func NewShardedMap[K comparable, V any](n int, hashFn func(maphash.Seed, K) uint64) *ShardedMap[K, V] {
	if n <= 0 {
		n = 1
	}
	size := 1
	for size < n {
		size <<= 1
	}
	m := &ShardedMap[K, V]{
		buckets: make([]shardBucket[K, V], size),
		mask:    uint64(size - 1),
		seed:    maphash.MakeSeed(),
		hashFn:  hashFn,
	}
	for i := range m.buckets {
		m.buckets[i].data = make(map[K]V)
	}
	return m
}

func (m *ShardedMap[K, V]) bucketFor(key K) *shardBucket[K, V] {
	h := m.hashFn(m.seed, key)
	return &m.buckets[h&m.mask]
}

// Get returns the value stored under key, if any.
func (m *ShardedMap[K, V]) Get(key K) (V, bool) {
	b := m.bucketFor(key)
	b.mu.Lock()
	v, ok := b.data[key]
	b.mu.Unlock()
	return v, ok
}

// Set stores value under key, overwriting any previous value.
func (m *ShardedMap[K, V]) Set(key K, value V) {
	b := m.bucketFor(key)
	b.mu.Lock()
	b.data[key] = value
	b.mu.Unlock()
}

// GetOrCreate returns the existing value for key, or stores and returns the
// value produced by create if key was absent. create is invoked at most
// once, under the bucket lock.
func (m *ShardedMap[K, V]) GetOrCreate(key K, create func() V) V {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.data[key]; ok {
		return v
	}
	v := create()
	b.data[key] = v
	return v
}

// Delete removes key, if present.
func (m *ShardedMap[K, V]) Delete(key K) {
	b := m.bucketFor(key)
	b.mu.Lock()
	delete(b.data, key)
	b.mu.Unlock()
}

// Len returns the total number of entries across all buckets. It is
// approximate in the presence of concurrent writers, same caveat as the
// teacher shard's len().
func (m *ShardedMap[K, V]) Len() int {
	total := 0
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		total += len(b.data)
		b.mu.Unlock()
	}
	return total
}

// Range calls fn for a snapshot copy of every (key, value) pair. fn is never
// called while a bucket lock is held, so it may safely call back into the
// map. Iteration order is bucket order, which is not the insertion order.
func (m *ShardedMap[K, V]) Range(fn func(K, V) bool) {
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		items := make([]struct {
			k K
			v V
		}, 0, len(b.data))
		for k, v := range b.data {
			items = append(items, struct {
				k K
				v V
			}{k, v})
		}
		b.mu.Unlock()
		for _, it := range items {
			if !fn(it.k, it.v) {
				return
			}
		}
	}
}

// hashUint64 is the default hashFn for dense numeric keys (VirtualRegionId,
// EdgeKey): the spec notes a segmented flat array indexed by virtual_id % N
// is an acceptable substitute for the general hash-modulo-N scheme when keys
// are dense; we keep the general ShardedMap but give it a cheap multiplicative
// hash for integer-like keys instead of hashing through maphash.
func hashUint64(_ maphash.Seed, k uint64) uint64 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return k
}

func hashVirtualRegion(s maphash.Seed, k VirtualRegionId) uint64 {
	return hashUint64(s, uint64(k))
}

func hashEdgeKey(s maphash.Seed, k EdgeKey) uint64 {
	return hashUint64(s, uint64(k.A)*31+uint64(k.B))
}
