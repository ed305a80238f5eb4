package maps

import (
	"sync"
)

// numShards must be a power of 2 so shard selection is a single mask.
// 64 shards keeps contention negligible for the tracker's workloads.
const numShards = 64

// shard is one partition of the map, protected by its own lock.
type shard[K Integer, V any] struct {
	sync.RWMutex
	m map[K]V
}

// ShardedMap is a concurrent map partitioned into independently locked
// shards. Writers to different shards never contend, and a Range visits one
// shard at a time, which is exactly the per-bucket exclusion the memory
// tracker's leak scan relies on.
type ShardedMap[K Integer, V any] struct {
	shards [numShards]shard[K, V]
}

// NewShardedMap creates and initializes a new ShardedMap.
func NewShardedMap[K Integer, V any]() ConcurrentMap[K, V] {
	m := &ShardedMap[K, V]{}
	for i := 0; i < numShards; i++ {
		m.shards[i].m = make(map[K]V)
	}
	return m
}

func (m *ShardedMap[K, V]) getShard(key K) *shard[K, V] {
	// K is constrained to Integer, so the conversion is free.
	return &m.shards[uint64(key)&(numShards-1)]
}

// Load returns the value for a given key.
func (m *ShardedMap[K, V]) Load(key K) (V, bool) {
	s := m.getShard(key)
	s.RLock()
	defer s.RUnlock()
	val, exists := s.m[key]
	return val, exists
}

// Store sets the value for a given key.
func (m *ShardedMap[K, V]) Store(key K, value V) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	s.m[key] = value
}

// Delete removes a key from the map.
func (m *ShardedMap[K, V]) Delete(key K) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	delete(s.m, key)
}

// LoadAndDelete deletes a key and returns the value it was associated with.
func (m *ShardedMap[K, V]) LoadAndDelete(key K) (V, bool) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	val, exists := s.m[key]
	if exists {
		delete(s.m, key)
	}
	return val, exists
}

// LoadOrStore returns the existing value for the key if present. Otherwise it
// calls valueFactory, stores the result, and returns it with loaded=false.
func (m *ShardedMap[K, V]) LoadOrStore(key K, valueFactory func() V) (V, bool) {
	s := m.getShard(key)
	s.RLock()
	val, exists := s.m[key]
	s.RUnlock()

	if exists {
		return val, true
	}

	s.Lock()
	defer s.Unlock()
	// Double-check in case another goroutine created it while we waited.
	if val, exists := s.m[key]; exists {
		return val, true
	}

	val = valueFactory()
	s.m[key] = val
	return val, false
}

// Update reads, modifies, and writes a value for a key under the shard lock.
func (m *ShardedMap[K, V]) Update(key K, updateFunc func(value V, exists bool) (newValue V, keep bool)) {
	s := m.getShard(key)
	s.Lock()
	defer s.Unlock()
	oldVal, exists := s.m[key]
	newVal, keep := updateFunc(oldVal, exists)
	if keep {
		s.m[key] = newVal
	} else if exists {
		delete(s.m, key)
	}
}

// Range iterates over all items. Iteration stops if f returns false. Each
// shard is copied under its read lock and visited lock-free, so f may call
// back into the map without deadlocking.
func (m *ShardedMap[K, V]) Range(f func(key K, value V) bool) {
	for i := 0; i < numShards; i++ {
		s := &m.shards[i]
		s.RLock()
		keys := make([]K, 0, len(s.m))
		values := make([]V, 0, len(s.m))
		for k, v := range s.m {
			keys = append(keys, k)
			values = append(values, v)
		}
		s.RUnlock()

		for j := range keys {
			if !f(keys[j], values[j]) {
				return
			}
		}
	}
}
