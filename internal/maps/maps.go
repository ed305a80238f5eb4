// Package maps provides generic concurrent maps for integer keys with
// swappable implementations. The profiler uses them for state shared between
// instrumented threads and the background aggregator: the memory tracker's
// address table and the thread registry.
package maps

// defaultImplementation selects the map returned by NewConcurrentMap.
// Valid options: "sharded", "xsync", "cornelk", "sync".
//
// The sharded map is the default because the allocation tracker's leak scan
// wants plain per-bucket mutual exclusion: a scan holds one shard lock at a
// time and never blocks writers to other shards.
const defaultImplementation = "sharded"

// Integer is a constraint that permits any integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// ConcurrentMap is a thread-safe map for integer keys. The abstraction lets
// the tracker code swap the underlying implementation without changes.
type ConcurrentMap[K Integer, V any] interface {
	Load(key K) (V, bool)
	Store(key K, value V)
	Delete(key K)
	LoadAndDelete(key K) (V, bool)
	// LoadOrStore returns the existing value when present (loaded=true);
	// otherwise it stores and returns the factory's value.
	LoadOrStore(key K, valueFactory func() V) (V, bool)
	// Update reads, modifies, and writes the value for a key under the
	// entry's lock. updateFunc returns the new value and whether to keep
	// (true) or delete (false) the entry.
	Update(key K, updateFunc func(value V, exists bool) (newValue V, keep bool))
	Range(f func(key K, value V) bool)
}

// NewConcurrentMap returns the default concurrent map implementation.
func NewConcurrentMap[K Integer, V any]() ConcurrentMap[K, V] {
	switch defaultImplementation {
	case "sharded":
		return NewShardedMap[K, V]()
	case "xsync":
		return NewXSyncMap[K, V]()
	case "cornelk":
		return NewCornelkMap[K, V]()
	case "sync":
		return NewStdSyncMap[K, V]()
	default:
		return NewShardedMap[K, V]()
	}
}
