package profiler

import (
	"sort"
	"sync/atomic"

	"frameprof/internal/maps"
)

// memoryRecord is one live tracked allocation.
type memoryRecord struct {
	Address   uint64
	Size      uint64
	Timestamp uint64
	ThreadID  uint32
	File      string
	Line      int
	Frame     uint64
}

// Leak describes an allocation that has outlived the leak age threshold
// without a matching free. Leaks are reported, never reclaimed: a long-lived
// allocation may be intentional.
type Leak struct {
	Address   uint64
	Size      uint64
	File      string
	Line      int
	Frame     uint64
	AgeFrames uint64
	ThreadID  uint32
}

// MemoryTracker indexes live allocations by address in a sharded concurrent
// map, so alloc/free on different addresses never contend on one lock, and
// keeps running usage totals updated atomically.
type MemoryTracker struct {
	records maps.ConcurrentMap[uint64, memoryRecord]

	currentBytes atomic.Int64
	peakBytes    atomic.Int64
	totalBytes   atomic.Uint64
	totalAllocs  atomic.Uint64

	leakThreshold uint64
}

func newMemoryTracker(leakThresholdFrames uint64) *MemoryTracker {
	return &MemoryTracker{
		records:       maps.NewConcurrentMap[uint64, memoryRecord](),
		leakThreshold: leakThresholdFrames,
	}
}

// track registers a live allocation and updates the usage counters.
func (m *MemoryTracker) track(rec memoryRecord) {
	m.records.Store(rec.Address, rec)

	cur := m.currentBytes.Add(int64(rec.Size))
	for {
		peak := m.peakBytes.Load()
		if cur <= peak || m.peakBytes.CompareAndSwap(peak, cur) {
			break
		}
	}
	m.totalBytes.Add(rec.Size)
	m.totalAllocs.Add(1)
}

// untrack removes a live allocation. A free without a matching tracked
// allocation is ignored: the allocation may predate tracking.
func (m *MemoryTracker) untrack(address uint64) (memoryRecord, bool) {
	rec, ok := m.records.LoadAndDelete(address)
	if !ok {
		return memoryRecord{}, false
	}
	m.currentBytes.Add(-int64(rec.Size))
	return rec, true
}

// detectLeaks reports every live allocation older than the threshold
// relative to currentFrame, sorted by address for stable output.
func (m *MemoryTracker) detectLeaks(currentFrame uint64) []Leak {
	var leaks []Leak
	m.records.Range(func(_ uint64, rec memoryRecord) bool {
		if currentFrame-rec.Frame > m.leakThreshold {
			leaks = append(leaks, Leak{
				Address:   rec.Address,
				Size:      rec.Size,
				File:      rec.File,
				Line:      rec.Line,
				Frame:     rec.Frame,
				AgeFrames: currentFrame - rec.Frame,
				ThreadID:  rec.ThreadID,
			})
		}
		return true
	})
	sort.Slice(leaks, func(i, j int) bool { return leaks[i].Address < leaks[j].Address })
	return leaks
}

// CurrentBytes returns the total size of live tracked allocations.
func (m *MemoryTracker) CurrentBytes() uint64 {
	cur := m.currentBytes.Load()
	if cur < 0 {
		return 0
	}
	return uint64(cur)
}

// PeakBytes returns the high-water mark of live tracked allocations.
func (m *MemoryTracker) PeakBytes() uint64 {
	peak := m.peakBytes.Load()
	if peak < 0 {
		return 0
	}
	return uint64(peak)
}

// TotalAllocations returns the number of allocations tracked this session.
func (m *MemoryTracker) TotalAllocations() uint64 {
	return m.totalAllocs.Load()
}
