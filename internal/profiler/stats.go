package profiler

import (
	"math"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// numTimerSlots is the fixed size of the statistics table. Slots are never
// freed; instrumentation names are a small fixed vocabulary, and hash
// collisions degrade to a shared slot rather than failing.
const numTimerSlots = 4096

// statSlot holds the aggregate counters for one timer name. The hot fields
// are updated with atomic operations only; the derived millisecond fields are
// written by the background aggregator and stored as float bits so readers on
// other goroutines never see a torn value.
//
// Min/max use a load-compare-store sequence rather than a CAS loop: two
// threads racing on the same slot can lose one extreme-tail update. That is a
// deliberate accuracy/overhead trade-off, not a bug to fix.
type statSlot struct {
	name atomic.Pointer[string]

	totalCycles atomic.Uint64
	callCount   atomic.Uint64
	minCycles   atomic.Uint64
	maxCycles   atomic.Uint64

	// Aggregator-derived, math.Float64bits encoded.
	averageMS atomic.Uint64
	minMS     atomic.Uint64
	maxMS     atomic.Uint64
}

// TimerStats is a point-in-time copy of one slot's counters, as returned by
// the query API.
type TimerStats struct {
	Name        string
	TotalCycles uint64
	CallCount   uint64
	MinCycles   uint64
	MaxCycles   uint64
	AverageMS   float64
	MinMS       float64
	MaxMS       float64
}

// statsTable is the fixed-size hash table of timer statistics, keyed by
// xxhash of the timer name.
type statsTable struct {
	slots [numTimerSlots]statSlot
}

func newStatsTable() *statsTable {
	return &statsTable{}
}

func (s *statsTable) slotFor(name string) *statSlot {
	return &s.slots[xxhash.Sum64String(name)%numTimerSlots]
}

// Record folds one elapsed sample into the table. Safe from any goroutine;
// this is the hot path fed by every PopTimer.
func (s *statsTable) Record(name string, elapsedCycles uint64) {
	slot := s.slotFor(name)

	if slot.name.Load() == nil {
		n := name
		if slot.name.CompareAndSwap(nil, &n) {
			// First claimant seeds min so the first sample always lowers it.
			slot.minCycles.CompareAndSwap(0, math.MaxUint64)
		}
	}

	slot.totalCycles.Add(elapsedCycles)
	slot.callCount.Add(1)

	if cur := slot.minCycles.Load(); elapsedCycles < cur {
		slot.minCycles.Store(elapsedCycles)
	}
	if cur := slot.maxCycles.Load(); elapsedCycles > cur {
		slot.maxCycles.Store(elapsedCycles)
	}
}

// lookup returns the slot a name hashes to, or nil if it has never been
// populated. A collided name returns the shared slot under its first
// claimant's name, mirroring the table's open degradation policy.
func (s *statsTable) lookup(name string) *statSlot {
	slot := s.slotFor(name)
	if slot.name.Load() == nil {
		return nil
	}
	return slot
}

// snapshot copies a slot into the exported TimerStats form.
func (slot *statSlot) snapshot() TimerStats {
	name := ""
	if n := slot.name.Load(); n != nil {
		name = *n
	}
	return TimerStats{
		Name:        name,
		TotalCycles: slot.totalCycles.Load(),
		CallCount:   slot.callCount.Load(),
		MinCycles:   slot.minCycles.Load(),
		MaxCycles:   slot.maxCycles.Load(),
		AverageMS:   math.Float64frombits(slot.averageMS.Load()),
		MinMS:       math.Float64frombits(slot.minMS.Load()),
		MaxMS:       math.Float64frombits(slot.maxMS.Load()),
	}
}

// forEach visits every populated slot in index order (deterministic for the
// flamegraph encoder and the metrics collector).
func (s *statsTable) forEach(f func(ts TimerStats)) {
	for i := range s.slots {
		slot := &s.slots[i]
		if slot.name.Load() == nil || slot.callCount.Load() == 0 {
			continue
		}
		f(slot.snapshot())
	}
}
