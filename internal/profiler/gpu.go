package profiler

import (
	"sync/atomic"

	"frameprof/internal/clock"
)

// GPUQuery is an opaque backend timestamp query handle.
type GPUQuery any

// GPUBackend abstracts the graphics API's timestamp queries. IssueTimestamp
// inserts a query into the device command stream; Result blocks until the
// query resolves and returns the device time in nanoseconds.
type GPUBackend interface {
	IssueTimestamp() GPUQuery
	Result(q GPUQuery) (uint64, error)
}

// maxGPUTimers bounds the number of GPU spans in flight at once.
const maxGPUTimers = 256

// gpuTimer slot states. A slot moves free -> active on begin, active ->
// resolving on end (exclusive, so two ends racing on one id cannot both read
// the slot), and back to free once the fields have been copied out.
const (
	gpuSlotFree int32 = iota
	gpuSlotActive
	gpuSlotResolving
)

type gpuTimer struct {
	state       atomic.Int32
	name        string
	startQuery  GPUQuery
	startCycles uint64
}

// GPUTimerID names an in-flight GPU span. Zero is never valid.
type GPUTimerID int

// gpuPool is a fixed pool of in-flight GPU spans. A slot is claimed with a
// CAS on its active flag, so concurrent begins from several threads never
// collide on a timer.
type gpuPool struct {
	backend GPUBackend
	clk     *clock.Clock
	timers  [maxGPUTimers]gpuTimer
	dropped atomic.Uint64
}

func newGPUPool(clk *clock.Clock) *gpuPool {
	return &gpuPool{clk: clk}
}

// begin claims a timer slot and issues the start timestamp. Returns 0 when no
// backend is installed or the pool is exhausted.
func (g *gpuPool) begin(name string) GPUTimerID {
	if g.backend == nil {
		return 0
	}
	for i := range g.timers {
		t := &g.timers[i]
		if t.state.CompareAndSwap(gpuSlotFree, gpuSlotActive) {
			t.name = name
			t.startCycles = g.clk.Cycles()
			t.startQuery = g.backend.IssueTimestamp()
			return GPUTimerID(i + 1)
		}
	}
	g.dropped.Add(1)
	return 0
}

// end issues the closing timestamp, resolves both queries, and returns the
// span name, its CPU-side start and the device duration in nanoseconds. The
// slot is released whether or not the queries resolve.
func (g *gpuPool) end(id GPUTimerID) (name string, startCycles, durationNS uint64, ok bool) {
	if g.backend == nil || id <= 0 || int(id) > maxGPUTimers {
		return "", 0, 0, false
	}
	t := &g.timers[id-1]
	if !t.state.CompareAndSwap(gpuSlotActive, gpuSlotResolving) {
		return "", 0, 0, false
	}
	endQuery := g.backend.IssueTimestamp()

	name = t.name
	startCycles = t.startCycles
	startQuery := t.startQuery
	t.startQuery = nil
	// Fields copied out; release before the blocking result fetch so the
	// slot is reusable during the stall.
	t.state.Store(gpuSlotFree)

	startNS, errStart := g.backend.Result(startQuery)
	endNS, errEnd := g.backend.Result(endQuery)

	if errStart != nil || errEnd != nil || endNS < startNS {
		return "", 0, 0, false
	}
	return name, startCycles, endNS - startNS, true
}

// Dropped returns the number of GPU spans rejected because every timer slot
// was in flight.
func (g *gpuPool) Dropped() uint64 {
	return g.dropped.Load()
}
