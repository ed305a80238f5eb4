package profiler

import (
	"math"
	"sync/atomic"

	"frameprof/internal/clock"
)

// FrameStats describes one completed frame. All fields are fixed-width so a
// frame record can be appended verbatim to the recording buffer.
type FrameStats struct {
	FrameNumber    uint64
	DurationCycles uint64
	DurationMS     float64
	FPS            float64

	DrawCalls       uint64
	Triangles       uint64
	StateChanges    uint64
	TextureSwitches uint64

	MemoryAllocated uint64
	MemoryFreed     uint64

	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
}

// Counter names that feed the current frame's render counters.
const (
	CounterDrawCalls       = "draw_calls"
	CounterTriangles       = "triangles"
	CounterStateChanges    = "state_changes"
	CounterTextureSwitches = "texture_switches"
)

// frameTracker marks frame boundaries and keeps a fixed-length circular
// history of completed frames. Completed frames are published as pointers so
// readers on other goroutines never observe a torn struct.
type frameTracker struct {
	clk         *clock.Clock
	historySize uint64
	history     []atomic.Pointer[FrameStats]

	frameNumber atomic.Uint64
	frameStart  atomic.Uint64

	// Per-frame counters, reset at every frame begin.
	drawCalls       atomic.Uint64
	triangles       atomic.Uint64
	stateChanges    atomic.Uint64
	textureSwitches atomic.Uint64
	memAllocated    atomic.Uint64
	memFreed        atomic.Uint64
	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64

	// Aggregator-derived rolling average, float bits.
	averageFPS atomic.Uint64
}

func newFrameTracker(clk *clock.Clock, historySize int) *frameTracker {
	return &frameTracker{
		clk:         clk,
		historySize: uint64(historySize),
		history:     make([]atomic.Pointer[FrameStats], historySize),
	}
}

// begin records the frame start and resets the per-frame counters.
func (f *frameTracker) begin() {
	f.frameStart.Store(f.clk.Cycles())

	f.drawCalls.Store(0)
	f.triangles.Store(0)
	f.stateChanges.Store(0)
	f.textureSwitches.Store(0)
	f.memAllocated.Store(0)
	f.memFreed.Store(0)
	f.packetsSent.Store(0)
	f.packetsReceived.Store(0)
	f.bytesSent.Store(0)
	f.bytesReceived.Store(0)
}

// finish builds the completed frame's stats, publishes them into the
// circular history, and advances the frame number.
func (f *frameTracker) finish() FrameStats {
	end := f.clk.Cycles()
	elapsed := end - f.frameStart.Load()
	number := f.frameNumber.Load()

	durationMS := f.clk.ToMS(elapsed)
	fps := 0.0
	if durationMS > 0 {
		fps = 1000.0 / durationMS
	}

	fs := FrameStats{
		FrameNumber:     number,
		DurationCycles:  elapsed,
		DurationMS:      durationMS,
		FPS:             fps,
		DrawCalls:       f.drawCalls.Load(),
		Triangles:       f.triangles.Load(),
		StateChanges:    f.stateChanges.Load(),
		TextureSwitches: f.textureSwitches.Load(),
		MemoryAllocated: f.memAllocated.Load(),
		MemoryFreed:     f.memFreed.Load(),
		PacketsSent:     f.packetsSent.Load(),
		PacketsReceived: f.packetsReceived.Load(),
		BytesSent:       f.bytesSent.Load(),
		BytesReceived:   f.bytesReceived.Load(),
	}

	f.history[number%f.historySize].Store(&fs)
	f.frameNumber.Store(number + 1)
	return fs
}

// counter feeds a named counter value into the current frame when the name
// is one of the well-known render counters.
func (f *frameTracker) counter(name string, value uint64) {
	switch name {
	case CounterDrawCalls:
		f.drawCalls.Store(value)
	case CounterTriangles:
		f.triangles.Store(value)
	case CounterStateChanges:
		f.stateChanges.Store(value)
	case CounterTextureSwitches:
		f.textureSwitches.Store(value)
	}
}

// stats returns the completed frame at the given relative offset, 0 being
// the most recently completed frame.
func (f *frameTracker) stats(offset uint64) (FrameStats, bool) {
	completed := f.frameNumber.Load()
	if offset >= f.historySize || offset >= completed {
		return FrameStats{}, false
	}
	p := f.history[(completed-1-offset)%f.historySize].Load()
	if p == nil {
		return FrameStats{}, false
	}
	return *p, true
}

// rollingFPS averages the FPS over every populated history entry. Called by
// the aggregator.
func (f *frameTracker) rollingFPS() float64 {
	total := 0.0
	count := 0
	for i := range f.history {
		if p := f.history[i].Load(); p != nil && p.FPS > 0 {
			total += p.FPS
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func (f *frameTracker) setAverageFPS(fps float64) {
	f.averageFPS.Store(math.Float64bits(fps))
}

func (f *frameTracker) getAverageFPS() float64 {
	return math.Float64frombits(f.averageFPS.Load())
}
