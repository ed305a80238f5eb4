package profiler

import (
	"sync/atomic"

	"frameprof/internal/ring"
)

// maxTimerStackDepth bounds the hierarchical timer nesting per thread.
const maxTimerStackDepth = 64

type timerEntry struct {
	name        string
	startCycles uint64
	color       uint32
}

// Thread is the per-goroutine instrumentation handle. It owns an event ring
// that only this goroutine writes, which is what makes the ring
// single-producer; readers (export, metrics) consume concurrently.
//
// The timer stack is plain non-atomic state for the same reason: one writer.
type Thread struct {
	id     uint32
	name   string
	prof   *Profiler
	events *ring.Buffer[Event]

	stack    [maxTimerStackDepth]timerEntry
	depth    int
	overflow int

	stackDrops atomic.Uint64
}

func newThread(p *Profiler, id uint32, name string, eventCapacity int) *Thread {
	if eventCapacity < 1 {
		eventCapacity = 1
	}
	return &Thread{
		id:     id,
		name:   name,
		prof:   p,
		events: ring.New[Event](eventCapacity),
	}
}

// ID returns the profiler-assigned thread id.
func (t *Thread) ID() uint32 { return t.id }

// Name returns the name given at registration.
func (t *Thread) Name() string { return t.name }

// capturing reports whether detailed events should be written to the ring.
func (t *Thread) capturing() bool {
	return t.prof.CaptureMode() != CaptureDisabled
}

// PushTimer opens a named timer scope. Pushes beyond the stack bound are
// counted and absorbed so the matching pops stay balanced.
func (t *Thread) PushTimer(name string, color uint32) {
	if !t.prof.enabled.Load() {
		return
	}
	if t.depth >= maxTimerStackDepth {
		t.overflow++
		t.stackDrops.Add(1)
		return
	}
	now := t.prof.clk.Cycles()
	t.stack[t.depth] = timerEntry{name: name, startCycles: now, color: color}
	t.depth++

	if t.capturing() {
		t.events.Push(Event{
			Name:      name,
			Timestamp: now,
			ThreadID:  t.id,
			Color:     color,
			Depth:     uint16(t.depth - 1),
			Kind:      KindPush,
		})
	}
}

// PopTimer closes the innermost open scope and folds the elapsed time into
// the statistics table. Pops that match an absorbed overflow push, or with no
// open scope at all, are no-ops.
func (t *Thread) PopTimer() {
	if !t.prof.enabled.Load() {
		return
	}
	if t.overflow > 0 {
		t.overflow--
		return
	}
	if t.depth == 0 {
		return
	}
	t.depth--
	entry := t.stack[t.depth]
	now := t.prof.clk.Cycles()
	elapsed := now - entry.startCycles

	t.prof.stats.Record(entry.name, elapsed)

	if t.capturing() {
		t.events.Push(Event{
			Name:      entry.name,
			Timestamp: now,
			Value:     elapsed,
			ThreadID:  t.id,
			Color:     entry.color,
			Depth:     uint16(t.depth),
			Kind:      KindPop,
		})
	}
}

// Depth returns the current open scope count.
func (t *Thread) Depth() int { return t.depth }

// Marker records an instant event.
func (t *Thread) Marker(name string, color uint32) {
	if !t.prof.enabled.Load() || !t.capturing() {
		return
	}
	t.events.Push(Event{
		Name:      name,
		Timestamp: t.prof.clk.Cycles(),
		ThreadID:  t.id,
		Color:     color,
		Kind:      KindMarker,
	})
}

// Counter reports a named per-frame counter value.
func (t *Thread) Counter(name string, value uint64) {
	if !t.prof.enabled.Load() {
		return
	}
	t.prof.frames.counter(name, value)
	if t.capturing() {
		t.events.Push(Event{
			Name:      name,
			Timestamp: t.prof.clk.Cycles(),
			Value:     value,
			ThreadID:  t.id,
			Kind:      KindCounter,
		})
	}
}

// GPUBegin opens a GPU span. The returned id is passed to GPUEnd; a zero id
// means GPU timing is unavailable and GPUEnd will ignore it.
func (t *Thread) GPUBegin(name string) GPUTimerID {
	if !t.prof.enabled.Load() {
		return 0
	}
	return t.prof.gpu.begin(name)
}

// GPUEnd closes a GPU span, resolves the device timestamps, and records the
// result as both a timer sample and a capture event.
func (t *Thread) GPUEnd(id GPUTimerID) {
	if !t.prof.enabled.Load() {
		return
	}
	name, startCycles, durationNS, ok := t.prof.gpu.end(id)
	if !ok {
		return
	}
	// Device nanoseconds, rescaled to clock cycles for the stats table.
	t.prof.stats.Record(name, t.prof.clk.FromNS(durationNS))

	if t.capturing() {
		t.events.Push(Event{
			Name:      name,
			Timestamp: startCycles,
			Value:     durationNS,
			ThreadID:  t.id,
			Kind:      KindGPU,
		})
	}
}

// TrackAlloc records an allocation attributed to this thread.
func (t *Thread) TrackAlloc(address, size uint64, file string, line int) {
	if !t.prof.enabled.Load() || t.prof.mem == nil {
		return
	}
	t.prof.trackAlloc(address, size, file, line, t.id)
	if t.capturing() {
		t.events.Push(Event{
			Name:      file,
			Timestamp: t.prof.clk.Cycles(),
			Value:     size,
			ThreadID:  t.id,
			Kind:      KindMemAlloc,
		})
	}
}

// TrackFree records a free attributed to this thread.
func (t *Thread) TrackFree(address uint64) {
	if !t.prof.enabled.Load() || t.prof.mem == nil {
		return
	}
	t.prof.TrackFree(address)
	if t.capturing() {
		t.events.Push(Event{
			Timestamp: t.prof.clk.Cycles(),
			Value:     address,
			ThreadID:  t.id,
			Kind:      KindMemFree,
		})
	}
}
