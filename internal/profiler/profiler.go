package profiler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/phuslu/log"

	"frameprof/internal/clock"
	"frameprof/internal/config"
	"frameprof/internal/logger"
	"frameprof/internal/maps"
)

// Profiler owns the whole instrumentation subsystem: the calibrated clock,
// per-thread event rings, the timer statistics table, frame tracking, the
// memory/network/GPU trackers, the recording buffer and the background
// aggregator. One instance serves the entire process.
type Profiler struct {
	cfg config.ProfilerConfig
	clk *clock.Clock
	log log.Logger

	enabled     atomic.Bool
	captureMode atomic.Int32
	startCycles uint64

	threads       maps.ConcurrentMap[uint32, *Thread]
	nextThreadID  atomic.Uint32
	eventCapacity int

	stats  *statsTable
	frames *frameTracker
	mem    *MemoryTracker
	gpu    *gpuPool
	net    *NetworkRecorder
	rec    *recorder

	lastLeakCount atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a profiler from the given configuration, calibrates the clock,
// and starts the background aggregator. Zero-valued fields fall back to the
// defaults from config.DefaultConfig.
func New(cfg config.ProfilerConfig) (*Profiler, error) {
	defaults := config.DefaultConfig().Profiler
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = defaults.EventBufferSize
	}
	if cfg.RecordingBufferSize <= 0 {
		cfg.RecordingBufferSize = defaults.RecordingBufferSize
	}
	if cfg.NetworkBufferSize <= 0 {
		cfg.NetworkBufferSize = defaults.NetworkBufferSize
	}
	if cfg.LeakThresholdFrames == 0 {
		cfg.LeakThresholdFrames = defaults.LeakThresholdFrames
	}
	if cfg.AggregatorHz <= 0 {
		cfg.AggregatorHz = defaults.AggregatorHz
	}
	if cfg.FrameHistorySize <= 0 {
		cfg.FrameHistorySize = defaults.FrameHistorySize
	}
	if cfg.CaptureExportPath == "" {
		cfg.CaptureExportPath = defaults.CaptureExportPath
	}

	clk := clock.Calibrate()

	p := &Profiler{
		cfg:           cfg,
		clk:           clk,
		startCycles:   clk.Cycles(),
		threads:       maps.NewXSyncMap[uint32, *Thread](),
		eventCapacity: int(cfg.EventBufferSize) / eventSize,
		stats:         newStatsTable(),
		frames:        newFrameTracker(clk, cfg.FrameHistorySize),
		gpu:           newGPUPool(clk),
		rec:           newRecorder(int(cfg.RecordingBufferSize)),
	}
	p.log = logger.NewLoggerWithContext("profiler")
	if cfg.MemoryTracking {
		p.mem = newMemoryTracker(cfg.LeakThresholdFrames)
	}
	if cfg.NetworkProfiling {
		p.net = newNetworkRecorder(int(cfg.NetworkBufferSize) / packetSize)
	}
	p.enabled.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go p.runAggregator(ctx, cfg.AggregatorHz)

	p.log.Info().
		Uint64("clock_hz", clk.Frequency()).
		Int("event_capacity", p.eventCapacity).
		Int("aggregator_hz", cfg.AggregatorHz).
		Msg("Profiler initialized")
	return p, nil
}

// Shutdown stops the aggregator and waits for it to exit.
func (p *Profiler) Shutdown() {
	p.cancel()
	p.wg.Wait()
	p.log.Info().Msg("Profiler shut down")
}

// SetEnabled toggles all instrumentation. While disabled, push/pop and the
// trackers are no-ops with near-zero cost.
func (p *Profiler) SetEnabled(enabled bool) {
	p.enabled.Store(enabled)
}

// Enabled reports whether instrumentation is active.
func (p *Profiler) Enabled() bool {
	return p.enabled.Load()
}

// CaptureMode returns the current event capture mode.
func (p *Profiler) CaptureMode() CaptureMode {
	return CaptureMode(p.captureMode.Load())
}

// SetCaptureMode switches the event capture mode.
func (p *Profiler) SetCaptureMode(mode CaptureMode) {
	p.captureMode.Store(int32(mode))
	p.log.Debug().Str("mode", mode.String()).Msg("Capture mode changed")
}

// TriggerCapture fires an armed triggered capture, promoting it to a one-shot
// single-frame capture at the next frame boundary. A no-op in any other mode.
func (p *Profiler) TriggerCapture() {
	if p.captureMode.CompareAndSwap(int32(CaptureTriggered), int32(CaptureSingleFrame)) {
		p.log.Info().Msg("Capture triggered")
	}
}

// SetGPUBackend installs the graphics API timestamp backend. Must be called
// before any GPU spans are opened; a nil backend leaves GPU timing disabled.
// Ignored when GPU profiling is off in the configuration.
func (p *Profiler) SetGPUBackend(backend GPUBackend) {
	if !p.cfg.GPUProfiling {
		p.log.Debug().Msg("GPU profiling disabled, backend ignored")
		return
	}
	p.gpu.backend = backend
}

// RegisterThread creates the per-thread handle that owns an event ring.
// Each goroutine doing instrumentation registers once and keeps its handle;
// the ring is single-producer by that contract.
func (p *Profiler) RegisterThread(name string) *Thread {
	id := p.nextThreadID.Add(1)
	t := newThread(p, id, name, p.eventCapacity)
	p.threads.Store(id, t)
	p.log.Debug().Uint32("thread_id", id).Str("name", name).Msg("Thread registered")
	return t
}

// BeginFrame marks the start of a frame. In single-frame capture the event
// rings are fast-forwarded first so the capture holds exactly one frame.
func (p *Profiler) BeginFrame() {
	if !p.enabled.Load() {
		return
	}
	if p.CaptureMode() == CaptureSingleFrame {
		p.threads.Range(func(_ uint32, t *Thread) bool {
			t.events.CatchUp()
			return true
		})
	}
	p.frames.begin()
}

// EndFrame completes the current frame: the frame record is published to
// history, appended to an active recording, and a pending single-frame
// capture is exported and disarmed.
func (p *Profiler) EndFrame() {
	if !p.enabled.Load() {
		return
	}
	fs := p.frames.finish()

	if p.rec.active.Load() {
		p.rec.appendFrame(fs)
	}

	if p.captureMode.CompareAndSwap(int32(CaptureSingleFrame), int32(CaptureDisabled)) {
		if err := p.ExportChromeTrace(p.cfg.CaptureExportPath); err != nil {
			p.log.Error().Err(err).Msg("Single-frame capture export failed")
		}
	}
}

// TrackAlloc records an allocation against the current frame. Use the Thread
// method instead when a registered thread handle is available.
func (p *Profiler) TrackAlloc(address, size uint64, file string, line int) {
	p.trackAlloc(address, size, file, line, 0)
}

func (p *Profiler) trackAlloc(address, size uint64, file string, line int, threadID uint32) {
	if !p.enabled.Load() || p.mem == nil {
		return
	}
	p.mem.track(memoryRecord{
		Address:   address,
		Size:      size,
		Timestamp: p.clk.Cycles(),
		ThreadID:  threadID,
		File:      file,
		Line:      line,
		Frame:     p.frames.frameNumber.Load(),
	})
	p.frames.memAllocated.Add(size)
}

// TrackFree records a free. Unmatched frees are ignored.
func (p *Profiler) TrackFree(address uint64) {
	if !p.enabled.Load() || p.mem == nil {
		return
	}
	if rec, ok := p.mem.untrack(address); ok {
		p.frames.memFreed.Add(rec.Size)
	}
}

// RecordPacket feeds one packet observation to the network recorder and the
// current frame's traffic counters.
func (p *Profiler) RecordPacket(pkt Packet) {
	if !p.enabled.Load() || p.net == nil {
		return
	}
	if pkt.Timestamp == 0 {
		pkt.Timestamp = p.clk.Cycles()
	}
	p.net.record(pkt)
	switch pkt.Direction {
	case DirectionSent:
		p.frames.packetsSent.Add(1)
		p.frames.bytesSent.Add(uint64(pkt.Size))
	case DirectionReceived:
		p.frames.packetsReceived.Add(1)
		p.frames.bytesReceived.Add(uint64(pkt.Size))
	}
}

// Network returns the network recorder, or nil when network profiling is off.
func (p *Profiler) Network() *NetworkRecorder {
	return p.net
}

// StartRecording begins buffering frame records. Recording implies continuous
// event capture for the duration of the session.
func (p *Profiler) StartRecording() bool {
	if !p.rec.start(p.frames.frameNumber.Load()) {
		return false
	}
	p.SetCaptureMode(CaptureContinuous)
	p.log.Info().Msg("Recording started")
	return true
}

// StopRecording ends the session and writes the recording file.
func (p *Profiler) StopRecording(path string) error {
	if err := p.rec.stop(path); err != nil {
		return err
	}
	p.SetCaptureMode(CaptureDisabled)
	p.log.Info().Str("path", path).Msg("Recording written")
	return nil
}

// TimerStats returns the aggregate statistics for a timer name.
func (p *Profiler) TimerStats(name string) (TimerStats, bool) {
	slot := p.stats.lookup(name)
	if slot == nil {
		return TimerStats{}, false
	}
	return slot.snapshot(), true
}

// TimerAverageMS computes the live average duration for a timer in
// milliseconds, from the raw counters rather than the aggregator's cached
// value.
func (p *Profiler) TimerAverageMS(name string) float64 {
	slot := p.stats.lookup(name)
	if slot == nil {
		return 0
	}
	count := slot.callCount.Load()
	if count == 0 {
		return 0
	}
	return p.clk.ToMS(slot.totalCycles.Load() / count)
}

// TimerCalls returns the number of completed samples for a timer.
func (p *Profiler) TimerCalls(name string) uint64 {
	slot := p.stats.lookup(name)
	if slot == nil {
		return 0
	}
	return slot.callCount.Load()
}

// ForEachTimer visits every populated timer slot in stable order.
func (p *Profiler) ForEachTimer(f func(ts TimerStats)) {
	p.stats.forEach(f)
}

// AverageFPS returns the aggregator's rolling FPS over the frame history.
func (p *Profiler) AverageFPS() float64 {
	return p.frames.getAverageFPS()
}

// FrameStats returns the completed frame at the given offset, 0 being the
// most recent.
func (p *Profiler) FrameStats(offset uint64) (FrameStats, bool) {
	return p.frames.stats(offset)
}

// FrameNumber returns the number of completed frames.
func (p *Profiler) FrameNumber() uint64 {
	return p.frames.frameNumber.Load()
}

// CurrentMemory returns the live tracked allocation bytes.
func (p *Profiler) CurrentMemory() uint64 {
	if p.mem == nil {
		return 0
	}
	return p.mem.CurrentBytes()
}

// PeakMemory returns the tracked allocation high-water mark.
func (p *Profiler) PeakMemory() uint64 {
	if p.mem == nil {
		return 0
	}
	return p.mem.PeakBytes()
}

// DroppedEvents sums the events discarded across every thread ring plus the
// timer-stack overflows.
func (p *Profiler) DroppedEvents() uint64 {
	var total uint64
	p.threads.Range(func(_ uint32, t *Thread) bool {
		total += t.events.Dropped() + t.stackDrops.Load()
		return true
	})
	return total
}

// Clock exposes the calibrated clock for callers that need raw conversions.
func (p *Profiler) Clock() *clock.Clock {
	return p.clk
}
