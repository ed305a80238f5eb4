package profiler

import (
	"context"
	"math"
	"time"
)

// runAggregator is the background aggregation loop. It wakes at the
// configured rate, derives millisecond statistics from the raw cycle
// counters, refreshes the rolling FPS, and scans for leaked allocations.
// The hot instrumentation paths never compute any of this.
func (p *Profiler) runAggregator(ctx context.Context, hz int) {
	defer p.wg.Done()

	if hz < 1 {
		hz = 1
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.aggregate()
		}
	}
}

// aggregate performs one aggregation pass.
func (p *Profiler) aggregate() {
	for i := range p.stats.slots {
		slot := &p.stats.slots[i]
		count := slot.callCount.Load()
		if slot.name.Load() == nil || count == 0 {
			continue
		}
		total := slot.totalCycles.Load()
		slot.averageMS.Store(math.Float64bits(p.clk.ToMS(total / count)))
		slot.minMS.Store(math.Float64bits(p.clk.ToMS(slot.minCycles.Load())))
		slot.maxMS.Store(math.Float64bits(p.clk.ToMS(slot.maxCycles.Load())))
	}

	p.frames.setAverageFPS(p.frames.rollingFPS())

	if p.mem != nil {
		leaks := p.mem.detectLeaks(p.frames.frameNumber.Load())
		// Only log when the leak set grows, otherwise every pass repeats
		// the same report.
		if n := uint64(len(leaks)); n > p.lastLeakCount.Swap(n) {
			var bytes uint64
			for _, l := range leaks {
				bytes += l.Size
			}
			p.log.Warn().
				Uint64("leaks", n).
				Uint64("bytes", bytes).
				Msg("Allocations exceeding leak age threshold")
			for _, l := range leaks {
				p.log.Debug().
					Uint64("address", l.Address).
					Uint64("size", l.Size).
					Str("file", l.File).
					Int("line", l.Line).
					Uint64("age_frames", l.AgeFrames).
					Msg("Possible leak")
			}
		}
	}
}

// Leaks returns the allocations currently exceeding the leak age threshold.
func (p *Profiler) Leaks() []Leak {
	if p.mem == nil {
		return nil
	}
	return p.mem.detectLeaks(p.frames.frameNumber.Load())
}
