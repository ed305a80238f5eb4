package profiler

import (
	"os"
	"path/filepath"
	"testing"

	"frameprof/internal/config"
)

func newTestProfiler(t *testing.T) *Profiler {
	t.Helper()
	cfg := config.DefaultConfig().Profiler
	cfg.EventBufferSize = 64 * 1024
	cfg.RecordingBufferSize = 64 * 1024
	cfg.GPUProfiling = true
	cfg.NetworkProfiling = true
	cfg.NetworkBufferSize = 4 * 1024
	cfg.CaptureExportPath = filepath.Join(t.TempDir(), "capture.json")

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Shutdown)
	return p
}

func TestPushPopBalance(t *testing.T) {
	p := newTestProfiler(t)
	th := p.RegisterThread("worker")

	th.PushTimer("frame", 0)
	th.PushTimer("update", 0)
	th.PopTimer()
	th.PushTimer("render", 0)
	th.PushTimer("shadows", 0)
	th.PopTimer()
	th.PopTimer()
	th.PopTimer()

	if d := th.Depth(); d != 0 {
		t.Errorf("depth after balanced push/pop = %d, want 0", d)
	}
	for _, name := range []string{"frame", "update", "render", "shadows"} {
		if got := p.TimerCalls(name); got != 1 {
			t.Errorf("TimerCalls(%q) = %d, want 1", name, got)
		}
	}
}

func TestPopWithoutPush(t *testing.T) {
	p := newTestProfiler(t)
	th := p.RegisterThread("worker")

	th.PopTimer()
	th.PopTimer()
	if d := th.Depth(); d != 0 {
		t.Errorf("depth = %d after unmatched pops, want 0", d)
	}
}

func TestTimerStackOverflow(t *testing.T) {
	p := newTestProfiler(t)
	th := p.RegisterThread("worker")

	const excess = 6
	for i := 0; i < maxTimerStackDepth+excess; i++ {
		th.PushTimer("deep", 0)
	}
	if d := th.Depth(); d != maxTimerStackDepth {
		t.Errorf("depth = %d, want %d", d, maxTimerStackDepth)
	}
	if got := th.stackDrops.Load(); got != excess {
		t.Errorf("stack drops = %d, want %d", got, excess)
	}

	// Matching pops: the overflowed ones are absorbed, the rest unwind.
	for i := 0; i < maxTimerStackDepth+excess; i++ {
		th.PopTimer()
	}
	if d := th.Depth(); d != 0 {
		t.Errorf("depth after unwind = %d, want 0", d)
	}
	if got := p.TimerCalls("deep"); got != maxTimerStackDepth {
		t.Errorf("recorded samples = %d, want %d", got, maxTimerStackDepth)
	}
}

func TestDisabledProfilerIsNoOp(t *testing.T) {
	p := newTestProfiler(t)
	th := p.RegisterThread("worker")
	p.SetEnabled(false)

	th.PushTimer("work", 0)
	th.PopTimer()
	p.TrackAlloc(0x1000, 64, "f.go", 1)

	if got := p.TimerCalls("work"); got != 0 {
		t.Errorf("TimerCalls = %d while disabled, want 0", got)
	}
	if got := p.CurrentMemory(); got != 0 {
		t.Errorf("CurrentMemory = %d while disabled, want 0", got)
	}

	p.SetEnabled(true)
	th.PushTimer("work", 0)
	th.PopTimer()
	if got := p.TimerCalls("work"); got != 1 {
		t.Errorf("TimerCalls = %d after re-enable, want 1", got)
	}
}

func TestFrameHistory(t *testing.T) {
	p := newTestProfiler(t)

	for i := 0; i < 3; i++ {
		p.BeginFrame()
		p.EndFrame()
	}
	if got := p.FrameNumber(); got != 3 {
		t.Fatalf("frame number = %d, want 3", got)
	}
	newest, ok := p.FrameStats(0)
	if !ok {
		t.Fatal("no stats for most recent frame")
	}
	if newest.FrameNumber != 2 {
		t.Errorf("offset 0 frame number = %d, want 2", newest.FrameNumber)
	}
	oldest, ok := p.FrameStats(2)
	if !ok {
		t.Fatal("no stats at offset 2")
	}
	if oldest.FrameNumber != 0 {
		t.Errorf("offset 2 frame number = %d, want 0", oldest.FrameNumber)
	}
	if _, ok := p.FrameStats(3); ok {
		t.Error("stats returned for offset past completed frames")
	}
}

func TestFrameCounters(t *testing.T) {
	p := newTestProfiler(t)
	th := p.RegisterThread("render")

	p.BeginFrame()
	th.Counter(CounterDrawCalls, 120)
	th.Counter(CounterTriangles, 500000)
	p.EndFrame()

	fs, ok := p.FrameStats(0)
	if !ok {
		t.Fatal("no frame stats")
	}
	if fs.DrawCalls != 120 {
		t.Errorf("draw calls = %d, want 120", fs.DrawCalls)
	}
	if fs.Triangles != 500000 {
		t.Errorf("triangles = %d, want 500000", fs.Triangles)
	}

	// Counters reset at the next frame begin.
	p.BeginFrame()
	p.EndFrame()
	fs, _ = p.FrameStats(0)
	if fs.DrawCalls != 0 {
		t.Errorf("draw calls carried into next frame: %d", fs.DrawCalls)
	}
}

func TestSingleFrameCaptureOneShot(t *testing.T) {
	p := newTestProfiler(t)
	th := p.RegisterThread("worker")
	p.SetCaptureMode(CaptureSingleFrame)

	p.BeginFrame()
	th.PushTimer("work", 0)
	th.PopTimer()
	p.EndFrame()

	if mode := p.CaptureMode(); mode != CaptureDisabled {
		t.Errorf("capture mode after single-frame capture = %v, want disabled", mode)
	}
	if _, err := os.Stat(p.cfg.CaptureExportPath); err != nil {
		t.Fatalf("capture export missing: %v", err)
	}

	// The next frame must not export again.
	if err := os.Remove(p.cfg.CaptureExportPath); err != nil {
		t.Fatal(err)
	}
	p.BeginFrame()
	p.EndFrame()
	if _, err := os.Stat(p.cfg.CaptureExportPath); !os.IsNotExist(err) {
		t.Error("capture exported again after the one-shot frame")
	}
}

func TestTriggeredCapturePromotion(t *testing.T) {
	p := newTestProfiler(t)

	p.TriggerCapture()
	if mode := p.CaptureMode(); mode != CaptureDisabled {
		t.Errorf("TriggerCapture changed mode while not armed: %v", mode)
	}

	p.SetCaptureMode(CaptureTriggered)
	p.TriggerCapture()
	if mode := p.CaptureMode(); mode != CaptureSingleFrame {
		t.Errorf("mode after trigger = %v, want single_frame", mode)
	}
}

func TestMemoryTrackingThroughProfiler(t *testing.T) {
	p := newTestProfiler(t)
	th := p.RegisterThread("worker")

	th.TrackAlloc(0x1000, 512, "mesh.go", 10)
	p.TrackAlloc(0x2000, 128, "texture.go", 20)
	if got := p.CurrentMemory(); got != 640 {
		t.Errorf("current memory = %d, want 640", got)
	}

	th.TrackFree(0x1000)
	if got := p.CurrentMemory(); got != 128 {
		t.Errorf("current memory after free = %d, want 128", got)
	}
	if got := p.PeakMemory(); got != 640 {
		t.Errorf("peak memory = %d, want 640", got)
	}
}

func TestRecordPacketFeedsFrameCounters(t *testing.T) {
	p := newTestProfiler(t)

	p.BeginFrame()
	p.RecordPacket(Packet{Size: 1400, Direction: DirectionSent})
	p.RecordPacket(Packet{Size: 200, Direction: DirectionReceived})
	p.RecordPacket(Packet{Size: 300, Direction: DirectionReceived})
	p.EndFrame()

	fs, ok := p.FrameStats(0)
	if !ok {
		t.Fatal("no frame stats")
	}
	if fs.PacketsSent != 1 || fs.BytesSent != 1400 {
		t.Errorf("sent = %d packets / %d bytes, want 1 / 1400", fs.PacketsSent, fs.BytesSent)
	}
	if fs.PacketsReceived != 2 || fs.BytesReceived != 500 {
		t.Errorf("received = %d packets / %d bytes, want 2 / 500", fs.PacketsReceived, fs.BytesReceived)
	}
	if got := p.Network().PacketsSent(); got != 1 {
		t.Errorf("recorder sent total = %d, want 1", got)
	}
}

func TestAggregatePass(t *testing.T) {
	p := newTestProfiler(t)
	th := p.RegisterThread("worker")

	th.PushTimer("work", 0)
	th.PopTimer()
	p.BeginFrame()
	p.EndFrame()

	p.aggregate()

	st, ok := p.TimerStats("work")
	if !ok {
		t.Fatal("no stats for recorded timer")
	}
	if st.AverageMS < 0 {
		t.Errorf("average ms = %f", st.AverageMS)
	}
	if st.AverageMS != st.MinMS && st.CallCount == 1 {
		t.Errorf("single sample: average %f != min %f", st.AverageMS, st.MinMS)
	}
}
