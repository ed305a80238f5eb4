package profiler

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func captureWorkload(t *testing.T, p *Profiler) *Thread {
	t.Helper()
	th := p.RegisterThread("main")
	p.SetCaptureMode(CaptureContinuous)

	p.BeginFrame()
	th.PushTimer("frame", 0)
	th.PushTimer("update", 0)
	th.PopTimer()
	th.PushTimer("render", 0)
	th.PopTimer()
	th.PopTimer()
	th.Marker("vsync", 0)
	p.EndFrame()
	return th
}

func TestChromeTraceRoundTrip(t *testing.T) {
	p := newTestProfiler(t)
	captureWorkload(t, p)

	var buf bytes.Buffer
	if err := p.WriteChromeTrace(&buf); err != nil {
		t.Fatalf("WriteChromeTrace: %v", err)
	}

	var trace struct {
		TraceEvents []struct {
			Name string  `json:"name"`
			Ph   string  `json:"ph"`
			Ts   float64 `json:"ts"`
			Tid  uint32  `json:"tid"`
		} `json:"traceEvents"`
		DisplayTimeUnit string `json:"displayTimeUnit"`
		Metadata        struct {
			ThreadName map[string]string `json:"thread_name"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(buf.Bytes(), &trace); err != nil {
		t.Fatalf("decoding exported trace: %v", err)
	}
	if trace.DisplayTimeUnit != "ms" {
		t.Errorf("displayTimeUnit = %q, want ms", trace.DisplayTimeUnit)
	}
	if got := trace.Metadata.ThreadName["1"]; got != "main" {
		t.Errorf("metadata.thread_name[1] = %q, want main", got)
	}

	// Every begin has a matching end with the same name on the same thread,
	// and the event sequence reconstructs the original call structure.
	type key struct {
		name string
		tid  uint32
	}
	open := make(map[key]int)
	begins, ends := 0, 0
	var lastTS float64
	for _, ev := range trace.TraceEvents {
		switch ev.Ph {
		case "B", "E":
			if ev.Ts < lastTS {
				t.Fatalf("timestamps not monotonic: %f after %f", ev.Ts, lastTS)
			}
			lastTS = ev.Ts
		}
		switch ev.Ph {
		case "B":
			open[key{ev.Name, ev.Tid}]++
			begins++
		case "E":
			k := key{ev.Name, ev.Tid}
			if open[k] == 0 {
				t.Fatalf("end event for %q with no open begin", ev.Name)
			}
			open[k]--
			ends++
		}
	}
	if begins != 3 || ends != 3 {
		t.Errorf("begin/end events = %d/%d, want 3/3", begins, ends)
	}
	for k, n := range open {
		if n != 0 {
			t.Errorf("unclosed begin for %q on tid %d", k.name, k.tid)
		}
	}
}

func TestChromeTraceIdempotent(t *testing.T) {
	p := newTestProfiler(t)
	captureWorkload(t, p)

	var first, second bytes.Buffer
	if err := p.WriteChromeTrace(&first); err != nil {
		t.Fatalf("first export: %v", err)
	}
	if err := p.WriteChromeTrace(&second); err != nil {
		t.Fatalf("second export: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("exporting the same state twice produced different bytes")
	}
}

func TestChromeTraceEmpty(t *testing.T) {
	p := newTestProfiler(t)

	var buf bytes.Buffer
	if err := p.WriteChromeTrace(&buf); err != nil {
		t.Fatalf("WriteChromeTrace on empty profiler: %v", err)
	}
	var trace struct {
		TraceEvents []json.RawMessage `json:"traceEvents"`
	}
	if err := json.Unmarshal(buf.Bytes(), &trace); err != nil {
		t.Fatalf("decoding empty trace: %v", err)
	}
	if trace.TraceEvents == nil {
		t.Error("traceEvents is null, want empty array")
	}
}

func TestFlamegraphFormat(t *testing.T) {
	p := newTestProfiler(t)
	th := p.RegisterThread("main")

	th.PushTimer("render", 0)
	th.PopTimer()
	th.PushTimer("update", 0)
	th.PopTimer()

	var buf bytes.Buffer
	if err := p.WriteFlamegraph(&buf); err != nil {
		t.Fatalf("WriteFlamegraph: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	names := make(map[string]bool)
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			t.Fatalf("malformed line %q", line)
		}
		names[fields[0]] = true
	}
	if !names["render"] || !names["update"] {
		t.Errorf("missing timer names in output: %v", names)
	}
}

func TestFlamegraphIdempotent(t *testing.T) {
	p := newTestProfiler(t)
	th := p.RegisterThread("main")
	th.PushTimer("work", 0)
	th.PopTimer()

	var first, second bytes.Buffer
	if err := p.WriteFlamegraph(&first); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteFlamegraph(&second); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("flamegraph export is not deterministic")
	}
}
