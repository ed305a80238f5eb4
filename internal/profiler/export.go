package profiler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// traceEvent is one entry in the chrome://tracing JSON array format.
type traceEvent struct {
	Name string            `json:"name"`
	Cat  string            `json:"cat,omitempty"`
	Ph   string            `json:"ph"`
	Ts   float64           `json:"ts"`
	Dur  *float64          `json:"dur,omitempty"`
	Pid  int               `json:"pid"`
	Tid  uint32            `json:"tid"`
	Args map[string]string `json:"args,omitempty"`
}

type traceMetadata struct {
	// Thread id (decimal string) to label.
	ThreadName map[string]string `json:"thread_name"`
}

type chromeTrace struct {
	TraceEvents     []traceEvent  `json:"traceEvents"`
	DisplayTimeUnit string        `json:"displayTimeUnit"`
	Metadata        traceMetadata `json:"metadata"`
}

// WriteChromeTrace encodes the captured events of every registered thread in
// the chrome://tracing format. Output is deterministic for a fixed event set:
// threads are visited in id order and the rings are snapshotted
// non-destructively, so exporting twice yields identical bytes.
func (p *Profiler) WriteChromeTrace(w io.Writer) error {
	threads := p.threadList()

	trace := chromeTrace{
		TraceEvents:     []traceEvent{},
		DisplayTimeUnit: "ms",
		Metadata:        traceMetadata{ThreadName: make(map[string]string, len(threads))},
	}

	start := p.startCycles
	for _, t := range threads {
		trace.Metadata.ThreadName[fmt.Sprintf("%d", t.id)] = t.name
		trace.TraceEvents = append(trace.TraceEvents, traceEvent{
			Name: "thread_name", Ph: "M", Pid: 1, Tid: t.id,
			Args: map[string]string{"name": t.name},
		})
		for _, ev := range t.events.Snapshot() {
			ts := p.clk.ToUS(ev.Timestamp - start)
			switch ev.Kind {
			case KindPush:
				trace.TraceEvents = append(trace.TraceEvents, traceEvent{
					Name: ev.Name, Cat: "function", Ph: "B", Ts: ts, Pid: 1, Tid: t.id,
				})
			case KindPop:
				trace.TraceEvents = append(trace.TraceEvents, traceEvent{
					Name: ev.Name, Cat: "function", Ph: "E", Ts: ts, Pid: 1, Tid: t.id,
				})
			case KindMarker:
				trace.TraceEvents = append(trace.TraceEvents, traceEvent{
					Name: ev.Name, Cat: "marker", Ph: "i", Ts: ts, Pid: 1, Tid: t.id,
				})
			case KindGPU:
				dur := float64(ev.Value) / 1000.0
				trace.TraceEvents = append(trace.TraceEvents, traceEvent{
					Name: ev.Name, Cat: "gpu", Ph: "X", Ts: ts, Dur: &dur, Pid: 1, Tid: t.id,
				})
			}
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(trace)
}

// ExportChromeTrace writes the chrome trace to a file.
func (p *Profiler) ExportChromeTrace(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trace file %s: %w", path, err)
	}
	defer f.Close()
	if err := p.WriteChromeTrace(f); err != nil {
		return fmt.Errorf("writing trace %s: %w", path, err)
	}
	p.log.Info().Str("path", path).Msg("Chrome trace exported")
	return nil
}

// WriteFlamegraph emits timer statistics in the collapsed-stack text format
// consumed by flamegraph.pl: one "name value" line per timer, value being the
// average duration in whole microseconds. Slots are visited in table order so
// repeated exports are identical.
func (p *Profiler) WriteFlamegraph(w io.Writer) error {
	var err error
	p.stats.forEach(func(ts TimerStats) {
		if err != nil || ts.CallCount == 0 {
			return
		}
		avgUS := p.clk.ToUS(ts.TotalCycles / ts.CallCount)
		_, err = fmt.Fprintf(w, "%s %d\n", ts.Name, uint64(avgUS))
	})
	return err
}

// ExportFlamegraph writes the flamegraph data to a file.
func (p *Profiler) ExportFlamegraph(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating flamegraph file %s: %w", path, err)
	}
	defer f.Close()
	if err := p.WriteFlamegraph(f); err != nil {
		return fmt.Errorf("writing flamegraph %s: %w", path, err)
	}
	p.log.Info().Str("path", path).Msg("Flamegraph data exported")
	return nil
}

// threadList returns the registered threads sorted by id.
func (p *Profiler) threadList() []*Thread {
	var threads []*Thread
	p.threads.Range(func(_ uint32, t *Thread) bool {
		threads = append(threads, t)
		return true
	})
	sort.Slice(threads, func(i, j int) bool { return threads[i].id < threads[j].id })
	return threads
}
