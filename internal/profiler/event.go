package profiler

// EventKind discriminates the fixed-size event record. The set is closed;
// the export encoders match on it exhaustively.
type EventKind uint8

const (
	KindNone EventKind = iota
	KindPush
	KindPop
	KindMarker
	KindCounter
	KindGPU
	KindMemAlloc
	KindMemFree
	KindNetwork
	KindFrame
)

// String returns the event kind name used in logs and trace categories.
func (k EventKind) String() string {
	switch k {
	case KindPush:
		return "push"
	case KindPop:
		return "pop"
	case KindMarker:
		return "marker"
	case KindCounter:
		return "counter"
	case KindGPU:
		return "gpu"
	case KindMemAlloc:
		return "mem_alloc"
	case KindMemFree:
		return "mem_free"
	case KindNetwork:
		return "network"
	case KindFrame:
		return "frame"
	default:
		return "none"
	}
}

// Event is one fixed-size ring buffer record. Events are immutable once
// written; a slot is only reused after the consumer has advanced past it.
//
// Value is overloaded by kind: duration in cycles for pops, the reported
// value for counters, and nanoseconds for GPU timings.
type Event struct {
	Name      string
	Timestamp uint64
	Value     uint64
	ThreadID  uint32
	Color     uint32
	Depth     uint16
	Kind      EventKind
}

// eventSize is the approximate in-memory footprint of one Event, used to
// translate the configured per-thread buffer byte size into a capacity.
const eventSize = 48

// CaptureMode gates whether detailed events (not just aggregate statistics)
// are written to the per-thread ring buffers.
type CaptureMode int32

const (
	// CaptureDisabled records aggregate statistics only.
	CaptureDisabled CaptureMode = iota
	// CaptureContinuous records detailed events until turned off.
	CaptureContinuous
	// CaptureSingleFrame retains only the next frame's events, exports a
	// trace at that frame's end, and reverts to CaptureDisabled.
	CaptureSingleFrame
	// CaptureTriggered is armed: TriggerCapture promotes it to a one-shot
	// single-frame capture.
	CaptureTriggered
)

func (m CaptureMode) String() string {
	switch m {
	case CaptureContinuous:
		return "continuous"
	case CaptureSingleFrame:
		return "single_frame"
	case CaptureTriggered:
		return "triggered"
	default:
		return "disabled"
	}
}
