package profiler

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// Recording file header: magic, format version, payload length, then the raw
// payload of frame records.
const (
	recordingMagic   uint32 = 0x50524F46 // "PROF"
	recordingVersion uint32 = 1
)

// recorder accumulates frame records into a fixed in-memory buffer while a
// recording session is active. Appends are serialized with a mutex; this path
// runs once per frame, not per event, so contention is negligible.
type recorder struct {
	mu         sync.Mutex
	buf        []byte
	limit      int
	active     atomic.Bool
	startFrame uint64
}

func newRecorder(bufferSize int) *recorder {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &recorder{limit: bufferSize}
}

// start begins a session. Returns false if one is already running.
func (r *recorder) start(frame uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active.Load() {
		return false
	}
	r.buf = r.buf[:0]
	r.startFrame = frame
	r.active.Store(true)
	return true
}

// appendFrame serializes one frame record into the session buffer. When the
// record would overflow the configured buffer the session stops instead of
// growing without bound.
func (r *recorder) appendFrame(fs FrameStats) bool {
	if !r.active.Load() {
		return false
	}
	var rec bytes.Buffer
	if err := binary.Write(&rec, binary.LittleEndian, fs); err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active.Load() {
		return false
	}
	if len(r.buf)+rec.Len() > r.limit {
		r.active.Store(false)
		return false
	}
	r.buf = append(r.buf, rec.Bytes()...)
	return true
}

// stop writes the buffered payload to path and ends the session. On a write
// failure the session stays active with the buffer intact, so the caller can
// retry with another path.
func (r *recorder) stop(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active.Load() && len(r.buf) == 0 {
		return fmt.Errorf("no recording in progress")
	}

	var out bytes.Buffer
	header := struct {
		Magic      uint32
		Version    uint32
		PayloadLen uint64
	}{recordingMagic, recordingVersion, uint64(len(r.buf))}
	if err := binary.Write(&out, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("encoding recording header: %w", err)
	}
	out.Write(r.buf)

	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing recording %s: %w", path, err)
	}

	r.active.Store(false)
	r.buf = r.buf[:0]
	return nil
}

// LoadRecording reads a recording file, validates the header, and returns the
// decoded frame records for playback.
func LoadRecording(path string) ([]FrameStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recording %s: %w", path, err)
	}
	rd := bytes.NewReader(data)

	var header struct {
		Magic      uint32
		Version    uint32
		PayloadLen uint64
	}
	if err := binary.Read(rd, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("reading recording header: %w", err)
	}
	if header.Magic != recordingMagic {
		return nil, fmt.Errorf("bad recording magic 0x%08X", header.Magic)
	}
	if header.Version != recordingVersion {
		return nil, fmt.Errorf("unsupported recording version %d", header.Version)
	}
	if header.PayloadLen != uint64(rd.Len()) {
		return nil, fmt.Errorf("recording payload truncated: header says %d bytes, file has %d", header.PayloadLen, rd.Len())
	}

	frameSize := binary.Size(FrameStats{})
	if header.PayloadLen%uint64(frameSize) != 0 {
		return nil, fmt.Errorf("recording payload length %d is not a whole number of frame records", header.PayloadLen)
	}
	frames := make([]FrameStats, header.PayloadLen/uint64(frameSize))
	if err := binary.Read(rd, binary.LittleEndian, frames); err != nil {
		return nil, fmt.Errorf("decoding frame records: %w", err)
	}
	return frames, nil
}
