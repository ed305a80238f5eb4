package profiler

import (
	"sync/atomic"
)

// Direction says which way a recorded packet was travelling.
type Direction uint8

const (
	DirectionSent Direction = iota
	DirectionReceived
)

// Packet is one recorded packet observation. Addresses are raw IPv4 words to
// keep the record flat and fixed-size.
type Packet struct {
	Timestamp uint64
	SrcIP     uint32
	DstIP     uint32
	SrcPort   uint16
	DstPort   uint16
	Size      uint32
	Protocol  uint8
	Direction Direction
	LatencyMS float64
}

// packetSize approximates one Packet's in-memory footprint, used to size the
// flat buffer from the configured byte budget.
const packetSize = 40

// NetworkRecorder is a flat append-only packet buffer shared by all callers.
// Unlike the per-thread event rings this is a multi-producer structure: a
// slot is reserved with a single atomic fetch-add on the write cursor, so
// two recorders can never write the same slot. A cursor past the end means
// the buffer is exhausted and the packet is dropped.
type NetworkRecorder struct {
	packets  []Packet
	writePos atomic.Uint64
	dropped  atomic.Uint64

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
}

func newNetworkRecorder(capacity int) *NetworkRecorder {
	if capacity < 1 {
		capacity = 1
	}
	return &NetworkRecorder{
		packets: make([]Packet, capacity),
	}
}

// record reserves the next slot and stores the packet. Running bandwidth
// totals are updated even when the packet record itself is dropped, so the
// graphs stay truthful about traffic volume.
func (n *NetworkRecorder) record(pkt Packet) bool {
	switch pkt.Direction {
	case DirectionSent:
		n.packetsSent.Add(1)
		n.bytesSent.Add(uint64(pkt.Size))
	case DirectionReceived:
		n.packetsReceived.Add(1)
		n.bytesReceived.Add(uint64(pkt.Size))
	}

	pos := n.writePos.Add(1) - 1
	if pos >= uint64(len(n.packets)) {
		n.dropped.Add(1)
		return false
	}
	n.packets[pos] = pkt
	return true
}

// Snapshot returns a copy of every stored packet in record order.
func (n *NetworkRecorder) Snapshot() []Packet {
	pos := n.writePos.Load()
	if pos > uint64(len(n.packets)) {
		pos = uint64(len(n.packets))
	}
	out := make([]Packet, pos)
	copy(out, n.packets[:pos])
	return out
}

// Dropped returns the number of packets rejected because the buffer was
// exhausted.
func (n *NetworkRecorder) Dropped() uint64 {
	return n.dropped.Load()
}

// BytesSent returns the running total of sent bytes.
func (n *NetworkRecorder) BytesSent() uint64 { return n.bytesSent.Load() }

// BytesReceived returns the running total of received bytes.
func (n *NetworkRecorder) BytesReceived() uint64 { return n.bytesReceived.Load() }

// PacketsSent returns the running total of sent packets.
func (n *NetworkRecorder) PacketsSent() uint64 { return n.packetsSent.Load() }

// PacketsReceived returns the running total of received packets.
func (n *NetworkRecorder) PacketsReceived() uint64 { return n.packetsReceived.Load() }
