// Package ring implements a fixed-capacity single-producer/single-consumer
// ring buffer with drop-on-full semantics. One goroutine owns the producer
// side (Push) and one goroutine owns the consumer side (Pop, CatchUp); either
// side may be inspected from other goroutines through the read-only accessors.
//
// The cursors increase monotonically and are reduced modulo capacity only
// when indexing, so the full capacity is usable and the drop accounting never
// has to disambiguate an empty buffer from a full one.
package ring

import (
	"sync/atomic"
)

// Buffer is a generic SPSC ring buffer. The producer writes a slot and then
// publishes the write cursor with an atomic store, so a consumer that loads
// the cursor observes fully written slots only.
type Buffer[T any] struct {
	items    []T
	capacity uint64

	writePos atomic.Uint64
	readPos  atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a buffer holding up to capacity items. Capacity must be at
// least 1; smaller values are clamped.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		items:    make([]T, capacity),
		capacity: uint64(capacity),
	}
}

// Push appends an item. Producer-side only. When the buffer is full the item
// is dropped, the drop counter is incremented, and Push reports false.
func (b *Buffer[T]) Push(v T) bool {
	write := b.writePos.Load()
	read := b.readPos.Load()

	if write-read >= b.capacity {
		b.dropped.Add(1)
		return false
	}

	b.items[write%b.capacity] = v
	b.writePos.Store(write + 1)
	return true
}

// Pop removes and returns the oldest item. Consumer-side only.
func (b *Buffer[T]) Pop() (T, bool) {
	read := b.readPos.Load()
	write := b.writePos.Load()

	if read == write {
		var zero T
		return zero, false
	}

	v := b.items[read%b.capacity]
	b.readPos.Store(read + 1)
	return v, true
}

// Snapshot copies every unconsumed item, oldest first, without advancing the
// read cursor. Used by the export encoders, which must be non-destructive.
func (b *Buffer[T]) Snapshot() []T {
	read := b.readPos.Load()
	write := b.writePos.Load()

	if read == write {
		return nil
	}

	out := make([]T, 0, write-read)
	for pos := read; pos != write; pos++ {
		out = append(out, b.items[pos%b.capacity])
	}
	return out
}

// CatchUp advances the read cursor to the write cursor, discarding all
// unconsumed items. Consumer-side only.
func (b *Buffer[T]) CatchUp() {
	b.readPos.Store(b.writePos.Load())
}

// Len returns the number of unconsumed items.
func (b *Buffer[T]) Len() int {
	return int(b.writePos.Load() - b.readPos.Load())
}

// Capacity returns the fixed capacity.
func (b *Buffer[T]) Capacity() int {
	return int(b.capacity)
}

// Dropped returns the number of items rejected because the buffer was full.
func (b *Buffer[T]) Dropped() uint64 {
	return b.dropped.Load()
}
