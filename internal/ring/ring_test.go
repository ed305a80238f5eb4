package ring

import (
	"sync"
	"testing"
)

func TestPushPopOrder(t *testing.T) {
	b := New[int](8)

	for i := 0; i < 5; i++ {
		if !b.Push(i) {
			t.Fatalf("push %d rejected on non-full buffer", i)
		}
	}
	if b.Len() != 5 {
		t.Fatalf("Len = %d, want 5", b.Len())
	}

	for i := 0; i < 5; i++ {
		v, ok := b.Pop()
		if !ok {
			t.Fatalf("pop %d failed", i)
		}
		if v != i {
			t.Errorf("pop %d = %d, want %d", i, v, i)
		}
	}
	if _, ok := b.Pop(); ok {
		t.Error("pop on empty buffer succeeded")
	}
}

// Capacity 4, five pushes: the fifth is dropped, the drop counter reads 1,
// and the buffer still holds the first four items in order.
func TestDropOnFull(t *testing.T) {
	b := New[int](4)

	for i := 1; i <= 4; i++ {
		if !b.Push(i) {
			t.Fatalf("push %d rejected, buffer should not be full", i)
		}
	}
	if b.Push(5) {
		t.Error("push on full buffer succeeded")
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}

	got := b.Snapshot()
	want := []int{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("snapshot length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("snapshot[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSnapshotNonDestructive(t *testing.T) {
	b := New[string](4)
	b.Push("a")
	b.Push("b")

	first := b.Snapshot()
	second := b.Snapshot()

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("snapshot lengths = %d, %d, want 2, 2", len(first), len(second))
	}
	if b.Len() != 2 {
		t.Errorf("Len after snapshots = %d, want 2", b.Len())
	}
}

func TestCatchUp(t *testing.T) {
	b := New[int](4)
	b.Push(1)
	b.Push(2)

	b.CatchUp()

	if b.Len() != 0 {
		t.Errorf("Len after CatchUp = %d, want 0", b.Len())
	}

	// Freed capacity is reusable after a catch-up.
	for i := 0; i < 4; i++ {
		if !b.Push(i) {
			t.Fatalf("push %d rejected after CatchUp", i)
		}
	}
}

func TestWrapAround(t *testing.T) {
	b := New[int](3)

	for round := 0; round < 10; round++ {
		for i := 0; i < 3; i++ {
			if !b.Push(round*3 + i) {
				t.Fatalf("round %d push %d rejected", round, i)
			}
		}
		for i := 0; i < 3; i++ {
			v, ok := b.Pop()
			if !ok || v != round*3+i {
				t.Fatalf("round %d pop = %d,%v, want %d", round, v, ok, round*3+i)
			}
		}
	}
	if b.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", b.Dropped())
	}
}

// One producer, one consumer: every accepted item is observed exactly once
// and in order.
func TestConcurrentSPSC(t *testing.T) {
	const total = 100000
	b := New[int](64)

	var wg sync.WaitGroup
	wg.Add(1)

	received := make([]int, 0, total)
	go func() {
		defer wg.Done()
		for len(received) < total {
			if v, ok := b.Pop(); ok {
				received = append(received, v)
			}
		}
	}()

	for i := 0; i < total; i++ {
		for !b.Push(i) {
			// Consumer will drain; spin until there is room so the
			// sequence stays gapless for the order check.
		}
	}
	wg.Wait()

	for i := 0; i < total; i++ {
		if received[i] != i {
			t.Fatalf("received[%d] = %d, want %d", i, received[i], i)
		}
	}
}
