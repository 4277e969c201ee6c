// Package ringqueue implements the bounded, lock-free cross-thread queues
// of spec.md §4.7 (C7): a drop-on-full SPSC ring for commands/blackbox
// records/diagnostic signals, an overwrite-oldest SPSC ring for game input,
// and a lossy MPMC broadcast channel for health events.
//
// The CAS-plus-published-flag design is grounded on event.EventQueue from
// the teacher repository (event/queue.go): a fixed array of slots, each
// guarded by a published flag so a consumer never observes a torn write.
// event.EventQueue only implements the overwrite-oldest policy; SPSC here
// adds the drop-on-full policy spec.md requires for commands/blackbox/
// diagnostics, and OverwriteSPSC (overwrite.go) keeps the original
// overwrite behavior for game input.
package ringqueue

import "sync/atomic"

// SPSC is a bounded single-producer/single-consumer ring that drops the
// newest item when full. Capacity is rounded up to a power of two.
type SPSC[T any] struct {
	mask      uint64
	slots     []T
	published []atomic.Bool
	head      atomic.Uint64 // next slot to consume
	tail      atomic.Uint64 // next slot to produce
}

// NewSPSC creates a ring of the given capacity, rounded up internally to
// the next power of two.
func NewSPSC[T any](capacity int) *SPSC[T] {
	n := nextPowerOfTwo(capacity)
	return &SPSC[T]{
		mask:      uint64(n - 1),
		slots:     make([]T, n),
		published: make([]atomic.Bool, n),
	}
}

// TryPush attempts to enqueue val. Returns false if the ring is full; the
// caller is expected to drop silently (RT-safe: no blocking, no retry
// loop beyond the local capacity check).
func (r *SPSC[T]) TryPush(val T) bool {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= uint64(len(r.slots)) {
		return false
	}
	idx := tail & r.mask
	r.slots[idx] = val
	r.published[idx].Store(true)
	r.tail.Store(tail + 1)
	return true
}

// TryPop attempts to dequeue the oldest item. Returns the zero value and
// false if the ring is empty.
func (r *SPSC[T]) TryPop() (T, bool) {
	var zero T
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return zero, false
	}
	idx := head & r.mask
	if !r.published[idx].Load() {
		return zero, false
	}
	val := r.slots[idx]
	var clear T
	r.slots[idx] = clear
	r.published[idx].Store(false)
	r.head.Store(head + 1)
	return val, true
}

// Len returns the approximate number of pending items.
func (r *SPSC[T]) Len() int {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail <= head {
		return 0
	}
	return int(tail - head)
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
