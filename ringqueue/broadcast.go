package ringqueue

import (
	"sync"
	"sync/atomic"
)

// Broadcast is a bounded, lossy multi-producer/multi-consumer fan-out
// channel shaped for the health-event stream of spec.md §4.7; no package
// in this repository constructs one. Each
// subscriber has its own read cursor into a shared ring; a slow
// subscriber that falls more than capacity entries behind silently loses
// the oldest unread entries for it (lossy-for-slow-subscribers, per
// spec.md).
//
// Generalizes the single-cursor slot-publish idea of OverwriteSPSC to N
// independent cursors, one per subscription.
type Broadcast[T any] struct {
	mask      uint64
	slots     []T
	published []atomic.Uint64 // per slot: write index+1 of the entry last published there
	tail      atomic.Uint64

	mu   sync.Mutex
	subs map[int]*atomic.Uint64
	next int
}

// NewBroadcast creates a broadcast ring of the given capacity, rounded up
// to the next power of two.
func NewBroadcast[T any](capacity int) *Broadcast[T] {
	n := nextPowerOfTwo(capacity)
	b := &Broadcast[T]{
		mask:      uint64(n - 1),
		slots:     make([]T, n),
		published: make([]atomic.Uint64, n),
		subs:      make(map[int]*atomic.Uint64),
	}
	return b
}

// Publish appends val, overwriting the oldest entry if the ring is full.
// Never blocks.
func (b *Broadcast[T]) Publish(val T) {
	tail := b.tail.Add(1) - 1
	idx := tail & b.mask
	b.slots[idx] = val
	b.published[idx].Store(tail + 1)
}

// Subscription reads entries published after the point it was created.
type Subscription[T any] struct {
	b      *Broadcast[T]
	id     int
	cursor *atomic.Uint64
}

// Subscribe registers a new subscription starting from the current tail
// (it will only observe entries published after this call).
func (b *Broadcast[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	cursor := new(atomic.Uint64)
	cursor.Store(b.tail.Load())
	b.subs[id] = cursor
	return &Subscription[T]{b: b, id: id, cursor: cursor}
}

// Unsubscribe releases the subscription's cursor tracking.
func (s *Subscription[T]) Unsubscribe() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	delete(s.b.subs, s.id)
}

// TryRecv returns the next unseen entry for this subscription, or false
// if there is none. If the subscription fell behind the ring's capacity,
// it is fast-forwarded to the oldest still-available entry (lossy).
func (s *Subscription[T]) TryRecv() (T, bool) {
	var zero T
	capacity := uint64(len(s.b.slots))
	tail := s.b.tail.Load()
	cursor := s.cursor.Load()

	if tail-cursor > capacity {
		cursor = tail - capacity
	}
	if cursor >= tail {
		return zero, false
	}

	idx := cursor & s.b.mask
	if s.b.published[idx].Load() != cursor+1 {
		// overwritten between the tail read and here; skip forward
		s.cursor.Store(tail)
		return zero, false
	}
	val := s.b.slots[idx]
	s.cursor.Store(cursor + 1)
	return val, true
}
