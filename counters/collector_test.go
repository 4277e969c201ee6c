package counters

import (
	"testing"

	"github.com/openracing/ffbengine/ringqueue"
)

func TestCollectorDrainsRingIntoHistogram(t *testing.T) {
	ring := ringqueue.NewSPSC[int64](16)
	ring.TryPush(100)
	ring.TryPush(200)
	ring.TryPush(300)

	c := NewCollector(ring)
	n := c.Drain()
	if n != 3 {
		t.Fatalf("Drain() = %d, want 3", n)
	}

	snap := c.Snapshot()
	if snap.Count != 3 {
		t.Fatalf("snapshot count = %d, want 3", snap.Count)
	}
}

func TestCollectorResetClearsHistogram(t *testing.T) {
	ring := ringqueue.NewSPSC[int64](16)
	ring.TryPush(42)
	c := NewCollector(ring)
	c.Drain()
	c.Reset()
	if snap := c.Snapshot(); snap.Count != 0 {
		t.Fatalf("count after reset = %d, want 0", snap.Count)
	}
}

func TestAtomicCountersSnapshotAndResetZeroesState(t *testing.T) {
	var c AtomicCounters
	c.Ticks.Add(10)
	c.MissedTicks.Add(2)

	snap := c.SnapshotAndReset()
	if snap.Ticks != 10 || snap.MissedTicks != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	snap2 := c.Peek()
	if snap2.Ticks != 0 || snap2.MissedTicks != 0 {
		t.Fatalf("counters not reset: %+v", snap2)
	}
}
