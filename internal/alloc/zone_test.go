package alloc

import (
	"testing"

	"bitalloc/internal/extent"
)

func TestZoneAllocateDistributedFresh(t *testing.T) {
	z := NewZone(0, 1024, false)
	sink := extent.NewSliceSink(4)
	got := z.AllocateDistributed(100, 100, 0, 0, sink)
	if got != 100 {
		t.Fatalf("got %d want 100", got)
	}
	want := []extent.Extent{{Start: 0, Count: 100}}
	if !equalExtents(sink.Extents(), want) {
		t.Fatalf("got %v want %v", sink.Extents(), want)
	}
	if z.UsedBlocks() != 100 {
		t.Fatalf("used_blocks = %d, want 100", z.UsedBlocks())
	}
}

func TestZoneAllocateDistributedSkipsAllocated(t *testing.T) {
	z := NewZone(0, 1024, false)
	sink := extent.NewSliceSink(4)
	z.AllocateDistributed(100, 1, 0, 0, extent.NewSliceSink(4))

	got := z.AllocateDistributed(50, 1, 0, 0, sink)
	if got != 50 {
		t.Fatalf("got %d want 50", got)
	}
	for _, e := range sink.Extents() {
		if e.Start < 100 {
			t.Fatalf("extent %v overlaps already-allocated range", e)
		}
	}
}

func TestZoneAllocateDistributedExhausted(t *testing.T) {
	z := NewZone(0, 64, true)
	sink := extent.NewSliceSink(4)
	got := z.AllocateDistributed(10, 1, 0, 0, sink)
	if got != 0 {
		t.Fatalf("got %d want 0 from a fully pre-marked zone", got)
	}
}

func TestZoneFreeThenReallocate(t *testing.T) {
	z := NewZone(0, 1024, false)
	z.AllocateDistributed(100, 100, 0, 0, extent.NewSliceSink(4))
	z.FreeBlocks(0, 100)
	if z.UsedBlocks() != 0 {
		t.Fatalf("used_blocks = %d, want 0 after free", z.UsedBlocks())
	}

	sink := extent.NewSliceSink(4)
	got := z.AllocateDistributed(100, 100, 0, 0, sink)
	if got != 100 {
		t.Fatalf("got %d want 100", got)
	}
	want := []extent.Extent{{Start: 0, Count: 100}}
	if !equalExtents(sink.Extents(), want) {
		t.Fatalf("got %v want %v", sink.Extents(), want)
	}
}

func TestZoneFragmentation(t *testing.T) {
	z := NewZone(0, 1024, false)
	z.AllocateDistributed(10, 1, 0, 0, extent.NewSliceSink(4))
	z.FreeBlocks(2, 2)
	z.FreeBlocks(7, 1)

	sink := extent.NewSliceSink(4)
	got := z.AllocateDistributed(2, 2, 0, 0, sink)
	if got != 2 {
		t.Fatalf("got %d want 2", got)
	}
	want := []extent.Extent{{Start: 2, Count: 2}}
	if !equalExtents(sink.Extents(), want) {
		t.Fatalf("got %v want %v", sink.Extents(), want)
	}

	sink2 := extent.NewSliceSink(4)
	got2 := z.AllocateDistributed(1, 1, 0, 0, sink2)
	if got2 != 1 {
		t.Fatalf("got %d want 1", got2)
	}
	want2 := []extent.Extent{{Start: 7, Count: 1}}
	if !equalExtents(sink2.Extents(), want2) {
		t.Fatalf("got %v want %v", sink2.Extents(), want2)
	}
}

func TestZoneFreeUnallocatedPanics(t *testing.T) {
	z := NewZone(0, 1024, false)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic freeing unallocated blocks")
		}
	}()
	z.FreeBlocks(0, 10)
}

func TestZoneMarkUsedAlreadyAllocatedPanics(t *testing.T) {
	z := NewZone(0, 1024, false)
	z.MarkUsed(0, 10)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic marking already-allocated blocks")
		}
	}()
	z.MarkUsed(5, 10)
}

func TestZoneIsAllocatedWordBoundary(t *testing.T) {
	z := NewZone(0, 128, false)
	z.MarkUsed(60, 8)
	if !z.IsAllocated(60, 8) {
		t.Fatal("expected [60,68) to be allocated")
	}
	if z.IsAllocated(59, 8) {
		t.Fatal("did not expect [59,67) to be fully allocated")
	}
}

func equalExtents(a, b []extent.Extent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
