package bits

import (
	"testing"
	"testing/quick"
)

func TestSetClearBits(t *testing.T) {
	var e Entry
	e.SetBits(0, 4)
	if e.Raw() != 0b1111 {
		t.Fatalf("raw = %x", e.Raw())
	}
	e.ClearBits(1, 2)
	if e.Raw() != 0b1001 {
		t.Fatalf("raw = %x", e.Raw())
	}
}

func TestSetBitsFullWord(t *testing.T) {
	var e Entry
	e.SetBits(0, WordBits)
	if !e.Full() {
		t.Fatal("expected full word")
	}
}

func TestCheckAndSetBit(t *testing.T) {
	var e Entry
	if e.CheckAndSetBit(5) {
		t.Fatal("bit 5 should not have been set yet")
	}
	if !e.CheckBit(5) {
		t.Fatal("bit 5 should now be set")
	}
	if !e.CheckAndSetBit(5) {
		t.Fatal("second check_and_set should report prior value true")
	}
}

func TestIsAllocated(t *testing.T) {
	var e Entry
	e.SetBits(10, 5)
	if !e.IsAllocated(10, 5) {
		t.Fatal("expected [10,15) allocated")
	}
	if e.IsAllocated(9, 5) {
		t.Fatal("did not expect [9,14) fully allocated")
	}
	if e.IsAllocated(0, 0) != true {
		t.Fatal("zero-length range is vacuously allocated")
	}
}

func TestFindFirstRunBasic(t *testing.T) {
	var e Entry
	start, scanned, ok := e.FindFirstRun(4, 0)
	if !ok || start != 0 || scanned < 4 {
		t.Fatalf("start=%d scanned=%d ok=%v", start, scanned, ok)
	}
	if !e.IsAllocated(0, 4) {
		t.Fatal("found run should have been marked allocated")
	}
}

func TestFindFirstRunSkipsAllocated(t *testing.T) {
	var e Entry
	e.SetBits(0, 4)
	start, _, ok := e.FindFirstRun(4, 0)
	if !ok || start != 4 {
		t.Fatalf("expected run at 4, got start=%d ok=%v", start, ok)
	}
}

func TestFindFirstRunWordBoundary(t *testing.T) {
	var e Entry
	e.SetBits(0, WordBits-2)
	start, scanned, ok := e.FindFirstRun(4, 0)
	if ok {
		t.Fatalf("should not find a run of 4 in only 2 trailing clear bits, got start=%d", start)
	}
	if scanned != 2 {
		t.Fatalf("expected trailing clear run of 2, got %d", scanned)
	}
}

func TestFindFirstRunNoSpace(t *testing.T) {
	var e Entry
	e.SetBits(0, WordBits)
	_, scanned, ok := e.FindFirstRun(1, 0)
	if ok || scanned != 0 {
		t.Fatalf("full word should yield no run, got scanned=%d ok=%v", scanned, ok)
	}
}

func TestFindFirstRunStartOffset(t *testing.T) {
	var e Entry
	start, _, ok := e.FindFirstRun(2, 60)
	if !ok || start != 60 {
		t.Fatalf("start=%d ok=%v", start, ok)
	}
}

func TestFindNFreeBits(t *testing.T) {
	var e Entry
	e.SetBits(1, 1) // allocate bit 1 only
	count, first, end := e.FindNFreeBits(0, 3)
	if count != 3 {
		t.Fatalf("count = %d", count)
	}
	if first != 0 {
		t.Fatalf("first = %d", first)
	}
	if end <= first {
		t.Fatalf("end = %d", end)
	}
}

func TestFindNFreeBitsAllAllocated(t *testing.T) {
	var e Entry
	e.SetBits(0, WordBits)
	count, first, _ := e.FindNFreeBits(0, 5)
	if count != 0 || first != -1 {
		t.Fatalf("count=%d first=%d", count, first)
	}
}

func TestPopCount(t *testing.T) {
	var e Entry
	e.SetBits(0, 10)
	if e.PopCount() != 10 {
		t.Fatalf("popcount = %d", e.PopCount())
	}
}

// TestSetThenClearIsIdentity checks the universal invariant that
// clearing exactly the range you just set returns a word to its prior
// state, for arbitrary offsets and lengths within word bounds.
func TestSetThenClearIsIdentity(t *testing.T) {
	prop := func(offset, n uint8) bool {
		off := int(offset) % WordBits
		length := int(n) % (WordBits - off + 1)
		var e Entry
		before := e.Raw()
		e.SetBits(off, length)
		e.ClearBits(off, length)
		return e.Raw() == before
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Error(err)
	}
}

// TestPopCountMatchesSetLength checks that PopCount always equals the
// number of bits just set, for arbitrary non-overlapping single ranges
// starting at bit 0.
func TestPopCountMatchesSetLength(t *testing.T) {
	prop := func(n uint8) bool {
		length := int(n) % (WordBits + 1)
		var e Entry
		e.SetBits(0, length)
		return e.PopCount() == length
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Error(err)
	}
}
