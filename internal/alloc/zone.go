package alloc

import (
	"sync"
	"sync/atomic"

	"bitalloc/internal/bits"
	"bitalloc/internal/extent"
)

// Zone is the leaf of the bit structure: an ordered sequence of BitEntry
// words covering zoneSize blocks, locked exclusively during any scan.
// The fixed-size-unit shape is core.Segment's; the lock itself is shaped
// after db.go's per-shard shard.rw, the teacher's actual per-unit lock —
// repurposed here to track bit occupancy instead of a freelist-stack over
// byte ranges.
type Zone struct {
	mu         sync.Mutex
	words      []bits.Entry
	usedBlocks atomic.Int64
	size       int64
	index      int64
}

// NewZone creates a Zone covering size blocks (a multiple of
// bits.WordBits). If preMarked, every block starts allocated.
func NewZone(index, size int64, preMarked bool) *Zone {
	z := &Zone{
		words: make([]bits.Entry, size/bits.WordBits),
		size:  size,
		index: index,
	}
	if preMarked {
		for i := range z.words {
			z.words[i].SetBits(0, bits.WordBits)
		}
		z.usedBlocks.Store(size)
	}
	return z
}

// TryLockExclusive attempts to acquire the zone's exclusive lock without
// blocking.
func (z *Zone) TryLockExclusive() bool { return z.mu.TryLock() }

// LockExclusive blocks until the zone's exclusive lock is acquired.
func (z *Zone) LockExclusive() { z.mu.Lock() }

// Unlock releases the zone's exclusive lock.
func (z *Zone) Unlock() { z.mu.Unlock() }

// Size returns the number of blocks this zone covers.
func (z *Zone) Size() int64 { return z.size }

// UsedBlocks is a lock-free read of the used-block count, used by the
// parent InternalArea's quick exhausted check before attempting to lock.
func (z *Zone) UsedBlocks() int64 { return z.usedBlocks.Load() }

// IsExhausted reports whether every block in the zone is allocated.
func (z *Zone) IsExhausted() bool { return z.usedBlocks.Load() == z.size }

// IsAllocated reports whether every block in [start, start+n) (relative
// to the zone's own block 0) is allocated.
func (z *Zone) IsAllocated(start, n int64) bool {
	if n == 0 {
		return true
	}
	for n > 0 {
		wi := start / bits.WordBits
		off := int(start % bits.WordBits)
		run := int64(bits.WordBits) - int64(off)
		if run > n {
			run = n
		}
		if !z.words[wi].IsAllocated(off, int(run)) {
			return false
		}
		start += run
		n -= run
	}
	return true
}

// freeRunLength returns the length of the maximal contiguous run of
// clear bits starting exactly at pos (zone-relative), without mutating
// anything. Whole free words are skipped in one step via Entry.Empty, so
// long runs cost O(words), not O(bits).
func (z *Zone) freeRunLength(pos int64) int64 {
	var n int64
	for pos < z.size {
		wi := pos / bits.WordBits
		off := int(pos % bits.WordBits)
		w := &z.words[wi]
		if off == 0 && w.Empty() {
			n += bits.WordBits
			pos += bits.WordBits
			continue
		}
		if w.CheckBit(off) {
			break
		}
		n++
		pos++
	}
	return n
}

// setBitsAbs sets [start, start+n) where start/n are zone-relative block
// offsets that may straddle multiple words.
func (z *Zone) setBitsAbs(start, n int64) {
	for n > 0 {
		wi := start / bits.WordBits
		off := int(start % bits.WordBits)
		run := int64(bits.WordBits) - int64(off)
		if run > n {
			run = n
		}
		z.words[wi].SetBits(off, int(run))
		start += run
		n -= run
	}
}

// clearBitsAbs clears [start, start+n) where start/n are zone-relative
// block offsets that may straddle multiple words.
func (z *Zone) clearBitsAbs(start, n int64) {
	for n > 0 {
		wi := start / bits.WordBits
		off := int(start % bits.WordBits)
		run := int64(bits.WordBits) - int64(off)
		if run > n {
			run = n
		}
		z.words[wi].ClearBits(off, int(run))
		start += run
		n -= run
	}
}

// AllocateDistributed scans from hint forward through this zone's
// blocks, emitting extents into sink. Each emitted extent is the maximal
// contiguous free run starting at that scan position, capped at the
// blocks still requested; a run is taken only if it is at least minAlloc
// long, or at least as long as the remaining request when fewer than
// minAlloc blocks remain (the tie-break policy is first-fit in scan
// direction, not best-fit). It stops when numBlocks are satisfied, the
// sink is full, or the zone is exhausted, and returns the number of
// blocks actually placed into the sink.
//
// The caller must hold the zone's exclusive lock (via
// TryLockExclusive/LockExclusive) for the duration of this call — the
// lock is the unit of contention control during descent, not something
// this method manages itself.
func (z *Zone) AllocateDistributed(numBlocks, minAlloc, hint, baseOffset int64, sink extent.Sink) int64 {
	if numBlocks <= 0 {
		return 0
	}
	var allocated int64
	pos := hint
	for pos < z.size && allocated < numBlocks && sink.Length() < sink.Capacity() {
		required := minAlloc
		if remaining := numBlocks - allocated; remaining < required {
			required = remaining
		}
		if required < 1 {
			required = 1
		}

		wi := pos / bits.WordBits
		off := int(pos % bits.WordBits)
		w := &z.words[wi]

		if w.CheckBit(off) {
			if off == 0 && w.Full() {
				pos += bits.WordBits
			} else {
				pos++
			}
			continue
		}

		runLen := z.freeRunLength(pos)
		if runLen >= required {
			n := runLen
			if remaining := numBlocks - allocated; n > remaining {
				n = remaining
			}
			z.setBitsAbs(pos, n)
			z.usedBlocks.Add(n)
			sink.Append(baseOffset+pos, n)
			allocated += n
			pos += n
			continue
		}

		// Run too short to satisfy minAlloc; skip past it entirely —
		// no prefix of it is independently useful.
		if runLen == 0 {
			pos++
		} else {
			pos += runLen
		}
	}
	return allocated
}

// FreeBlocks clears bits [start, start+n) (zone-relative) and decrements
// usedBlocks by n. Precondition: every bit in that range was set.
func (z *Zone) FreeBlocks(start, n int64) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if !z.IsAllocated(start, n) {
		panicPrecondition("Zone.FreeBlocks", "freeing blocks that are not all allocated")
	}
	z.clearBitsAbs(start, n)
	z.usedBlocks.Add(-n)
}

// MarkUsed sets bits [start, start+n) and increments usedBlocks by n.
// Used by constructor pre-marking and by callers restoring external
// state. Precondition: no bit in the range was already set.
func (z *Zone) MarkUsed(start, n int64) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if n > 0 && z.freeRunLength(start) < n {
		panicPrecondition("Zone.MarkUsed", "marking blocks already allocated")
	}
	z.setBitsAbs(start, n)
	z.usedBlocks.Add(n)
}
