package alloc

import (
	"sync"
	"sync/atomic"

	"bitalloc/internal/extent"
	"bitalloc/internal/stats"
)

// Area is an InternalArea: an ordered list of children (Zones or
// smaller Areas), aggregate used/reserved counters, a rotating cursor,
// and a level number. Shaped after core.DB, which held the same shape
// one level up — a slice of units (segments) plus aggregate bookkeeping
// protected by a short-held mutex — generalized here into a recursive
// tree instead of a flat segment list.
//
// usedBlocks is a separate atomic counter, not folded under mu: the
// parent's descent pre-check (IsExhausted/UsedBlocks) must read it
// without contending on the same lock the reservation protocol holds,
// the same split Zone already uses between its mutex and usedBlocks.
type Area struct {
	mu             sync.Mutex
	usedBlocks     atomic.Int64
	reservedBlocks int64
	cursor         int64

	level       int
	totalBlocks int64
	childSize   int64
	children    []child
}

func newArea(level int, totalBlocks, childSize int64, children []child) *Area {
	return &Area{
		level:       level,
		totalBlocks: totalBlocks,
		childSize:   childSize,
		children:    children,
	}
}

// Size returns the number of blocks this area covers.
func (a *Area) Size() int64 { return a.totalBlocks }

// UsedBlocks is a lock-free read of the area's aggregate used-block
// count, used by the parent's quick exhausted check before attempting
// to lock this area as a child.
func (a *Area) UsedBlocks() int64 { return a.usedBlocks.Load() }

// ReservedBlocks returns the area's aggregate reserved-block count.
func (a *Area) ReservedBlocks() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reservedBlocks
}

// IsExhausted reports whether every block in the area is used. Used, not
// used+reserved: an in-flight reservation doesn't make the area's actual
// occupancy exhausted, only its allocatable headroom.
func (a *Area) IsExhausted() bool {
	return a.usedBlocks.Load() >= a.totalBlocks
}

// reserve is this area's side of child_check_and_lock when it is itself
// a child of another area: a quick reservation of n blocks against the
// area's own remaining free count, taken under its own counter lock. It
// does not recurse into children — the reservation is an accounting
// placeholder until unreserve reconciles it with what was actually
// allocated beneath this area.
func (a *Area) reserve(n int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.usedBlocks.Load()+a.reservedBlocks+n > a.totalBlocks {
		return false
	}
	a.reservedBlocks += n
	return true
}

// reserveUpTo is the Root's own top-level reservation step: unlike
// reserve, which hard-rejects when the full amount doesn't fit (used to
// decide whether a sibling child can be skipped during descent),
// reserveUpTo clamps to whatever headroom remains. A request for more
// blocks than the allocator has is exhaustion, not failure — it must
// still return a partial count rather than refuse to reserve anything.
// Returns the amount actually reserved, 0 if there is no headroom at
// all.
func (a *Area) reserveUpTo(n int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	headroom := a.totalBlocks - a.usedBlocks.Load() - a.reservedBlocks
	if headroom <= 0 {
		return 0
	}
	if n > headroom {
		n = headroom
	}
	a.reservedBlocks += n
	return n
}

// unreserve reconciles a prior reserve(n): the reservation is released
// and the blocks actually allocated during descent are folded into
// usedBlocks. Frees never touch reservedBlocks — only this call does.
func (a *Area) unreserve(n, allocated int64) {
	a.mu.Lock()
	a.reservedBlocks -= n
	a.mu.Unlock()
	a.usedBlocks.Add(allocated)
}

func (a *Area) addUsed(n int64) { a.usedBlocks.Add(n) }

func (a *Area) subUsed(n int64) { a.usedBlocks.Add(-n) }

func (a *Area) advanceCursor(afterIdx int64) {
	a.mu.Lock()
	a.cursor = (afterIdx + 1) % int64(len(a.children))
	a.mu.Unlock()
}

// Cursor returns the area's current rotating cursor position, exposed
// for diagnostics only — correctness never depends on its value.
func (a *Area) Cursor() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

// AreaStats is a point-in-time occupancy snapshot of an InternalArea,
// for diagnostics only — nothing in the allocator's own logic consults
// it.
type AreaStats struct {
	Level          int
	TotalBlocks    int64
	UsedBlocks     int64
	ReservedBlocks int64
	Cursor         int64
	Children       int
}

// Snapshot returns a point-in-time occupancy snapshot of this area.
func (a *Area) Snapshot() AreaStats {
	used := a.usedBlocks.Load()
	a.mu.Lock()
	defer a.mu.Unlock()
	return AreaStats{
		Level:          a.level,
		TotalBlocks:    a.totalBlocks,
		UsedBlocks:     used,
		ReservedBlocks: a.reservedBlocks,
		Cursor:         a.cursor,
		Children:       len(a.children),
	}
}

// IsAllocated reports whether every block in [start, start+n) (area-
// relative) is allocated. Unlike free/mark_used, this diagnostic may
// span multiple children.
func (a *Area) IsAllocated(start, n int64) bool {
	for n > 0 {
		idx := start / a.childSize
		childStart := start % a.childSize
		run := a.childSize - childStart
		if run > n {
			run = n
		}
		if !a.children[idx].isAllocated(childStart, run) {
			return false
		}
		start += run
		n -= run
	}
	return true
}

// allocateDistributedInt is the descent algorithm: for each child
// visited (starting at hint's child, wrapping around the list), skip it
// if a lock-free read shows it exhausted, try to claim it
// (child_check_and_lock), recurse, accumulate, release. It stops once
// the request is satisfied, the sink fills, or every child has been
// visited.
func (a *Area) allocateDistributedInt(numBlocks, minAlloc, hint, baseOffset int64, sink extent.Sink, st *stats.Stats) int64 {
	if numBlocks <= 0 || len(a.children) == 0 {
		return 0
	}
	startIdx := hint / a.childSize
	if startIdx >= int64(len(a.children)) {
		startIdx = int64(len(a.children)) - 1
	}
	childHint := hint % a.childSize

	it := newAreaListIterator(int64(len(a.children)), startIdx, true)
	var allocated int64
	lastSuccess := int64(-1)

	for allocated < numBlocks && sink.Length() < sink.Capacity() {
		idx, ok := it.next()
		if !ok {
			break
		}
		st.AddNodesScanned(1)
		c := &a.children[idx]
		if c.isExhausted() {
			continue
		}
		remaining := numBlocks - allocated
		required := remaining
		if cap := c.size(); required > cap {
			required = cap
		}
		if !c.tryLock(required) {
			continue
		}
		var h int64
		if idx == startIdx {
			h = childHint
		}
		got := c.allocateDistributed(required, minAlloc, h, baseOffset+idx*a.childSize, sink, st)
		c.unlock(required, got)
		allocated += got
		if got > 0 {
			lastSuccess = idx
		}
	}
	if lastSuccess >= 0 {
		a.advanceCursor(lastSuccess)
	}
	return allocated
}

// FreeBlocks delegates to the single child whose range contains start
// and decrements this area's used counter. The caller (the area above,
// or the Root) guarantees the range doesn't straddle a child boundary.
func (a *Area) FreeBlocks(start, n int64) {
	idx := start / a.childSize
	childStart := start % a.childSize
	if childStart+n > a.childSize {
		panicPrecondition("Area.FreeBlocks", "free range straddles a child boundary")
	}
	a.children[idx].freeBlocks(childStart, n)
	a.subUsed(n)
}

// MarkUsed delegates to the single child whose range contains start and
// increments this area's used counter.
func (a *Area) MarkUsed(start, n int64) {
	idx := start / a.childSize
	childStart := start % a.childSize
	if childStart+n > a.childSize {
		panicPrecondition("Area.MarkUsed", "mark_used range straddles a child boundary")
	}
	a.children[idx].markUsed(childStart, n)
	a.addUsed(n)
}
