package alloc

import (
	"fmt"
	"io"
	"sync"

	"bitalloc/internal/errs"
	"bitalloc/internal/extent"
	"bitalloc/internal/stats"
)

// Root is the BitAllocator: the public API, locking discipline,
// reservation accounting, and the two allocation modes. It is a
// specialized Area — the top of the tree — plus the locks and
// bookkeeping only the top needs: the serial mutex, the structural
// reader/writer lock, the statistics sink, and extraBlocks.
//
// Shaped after core.DB, which paired a flat slice of segments with
// lifeMu (structural reader/writer lock) and writeMu (serializes the
// write path) — the same two-tier shape reused here for Root's rw lock
// and serial mutex, generalized from "a slice of segments" to "a tree
// of zones".
type Root struct {
	top *Area

	rw       sync.RWMutex // protects tree shape; writer held only during shutdown
	serialMu sync.Mutex   // held for the whole allocate_reserved call when mode == Serial

	mode        Mode
	zoneSize    int64
	spanSize    int64
	extraBlocks int64
	stats       *stats.Stats
	closed      bool
}

// Config holds the allocator's construction parameters.
type Config struct {
	// TotalBlocks is the declared, user-visible capacity. Rounded up
	// internally to a multiple of ZoneSize; the remainder (ExtraBlocks)
	// is pre-marked allocated and never handed out.
	TotalBlocks int64
	// ZoneSize is the number of blocks per Zone; must be a power of two
	// and a multiple of bits.WordBits. Defaults to DefaultZoneSize.
	ZoneSize int64
	// SpanSize is the fanout of each InternalArea; must be a power of
	// two. Defaults to DefaultSpanSize.
	SpanSize int64
	// Mode selects Serial or Concurrent allocation.
	Mode Mode
	// DefaultValue: if true, every block starts allocated.
	DefaultValue bool
	// StatsOn: if true, a statistics sink is constructed and exposed.
	StatsOn bool
}

// New builds a Root from cfg, validating parameters and rounding
// TotalBlocks up to a whole number of zones.
func New(cfg Config) (*Root, error) {
	zoneSize := cfg.ZoneSize
	if zoneSize == 0 {
		zoneSize = DefaultZoneSize
	}
	spanSize := cfg.SpanSize
	if spanSize == 0 {
		spanSize = DefaultSpanSize
	}
	mode := cfg.Mode
	if mode == 0 {
		mode = Concurrent
	}
	if cfg.TotalBlocks <= 0 {
		return nil, fmt.Errorf("bitalloc: total_blocks must be positive, got %d", cfg.TotalBlocks)
	}
	if !isPowerOfTwo(zoneSize) || zoneSize < wordBitsInt64 {
		return nil, fmt.Errorf("bitalloc: zone_size_blocks must be a power of two >= %d, got %d", wordBitsInt64, zoneSize)
	}
	if !isPowerOfTwo(spanSize) || spanSize < 2 {
		return nil, fmt.Errorf("bitalloc: span_size must be a power of two >= 2, got %d", spanSize)
	}

	internalTotal := roundUp(cfg.TotalBlocks, zoneSize)
	extra := internalTotal - cfg.TotalBlocks

	top := buildTopArea(internalTotal, zoneSize, spanSize, cfg.DefaultValue)
	if extra > 0 && !cfg.DefaultValue {
		// extra_blocks sit at the tail of the internal range and must
		// be pre-marked allocated regardless of default_value, so they
		// can never be handed out. With default_value every block,
		// extras included, is already allocated by buildTopArea.
		top.MarkUsed(internalTotal-extra, extra)
	}

	r := &Root{
		top:         top,
		mode:        mode,
		zoneSize:    zoneSize,
		spanSize:    spanSize,
		extraBlocks: extra,
	}
	if cfg.StatsOn {
		r.stats = &stats.Stats{}
	}
	return r, nil
}

// buildTopArea constructs the zone/area tree bottom-up and returns the
// single top-level Area, fanout determined by spanSize.
func buildTopArea(totalBlocks, zoneSize, spanSize int64, preMarked bool) *Area {
	numZones := totalBlocks / zoneSize
	nodes := make([]child, numZones)
	for i := int64(0); i < numZones; i++ {
		nodes[i] = zoneChild(NewZone(i, zoneSize, preMarked))
	}
	if numZones == 1 {
		a := newArea(0, zoneSize, zoneSize, nodes)
		if preMarked {
			a.usedBlocks.Store(zoneSize)
		}
		return a
	}

	coverage := zoneSize
	level := 0
	for {
		level++
		groups := make([]child, 0, (int64(len(nodes))+spanSize-1)/spanSize)
		for i := 0; i < len(nodes); i += int(spanSize) {
			end := i + int(spanSize)
			if end > len(nodes) {
				end = len(nodes)
			}
			group := append([]child(nil), nodes[i:end]...)
			var total int64
			for j := range group {
				total += group[j].size()
			}
			ga := newArea(level, total, coverage, group)
			if preMarked {
				ga.usedBlocks.Store(total)
			}
			groups = append(groups, areaChild(ga))
		}
		nodes = groups
		coverage *= spanSize
		if len(nodes) == 1 {
			return nodes[0].area
		}
	}
}

const wordBitsInt64 = 64

func (r *Root) checkOpen(op string) {
	if r.closed {
		panicPrecondition(op, errs.ErrShutdown.Error())
	}
}

// TotalBlocks returns the user-visible capacity: the internal total
// minus extraBlocks.
func (r *Root) TotalBlocks() int64 {
	return r.top.Size() - r.extraBlocks
}

// UsedBlocks returns the user-visible used-block count: the internal
// tally minus extraBlocks, which are always counted as used internally
// but are never part of the caller's address space.
func (r *Root) UsedBlocks() int64 {
	return r.top.UsedBlocks() - r.extraBlocks
}

// Mode returns the allocator's configured allocation mode.
func (r *Root) Mode() Mode { return r.mode }

// Stats returns the attached statistics sink, or nil if stats were not
// enabled at construction.
func (r *Root) Stats() *stats.Stats { return r.stats }

// AllocateReserved is the primary allocation entry point: it reserves
// up to numBlocks against the top area's counter (clamped to the
// remaining headroom), descends the tree, then releases the whole
// reservation and adds the blocks actually allocated to the used count.
// Returns the number of blocks placed into sink.
//
// Lock order: rw-lock reader side, then the serial mutex if mode ==
// Serial, then the tree's own locks during descent — top-down and
// acyclic, which precludes deadlock.
func (r *Root) AllocateReserved(numBlocks, minAlloc, hint int64, sink extent.Sink) int64 {
	r.rw.RLock()
	defer r.rw.RUnlock()
	r.checkOpen("Root.AllocateReserved")

	if numBlocks <= 0 {
		return 0
	}
	if r.mode == Serial {
		r.serialMu.Lock()
		defer r.serialMu.Unlock()
	}

	if r.stats != nil {
		r.stats.AddAllocCalls(1)
	}

	reserved := r.top.reserveUpTo(numBlocks)
	if reserved == 0 {
		return 0
	}
	allocated := r.top.allocateDistributedInt(reserved, minAlloc, hint, 0, sink, r.stats)
	r.top.unreserve(reserved, allocated)

	if r.stats != nil {
		r.stats.AddAllocated(allocated)
		if r.mode == Serial {
			r.stats.AddSerialScans(1)
		} else {
			r.stats.AddConcurrentScans(1)
		}
	}
	return allocated
}

// splitAtZoneBoundaries calls fn once per zone-aligned slice of
// [start, start+n), so that every recursive single-child delegation
// below (Area.FreeBlocks / Area.MarkUsed) never sees a range that
// straddles a child boundary at any level — zone boundaries nest inside
// every coarser area boundary by construction, so zone alignment is
// sufficient.
func (r *Root) splitAtZoneBoundaries(start, n int64, fn func(start, n int64)) {
	pos := start
	remaining := n
	for remaining > 0 {
		zoneEnd := (pos/r.zoneSize + 1) * r.zoneSize
		run := zoneEnd - pos
		if run > remaining {
			run = remaining
		}
		fn(pos, run)
		pos += run
		remaining -= run
	}
}

// FreeBlocks clears bits [start, start+n) and decrements counters at
// every level on the path. Precondition: every bit in the range was
// allocated and the range lies within [0, total_blocks).
func (r *Root) FreeBlocks(start, n int64) {
	r.rw.RLock()
	defer r.rw.RUnlock()
	r.checkOpen("Root.FreeBlocks")

	if n == 0 {
		return
	}
	if n < 0 || start < 0 || start+n > r.TotalBlocks() {
		panicPrecondition("Root.FreeBlocks", "range out of bounds")
	}
	r.splitAtZoneBoundaries(start, n, r.top.FreeBlocks)
	if r.stats != nil {
		r.stats.AddFreeCalls(1)
		r.stats.AddFreed(n)
	}
}

// MarkUsed pre-marks [start, start+n) as allocated without going
// through the reservation protocol — used by callers restoring external
// state. Precondition: no bit in the range was already allocated.
func (r *Root) MarkUsed(start, n int64) {
	r.rw.RLock()
	defer r.rw.RUnlock()
	r.checkOpen("Root.MarkUsed")

	if n == 0 {
		return
	}
	if n < 0 || start < 0 || start+n > r.TotalBlocks() {
		panicPrecondition("Root.MarkUsed", "range out of bounds")
	}
	r.splitAtZoneBoundaries(start, n, r.top.MarkUsed)
}

// FreeBlocksDistributed bulk-frees a set of extents.
func (r *Root) FreeBlocksDistributed(extents []extent.Extent) {
	for _, e := range extents {
		r.FreeBlocks(e.Start, e.Count)
	}
}

// IsAllocatedRange reports whether every block in [start, start+n) is
// allocated.
func (r *Root) IsAllocatedRange(start, n int64) bool {
	r.rw.RLock()
	defer r.rw.RUnlock()
	r.checkOpen("Root.IsAllocatedRange")
	if n == 0 {
		return true
	}
	if start < 0 || start+n > r.TotalBlocks() {
		panicPrecondition("Root.IsAllocatedRange", "range out of bounds")
	}
	return r.top.IsAllocated(start, n)
}

// IsAllocatedExtents reports whether every block in the union of
// extents is allocated.
func (r *Root) IsAllocatedExtents(extents []extent.Extent) bool {
	for _, e := range extents {
		if !r.IsAllocatedRange(e.Start, e.Count) {
			return false
		}
	}
	return true
}

// Shutdown tears the allocator down: it takes the writer side of the
// structural rw-lock (the only writer acquisition in the whole module)
// and marks the Root closed; the zone/area tree itself is left in place.
// A second call panics with a precondition violation. After Shutdown,
// AllocateReserved, FreeBlocks, FreeBlocksDistributed, MarkUsed and the
// IsAllocated queries panic with a precondition violation; TotalBlocks,
// UsedBlocks, Mode, Stats and Dump do not check for shutdown.
func (r *Root) Shutdown() {
	r.rw.Lock()
	defer r.rw.Unlock()
	if r.closed {
		panicPrecondition("Root.Shutdown", "shutdown called twice")
	}
	r.closed = true
}

// Dump writes a human-readable occupancy summary of the tree to w, for
// debugging. It takes only the reader side of the structural lock.
func (r *Root) Dump(w io.Writer) {
	r.rw.RLock()
	defer r.rw.RUnlock()
	fmt.Fprintf(w, "bitalloc: total=%d used=%d extra=%d mode=%s\n",
		r.TotalBlocks(), r.UsedBlocks(), r.extraBlocks, r.mode)
	dumpArea(w, r.top, 0)
}

func dumpArea(w io.Writer, a *Area, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	snap := a.Snapshot()
	fmt.Fprintf(w, "%sarea level=%d size=%d used=%d reserved=%d cursor=%d children=%d\n",
		indent, snap.Level, snap.TotalBlocks, snap.UsedBlocks, snap.ReservedBlocks, snap.Cursor, snap.Children)
	for _, c := range a.children {
		switch c.kind {
		case kindZone:
			fmt.Fprintf(w, "%s  zone size=%d used=%d\n", indent, c.zone.Size(), c.zone.UsedBlocks())
		default:
			dumpArea(w, c.area, depth+1)
		}
	}
}
