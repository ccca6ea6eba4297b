// Package alloc implements the allocator's tree: Zones at the leaves,
// InternalAreas routing above them, and the Root that owns the whole
// structure. Shaped after the core package's Segment/DB pair, but
// reshaped into a hierarchical bitmap tree instead of a flat slice of
// mmap'd segments.
package alloc

import (
	"bitalloc/internal/errs"
	"bitalloc/internal/extent"
	"bitalloc/internal/stats"
)

// kind tags which variant a child holds. The source this module is
// modeled on uses virtual dispatch between node kinds (BitMapZone vs
// BitMapAreaIN); Go has no cheap equivalent for a hot traversal path, so
// child holds a small tagged variant instead — dispatch is a switch, and
// the child list holds these structs directly rather than interface
// values.
type kind uint8

const (
	kindZone kind = iota
	kindArea
)

// child is one entry in an InternalArea's child list: either a Zone
// (leaf) or a smaller InternalArea, never both.
type child struct {
	kind kind
	zone *Zone
	area *Area
}

func zoneChild(z *Zone) child { return child{kind: kindZone, zone: z} }
func areaChild(a *Area) child { return child{kind: kindArea, area: a} }

func (c *child) size() int64 {
	switch c.kind {
	case kindZone:
		return c.zone.Size()
	default:
		return c.area.Size()
	}
}

func (c *child) usedBlocksUnlocked() int64 {
	switch c.kind {
	case kindZone:
		return c.zone.UsedBlocks()
	default:
		return c.area.UsedBlocks()
	}
}

func (c *child) isExhausted() bool {
	switch c.kind {
	case kindZone:
		return c.zone.IsExhausted()
	default:
		return c.area.IsExhausted()
	}
}

func (c *child) isAllocated(start, n int64) bool {
	switch c.kind {
	case kindZone:
		return c.zone.IsAllocated(start, n)
	default:
		return c.area.IsAllocated(start, n)
	}
}

// tryLock attempts to claim this child for the duration of a descent
// step. For a Zone this is the real exclusive lock; for an InternalArea
// it is a quick reservation of `required` blocks against the child's
// remaining free count: leaves use mutual exclusion, internal nodes use a counter
// reservation so multiple siblings-of-siblings can proceed concurrently
// underneath different areas.
func (c *child) tryLock(required int64) bool {
	switch c.kind {
	case kindZone:
		return c.zone.TryLockExclusive()
	default:
		return c.area.reserve(required)
	}
}

// unlock releases whatever tryLock acquired. allocated is how many
// blocks the descent into this child actually placed, needed by
// InternalArea children to convert the reservation into used blocks.
func (c *child) unlock(reserved, allocated int64) {
	switch c.kind {
	case kindZone:
		c.zone.Unlock()
	default:
		c.area.unreserve(reserved, allocated)
	}
}

func (c *child) allocateDistributed(numBlocks, minAlloc, hint, baseOffset int64, sink extent.Sink, st *stats.Stats) int64 {
	switch c.kind {
	case kindZone:
		return c.zone.AllocateDistributed(numBlocks, minAlloc, hint, baseOffset, sink)
	default:
		return c.area.allocateDistributedInt(numBlocks, minAlloc, hint, baseOffset, sink, st)
	}
}

func (c *child) freeBlocks(start, n int64) {
	switch c.kind {
	case kindZone:
		c.zone.FreeBlocks(start, n)
	default:
		c.area.FreeBlocks(start, n)
	}
}

func (c *child) markUsed(start, n int64) {
	switch c.kind {
	case kindZone:
		c.zone.MarkUsed(start, n)
	default:
		c.area.MarkUsed(start, n)
	}
}

func panicPrecondition(op, msg string) {
	errs.Precondition(op, msg)
}
