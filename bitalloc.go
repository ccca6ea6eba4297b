// Package bitalloc is an in-memory hierarchical bitmap block allocator.
//
// Blocks are grouped into fixed-size Zones; Zones are grouped under
// InternalAreas in a tree whose fanout is SpanSize; a single Root sits
// at the top and owns the tree, the locking discipline, and the
// reservation protocol that makes concurrent allocation safe without
// serializing the whole allocator on one lock.
package bitalloc

import (
	"io"

	"bitalloc/internal/alloc"
	"bitalloc/internal/errs"
	"bitalloc/internal/extent"
	"bitalloc/internal/stats"
)

// Sentinel errors, re-exported from the internal errs package. No method
// returns ErrShutdown: operations invoked after Shutdown panic with a
// precondition error whose message is ErrShutdown's text.
var (
	ErrShutdown = errs.ErrShutdown
)

// Mode selects how AllocateReserved serializes allocation decisions.
type Mode = alloc.Mode

const (
	Serial     = alloc.Serial
	Concurrent = alloc.Concurrent
)

// Extent and Sink mirror the internal/extent contract, re-exported so
// callers never need to import an internal package to use the
// allocator.
type Extent = extent.Extent
type Sink = extent.Sink
type SliceSink = extent.SliceSink

// NewSliceSink creates a fixed-capacity Sink backed by a slice.
func NewSliceSink(capacity int) *SliceSink { return extent.NewSliceSink(capacity) }

// Stats is the allocator's live statistics sink.
type Stats = stats.Stats

// StatsSnapshot is a point-in-time read of every counter in Stats.
type StatsSnapshot = stats.Snapshot

// Config is the allocator's construction parameters. See
// alloc.Config for field documentation.
type Config = alloc.Config

// BitAllocator is the allocator's public handle. The zero value is not
// usable; construct one with New.
type BitAllocator struct {
	root *alloc.Root
}

// New builds a BitAllocator from cfg.
func New(cfg Config) (*BitAllocator, error) {
	root, err := alloc.New(cfg)
	if err != nil {
		return nil, err
	}
	return &BitAllocator{root: root}, nil
}

// TotalBlocks returns the allocator's declared capacity.
func (b *BitAllocator) TotalBlocks() int64 { return b.root.TotalBlocks() }

// UsedBlocks returns the number of blocks currently allocated.
func (b *BitAllocator) UsedBlocks() int64 { return b.root.UsedBlocks() }

// Mode returns the allocator's configured allocation mode.
func (b *BitAllocator) Mode() Mode { return b.root.Mode() }

// Stats returns the allocator's statistics sink, or nil if it was not
// enabled at construction via Config.StatsOn.
func (b *BitAllocator) Stats() *Stats { return b.root.Stats() }

// AllocateReserved attempts to allocate numBlocks blocks, each placed
// extent at least minAlloc blocks long where possible, scanning from
// hint. Extents are appended to sink until sink is full or the request
// is satisfied. Returns the number of blocks actually placed into sink,
// which may be less than numBlocks if the allocator has insufficient
// free space or sink filled first.
func (b *BitAllocator) AllocateReserved(numBlocks, minAlloc, hint int64, sink Sink) int64 {
	return b.root.AllocateReserved(numBlocks, minAlloc, hint, sink)
}

// FreeBlocks releases [start, start+n). Every block in the range must
// currently be allocated; violating that is a fatal precondition error
// (see errs.PreconditionError), not a returned error.
func (b *BitAllocator) FreeBlocks(start, n int64) { b.root.FreeBlocks(start, n) }

// FreeBlocksDistributed releases every extent in extents.
func (b *BitAllocator) FreeBlocksDistributed(extents []Extent) {
	b.root.FreeBlocksDistributed(extents)
}

// MarkUsed marks [start, start+n) allocated without going through the
// reservation protocol, for restoring externally-tracked state. Every
// block in the range must currently be free.
func (b *BitAllocator) MarkUsed(start, n int64) { b.root.MarkUsed(start, n) }

// IsAllocated reports whether every block in [start, start+n) is
// allocated.
func (b *BitAllocator) IsAllocated(start, n int64) bool {
	return b.root.IsAllocatedRange(start, n)
}

// IsAllocatedExtents reports whether every block named by extents is
// allocated.
func (b *BitAllocator) IsAllocatedExtents(extents []Extent) bool {
	return b.root.IsAllocatedExtents(extents)
}

// Shutdown closes the allocator. After Shutdown, AllocateReserved,
// FreeBlocks, FreeBlocksDistributed, MarkUsed, IsAllocated and
// IsAllocatedExtents panic with a precondition violation; TotalBlocks,
// UsedBlocks, Mode, Stats and Dump do not check for shutdown. Shutdown
// itself may only be called once; a second call panics.
func (b *BitAllocator) Shutdown() { b.root.Shutdown() }

// Dump writes a human-readable occupancy summary to w, for debugging.
func (b *BitAllocator) Dump(w io.Writer) { b.root.Dump(w) }
