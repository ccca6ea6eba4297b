// Package stats implements the allocator's statistics sink: plain
// monotonic atomic int64 counters, which wrap around (two's complement)
// on 64-bit overflow.
package stats

import "sync/atomic"

// Stats mirrors the original BitAllocatorStats class field-for-field: a
// fixed set of atomic int64 counters, no locks needed since every
// increment is a single atomic op.
type Stats struct {
	allocCalls      atomic.Int64
	freeCalls       atomic.Int64
	totalAllocated  atomic.Int64
	totalFreed      atomic.Int64
	serialScans     atomic.Int64
	concurrentScans atomic.Int64
	nodesScanned    atomic.Int64
}

// Snapshot is a point-in-time, non-atomic read of every counter.
type Snapshot struct {
	AllocCalls      int64
	FreeCalls       int64
	TotalAllocated  int64
	TotalFreed      int64
	SerialScans     int64
	ConcurrentScans int64
	NodesScanned    int64
}

func (s *Stats) AddAllocCalls(n int64)      { s.allocCalls.Add(n) }
func (s *Stats) AddFreeCalls(n int64)       { s.freeCalls.Add(n) }
func (s *Stats) AddAllocated(n int64)       { s.totalAllocated.Add(n) }
func (s *Stats) AddFreed(n int64)           { s.totalFreed.Add(n) }
func (s *Stats) AddSerialScans(n int64)     { s.serialScans.Add(n) }
func (s *Stats) AddConcurrentScans(n int64) { s.concurrentScans.Add(n) }

// AddNodesScanned is safe to call on a nil *Stats (the no-stats-attached
// case): the descent loop calls it unconditionally rather than guarding
// every call site.
func (s *Stats) AddNodesScanned(n int64) {
	if s == nil {
		return
	}
	s.nodesScanned.Add(n)
}

// Snapshot returns a copy of every counter's current value.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		AllocCalls:      s.allocCalls.Load(),
		FreeCalls:       s.freeCalls.Load(),
		TotalAllocated:  s.totalAllocated.Load(),
		TotalFreed:      s.totalFreed.Load(),
		SerialScans:     s.serialScans.Load(),
		ConcurrentScans: s.concurrentScans.Load(),
		NodesScanned:    s.nodesScanned.Load(),
	}
}
