package alloc

// areaListIterator walks an InternalArea's children starting at a given
// index, optionally wrapping around. It visits each child at most
// twice: once on the linear pass, and — if wrapping — once more, up to
// but not past the original start index. The quirk where the start
// index is yielded a second time ("end of wrap cycle + 1") is
// deliberate: it lets a scan that wrapped all the way around
// distinguish "I have now seen everything" from "I am about to see the
// start again" without a separate counter, and it is load-balancing
// glue for the rotating cursor, not an accident — it must not be
// simplified away.
type areaListIterator struct {
	size    int64
	start   int64
	cur     int64
	wrap    bool
	wrapped bool
	ended   bool
}

func newAreaListIterator(size, start int64, wrap bool) *areaListIterator {
	return &areaListIterator{size: size, start: start, cur: start, wrap: wrap}
}

// next returns the next child index to visit, or ok=false when the walk
// is complete.
func (it *areaListIterator) next() (idx int64, ok bool) {
	cur := it.cur
	if it.wrapped && cur == it.start {
		if !it.ended {
			it.ended = true
			return cur, true
		}
		return 0, false
	}
	it.cur++
	if it.cur == it.size && it.wrap {
		it.cur = 0
		it.wrapped = true
	}
	if cur == it.size {
		return 0, false
	}
	return cur, true
}
