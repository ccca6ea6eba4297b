package main

import (
	"fmt"
	"os"
	"sync"

	"bitalloc"
)

func main() {
	a, err := bitalloc.New(bitalloc.Config{
		TotalBlocks: 1 << 20,
		ZoneSize:    1024,
		SpanSize:    256,
		Mode:        bitalloc.Concurrent,
		StatsOn:     true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		want = 4000
	)
	granted := make([][]bitalloc.Extent, 4)

	wg.Add(4)
	for i := 0; i < 4; i++ {
		i := i
		go func() {
			defer wg.Done()
			sink := bitalloc.NewSliceSink(8)
			got := a.AllocateReserved(int64(want), 16, int64(i*1<<16), sink)
			mu.Lock()
			granted[i] = sink.Extents()
			mu.Unlock()
			fmt.Printf("worker %d: requested %d, got %d across %d extents\n", i, want, got, len(sink.Extents()))
		}()
	}
	wg.Wait()

	fmt.Printf("total used: %d / %d\n", a.UsedBlocks(), a.TotalBlocks())

	for i, extents := range granted {
		if len(extents) == 0 {
			continue
		}
		a.FreeBlocksDistributed(extents)
		fmt.Printf("worker %d: freed its extents\n", i)
	}

	fmt.Printf("total used after free: %d / %d\n", a.UsedBlocks(), a.TotalBlocks())

	if s := a.Stats(); s != nil {
		snap := s.Snapshot()
		fmt.Printf("stats: alloc_calls=%d free_calls=%d allocated=%d freed=%d\n",
			snap.AllocCalls, snap.FreeCalls, snap.TotalAllocated, snap.TotalFreed)
	}

	a.Shutdown()
}
