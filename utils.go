package metaballs

import (
	"runtime"
	"sync"
)

// minChunk is the smallest number of samples worth handing to a goroutine.
const minChunk = 2048

// parallelChunks splits [0,n) into contiguous chunks and calls fn for each
// chunk on its own goroutine, returning once every call has returned.
// Small inputs and workers == 1 run on the calling goroutine.
func parallelChunks(n, workers int, fn func(start, end int)) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if maxWorkers := n / minChunk; workers > maxWorkers {
		workers = maxWorkers
	}
	if workers <= 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}
