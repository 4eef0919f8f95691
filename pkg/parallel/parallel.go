// Package parallel provides a fork-join loop over a contiguous index range
// where every task owns private scratch state.
package parallel

import (
	"runtime"
	"sync"
)

// Workers returns n if positive, otherwise the number of CPUs.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// For splits [0, n) into at most workers contiguous chunks and runs body on
// each chunk in its own goroutine. newScratch is called once per chunk and
// its result is passed only to that chunk, so the body can reuse buffers
// without synchronization. For returns when every chunk has finished.
func For[S any](n, workers int, newScratch func() S, body func(lo, hi int, scratch S)) {
	if n <= 0 {
		return
	}
	workers = Workers(workers)
	if workers > n {
		workers = n
	}
	if workers == 1 {
		body(0, n, newScratch())
		return
	}

	perWorker := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += perWorker {
		hi := lo + perWorker
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			body(lo, hi, newScratch())
		}(lo, hi)
	}
	wg.Wait()
}
