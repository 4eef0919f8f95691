package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestForCoversRangeOnce(t *testing.T) {
	for _, tc := range []struct{ n, workers int }{
		{0, 4}, {1, 4}, {7, 3}, {100, 8}, {5, 16}, {64, 0}, {10, 1},
	} {
		hits := make([]int32, tc.n)
		For(tc.n, tc.workers, func() struct{} { return struct{}{} }, func(lo, hi int, _ struct{}) {
			for i := lo; i < hi; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Errorf("n=%d workers=%d: index %d visited %d times", tc.n, tc.workers, i, h)
			}
		}
	}
}

func TestForScratchIsPrivate(t *testing.T) {
	type scratch struct{ buf []int }

	var mu sync.Mutex
	seen := map[*scratch]int{}
	For(40, 4, func() *scratch { return &scratch{buf: make([]int, 1)} }, func(lo, hi int, s *scratch) {
		for i := lo; i < hi; i++ {
			s.buf[0] += i
		}
		mu.Lock()
		seen[s]++
		mu.Unlock()
	})

	if len(seen) != 4 {
		t.Fatalf("Expected 4 scratch instances, got %d", len(seen))
	}
	total := 0
	for s, uses := range seen {
		if uses != 1 {
			t.Errorf("Scratch shared across %d chunks", uses)
		}
		total += s.buf[0]
	}
	if total != 40*39/2 {
		t.Errorf("Expected sum %d, got %d", 40*39/2, total)
	}
}

func TestWorkers(t *testing.T) {
	if Workers(3) != 3 {
		t.Errorf("Expected explicit worker count to be kept")
	}
	if Workers(0) != runtime.NumCPU() {
		t.Errorf("Expected default worker count to be NumCPU")
	}
}
