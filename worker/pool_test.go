package worker

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsAllJobs(t *testing.T) {
	wp := NewWorkerPool(4)
	wp.Start()

	var done int64
	const n = 200
	for i := 0; i < n; i++ {
		wp.Submit(func() {
			atomic.AddInt64(&done, 1)
		})
	}
	wp.Stop()

	if got := atomic.LoadInt64(&done); got != n {
		t.Fatalf("done = %d, want %d", got, n)
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	wp := NewWorkerPool(1)
	wp.Start()

	var inFlight, maxInFlight int64
	for i := 0; i < 8; i++ {
		wp.Submit(func() {
			cur := atomic.AddInt64(&inFlight, 1)
			for {
				m := atomic.LoadInt64(&maxInFlight)
				if cur <= m || atomic.CompareAndSwapInt64(&maxInFlight, m, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
		})
	}
	wp.Stop()

	if maxInFlight != 1 {
		t.Fatalf("maxInFlight = %d, want 1 (single worker)", maxInFlight)
	}
}

func TestNewWorkerPoolDefaultsToOneWorker(t *testing.T) {
	wp := NewWorkerPool(0)
	if wp.workerCount != 1 {
		t.Fatalf("workerCount = %d, want 1", wp.workerCount)
	}
}
