package tensor

import (
	"sync"
	"sync/atomic"
)

// workers bounds goroutine fan-out inside Linear and MatMul.
// Values <= 1 keep kernels on the calling goroutine.
var workers atomic.Int32

func init() {
	workers.Store(1)
}

// SetWorkers sets the maximum number of goroutines used by tensor kernels.
func SetWorkers(n int) {
	const maxInt32 = int(^uint32(0) >> 1)

	n = max(n, 1)
	n = min(n, maxInt32)

	workers.Store(int32(n))
}

// Workers reports the current kernel parallelism.
func Workers() int {
	return max(int(workers.Load()), 1)
}

// ParallelFor splits [0, n) into at most Workers() contiguous ranges and runs
// fn on each. It returns once every range is done.
func ParallelFor(n int, fn func(lo, hi int)) {
	parallelFor(n, Workers(), fn)
}

func parallelFor(n, maxWorkers int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}

	if maxWorkers <= 1 || n == 1 {
		fn(0, n)
		return
	}

	maxWorkers = min(maxWorkers, n)
	chunk := (n + maxWorkers - 1) / maxWorkers

	var wg sync.WaitGroup

	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)

		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}

	wg.Wait()
}
