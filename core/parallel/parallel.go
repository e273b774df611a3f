package parallel

import (
	"context"
	"runtime"
	"sync"
)

// Parallelize splits items into contiguous ranges, one per CPU core, and
// runs fn(start, end) for each range concurrently.
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeWorkers(items, runtime.NumCPU(), fn)
}

// ParallelizeWorkers is Parallelize with an explicit worker count.
func ParallelizeWorkers(items, workers int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	if workers < 1 {
		workers = 1
	}
	if workers > items {
		workers = items
	}

	// ceiling division
	chunkSize := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, items)
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn sequentially when items is at most
// threshold, and in parallel otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ForEach calls fn(i) for every i in [0, items) across workers. fn must
// write its result into slot i of a caller-owned slice, which keeps the
// output in index order regardless of scheduling.
//
// Cancellation is checked before every item. The first error (or the
// context error) is returned and remaining items are skipped; the caller
// discards partial results.
func ForEach(ctx context.Context, items, workers int, fn func(i int) error) error {
	if items == 0 {
		return ctx.Err()
	}

	var (
		once     sync.Once
		firstErr error
		stop     = make(chan struct{})
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			close(stop)
		})
	}

	ParallelizeWorkers(items, workers, func(start, end int) {
		for i := start; i < end; i++ {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				fail(ctx.Err())
				return
			default:
			}
			if err := fn(i); err != nil {
				fail(err)
				return
			}
		}
	})
	return firstErr
}
