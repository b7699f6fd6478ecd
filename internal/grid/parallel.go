package grid

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the worker count used when a caller passes workers <= 0.
func DefaultWorkers() int { return runtime.GOMAXPROCS(0) }

// Parallel splits the index range [0, n) into contiguous blocks and calls
// fn(lo, hi) for each block on up to workers goroutines. Blocks never
// overlap, so fn may write to disjoint parts of a shared output without
// locking. The first error returned by fn is returned.
func Parallel(n, workers int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > n {
		workers = n
	}
	if workers == 1 {
		return fn(0, n)
	}

	var eg errgroup.Group
	eg.SetLimit(workers)
	block := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += block {
		lo, hi := lo, min(lo+block, n)
		eg.Go(func() error { return fn(lo, hi) })
	}
	return eg.Wait()
}
