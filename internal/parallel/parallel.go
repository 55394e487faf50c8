// Package parallel provides worker-pool helpers for data-parallel loops.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is
// too small. f must be safe to call from multiple goroutines; iterations
// must not depend on each other.
//
// The range is split into one contiguous span per worker, each at least
// MinChunkSize long, with the remainder spread across the leading
// workers so span lengths differ by at most one.
func For(n int, f func(i int), cfg Config) {
	workers := 0
	if cfg.Enabled && cfg.MinChunkSize > 0 {
		workers = min(cfg.NumWorkers, n/cfg.MinChunkSize)
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	span, remainder := n/workers, n%workers

	var wg sync.WaitGroup
	wg.Add(workers)
	start := 0
	for w := 0; w < workers; w++ {
		end := start + span
		if w < remainder {
			end++
		}
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
		start = end
	}
	wg.Wait()
}
