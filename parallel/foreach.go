// Package parallel contains the bounded parallel loops used by the network and the data pipeline.
package parallel

import "sync"
import "sync/atomic"
import "runtime"

import "github.com/klauspost/cpuid/v2"

var workers atomic.Int64

func init() {
	workers.Store(int64(DefaultWorkers()))
}

// DefaultWorkers reports the number of logical cores, as detected by cpuid,
// falling back to runtime.NumCPU. Can't return 0.
func DefaultWorkers() int {
	n := cpuid.CPU.LogicalCores
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n <= 0 {
		n = 1
	}
	return n
}

// SetWorkers sets the concurrency used by Each. Values below 1 restore the default.
func SetWorkers(n int) {
	if n < 1 {
		n = DefaultWorkers()
	}
	workers.Store(int64(n))
}

// Workers reports the concurrency used by Each.
func Workers() int {
	return int(workers.Load())
}

// ForEach executes a for loop with a limited number of concurrent goroutines.
// Each goroutine processes one integer, from 0 to length.
func ForEach(length, limit int, body func(i int)) {
	if limit <= 0 {
		limit = 1 // Default to 1 if limit is zero or negative
	}
	if length <= 0 {
		return // No iterations to perform
	}
	if limit == 1 || length == 1 {
		for i := 0; i < length; i++ {
			body(i)
		}
		return
	}

	sem := make(chan struct{}, limit) // Semaphore with buffer size 'limit'
	var wg sync.WaitGroup
	wg.Add(length)

	for i := 0; i < length; i++ {
		sem <- struct{}{} // Acquire semaphore
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }() // Release semaphore after function exits

			body(i)
		}(i)
	}

	wg.Wait() // Wait for all goroutines to finish
}

// Each is ForEach bounded by Workers.
func Each(length int, body func(i int)) {
	ForEach(length, Workers(), body)
}
