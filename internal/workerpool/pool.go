// Package workerpool offloads blocking work callbacks must not do on
// an EventLoop's own goroutine (spec.md §5: "long work is to be
// offloaded by the caller"), wrapping github.com/panjf2000/ants/v2 the
// same way the teacher's taskpool.go wraps it — a fixed-size goroutine
// pool instead of an unbounded goroutine-per-task spawn.
package workerpool

import "github.com/panjf2000/ants/v2"

const defaultPoolSize = 1000

// Pool is a bounded goroutine pool accepting func() tasks.
type Pool struct {
	inner *ants.Pool
}

// New constructs a Pool with size workers; size <= 0 uses the default
// of 1000, mirroring taskpool.go's sysPool/usrPool sizing.
func New(size int) (*Pool, error) {
	if size <= 0 {
		size = defaultPoolSize
	}
	p, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	return &Pool{inner: p}, nil
}

// Submit schedules task to run on a pool goroutine. The pool is
// constructed in blocking mode, so when every worker is busy Submit
// waits until one is free; ants handles the waiting.
func (p *Pool) Submit(task func()) error {
	return p.inner.Submit(task)
}

// Running returns the number of currently running goroutines.
func (p *Pool) Running() int { return p.inner.Running() }

// Release closes the pool, waiting for running tasks to finish.
func (p *Pool) Release() { p.inner.Release() }
