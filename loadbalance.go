package reactor

import "sync"

// LoadBalance hands out an *EventLoop to whoever needs to bind a new
// Dispatch, e.g. an Acceptor distributing freshly accepted connections
// across a fixed pool of loops. Adapted from the teacher's
// internal/poller.PollMgr/LoadBalance pair, re-targeted at *EventLoop:
// teacher pools raw Pollers (many per PollMgr, each its own goroutine),
// but this runtime binds exactly one Poller to exactly one EventLoop,
// so the thing worth round-robining over is the loop, not the poller.
type LoadBalance interface {
	// Register adds a loop to the pool.
	Register(loop *EventLoop)
	// Pick returns the next loop per this balancer's policy.
	Pick() *EventLoop
	// Iterate calls fn for every registered loop, in registration order,
	// stopping early if fn returns false.
	Iterate(fn func(index int, loop *EventLoop) bool)
	// Len returns the number of registered loops.
	Len() int
}

// roundRobin is the default LoadBalance: picks loops in a repeating
// cycle, mirroring the teacher's loadbalance_roundrobin.go.
type roundRobin struct {
	mu    sync.Mutex
	loops []*EventLoop
	next  int
}

// NewRoundRobin returns a LoadBalance that cycles through registered
// loops in registration order.
func NewRoundRobin() LoadBalance {
	return &roundRobin{}
}

// Register implements LoadBalance.
func (r *roundRobin) Register(loop *EventLoop) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loops = append(r.loops, loop)
}

// Pick implements LoadBalance.
func (r *roundRobin) Pick() *EventLoop {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.loops) == 0 {
		return nil
	}
	loop := r.loops[r.next]
	r.next = (r.next + 1) % len(r.loops)
	return loop
}

// Iterate implements LoadBalance.
func (r *roundRobin) Iterate(fn func(index int, loop *EventLoop) bool) {
	r.mu.Lock()
	loops := make([]*EventLoop, len(r.loops))
	copy(loops, r.loops)
	r.mu.Unlock()
	for i, loop := range loops {
		if !fn(i, loop) {
			return
		}
	}
}

// Len implements LoadBalance.
func (r *roundRobin) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loops)
}
