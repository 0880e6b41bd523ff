package reactor

import (
	"runtime"
	"sync"
	"time"

	uatomic "go.uber.org/atomic"

	"github.com/loopwire/reactor/internal/poller"
	"github.com/loopwire/reactor/log"
	"github.com/loopwire/reactor/metrics"
)

const readyBatchSize = 128

// EventLoop is the single-threaded reactor scheduler: it owns a
// Poller and a TimerQueue, and runs tasks posted from any goroutine
// through a mutex-guarded pending queue, woken by the Poller's own
// wakeup fd. Grounded on spec.md §4.D; the "owning thread" assertion
// is implemented with the goroutine-id-via-runtime.Stack trick from
// joeycumines-go-utilpkg/eventloop's isLoopThread/getGoroutineID,
// since Go exposes no official goroutine-id API and nothing in the
// example corpus wraps one in a library — this one function is kept
// on the standard library for that reason (see DESIGN.md).
type EventLoop struct {
	poller poller.Poller
	timers *TimerQueue

	mu      sync.Mutex
	pending []func()

	callingPendingTasks uatomic.Bool
	running             uatomic.Bool
	quitting            uatomic.Bool
	loopGoroutineID     uatomic.Uint64
}

// NewEventLoop constructs an EventLoop with a fresh platform Poller.
// It does not start running; call Loop to begin the scheduler tick.
func NewEventLoop() (*EventLoop, error) {
	p, err := poller.New()
	if err != nil {
		return nil, err
	}
	return &EventLoop{poller: p, timers: NewTimerQueue()}, nil
}

// Loop captures the calling goroutine as the owning thread, then runs
// the scheduler tick until Quit is called: poll for ready Dispatches,
// dispatch their revents, run expired timers, then run pending tasks,
// in that fixed order every iteration.
func (l *EventLoop) Loop() {
	l.loopGoroutineID.Store(getGoroutineID())
	l.running.Store(true)
	defer func() {
		l.running.Store(false)
		l.loopGoroutineID.Store(0)
	}()

	ready := make([]poller.Ready, 0, readyBatchSize)
	for !l.quitting.Load() {
		timeout := l.timers.NextTimeoutOrNegative()
		timeoutMS := -1
		if timeout >= 0 {
			timeoutMS = int(timeout / time.Millisecond)
		}
		var err error
		ready, err = l.poller.Wait(timeoutMS, ready[:0])
		if err != nil {
			log.Errorf("eventloop: poll: %v", err)
			continue
		}
		for _, r := range ready {
			if disp, ok := r.Desc.Owner.(*Dispatch); ok {
				disp.HandleEvent(r.Revents)
			}
		}
		l.timers.RunExpired(time.Now())
		l.runPendingTasks()
	}
}

// Quit requests the loop to stop at the start of its next iteration,
// waking a blocked poll if necessary.
func (l *EventLoop) Quit() {
	l.quitting.Store(true)
	if !l.IsInLoopGoroutine() {
		if err := l.poller.Trigger(); err != nil {
			log.Errorf("eventloop: trigger on quit: %v", err)
		}
	}
}

// RunInLoop executes task synchronously if called from the owning
// goroutine, otherwise defers it via QueueInLoop.
func (l *EventLoop) RunInLoop(task func()) {
	if l.IsInLoopGoroutine() {
		task()
		return
	}
	l.QueueInLoop(task)
}

// QueueInLoop appends task to the pending queue under lock. A wakeup
// write only happens when the caller is not the owning goroutine, or
// when the loop is already draining pending tasks — the reentrancy
// case spec.md §4.D calls out so a task queued while run_pending_tasks
// is iterating still gets scheduled for the next tick rather than
// silently waiting for an unrelated future wakeup.
func (l *EventLoop) QueueInLoop(task func()) {
	l.mu.Lock()
	l.pending = append(l.pending, task)
	l.mu.Unlock()

	if !l.IsInLoopGoroutine() || l.callingPendingTasks.Load() {
		if err := l.poller.Trigger(); err != nil {
			log.Errorf("eventloop: trigger: %v", err)
		}
	}
}

// AssertInLoop fails fatally if the calling goroutine is not this
// loop's owning goroutine.
func (l *EventLoop) AssertInLoop() {
	if !l.IsInLoopGoroutine() {
		log.Fatalf("eventloop: call from non-owning goroutine")
	}
}

// IsInLoopGoroutine reports whether the caller is running on this
// loop's owning goroutine.
func (l *EventLoop) IsInLoopGoroutine() bool {
	id := l.loopGoroutineID.Load()
	if id == 0 {
		return false
	}
	return getGoroutineID() == id
}

// RunAt forwards to the TimerQueue via RunInLoop. The returned TimerID
// is only valid when called from the loop's own goroutine: off-loop,
// RunInLoop queues the closure and returns immediately, before id is
// assigned, so the caller gets the zero TimerID and cannot Cancel this
// particular timer. Call from on-loop code when the id is needed.
func (l *EventLoop) RunAt(when time.Time, cb TimerCallback) TimerID {
	var id TimerID
	l.RunInLoop(func() {
		id = l.timers.RunAt(when, cb)
	})
	return id
}

// RunAfter forwards to the TimerQueue via RunInLoop. See RunAt's
// comment: the returned TimerID is only meaningful when called from
// the loop's own goroutine.
func (l *EventLoop) RunAfter(delay time.Duration, cb TimerCallback) TimerID {
	var id TimerID
	l.RunInLoop(func() {
		id = l.timers.RunAfter(delay, cb)
	})
	return id
}

// RunEvery forwards to the TimerQueue via RunInLoop. See RunAt's
// comment: the returned TimerID is only meaningful when called from
// the loop's own goroutine.
func (l *EventLoop) RunEvery(interval time.Duration, cb TimerCallback) TimerID {
	var id TimerID
	l.RunInLoop(func() {
		id = l.timers.RunEvery(interval, cb)
	})
	return id
}

// Cancel forwards to the TimerQueue; cancellation itself has no
// loop-affinity requirement since it only flips a tombstone flag.
func (l *EventLoop) Cancel(id TimerID) {
	l.timers.Cancel(id)
}

func (l *EventLoop) runPendingTasks() {
	l.mu.Lock()
	tasks := l.pending
	l.pending = nil
	l.mu.Unlock()

	l.callingPendingTasks.Store(true)
	defer l.callingPendingTasks.Store(false)
	metrics.Add(metrics.PendingTasksRun, uint64(len(tasks)))
	for _, task := range tasks {
		task()
	}
}

// getGoroutineID returns the current goroutine's numeric id, parsed
// out of the runtime.Stack header. Adapted from the same trick in
// joeycumines-go-utilpkg/eventloop/loop.go.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
