package reactor

import (
	"container/heap"
	"sync"
	"time"

	"github.com/loopwire/reactor/metrics"
)

// TimerCallback runs when a TimerEntry's deadline is reached.
type TimerCallback func()

// TimerID identifies a scheduled TimerEntry for Cancel.
type TimerID uint64

// TimerEntry is one scheduled callback: a deadline, an optional repeat
// interval, and a unique id used both to break deadline ties and to
// cancel. Grounded on spec.md §3's TimerEntry and the teacher's
// TimerQueue-equivalent heap usage pattern (container/heap, like the
// teacher's own timer machinery), adapted to this runtime's single
// EventLoop-owned queue instead of a free-standing timer wheel.
type TimerEntry struct {
	deadline time.Time
	interval time.Duration
	cb       TimerCallback
	id       TimerID
	canceled bool
}

// timerHeap is a container/heap min-heap ordered by deadline, ties
// broken by id.
type timerHeap []*TimerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].id < h[j].id
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) {
	*h = append(*h, x.(*TimerEntry))
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// TimerQueue is a monotonic min-heap of deadlines, drained by its
// owning EventLoop once per tick. Cancellation is a lazy tombstone
// flag skipped on pop, per spec.md §4.C, rather than a heap removal —
// removing an arbitrary heap element is O(n); tombstoning keeps Cancel
// O(log n) amortized (the flag set is O(1), the eventual pop is
// O(log n) like any other pop).
type TimerQueue struct {
	mu     sync.Mutex
	heap   timerHeap
	byID   map[TimerID]*TimerEntry
	nextID TimerID
}

// NewTimerQueue returns an empty TimerQueue.
func NewTimerQueue() *TimerQueue {
	return &TimerQueue{byID: make(map[TimerID]*TimerEntry)}
}

// RunAt schedules cb to run at when.
func (q *TimerQueue) RunAt(when time.Time, cb TimerCallback) TimerID {
	return q.insert(when, 0, cb)
}

// RunAfter schedules cb to run once, delay from now.
func (q *TimerQueue) RunAfter(delay time.Duration, cb TimerCallback) TimerID {
	return q.insert(time.Now().Add(delay), 0, cb)
}

// RunEvery schedules cb to run repeatedly, starting interval from now
// and then every interval thereafter.
func (q *TimerQueue) RunEvery(interval time.Duration, cb TimerCallback) TimerID {
	return q.insert(time.Now().Add(interval), interval, cb)
}

func (q *TimerQueue) insert(when time.Time, interval time.Duration, cb TimerCallback) TimerID {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	e := &TimerEntry{deadline: when, interval: interval, cb: cb, id: q.nextID}
	heap.Push(&q.heap, e)
	q.byID[e.id] = e
	metrics.Add(metrics.TimersScheduled, 1)
	return e.id
}

// Cancel marks id as canceled; it is skipped, not executed, when its
// deadline is popped.
func (q *TimerQueue) Cancel(id TimerID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.byID[id]; ok {
		e.canceled = true
		delete(q.byID, id)
		metrics.Add(metrics.TimersCanceled, 1)
	}
}

// NextTimeoutOrNegative returns the duration until the earliest live
// deadline, or a negative duration if the queue is empty (meaning: the
// EventLoop should block in Poller.Wait with no timeout).
func (q *TimerQueue) NextTimeoutOrNegative() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.heap) > 0 && q.heap[0].canceled {
		heap.Pop(&q.heap)
	}
	if len(q.heap) == 0 {
		return -1
	}
	d := time.Until(q.heap[0].deadline)
	if d < 0 {
		return 0
	}
	return d
}

// RunExpired pops and runs every entry whose deadline has passed,
// in deadline order (ties by id). Repeating entries are re-inserted
// with deadline += interval. Expiry is decided only by comparing each
// deadline with now; there is no separate handling of a clock that
// moved backward. Deadlines and now taken from time.Now carry Go's
// monotonic clock reading, so wall-clock steps do not change which
// entries expire.
func (q *TimerQueue) RunExpired(now time.Time) {
	var expired []*TimerEntry
	q.mu.Lock()
	for len(q.heap) > 0 && !q.heap[0].deadline.After(now) {
		e := heap.Pop(&q.heap).(*TimerEntry)
		if e.canceled {
			continue
		}
		expired = append(expired, e)
	}
	q.mu.Unlock()

	for _, e := range expired {
		metrics.Add(metrics.TimersFired, 1)
		e.cb()
		if e.interval > 0 {
			q.mu.Lock()
			if !e.canceled {
				e.deadline = e.deadline.Add(e.interval)
				heap.Push(&q.heap, e)
				q.byID[e.id] = e
			}
			q.mu.Unlock()
		} else {
			q.mu.Lock()
			delete(q.byID, e.id)
			q.mu.Unlock()
		}
	}
}
