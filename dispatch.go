package reactor

import (
	"github.com/loopwire/reactor/internal/poller"
	"github.com/loopwire/reactor/log"
)

// ReadCallback, WriteCallback, CloseCallback and ErrorCallback are the
// four user callbacks a Dispatch fans kernel readiness out to.
type ReadCallback func()

// WriteCallback is invoked when the fd becomes writable.
type WriteCallback func()

// CloseCallback is invoked on hangup-without-read.
type CloseCallback func()

// ErrorCallback is invoked when the fd reports an error condition.
type ErrorCallback func()

// Dispatch is a per-fd handle binding an interest mask, an owner tie,
// and the four user callbacks, grounded on the teacher's epoll/kqueue
// Desc plus the Channel shape from original_source/voyager's reactor
// core. Desc itself (internal/poller) stays a thin arena-friendly
// cookie; all of the interest-mask bookkeeping, the tie, and the
// callbacks live here, one layer above the kernel-facing Desc.
type Dispatch struct {
	loop *EventLoop
	desc *poller.Desc

	reading, writing, registered bool

	onRead  ReadCallback
	onWrite WriteCallback
	onClose CloseCallback
	onError ErrorCallback

	tied  bool
	owner interface{}
}

// NewDispatch allocates a Dispatch for fd and binds its Desc to loop's
// Poller. The Dispatch starts with an empty interest mask; the owner
// must call EnableRead/EnableWrite to begin receiving events.
func NewDispatch(loop *EventLoop, fd int) *Dispatch {
	desc := poller.NewDesc()
	desc.FD = fd
	d := &Dispatch{loop: loop, desc: desc}
	desc.Owner = d
	if err := desc.Bind(loop.poller); err != nil {
		log.Errorf("dispatch: bind fd %d: %v", fd, err)
	}
	return d
}

// FD returns the bound file descriptor.
func (d *Dispatch) FD() int { return d.desc.FD }

// SetReadCallback sets the read callback.
func (d *Dispatch) SetReadCallback(cb ReadCallback) { d.onRead = cb }

// SetWriteCallback sets the write callback.
func (d *Dispatch) SetWriteCallback(cb WriteCallback) { d.onWrite = cb }

// SetCloseCallback sets the close callback.
func (d *Dispatch) SetCloseCallback(cb CloseCallback) { d.onClose = cb }

// SetErrorCallback sets the error callback.
func (d *Dispatch) SetErrorCallback(cb ErrorCallback) { d.onError = cb }

// Tie keeps owner reachable from this Dispatch so a callback in flight
// can always resolve its owner. Go's GC makes the teacher's weak_ptr
// emptiness check moot — any owner reachable from a live Dispatch is
// never collected — so Tie here only records the owner for HandleEvent
// to report through; it does not itself extend any lifetime beyond
// what the Go reference already guarantees.
func (d *Dispatch) Tie(owner interface{}) {
	d.owner = owner
	d.tied = true
}

func (d *Dispatch) interestEvent() poller.Event {
	switch {
	case d.reading && d.writing:
		if d.registered {
			return poller.ModReadWriteable
		}
		return poller.ReadWriteable
	case d.reading:
		if d.registered {
			return poller.ModReadable
		}
		return poller.Readable
	case d.writing:
		if d.registered {
			return poller.ModWritable
		}
		return poller.Writable
	default:
		return poller.Detach
	}
}

func (d *Dispatch) updateInterest() {
	e := d.interestEvent()
	if err := d.desc.Control(e); err != nil {
		log.Errorf("dispatch: control fd %d event %s: %v", d.FD(), e, err)
		return
	}
	d.registered = e != poller.Detach
}

// EnableRead adds Read to the interest mask.
func (d *Dispatch) EnableRead() {
	d.reading = true
	d.updateInterest()
}

// DisableRead removes Read from the interest mask.
func (d *Dispatch) DisableRead() {
	d.reading = false
	d.updateInterest()
}

// EnableWrite adds Write to the interest mask.
func (d *Dispatch) EnableWrite() {
	d.writing = true
	d.updateInterest()
}

// DisableWrite removes Write from the interest mask.
func (d *Dispatch) DisableWrite() {
	d.writing = false
	d.updateInterest()
}

// IsWriting reports whether Write is currently in the interest mask.
func (d *Dispatch) IsWriting() bool { return d.writing }

// IsReading reports whether Read is currently in the interest mask.
func (d *Dispatch) IsReading() bool { return d.reading }

// DisableAll clears the interest mask entirely, detaching the Desc
// from the Poller immediately.
func (d *Dispatch) DisableAll() {
	d.reading = false
	d.writing = false
	d.updateInterest()
}

// RemoveEvents asks the owning loop to free this Dispatch's Desc,
// deferred to the next loop iteration so a callback currently in
// flight never observes a half-destroyed Dispatch. The caller must
// already have called DisableAll (detaching the fd from the Poller)
// before calling RemoveEvents; this must not re-issue Control itself,
// since by the time it runs the same fd may already be owned by a
// different Dispatch (e.g. a TcpConnection built over a Connector's
// just-released fd), and a second Detach would tear down that new
// registration instead of this stale one.
func (d *Dispatch) RemoveEvents() {
	d.loop.QueueInLoop(func() {
		poller.FreeDesc(d.desc)
	})
}

// HandleEvent runs the four callbacks in the fixed order the owning
// EventLoop's tick requires: tie acquisition, hangup-without-read,
// error, read-or-hangup, write. Each branch is independent, matching
// the teacher's Channel::handleEventWithGuard — a pure hangup can
// legitimately invoke both the close and the read callback.
func (d *Dispatch) HandleEvent(revents poller.Revents) {
	if d.tied && d.owner == nil {
		return
	}
	if revents.Has(poller.Hangup) && !revents.Any(poller.Read) && !d.reading {
		if d.onClose != nil {
			d.onClose()
		}
	}
	if revents.Any(poller.Error) {
		if d.onError != nil {
			d.onError()
		}
	}
	if revents.Any(poller.Read | poller.Hangup) {
		if d.onRead != nil {
			d.onRead()
		}
	}
	if revents.Any(poller.Write) {
		if d.onWrite != nil {
			d.onWrite()
		}
	}
}
