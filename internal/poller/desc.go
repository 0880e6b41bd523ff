package poller

import (
	"errors"
	"sync"
)

// NewDesc allocates a Desc from the arena. Desc objects are never
// garbage collected individually — the kernel's event user-data field
// holds an unsafe.Pointer to one, so it must live in non-GC-moved memory
// for as long as it might be referenced from epoll/kqueue internals.
func NewDesc() *Desc {
	return alloc()
}

// FreeDesc returns a Desc to the arena. Without calling FreeDesc the
// memory is never reused, though it is not leaked in the GC sense since
// the arena itself is reachable.
func FreeDesc(desc *Desc) {
	markDescFree(desc)
	freeDesc()
}

// Desc is the low-level kernel-registration record for one file
// descriptor: just enough state for a Poller to find its way back to the
// Dispatch that owns it. The interest mask, revents bookkeeping, tie, and
// callbacks live one layer up, on the Dispatch that embeds a *Desc's
// Owner field — Desc itself stays a thin, arena-friendly cookie, the way
// the teacher's poller.Desc does, just without the OnRead/OnWrite/OnHup
// fields this runtime moved to Dispatch.
type Desc struct {
	mu     sync.RWMutex
	next   *Desc
	poller Poller
	index  int32

	// FD is the file descriptor this Desc is registered for.
	FD int
	// Owner is the Dispatch that allocated this Desc. Stored as
	// interface{} so this package has no import-cycle on the Dispatch
	// type one layer up.
	Owner interface{}
}

// Lock locks the Desc for reading and writing.
func (d *Desc) Lock() { d.mu.Lock() }

// Unlock unlocks the Desc for reading and writing.
func (d *Desc) Unlock() { d.mu.Unlock() }

// RLock locks the Desc for reading.
func (d *Desc) RLock() { d.mu.RLock() }

// RUnlock unlocks the Desc for reading.
func (d *Desc) RUnlock() { d.mu.RUnlock() }

// Bind attaches the Desc to the Poller that will monitor it. Callers
// pick which Poller — e.g. an EventLoop binding its own Dispatches, or
// a round-robin load balancer selecting an EventLoop for a new
// connection — this package has no opinion on that selection.
func (d *Desc) Bind(p Poller) error {
	if d.poller != nil {
		return errors.New("poller: desc already bound")
	}
	if p == nil {
		return errors.New("poller: poller is nil")
	}
	d.poller = p
	return nil
}

// Poller returns the bound poller, or nil if Bind hasn't run yet.
func (d *Desc) Poller() Poller {
	return d.poller
}

// Control registers the interest event this Desc asks its poller to
// monitor.
func (d *Desc) Control(e Event) error {
	if d.poller == nil {
		return errors.New("poller: desc not bound to a poller")
	}
	return d.poller.Control(d, e)
}

// Close detaches the Desc from its poller.
func (d *Desc) Close() error {
	if d.poller == nil {
		return nil
	}
	return d.poller.Control(d, Detach)
}

func (d *Desc) reset() {
	d.FD = 0
	d.Owner = nil
	d.poller = nil
}
