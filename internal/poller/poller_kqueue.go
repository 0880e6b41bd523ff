//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package poller

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const defaultKevent = 64

// kqueue is the BSD/Darwin Poller backend, adapted from the teacher's
// poller_kqueue.go. Wakeup via EVFILT_USER and the
// *(**Desc)(unsafe.Pointer(&evt.Udata)) cookie trick are kept; Wait fills
// a caller-owned []Ready instead of invoking callbacks inline, matching
// event_kqueue.cc's events_.resize(events_.size()*2) geometric growth
// policy when a poll fills the ready buffer.
type kqueue struct {
	fd     int
	events []unix.Kevent_t
}

func newPoller() (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if _, err := unix.Kevent(fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("kevent add|clear", err)
	}
	return &kqueue{
		fd:     fd,
		events: make([]unix.Kevent_t, defaultKevent),
	}, nil
}

// Close implements Poller.
func (k *kqueue) Close() error {
	return os.NewSyscallError("close", unix.Close(k.fd))
}

// Trigger implements Poller via the EVFILT_USER wakeup event.
func (k *kqueue) Trigger() error {
	for {
		if _, err := unix.Kevent(k.fd, []unix.Kevent_t{{
			Ident:  0,
			Filter: unix.EVFILT_USER,
			Fflags: unix.NOTE_TRIGGER,
		}}, nil, nil); err != unix.EINTR && err != unix.EAGAIN {
			if err != nil {
				return os.NewSyscallError("kevent", err)
			}
			return nil
		}
	}
}

// Wait implements Poller.
func (k *kqueue) Wait(timeoutMS int, out []Ready) ([]Ready, error) {
	var ts unix.Timespec
	var tsp *unix.Timespec
	if timeoutMS >= 0 {
		ts.Sec = int64(timeoutMS / 1000)
		ts.Nsec = int64(timeoutMS%1000) * 1e6
		tsp = &ts
	}
	for {
		n, err := unix.Kevent(k.fd, nil, k.events, tsp)
		if err != nil && err != unix.EINTR {
			return out, err
		}
		if n < 0 {
			n = 0
		}
		if n < len(k.events) {
			return k.decode(n, out), nil
		}
		k.events = make([]unix.Kevent_t, len(k.events)*2)
		var zero unix.Timespec
		tsp = &zero
	}
}

func (k *kqueue) decode(n int, out []Ready) []Ready {
	for i := 0; i < n; i++ {
		evt := k.events[i]
		if evt.Ident == 0 && evt.Filter == unix.EVFILT_USER {
			continue
		}
		desc := *(**Desc)(unsafe.Pointer(&evt.Udata))
		var r Revents
		if evt.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			r |= Hangup
		}
		switch evt.Filter {
		case unix.EVFILT_READ:
			r |= Read
		case unix.EVFILT_WRITE:
			r |= Write
		}
		out = append(out, Ready{Desc: desc, Revents: r})
	}
	return out
}

func (k *kqueue) addRead(desc *Desc) error {
	evt := unix.Kevent_t{Ident: uint64(desc.FD), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE}
	*(**Desc)(unsafe.Pointer(&evt.Udata)) = desc
	_, err := unix.Kevent(k.fd, []unix.Kevent_t{evt}, nil, nil)
	return err
}

func (k *kqueue) addWrite(desc *Desc) error {
	evt := unix.Kevent_t{Ident: uint64(desc.FD), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE}
	*(**Desc)(unsafe.Pointer(&evt.Udata)) = desc
	_, err := unix.Kevent(k.fd, []unix.Kevent_t{evt}, nil, nil)
	return err
}

func (k *kqueue) addReadWrite(desc *Desc) error {
	if err := k.addRead(desc); err != nil {
		return err
	}
	return k.addWrite(desc)
}

func (k *kqueue) delRead(desc *Desc) error {
	evt := unix.Kevent_t{Ident: uint64(desc.FD), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE}
	_, err := unix.Kevent(k.fd, []unix.Kevent_t{evt}, nil, nil)
	return err
}

func (k *kqueue) delWrite(desc *Desc) error {
	evt := unix.Kevent_t{Ident: uint64(desc.FD), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE}
	_, err := unix.Kevent(k.fd, []unix.Kevent_t{evt}, nil, nil)
	return err
}

func (k *kqueue) delete(desc *Desc) error {
	k.delRead(desc)
	k.delWrite(desc)
	return nil
}

// Control implements Poller.
func (k *kqueue) Control(desc *Desc, e Event) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrapf(err, "kqueue control event %s fd %d", e, desc.FD)
		}
	}()
	switch e {
	case Readable:
		return k.addRead(desc)
	case ModReadable:
		k.delWrite(desc)
		return k.addRead(desc)
	case Writable:
		return k.addWrite(desc)
	case ModWritable:
		k.delRead(desc)
		return k.addWrite(desc)
	case ReadWriteable, ModReadWriteable:
		return k.addReadWrite(desc)
	case Detach:
		return k.delete(desc)
	default:
		return errors.New("kqueue: event not supported")
	}
}
