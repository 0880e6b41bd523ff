package reactor

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/loopwire/reactor/internal/netutil"
	"github.com/loopwire/reactor/internal/reuseport"
	"github.com/loopwire/reactor/log"
)

const listenBacklog = 1024

// AcceptCallback hands a freshly accepted, owned fd plus the peer's
// sockaddr off to whoever constructs the TcpConnection.
type AcceptCallback func(fd int, peer unix.Sockaddr)

// Acceptor owns one listening socket's Dispatch on one loop, grounded
// on spec.md §4.E's accept handling contract: fatal errno terminates
// the process, transient errno is logged and the accept loop
// continues, and EMFILE specifically is absorbed by the reserved
// spare-fd trick (pre-open /dev/null, close it, accept the backlog's
// next connection, close that connection too, then reopen /dev/null)
// so a file-descriptor-exhausted process does not spin accepting the
// same ready event forever.
type Acceptor struct {
	loop     *EventLoop
	fd       int
	dispatch *Dispatch
	spareFD  int
	onAccept AcceptCallback
}

// NewAcceptor binds and listens on addr's first entry. When reusePort
// is set the listener is opened through the reuseport domain package
// (SO_REUSEPORT) so a pool of Acceptors, one per worker loop, can each
// own an independent accept queue; otherwise it is a single ordinary
// listener on loop, the "boss" loop.
func NewAcceptor(loop *EventLoop, addr *SockAddr, reusePort bool) (*Acceptor, error) {
	entries := addr.Entries()
	if len(entries) == 0 {
		return nil, errors.New("acceptor: no bind address")
	}

	var fd int
	var err error
	if reusePort {
		fd, err = reuseport.ListenTCP(addr.String())
	} else {
		fd, err = bindAndListen(entries[0])
	}
	if err != nil {
		return nil, err
	}

	spare, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	a := &Acceptor{loop: loop, fd: fd, spareFD: spare}
	a.dispatch = NewDispatch(loop, fd)
	a.dispatch.SetReadCallback(a.handleRead)
	return a, nil
}

func bindAndListen(sa unix.Sockaddr) (int, error) {
	fd, err := createNonblocking(sockaddrFamily(sa))
	if err != nil {
		return -1, err
	}
	if err := setReuseAddr(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// SetAcceptCallback sets the new-connection callback.
func (a *Acceptor) SetAcceptCallback(cb AcceptCallback) { a.onAccept = cb }

// Addr returns the listening socket's bound local address, useful when
// NewAcceptor was given a port of 0 and the OS picked one.
func (a *Acceptor) Addr() (string, error) {
	sa, err := unix.Getsockname(a.fd)
	if err != nil {
		return "", err
	}
	return sockaddrString(sa), nil
}

// Listen enables read interest on the listening Dispatch.
func (a *Acceptor) Listen() {
	a.loop.RunInLoop(a.dispatch.EnableRead)
}

// handleRead drains every pending connection in the accept queue this
// tick, classifying any error per the table above.
func (a *Acceptor) handleRead() {
	for {
		nfd, sa, err := netutil.Accept(a.fd)
		if err != nil {
			a.handleAcceptError(err)
			return
		}
		if a.onAccept != nil {
			a.onAccept(nfd, sa)
		} else {
			unix.Close(nfd)
		}
	}
}

func (a *Acceptor) handleAcceptError(err error) {
	switch {
	case isSpareFDError(err):
		unix.Close(a.spareFD)
		nfd, _, acceptErr := unix.Accept(a.fd)
		if acceptErr == nil {
			unix.Close(nfd)
		}
		spare, openErr := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if openErr == nil {
			a.spareFD = spare
		}
		log.Warnf("acceptor: EMFILE, dropped one pending connection via spare fd")
	case isFatalAcceptError(err):
		log.Fatalf("acceptor: fatal accept error: %v", err)
	case isTransientAcceptError(err):
		log.Warnf("acceptor: transient accept error: %v", err)
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		// Accept queue drained; not an error condition.
	default:
		log.Errorf("acceptor: accept error: %v", err)
	}
}

// Close closes the listening socket and the spare fd.
func (a *Acceptor) Close() error {
	unix.Close(a.spareFD)
	a.dispatch.DisableAll()
	return unix.Close(a.fd)
}
