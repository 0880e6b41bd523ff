// Package reuseport opens SO_REUSEPORT TCP listeners for a TcpServer's
// multi-loop accept fan-out (spec.md §5's "federated by a round-robin
// selector", extended in SPEC_FULL.md so each loop can own an
// independent accept queue instead of funneling every accept through
// one boss loop). The teacher's own internal/reuseport is a hand-
// rolled UDP-only reimplementation that never imports a third-party
// module; this package wires the real github.com/kavu/go_reuseport
// dependency instead, since nothing else in this runtime has a home
// for it otherwise.
package reuseport

import (
	"golang.org/x/sys/unix"

	reuseport "github.com/kavu/go_reuseport"

	"github.com/loopwire/reactor/internal/netutil"
)

// ListenTCP opens a SO_REUSEPORT TCP listener bound to address and
// returns its raw, nonblocking file descriptor. The net.Listener
// go_reuseport hands back is closed immediately after its fd is
// duplicated — netutil.DupFD (grounded on the teacher's fd.go) takes
// ownership of a dup, so the original net.Listener's finalizer closing
// its fd does not affect the one this function returns.
func ListenTCP(address string) (int, error) {
	ln, err := reuseport.Listen("tcp", address)
	if err != nil {
		return -1, err
	}
	fd, err := netutil.DupFD(ln)
	ln.Close()
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
