package reactor

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/loopwire/reactor/internal/netutil"
)

// createNonblocking returns a socket fd for family (unix.AF_INET or
// unix.AF_INET6) with O_NONBLOCK and FD_CLOEXEC set. The SOCK_NONBLOCK/
// SOCK_CLOEXEC type-argument flags Linux's socket(2) accepts atomically
// are not portable to Darwin/BSD, so — matching the teacher's own
// accept-side cloexec helpers (sock_cloexec.go/sys_cloexec.go), which
// fall back to a plain syscall plus fcntl on platforms without
// accept4 — this sets both flags with a follow-up fcntl instead of
// relying on socket(2) flag bits.
func createNonblocking(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("setnonblock", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("fcntl", err)
	}
	return fd, nil
}

// connectSocket issues a nonblocking connect(2) and returns the raw
// errno so the caller can run the classification table in connector.go
// (spec §4.F / original_source/core/connector.cc).
func connectSocket(fd int, sa unix.Sockaddr) error {
	return unix.Connect(fd, sa)
}

// shutdownWrite half-closes the write side of fd.
func shutdownWrite(fd int) error {
	return os.NewSyscallError("shutdown", unix.Shutdown(fd, unix.SHUT_WR))
}

// checkSocketError reads SO_ERROR off fd and returns it as an error,
// or nil if the socket has no pending error.
func checkSocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return os.NewSyscallError("getsockopt(SO_ERROR)", err)
	}
	if errno != 0 {
		return os.NewSyscallError("connect", unix.Errno(errno))
	}
	return nil
}

// setKeepAlive enables TCP keepalive with the given idle/interval,
// delegated to the teacher's internal/netutil.SetKeepAlive.
func setKeepAlive(fd int, seconds int) error {
	return netutil.SetKeepAlive(fd, seconds)
}

// setTCPNoDelay toggles Nagle's algorithm.
func setTCPNoDelay(fd int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
}

// setReuseAddr sets SO_REUSEADDR.
func setReuseAddr(fd int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, v)
}

// setReusePort sets SO_REUSEPORT, delegated to the reuseport domain
// package for listener construction; this wrapper is used directly by
// callers that already own a raw fd.
func setReusePort(fd int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, v)
}

// isSelfConnect compares fd's local and peer sockaddr, reporting true
// when a nonblocking connect degenerated into a TCP simultaneous-open
// self-connect, per original_source/core/connector.cc's IsSelfConnect
// and the family/address comparison groundwork in
// internal/netutil/addr.go's getAndCompareFamily.
func isSelfConnect(fd int) bool {
	local, err := unix.Getsockname(fd)
	if err != nil {
		return false
	}
	peer, err := unix.Getpeername(fd)
	if err != nil {
		return false
	}
	return sockaddrEqual(local, peer)
}

func sockaddrEqual(a, b unix.Sockaddr) bool {
	switch av := a.(type) {
	case *unix.SockaddrInet4:
		bv, ok := b.(*unix.SockaddrInet4)
		return ok && av.Port == bv.Port && av.Addr == bv.Addr
	case *unix.SockaddrInet6:
		bv, ok := b.(*unix.SockaddrInet6)
		return ok && av.Port == bv.Port && av.Addr == bv.Addr && av.ZoneId == bv.ZoneId
	default:
		return false
	}
}

// Accept error classification, per spec §4.E and
// original_source/core/socket_util.cc's accept errno tables.
var fatalAcceptErrors = map[error]bool{
	unix.EBADF:      true,
	unix.EFAULT:     true,
	unix.EINVAL:     true,
	unix.ENFILE:     true,
	unix.ENOBUFS:    true,
	unix.ENOMEM:     true,
	unix.ENOTSOCK:   true,
	unix.EOPNOTSUPP: true,
}

// isFatalAcceptError reports whether err should terminate the process,
// per spec §4.E's accept handling contract.
func isFatalAcceptError(err error) bool {
	return fatalAcceptErrors[underlyingErrno(err)]
}

// isSpareFDError reports the specific EMFILE condition the spare-fd
// trick exists to absorb.
func isSpareFDError(err error) bool {
	return underlyingErrno(err) == unix.EMFILE
}

// isTransientAcceptError reports whether err should be logged and the
// accept loop continued, per spec §4.E.
func isTransientAcceptError(err error) bool {
	switch underlyingErrno(err) {
	case unix.EAGAIN, unix.ECONNABORTED, unix.EINTR, unix.EPROTO, unix.EPERM, unix.EMFILE:
		return true
	default:
		return false
	}
}

func underlyingErrno(err error) error {
	if se, ok := err.(*os.SyscallError); ok {
		return se.Err
	}
	return err
}
