// Package reactor implements a muduo/voyager-style reactor networking
// core: an EventLoop that multiplexes nonblocking sockets through a
// Poller, a Connector state machine that dials outbound TCP connections
// with bounded exponential backoff, and a TcpConnection that pumps bytes
// between user buffers and the kernel with correct shutdown ordering.
//
// A process hosts one or more EventLoops, each affine to exactly one OS
// thread for its entire lifetime ("one loop per thread"). All mutation of
// a Dispatch, a Connector, or a TcpConnection must happen on the loop
// that owns it; cross-thread calls are posted through the loop's pending
// task queue instead.
package reactor

import "errors"

// ConnState is the TcpConnection lifecycle state.
type ConnState int32

const (
	// StateConnecting is the transient state between fd creation and establish().
	StateConnecting ConnState = iota
	// StateConnected means the connection is readable/writable.
	StateConnected
	// StateDisconnecting means shutdown() has been requested but the write
	// buffer has not yet drained.
	StateDisconnecting
	// StateDisconnected is terminal; no further transitions occur.
	StateDisconnected
)

// String implements fmt.Stringer.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectorState is the Connector lifecycle state.
type ConnectorState int32

const (
	// ConnectorDisconnected is the initial and the post-teardown state.
	ConnectorDisconnected ConnectorState = iota
	// ConnectorConnecting means a nonblocking connect() is in flight.
	ConnectorConnecting
	// ConnectorConnected means the connect succeeded and ownership of the
	// fd has been handed off to the caller's new-connection callback.
	ConnectorConnected
)

// String implements fmt.Stringer.
func (s ConnectorState) String() string {
	switch s {
	case ConnectorDisconnected:
		return "disconnected"
	case ConnectorConnecting:
		return "connecting"
	case ConnectorConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Error values naming the core's error conditions. The core never panics
// on I/O conditions; it reports them through logging and the close/error
// callback surface, and no function in this package returns these values.
var (
	// ErrConnClosed names an operation attempted on a connection that
	// has already reached StateDisconnected.
	ErrConnClosed = errors.New("reactor: connection closed")
	// ErrLoopStopped names a run_in_loop/post operation on a loop whose
	// quit() has already returned.
	ErrLoopStopped = errors.New("reactor: event loop stopped")
	// ErrWrongThread is the programmer-error condition assert_in_loop
	// guards against: a loop-affine call made from a thread other than
	// the loop's owning thread.
	ErrWrongThread = errors.New("reactor: call from non-owning thread")
	// ErrFatalConnect marks a Connect-fatal errno classification (spec
	// §4.F): the Connector stops without scheduling a retry.
	ErrFatalConnect = errors.New("reactor: fatal connect error, not retrying")
	// ErrSelfConnect names a nonblocking connect that degenerated into a
	// TCP simultaneous-open self-connect.
	ErrSelfConnect = errors.New("reactor: self connect detected")
)
