package reactor

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/loopwire/reactor/buffer"
	"github.com/loopwire/reactor/iovec"
	"github.com/loopwire/reactor/log"
	"github.com/loopwire/reactor/metrics"
)

// Buffer is the growable byte ring TcpConnection exposes to
// OnMessage callbacks; an alias of buffer.Buffer so callers outside
// this package never need to import the buffer package directly.
type Buffer = buffer.Buffer

var connIDSeq int64

// TcpConnection is a per-connection state machine owning one socket
// fd, its Dispatch, a read buffer and a write buffer, grounded on
// original_source/voyager/core/tcp_connection.cc's Establish/Send/
// Shutdown/ForceClose/HandleRead/HandleWrite/HandleClose, adapted to
// this module's readv/writev vectored I/O (sockopt.go, iovec
// package) instead of single read/write syscalls.
type TcpConnection struct {
	name      string
	loop      *EventLoop
	fd        int
	localAddr string
	peerAddr  string
	dispatch  *Dispatch
	state     ConnState
	readBuf   *buffer.Buffer
	writeBuf  *buffer.Buffer
	extraBuf  [iovec.ExtraBufSize]byte
	fault     bool
	highWater int

	onConnection    OnConnection
	onMessage       OnMessage
	onWriteComplete OnWriteComplete
	onClose         func(*TcpConnection)
}

// newTcpConnection constructs a TcpConnection over an already-
// established fd (the caller — TcpClient's Connector callback, or
// TcpServer's Acceptor — owns the fd up to this call). State starts
// Connecting; Establish must be called on loop before any I/O occurs.
func newTcpConnection(loop *EventLoop, fd int, localAddr, peerAddr string, opts *options) *TcpConnection {
	name := fmt.Sprintf("conn-%d", atomic.AddInt64(&connIDSeq, 1))
	c := &TcpConnection{
		name:      name,
		loop:      loop,
		fd:        fd,
		localAddr: localAddr,
		peerAddr:  peerAddr,
		state:     StateConnecting,
		readBuf:   buffer.New(),
		writeBuf:  buffer.New(),
		highWater: opts.highWaterMark,

		onConnection:    opts.onConnection,
		onMessage:       opts.onMessage,
		onWriteComplete: opts.onWriteComplete,
	}
	c.dispatch = NewDispatch(loop, fd)
	c.dispatch.SetReadCallback(c.handleRead)
	c.dispatch.SetWriteCallback(c.handleWrite)
	c.dispatch.SetCloseCallback(c.handleClose)
	c.dispatch.SetErrorCallback(c.handleError)
	if opts.tcpKeepAlive > 0 {
		if err := setKeepAlive(fd, int(opts.tcpKeepAlive.Seconds())); err != nil {
			log.Warnf("tcpconnection %s: set keepalive: %v", name, err)
		}
	}
	return c
}

// Name returns the connection's diagnostic name.
func (c *TcpConnection) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *TcpConnection) State() ConnState { return c.state }

// LocalAddr returns the local endpoint's printable address.
func (c *TcpConnection) LocalAddr() string { return c.localAddr }

// PeerAddr returns the remote endpoint's printable address.
func (c *TcpConnection) PeerAddr() string { return c.peerAddr }

// SetCloseCallback sets the internal close notification used by
// TcpClient/TcpServer to remove this connection from their registry;
// distinct from the user-facing OnConnection callback.
func (c *TcpConnection) SetCloseCallback(cb func(*TcpConnection)) { c.onClose = cb }

// Establish transitions Connecting -> Connected, ties the Dispatch to
// this connection, enables read interest, and invokes the connection
// callback. Must run on the owning loop.
func (c *TcpConnection) Establish() {
	c.loop.AssertInLoop()
	if c.state != StateConnecting {
		log.Errorf("tcpconnection %s: establish from state %s", c.name, c.state)
		return
	}
	c.state = StateConnected
	c.dispatch.Tie(c)
	c.dispatch.EnableRead()
	metrics.Add(metrics.TCPConnsCreate, 1)
	if c.onConnection != nil {
		c.onConnection(c)
	}
}

// Send queues data for transmission. Callable from any goroutine; off
// the owning loop, data is copied into an owned buffer before posting
// since the caller is not guaranteed to keep it alive past this call.
func (c *TcpConnection) Send(data []byte) {
	if c.loop.IsInLoopGoroutine() {
		c.sendInLoop(data)
		return
	}
	owned := append([]byte(nil), data...)
	c.loop.QueueInLoop(func() {
		c.sendInLoop(owned)
	})
}

func (c *TcpConnection) sendInLoop(data []byte) {
	if c.state == StateDisconnected {
		log.Warnf("tcpconnection %s: send after disconnect, dropping %d bytes", c.name, len(data))
		return
	}
	if c.fault {
		// A prior EPIPE/ECONNRESET already doomed this connection;
		// remaining bytes are dropped, not buffered, per spec.md §4.G.
		return
	}

	wrote := 0
	if !c.dispatch.IsWriting() && c.writeBuf.Len() == 0 {
		n, err := unix.Writev(c.fd, iovec.OneSegment(data))
		switch {
		case err == nil:
			wrote = n
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			wrote = 0
		case err == unix.EPIPE || err == unix.ECONNRESET:
			c.fault = true
			return
		default:
			log.Errorf("tcpconnection %s: write: %v", c.name, err)
			wrote = 0
		}
	}

	if wrote < len(data) {
		c.writeBuf.Append(data[wrote:])
		if !c.dispatch.IsWriting() {
			c.dispatch.EnableWrite()
		}
		if c.highWater > 0 && c.writeBuf.Len() >= c.highWater {
			log.Warnf("tcpconnection %s: write buffer past high-water mark (%d bytes)", c.name, c.writeBuf.Len())
		}
	}
}

// Shutdown half-closes the connection once any pending write drains.
func (c *TcpConnection) Shutdown() {
	c.loop.RunInLoop(func() {
		if c.state != StateConnected {
			return
		}
		c.state = StateDisconnecting
		if !c.dispatch.IsWriting() {
			if err := shutdownWrite(c.fd); err != nil {
				log.Warnf("tcpconnection %s: shutdown_write: %v", c.name, err)
			}
		}
	})
}

// ForceClose tears the connection down immediately, skipping any
// pending-write drain.
func (c *TcpConnection) ForceClose() {
	c.loop.RunInLoop(func() {
		if c.state == StateConnected || c.state == StateDisconnecting {
			c.handleClose()
		}
	})
}

// StartRead (re)enables read interest on the Dispatch.
func (c *TcpConnection) StartRead() {
	c.loop.RunInLoop(c.dispatch.EnableRead)
}

// StopRead disables read interest on the Dispatch.
func (c *TcpConnection) StopRead() {
	c.loop.RunInLoop(c.dispatch.DisableRead)
}

// handleRead performs one readv into a two-segment destination: the
// read buffer's free tail plus a fixed scratch buffer absorbing
// whatever doesn't fit, per spec.md §4.G.
func (c *TcpConnection) handleRead() {
	tail := c.readBuf.WritableTail(iovec.ExtraBufSize)
	vecs := iovec.TwoSegment(tail, c.extraBuf[:])
	if len(vecs) == 0 {
		return
	}
	n, err := unix.Readv(c.fd, vecs)
	metrics.Add(metrics.TCPReadvCalls, 1)
	switch {
	case n > 0:
		metrics.Add(metrics.TCPReadvBytes, uint64(n))
		if n <= len(tail) {
			c.readBuf.CommitWrite(n)
		} else {
			c.readBuf.CommitWrite(len(tail))
			c.readBuf.Append(c.extraBuf[:n-len(tail)])
		}
		if c.onMessage != nil {
			c.onMessage(c, c.readBuf)
		}
	case n == 0:
		c.handleClose()
	default:
		metrics.Add(metrics.TCPReadvFails, 1)
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			log.Errorf("tcpconnection %s: readv: %v", c.name, err)
		}
	}
}

// handleWrite drains from the head of the write buffer; when it's
// empty it disables write interest, fires the write-complete
// callback, and — if shutdown is pending — performs shutdown_write.
func (c *TcpConnection) handleWrite() {
	if !c.dispatch.IsWriting() {
		return
	}
	data := c.writeBuf.Peek()
	if len(data) == 0 {
		c.dispatch.DisableWrite()
		return
	}
	n, err := unix.Writev(c.fd, iovec.OneSegment(data))
	metrics.Add(metrics.TCPWritevCalls, 1)
	if err != nil {
		metrics.Add(metrics.TCPWritevFails, 1)
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			log.Errorf("tcpconnection %s: write: %v", c.name, err)
		}
		return
	}
	c.writeBuf.Retrieve(n)
	if c.writeBuf.Len() == 0 {
		c.dispatch.DisableWrite()
		metrics.Add(metrics.TCPWriteNotify, 1)
		if c.onWriteComplete != nil {
			c.onWriteComplete(c)
		}
		if c.state == StateDisconnecting {
			if err := shutdownWrite(c.fd); err != nil {
				log.Warnf("tcpconnection %s: shutdown_write: %v", c.name, err)
			}
		}
	} else {
		metrics.Add(metrics.TCPWritevBlocks, 1)
	}
}

// handleClose requires state in {Connected, Disconnecting}, flips to
// Disconnected, disables all Dispatch interest, invokes the close
// callback (which by contract removes this connection from its
// owning registry), requests Dispatch removal, and closes the fd —
// the state-guard above ensures this runs exactly once per connection.
func (c *TcpConnection) handleClose() {
	if c.state != StateConnected && c.state != StateDisconnecting {
		return
	}
	c.state = StateDisconnected
	c.dispatch.DisableAll()
	metrics.Add(metrics.TCPConnsClose, 1)
	if c.onConnection != nil {
		c.onConnection(c)
	}
	if c.onClose != nil {
		c.onClose(c)
	}
	c.dispatch.RemoveEvents()
	if err := unix.Close(c.fd); err != nil {
		log.Warnf("tcpconnection %s: close fd %d: %v", c.name, c.fd, err)
	}
}

func (c *TcpConnection) handleError() {
	if err := checkSocketError(c.fd); err != nil {
		log.Warnf("tcpconnection %s: SO_ERROR: %v", c.name, err)
	}
}
