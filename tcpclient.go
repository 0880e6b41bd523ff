package reactor

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/loopwire/reactor/log"
)

// TcpClient owns one Connector and at most one current TcpConnection,
// per spec.md §4.G's "TcpClient (orchestrator)" subsection. Connect
// delegates to Connector.Start; Disconnect shuts the current
// connection down gracefully; Stop tears the Connector down. When the
// current connection closes and auto-retry is enabled, the Connector
// is restarted.
type TcpClient struct {
	loop      *EventLoop
	name      string
	opts      *options
	connector *Connector

	mu   sync.Mutex
	conn *TcpConnection
}

// NewTcpClient constructs a client dialing addr from loop.
func NewTcpClient(loop *EventLoop, name string, addr *SockAddr, opts ...Option) *TcpClient {
	c := &TcpClient{
		loop: loop,
		name: name,
		opts: newOptions(opts...),
	}
	c.connector = NewConnector(loop, addr, c.handleNewConnection)
	return c
}

// Connect starts the underlying Connector.
func (c *TcpClient) Connect() {
	c.connector.Start()
}

// Disconnect gracefully shuts down the current connection, if any.
func (c *TcpClient) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Shutdown()
	}
}

// Stop tears down the Connector, canceling any in-flight attempt or
// pending retry.
func (c *TcpClient) Stop() {
	c.connector.Stop()
}

// Connection returns the current TcpConnection, or nil if none is
// established.
func (c *TcpClient) Connection() *TcpConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// handleNewConnection is the Connector's new-connection callback: it
// constructs the TcpConnection, registers it in the client's single
// slot under a mutex, wires the close callback to clear that slot and
// optionally restart the Connector, then establishes it. Connector
// invokes this from the owning loop, so Establish runs synchronously.
func (c *TcpClient) handleNewConnection(fd int, sa unix.Sockaddr) {
	local, err := unix.Getsockname(fd)
	localStr := "unknown"
	if err == nil {
		localStr = sockaddrString(local)
	}
	conn := newTcpConnection(c.loop, fd, localStr, sockaddrString(sa), c.opts)
	conn.SetCloseCallback(c.handleConnectionClosed)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.Establish()
}

func (c *TcpClient) handleConnectionClosed(conn *TcpConnection) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	if c.opts.enableRetry {
		log.Infof("tcpclient %s: connection closed, restarting connector", c.name)
		c.connector.Restart()
	}
}
