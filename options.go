package reactor

import "time"

// OnConnection fires when a TcpConnection is established or torn down;
// the callback inspects TcpConnection.State to tell the two apart.
type OnConnection func(conn *TcpConnection)

// OnMessage fires when bytes arrive on a TcpConnection.
type OnMessage func(conn *TcpConnection, buf *Buffer)

// OnWriteComplete fires when the write buffer becomes empty after having
// been non-empty.
type OnWriteComplete func(conn *TcpConnection)

// Option configures a TcpClient, TcpServer or a bare TcpConnection.
type Option struct {
	f func(*options)
}

type options struct {
	onConnection    OnConnection
	onMessage       OnMessage
	onWriteComplete OnWriteComplete

	tcpKeepAlive    time.Duration
	tcpIdleTimeout  time.Duration
	connectTimeout  time.Duration
	maxRetryInterval time.Duration
	highWaterMark   int
	numLoops        int
	enableRetry     bool
	reusePort       bool
}

func (o *options) setDefault() {
	o.connectTimeout = defaultConnectTimeout
	o.maxRetryInterval = defaultMaxRetryInterval
	o.numLoops = 1
}

const (
	defaultConnectTimeout   = 5 * time.Second
	defaultMaxRetryInterval = 30 * time.Second
)

func newOptions(opts ...Option) *options {
	o := &options{}
	o.setDefault()
	for _, opt := range opts {
		opt.f(o)
	}
	return o
}

// WithTCPKeepAlive sets the TCP keep alive interval, applied to every
// accepted or dialed connection.
func WithTCPKeepAlive(keepAlive time.Duration) Option {
	return Option{func(op *options) {
		op.tcpKeepAlive = keepAlive
	}}
}

// WithTCPIdleTimeout records an idle timeout in the options. No component
// reads it: a TcpConnection is never closed for being idle.
func WithTCPIdleTimeout(idleTimeout time.Duration) Option {
	return Option{func(op *options) {
		op.tcpIdleTimeout = idleTimeout
	}}
}

// WithOnConnection registers the callback fired on establishment and on
// teardown of a TcpConnection.
func WithOnConnection(cb OnConnection) Option {
	return Option{func(op *options) {
		op.onConnection = cb
	}}
}

// WithOnMessage registers the callback fired when bytes arrive.
func WithOnMessage(cb OnMessage) Option {
	return Option{func(op *options) {
		op.onMessage = cb
	}}
}

// WithOnWriteComplete registers the callback fired when the write buffer
// drains after having been non-empty.
func WithOnWriteComplete(cb OnWriteComplete) Option {
	return Option{func(op *options) {
		op.onWriteComplete = cb
	}}
}

// WithConnectTimeout records a per-attempt connect timeout in the options
// (default 5s). Connector does not read it: an attempt stays in the
// Connecting state until the socket reports writable or an error.
func WithConnectTimeout(timeout time.Duration) Option {
	return Option{func(op *options) {
		op.connectTimeout = timeout
	}}
}

// WithMaxRetryInterval records a backoff cap in the options (default 30s).
// Connector does not read it; its backoff is always capped at the fixed
// maxRetryTime of 30s.
func WithMaxRetryInterval(max time.Duration) Option {
	return Option{func(op *options) {
		op.maxRetryInterval = max
	}}
}

// WithHighWaterMark sets the write buffer threshold past which a caller
// may want to throttle sends. Zero means no threshold is enforced.
func WithHighWaterMark(bytes int) Option {
	return Option{func(op *options) {
		op.highWaterMark = bytes
	}}
}

// WithNumLoops records a loop count in the options (default 1). TcpServer
// does not read it; it distributes connections across the workerLoops
// passed to NewTcpServer.
func WithNumLoops(n int) Option {
	return Option{func(op *options) {
		op.numLoops = n
	}}
}

// WithAutoRetry enables TcpClient's auto-reconnect behavior: when the
// current connection is closed by the peer, Connector.restart is called.
func WithAutoRetry(enable bool) Option {
	return Option{func(op *options) {
		op.enableRetry = enable
	}}
}

// WithReusePort binds a TcpServer's listeners with SO_REUSEPORT so that
// each worker loop can own an independent accept queue.
func WithReusePort(enable bool) Option {
	return Option{func(op *options) {
		op.reusePort = enable
	}}
}
