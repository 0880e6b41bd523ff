package reactor

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/loopwire/reactor/log"
)

var errServerHasNoAcceptor = errors.New("tcpserver: no acceptor bound")

// TcpServer is the accept-side counterpart to TcpClient (supplemental
// to spec.md, per SPEC_FULL.md's DOMAIN section): an Acceptor pool
// distributing freshly accepted connections across a fixed set of
// worker EventLoops via a LoadBalance, constructing and establishing
// a TcpConnection for each.
//
// Two accept topologies are supported, selected by WithReusePort:
//   - reusePort=false: one Acceptor lives on the boss loop; each
//     accepted fd is handed to a worker loop picked by the
//     LoadBalance and the TcpConnection is constructed there.
//   - reusePort=true: one Acceptor per worker loop, each with its own
//     SO_REUSEPORT listener and accept queue, so no single boss loop
//     has to hand off every new connection.
type TcpServer struct {
	name        string
	opts        *options
	bossLoop    *EventLoop
	workerLoops []*EventLoop
	balance     LoadBalance
	acceptors   []*Acceptor

	mu    sync.Mutex
	conns map[string]*TcpConnection
}

// NewTcpServer constructs a TcpServer bound to addr. bossLoop accepts
// when WithReusePort is not set; workerLoops is the fixed pool
// connections are distributed to (and, under reusePort, the pool each
// Acceptor itself lives on). workerLoops must be non-empty.
func NewTcpServer(bossLoop *EventLoop, workerLoops []*EventLoop, name string, addr *SockAddr, opts ...Option) (*TcpServer, error) {
	s := &TcpServer{
		name:        name,
		opts:        newOptions(opts...),
		bossLoop:    bossLoop,
		workerLoops: workerLoops,
		balance:     NewRoundRobin(),
		conns:       make(map[string]*TcpConnection),
	}
	for _, l := range workerLoops {
		s.balance.Register(l)
	}

	if s.opts.reusePort {
		for _, l := range workerLoops {
			a, err := NewAcceptor(l, addr, true)
			if err != nil {
				return nil, err
			}
			loop := l
			a.SetAcceptCallback(func(fd int, peer unix.Sockaddr) {
				s.handleNewConnection(loop, fd, peer)
			})
			s.acceptors = append(s.acceptors, a)
		}
	} else {
		a, err := NewAcceptor(bossLoop, addr, false)
		if err != nil {
			return nil, err
		}
		a.SetAcceptCallback(s.handleAcceptedOnBoss)
		s.acceptors = append(s.acceptors, a)
	}
	return s, nil
}

// Addr returns the bound local address of the server's first Acceptor,
// useful when NewTcpServer was given a port of 0.
func (s *TcpServer) Addr() (string, error) {
	if len(s.acceptors) == 0 {
		return "", errServerHasNoAcceptor
	}
	return s.acceptors[0].Addr()
}

// Start enables every Acceptor's read interest.
func (s *TcpServer) Start() {
	for _, a := range s.acceptors {
		a.Listen()
	}
}

// Stop closes every Acceptor's listening socket.
func (s *TcpServer) Stop() {
	for _, a := range s.acceptors {
		if err := a.Close(); err != nil {
			log.Warnf("tcpserver %s: close acceptor: %v", s.name, err)
		}
	}
}

// handleAcceptedOnBoss runs on the boss loop; it picks a worker loop
// and hops over via RunInLoop (cross-thread, since the picked loop is
// almost never the boss loop) to construct the TcpConnection there.
func (s *TcpServer) handleAcceptedOnBoss(fd int, peer unix.Sockaddr) {
	loop := s.balance.Pick()
	if loop == nil {
		log.Errorf("tcpserver %s: no worker loop registered, dropping connection", s.name)
		unix.Close(fd)
		return
	}
	s.handleNewConnection(loop, fd, peer)
}

// handleNewConnection constructs and establishes a TcpConnection for
// fd on loop, hopping via RunInLoop when called from a different
// thread than loop's own (the reusePort Acceptor path calls this
// already on loop, so RunInLoop there executes synchronously).
func (s *TcpServer) handleNewConnection(loop *EventLoop, fd int, peer unix.Sockaddr) {
	loop.RunInLoop(func() {
		local, err := unix.Getsockname(fd)
		localStr := "unknown"
		if err == nil {
			localStr = sockaddrString(local)
		}
		conn := newTcpConnection(loop, fd, localStr, sockaddrString(peer), s.opts)
		conn.SetCloseCallback(s.removeConnection)

		s.mu.Lock()
		s.conns[conn.Name()] = conn
		s.mu.Unlock()

		conn.Establish()
	})
}

func (s *TcpServer) removeConnection(conn *TcpConnection) {
	s.mu.Lock()
	delete(s.conns, conn.Name())
	s.mu.Unlock()
}

// ConnectionCount returns the number of currently registered
// connections.
func (s *TcpServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
