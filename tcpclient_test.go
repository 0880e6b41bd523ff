package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestTcpClientAutoRetryRestartsConnector(t *testing.T) {
	bossLoop, err := NewEventLoop()
	require.NoError(t, err)
	stopBoss := runLoopAsync(t, bossLoop)
	defer stopBoss()

	bindAddr, err := ParseTCPAddr("127.0.0.1:0")
	require.NoError(t, err)

	accepted := make(chan int, 4)
	server, err := NewTcpServer(bossLoop, []*EventLoop{bossLoop}, "retry-server", bindAddr)
	require.NoError(t, err)
	server.acceptors[0].SetAcceptCallback(func(fd int, peer unix.Sockaddr) {
		accepted <- fd
	})
	server.Start()
	defer server.Stop()

	addrStr, err := server.Addr()
	require.NoError(t, err)
	dialAddr, err := ParseTCPAddr(addrStr)
	require.NoError(t, err)

	clientLoop, err := NewEventLoop()
	require.NoError(t, err)
	stopClient := runLoopAsync(t, clientLoop)
	defer stopClient()

	client := NewTcpClient(clientLoop, "retry-client", dialAddr, WithAutoRetry(true))
	client.Connect()

	var firstFD int
	select {
	case firstFD = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted first attempt")
	}
	unix.Close(firstFD)

	select {
	case <-accepted:
	case <-time.After(3 * time.Second):
		t.Fatal("connector never retried after the peer closed the socket")
	}
}

func TestTcpClientStopCancelsPendingConnect(t *testing.T) {
	clientLoop, err := NewEventLoop()
	require.NoError(t, err)
	stopClient := runLoopAsync(t, clientLoop)
	defer stopClient()

	addr, err := ParseTCPAddr("127.0.0.1:1")
	require.NoError(t, err)

	client := NewTcpClient(clientLoop, "stop-client", addr)
	client.Connect()
	client.Stop()

	stateDone := make(chan ConnectorState, 1)
	clientLoop.QueueInLoop(func() { stateDone <- client.connector.State() })
	assert.NotEqual(t, ConnectorConnecting, <-stateDone)
}
