package reuseport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestListenTCPReturnsNonblockingFD(t *testing.T) {
	fd, err := ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	defer unix.Close(fd)

	assert.Greater(t, fd, 0)

	_, err = unix.Getsockname(fd)
	assert.NoError(t, err)
}

func TestListenTCPRejectsBadAddress(t *testing.T) {
	_, err := ListenTCP("not-an-address")
	assert.Error(t, err)
}
