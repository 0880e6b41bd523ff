package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsTask(t *testing.T) {
	done := make(chan struct{})
	require.NoError(t, Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted task never ran")
	}
}

func TestResolveTCPAddrAsync(t *testing.T) {
	result := make(chan error, 1)
	ResolveTCPAddrAsync("127.0.0.1:80", func(addr *SockAddr, err error) {
		if err == nil {
			require.NotEmpty(t, addr.Entries())
		}
		result <- err
	})
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("resolve never completed")
	}
}
