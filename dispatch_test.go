package reactor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopwire/reactor/internal/poller"
)

func newTestDispatch(t *testing.T) (*Dispatch, func()) {
	t.Helper()
	loop, err := NewEventLoop()
	require.NoError(t, err)

	r, w, err := os.Pipe()
	require.NoError(t, err)

	d := NewDispatch(loop, int(r.Fd()))
	return d, func() {
		r.Close()
		w.Close()
	}
}

func TestDispatchReadBeforeWrite(t *testing.T) {
	d, cleanup := newTestDispatch(t)
	defer cleanup()

	var order []string
	d.SetReadCallback(func() { order = append(order, "read") })
	d.SetWriteCallback(func() { order = append(order, "write") })

	d.HandleEvent(poller.Read | poller.Write)
	assert.Equal(t, []string{"read", "write"}, order)
}

func TestDispatchErrorRunsAlongsideRead(t *testing.T) {
	d, cleanup := newTestDispatch(t)
	defer cleanup()

	var order []string
	d.SetReadCallback(func() { order = append(order, "read") })
	d.SetErrorCallback(func() { order = append(order, "error") })

	d.HandleEvent(poller.Error | poller.Read)
	assert.Equal(t, []string{"error", "read"}, order)
}

func TestDispatchCloseSuppressedWhileReading(t *testing.T) {
	d, cleanup := newTestDispatch(t)
	defer cleanup()

	closed := false
	d.SetCloseCallback(func() { closed = true })
	d.reading = true

	d.HandleEvent(poller.Hangup)
	assert.False(t, closed, "close must not fire while read interest is registered")
}

func TestDispatchCloseFiresOnBareHangup(t *testing.T) {
	d, cleanup := newTestDispatch(t)
	defer cleanup()

	closed := false
	d.SetCloseCallback(func() { closed = true })

	d.HandleEvent(poller.Hangup)
	assert.True(t, closed)
}

func TestDispatchHangupAlsoReads(t *testing.T) {
	d, cleanup := newTestDispatch(t)
	defer cleanup()

	read := false
	d.SetReadCallback(func() { read = true })

	d.HandleEvent(poller.Hangup)
	assert.True(t, read, "hangup must also invoke the read callback")
}

func TestDispatchTiedWithNilOwnerSkipsEverything(t *testing.T) {
	d, cleanup := newTestDispatch(t)
	defer cleanup()

	fired := false
	d.SetReadCallback(func() { fired = true })
	d.Tie(nil)

	d.HandleEvent(poller.Read)
	assert.False(t, fired)
}

func TestDispatchInterestEventTransitions(t *testing.T) {
	d, cleanup := newTestDispatch(t)
	defer cleanup()

	assert.Equal(t, poller.Detach, d.interestEvent())

	d.reading = true
	assert.Equal(t, poller.Readable, d.interestEvent())
	d.registered = true
	assert.Equal(t, poller.ModReadable, d.interestEvent())

	d.writing = true
	assert.Equal(t, poller.ModReadWriteable, d.interestEvent())

	d.registered = false
	assert.Equal(t, poller.ReadWriteable, d.interestEvent())

	d.reading = false
	assert.Equal(t, poller.Writable, d.interestEvent())
}
