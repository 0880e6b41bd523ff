package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoopAsync(t *testing.T, loop *EventLoop) func() {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Loop()
	}()
	// Give the loop goroutine a chance to record its owning id before
	// the test starts posting cross-thread tasks.
	for i := 0; i < 100 && !loop.running.Load(); i++ {
		time.Sleep(time.Millisecond)
	}
	return func() {
		loop.Quit()
		<-done
	}
}

func TestEventLoopQueueInLoopPreservesFIFOOrder(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	stop := runLoopAsync(t, loop)
	defer stop()

	const n = 10000
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		loop.QueueInLoop(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, n)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestEventLoopRunInLoopSynchronousWhenOnLoop(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	stop := runLoopAsync(t, loop)
	defer stop()

	done := make(chan bool, 1)
	loop.QueueInLoop(func() {
		ran := false
		loop.RunInLoop(func() { ran = true })
		done <- ran
	})
	assert.True(t, <-done)
}

func TestEventLoopIsInLoopGoroutine(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	assert.False(t, loop.IsInLoopGoroutine())

	stop := runLoopAsync(t, loop)
	defer stop()

	result := make(chan bool, 1)
	loop.QueueInLoop(func() { result <- loop.IsInLoopGoroutine() })
	assert.True(t, <-result)
}

func TestEventLoopTimerFiresAndCancels(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	stop := runLoopAsync(t, loop)
	defer stop()

	fired := make(chan struct{}, 1)
	loop.RunAfter(10*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	canceled := true
	id := loop.RunAfter(10*time.Millisecond, func() { canceled = false })
	loop.Cancel(id)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, canceled)
}
