package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/loopwire/reactor/metrics"
)

func TestMetrics(t *testing.T) {
	metrics.Add(metrics.TCPReadvCalls, 1)
	assert.Equal(t, uint64(1), metrics.Get(metrics.TCPReadvCalls))
	metrics.Add(metrics.TCPReadvCalls, 1)
	assert.Equal(t, uint64(2), metrics.Get(metrics.TCPReadvCalls))
	metrics.Add(metrics.Max+1, 1)
	metrics.Add(metrics.PollNoWait, 8)
	metrics.Add(metrics.PollWait, 9)
	metrics.Add(metrics.PollEvents, 99)
	metrics.Add(metrics.TCPWritevCalls, 191)
	metrics.Add(metrics.TCPWritevBlocks, 1191)
	metrics.Add(metrics.TCPReadvCalls, 191)
	metrics.Add(metrics.TCPReadvBytes, 1191)
	assert.Equal(t, uint64(0), metrics.Get(metrics.Max+1))
	metrics.ShowMetrics()
	metrics.ShowMetricsOfPeriod(time.Millisecond)
}
