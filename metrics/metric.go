//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 THL A29 Limited, a Tencent company.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

// Package metrics provides reactor runtime monitoring counters, such as
// poll efficiency, connector retries and readv/writev efficiency, which
// is a good tool for performance tuning.
package metrics

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// All metrics definitions.
const (
	// Poller metrics
	PollWait = iota
	PollNoWait
	PollEvents
	PendingTasksRun

	// Dispatch / TCP I/O metrics
	TCPReadvCalls
	TCPReadvFails
	TCPReadvBytes
	TCPWritevCalls
	TCPWritevFails
	TCPWritevBlocks
	TCPWriteNotify
	TCPConnsCreate
	TCPConnsClose

	// Connector metrics
	ConnectorAttempts
	ConnectorRetries
	ConnectorFatalErrors
	ConnectorSelfConnects

	// TimerQueue metrics
	TimersScheduled
	TimersFired
	TimersCanceled

	Max
)

var (
	metrics [Max]atomic.Uint64
)

// Add metrics counter.
func Add(name int, delta uint64) {
	if name >= Max {
		return
	}
	metrics[name].Add(delta)
}

// Get one metric counter.
func Get(name int) uint64 {
	if name >= Max {
		return 0
	}
	return metrics[name].Load()
}

// GetAll get all metrics.
func GetAll() [Max]uint64 {
	var m [Max]uint64
	for i := range metrics {
		m[i] = metrics[i].Load()
	}
	return m
}

// ShowMetricsOfPeriod shows metric info of duration d from now on.
// It will block d duration, and then prints metrics info.
func ShowMetricsOfPeriod(d time.Duration) {
	old := GetAll()
	<-time.After(d)
	newer := GetAll()
	var m [Max]uint64
	for i := range metrics {
		m[i] = newer[i] - old[i]
	}
	showAll(m)
}

// ShowMetrics shows metric info in console.
func ShowMetrics() {
	m := GetAll()
	showAll(m)
}

func showAll(m [Max]uint64) {
	fmt.Println("######### reactor metrics (", time.Now().Format("2006-01-02 15:04:05"), ") ###########")
	showPollerMetrics(m)
	showTCPMetrics(m)
	showConnectorMetrics(m)
	showTimerMetrics(m)
	fmt.Printf("\n")
}

func showPollerMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# POLLER - number of poll returns", m[PollWait])
	fmt.Printf("%-59s: %d\n", "# POLLER - number of non-blocking polls", m[PollNoWait])
	fmt.Printf("%-59s: %d\n", "# POLLER - number of total ready events", m[PollEvents])
	if m[PollWait] > 0 {
		fmt.Printf("%-59s: %.2f\n", "# POLLER - average events per poll",
			float64(m[PollEvents])/float64(m[PollWait]))
	}
	fmt.Printf("%-59s: %d\n", "# POLLER - number of pending tasks run", m[PendingTasksRun])
}

func showTCPMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# TCP - number of Readv system calls", m[TCPReadvCalls])
	fmt.Printf("%-59s: %d\n", "# TCP - number of failed Readv system calls", m[TCPReadvFails])
	readvSucc := m[TCPReadvCalls] - m[TCPReadvFails]
	if readvSucc > 0 {
		fmt.Printf("%-59s: %dB\n", "# TCP - Readv efficiency", m[TCPReadvBytes]/readvSucc)
	}
	fmt.Printf("%-59s: %d\n", "# TCP - number of Writev system calls", m[TCPWritevCalls])
	fmt.Printf("%-59s: %d\n", "# TCP - number of blocks sent by Writev", m[TCPWritevBlocks])
	fmt.Printf("%-59s: %d\n", "# TCP - number of failed Writev system calls", m[TCPWritevFails])
	fmt.Printf("%-59s: %d\n", "# TCP - number of epoll_ctl on write event", m[TCPWriteNotify])
	fmt.Printf("%-59s: %d\n", "# TCP - number of connections created", m[TCPConnsCreate])
	fmt.Printf("%-59s: %d\n", "# TCP - number of connections closed", m[TCPConnsClose])
}

func showConnectorMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# CONNECTOR - number of connect attempts", m[ConnectorAttempts])
	fmt.Printf("%-59s: %d\n", "# CONNECTOR - number of retries scheduled", m[ConnectorRetries])
	fmt.Printf("%-59s: %d\n", "# CONNECTOR - number of fatal errors", m[ConnectorFatalErrors])
	fmt.Printf("%-59s: %d\n", "# CONNECTOR - number of self-connects detected", m[ConnectorSelfConnects])
}

func showTimerMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# TIMER - number of timers scheduled", m[TimersScheduled])
	fmt.Printf("%-59s: %d\n", "# TIMER - number of timers fired", m[TimersFired])
	fmt.Printf("%-59s: %d\n", "# TIMER - number of timers canceled", m[TimersCanceled])
}
