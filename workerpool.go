package reactor

import (
	"sync"

	"github.com/loopwire/reactor/internal/workerpool"
	"github.com/loopwire/reactor/log"
)

// Two pools, mirroring the teacher's taskpool.go sysPool/usrPool
// split: sysPool runs this runtime's own follow-up work (asynchronous
// address resolution) off the loop thread, while usrPool is the Submit entry point embedder callbacks
// use to offload blocking work instead of blocking the loop (spec.md
// §5).
var (
	poolOnce sync.Once
	sysPool  *workerpool.Pool
	usrPool  *workerpool.Pool
)

func initPools() {
	var err error
	sysPool, err = workerpool.New(0)
	if err != nil {
		log.Fatalf("reactor: init system worker pool: %v", err)
	}
	usrPool, err = workerpool.New(0)
	if err != nil {
		log.Fatalf("reactor: init user worker pool: %v", err)
	}
}

func submitSys(task func()) {
	poolOnce.Do(initPools)
	if err := sysPool.Submit(task); err != nil {
		log.Errorf("reactor: submit system task: %v", err)
	}
}

// Submit offloads task to the runtime's shared worker pool. Callbacks
// on the loop thread must not block; use Submit for anything that
// might (DNS lookups, disk I/O, CPU-heavy work) instead of calling it
// inline.
func Submit(task func()) error {
	poolOnce.Do(initPools)
	return usrPool.Submit(task)
}

// ResolveTCPAddrAsync resolves address off the loop thread and invokes
// cb with the result once done, via the system worker pool — the
// async counterpart to ResolveTCPAddr for callers that must not block
// their own goroutine on DNS.
func ResolveTCPAddrAsync(address string, cb func(*SockAddr, error)) {
	submitSys(func() {
		addr, err := ResolveTCPAddr(address)
		cb(addr, err)
	})
}
