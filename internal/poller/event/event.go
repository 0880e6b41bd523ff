// Package event provides the raw epoll_event layout used by the syscall
// path. The teacher carries per-arch variants (arm64/loong64/mipsx) of
// this struct to match each arch's padding; this runtime targets the
// common 64-bit layout only (Events uint32 + 8-byte opaque Data, which
// is where the Dispatch cookie pointer is stored) and drops the arch
// splits as an intentional simplification — documented in DESIGN.md.
package event

// EpollEvent mirrors the kernel's struct epoll_event. Data carries a
// *poller.Desc cookie via unsafe.Pointer, never a real file descriptor.
type EpollEvent struct {
	Events uint32
	_pad   uint32
	Data   [8]byte
}
