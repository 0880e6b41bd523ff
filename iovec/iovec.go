// Package iovec builds the small fixed-length unix.Iovec slices the
// read and write paths need for readv/writev, adapted from the teacher's
// internal/iovec. Trimmed to the two-segment case this runtime actually
// uses (buffer tail + stack extra buffer on read; buffer head on write)
// instead of the teacher's N-segment UDP/MMsghdr-oriented vector, since
// UDP is out of scope here.
package iovec

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ExtraBufSize is the size of the stack extra buffer HandleRead appends
// as the second readv segment, so a single readv call can drain a socket
// even when the connection's buffer tail is smaller than the kernel has
// buffered.
const ExtraBufSize = 64 * 1024

// TwoSegment builds a two-element iovec: base is typically a buffer's
// writable tail, extra is a fixed scratch buffer that absorbs whatever
// doesn't fit in base.
func TwoSegment(base, extra []byte) []unix.Iovec {
	vec := make([]unix.Iovec, 0, 2)
	if len(base) > 0 {
		vec = append(vec, sliceToIovec(base))
	}
	if len(extra) > 0 {
		vec = append(vec, sliceToIovec(extra))
	}
	return vec
}

// OneSegment builds a single-element iovec over buf, used by the write
// path where the whole pending write buffer is one contiguous slice.
func OneSegment(buf []byte) []unix.Iovec {
	if len(buf) == 0 {
		return nil
	}
	return []unix.Iovec{sliceToIovec(buf)}
}

func sliceToIovec(b []byte) unix.Iovec {
	var iv unix.Iovec
	iv.Base = (*byte)(unsafe.Pointer(&b[0]))
	iv.SetLen(len(b))
	return iv
}
