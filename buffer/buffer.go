// Package buffer implements the growable byte ring a TcpConnection uses
// for its read and write buffers.
//
// Unlike the teacher's internal/buffer package — a concurrent-safe,
// zero-copy multi-node chain built to support many simultaneous readers
// peeking the same connection's data — this buffer is loop-affine: per
// the concurrency model, exactly one EventLoop thread ever touches a
// given TcpConnection's buffers at a time, so a single growable slice
// with read/write cursors (the classic muduo/voyager Buffer shape) is
// all the contract requires. Storage is still pool-backed via
// internal/cache/mcache to avoid allocating on every grow.
package buffer

import "github.com/loopwire/reactor/internal/cache/mcache"

const (
	// prependSize reserves header room in front of the read index, mirroring
	// muduo's Buffer so that later framing helpers can prepend a length
	// header without a second allocation. Unused by the core today but kept
	// because growth arithmetic assumes it.
	prependSize = 8
	// initialSize is the initial capacity of a freshly reset Buffer.
	initialSize = 1024
)

// Buffer is a growable byte ring: bytes in [readerIndex, writerIndex) are
// readable; bytes in [writerIndex, len(buf)) are free space writers may
// fill.
type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
}

// New returns a Buffer with the default initial capacity.
func New() *Buffer {
	b := &Buffer{}
	b.Reset()
	return b
}

// Reset releases the current storage back to mcache and allocates a
// fresh, empty buffer. Safe to call on a zero-value Buffer.
func (b *Buffer) Reset() {
	if b.buf != nil {
		mcache.Free(b.buf)
	}
	b.buf = mcache.Malloc(prependSize+initialSize, prependSize+initialSize)
	b.readerIndex = prependSize
	b.writerIndex = prependSize
}

// Len returns the number of readable bytes.
func (b *Buffer) Len() int {
	return b.writerIndex - b.readerIndex
}

// WritableLen returns the number of bytes that can be appended without
// growing the underlying storage.
func (b *Buffer) WritableLen() int {
	return len(b.buf) - b.writerIndex
}

// Peek returns a slice over the readable bytes, valid until the next
// mutating call on this Buffer.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readerIndex:b.writerIndex]
}

// Retrieve advances the read cursor by n bytes, discarding them. When the
// buffer becomes empty both cursors reset to the prepend boundary so
// writable space does not drift forward forever.
func (b *Buffer) Retrieve(n int) {
	if n <= 0 {
		return
	}
	if n >= b.Len() {
		b.readerIndex = prependSize
		b.writerIndex = prependSize
		return
	}
	b.readerIndex += n
}

// RetrieveAll discards every readable byte.
func (b *Buffer) RetrieveAll() {
	b.Retrieve(b.Len())
}

// Append copies data onto the end of the readable region, growing the
// backing storage if necessary.
func (b *Buffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	b.ensureWritable(len(data))
	b.writerIndex += copy(b.buf[b.writerIndex:], data)
}

// WritableTail returns the free space after writerIndex, growing the
// backing storage to hold at least n bytes first. Used by HandleRead to
// build the first segment of a two-segment readv destination.
func (b *Buffer) WritableTail(n int) []byte {
	b.ensureWritable(n)
	return b.buf[b.writerIndex:len(b.buf)]
}

// CommitWrite advances the write cursor after a direct write into the
// slice returned by WritableTail.
func (b *Buffer) CommitWrite(n int) {
	b.writerIndex += n
}

// ensureWritable grows the backing array, compacting first by sliding the
// readable region back to the prepend boundary if that alone makes room.
func (b *Buffer) ensureWritable(n int) {
	if b.WritableLen() >= n {
		return
	}
	if prependSize+b.Len()+n <= len(b.buf) {
		readable := b.Len()
		copy(b.buf[prependSize:], b.buf[b.readerIndex:b.writerIndex])
		b.readerIndex = prependSize
		b.writerIndex = prependSize + readable
		return
	}
	readable := b.Len()
	grown := mcache.Malloc(0, prependSize+readable+n)
	grown = grown[:prependSize+readable+n]
	copy(grown[prependSize:], b.buf[b.readerIndex:b.writerIndex])
	mcache.Free(b.buf)
	b.buf = grown
	b.readerIndex = prependSize
	b.writerIndex = prependSize + readable
}
