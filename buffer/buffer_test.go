package buffer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopwire/reactor/buffer"
)

func TestBufferAppendAndPeek(t *testing.T) {
	b := buffer.New()
	b.Append([]byte("hello"))
	assert.Equal(t, 5, b.Len())
	assert.Equal(t, "hello", string(b.Peek()))
}

func TestBufferRetrieve(t *testing.T) {
	b := buffer.New()
	b.Append([]byte("hello world"))
	b.Retrieve(6)
	assert.Equal(t, "world", string(b.Peek()))

	b.RetrieveAll()
	assert.Equal(t, 0, b.Len())
}

func TestBufferRetrieveEntireContentsResetsCursors(t *testing.T) {
	b := buffer.New()
	b.Append([]byte("abc"))
	b.Retrieve(100)
	assert.Equal(t, 0, b.Len())
	b.Append([]byte("def"))
	assert.Equal(t, "def", string(b.Peek()))
}

func TestBufferGrowsPastInitialCapacity(t *testing.T) {
	b := buffer.New()
	big := make([]byte, 8192)
	for i := range big {
		big[i] = byte(i)
	}
	b.Append(big)
	require.Equal(t, len(big), b.Len())
	assert.Equal(t, big, b.Peek())
}

func TestBufferWritableTailAndCommitWrite(t *testing.T) {
	b := buffer.New()
	tail := b.WritableTail(16)
	require.GreaterOrEqual(t, len(tail), 16)
	n := copy(tail, []byte("partial-write"))
	b.CommitWrite(n)
	assert.Equal(t, "partial-write", string(b.Peek()))
}

func TestBufferResetReleasesStorage(t *testing.T) {
	b := buffer.New()
	b.Append([]byte("data"))
	b.Reset()
	assert.Equal(t, 0, b.Len())
}
