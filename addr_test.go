package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestParseTCPAddrNumeric(t *testing.T) {
	sa, err := ParseTCPAddr("127.0.0.1:8080")
	require.NoError(t, err)
	require.Len(t, sa.Entries(), 1)
	assert.Equal(t, "127.0.0.1:8080", sa.String())
	assert.Equal(t, unix.AF_INET, sockaddrFamily(sa.Entries()[0]))
}

func TestParseTCPAddrRejectsHostname(t *testing.T) {
	_, err := ParseTCPAddr("localhost:8080")
	assert.Error(t, err)
}

func TestParseTCPAddrRejectsGarbage(t *testing.T) {
	_, err := ParseTCPAddr("not-an-address")
	assert.Error(t, err)
}

func TestResolveTCPAddrNumericStillWorks(t *testing.T) {
	sa, err := ResolveTCPAddr("127.0.0.1:53")
	require.NoError(t, err)
	require.NotEmpty(t, sa.Entries())
}

func TestSockaddrStringRoundTrip(t *testing.T) {
	sa, err := ParseTCPAddr("10.0.0.5:1234")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:1234", sockaddrString(sa.Entries()[0]))
}
