package launcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferBelowCapacity(t *testing.T) {
	r := NewRingBuffer(16)
	n, err := r.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(r.Bytes()))
	assert.Equal(t, 5, r.Len())
}

func TestRingBufferKeepsTail(t *testing.T) {
	r := NewRingBuffer(8)
	_, _ = r.Write([]byte("abcdefgh"))
	_, _ = r.Write([]byte("ij"))
	assert.Equal(t, "cdefghij", string(r.Bytes()))
	assert.Equal(t, 8, r.Len())
}

func TestRingBufferOversizeWrite(t *testing.T) {
	r := NewRingBuffer(4)
	_, _ = r.Write([]byte("0123456789"))
	assert.Equal(t, "6789", string(r.Bytes()))
}

func TestRingBufferManySmallWrites(t *testing.T) {
	r := NewRingBuffer(5)
	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		_, _ = r.Write([]byte(s))
	}
	assert.Equal(t, "cdefg", string(r.Bytes()))
}
