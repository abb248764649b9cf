package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Round-trip Tests
// ============================================================================

func TestRoundTrip(t *testing.T) {
	t.Run("Uint16", func(t *testing.T) {
		w := NewWriter(0)
		w.PutUint16(0xBEEF)
		r := NewReader(w.Bytes())
		v, err := r.Uint16()
		require.NoError(t, err)
		assert.Equal(t, uint16(0xBEEF), v)
	})

	t.Run("Uint32", func(t *testing.T) {
		w := NewWriter(0)
		w.PutUint32(0xDEADBEEF)
		r := NewReader(w.Bytes())
		v, err := r.Uint32()
		require.NoError(t, err)
		assert.Equal(t, uint32(0xDEADBEEF), v)
	})

	t.Run("Int64Negative", func(t *testing.T) {
		w := NewWriter(0)
		w.PutInt64(-12345)
		r := NewReader(w.Bytes())
		v, err := r.Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(-12345), v)
	})

	t.Run("LengthPrefixed", func(t *testing.T) {
		w := NewWriter(0)
		w.PutLengthPrefixed([]byte("rcs"))
		r := NewReader(w.Bytes())
		b, err := r.LengthPrefixed()
		require.NoError(t, err)
		assert.Equal(t, "rcs", string(b))
	})
}

// ============================================================================
// Bounds Checking
// ============================================================================

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.Uint32()
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestReaderSkipAndPos(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5})
	require.NoError(t, r.Skip(2))
	assert.Equal(t, 2, r.Pos())
	assert.Equal(t, 3, r.Len())
}
