package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Algorithm Selection
// ============================================================================

func TestNew(t *testing.T) {
	t.Run("SupportedAlgorithms", func(t *testing.T) {
		for _, name := range []Name{MD5, SHA1, RIPEMD160} {
			d, err := New(name)
			require.NoError(t, err)
			assert.Equal(t, name, d.Name())
		}
	})

	t.Run("UnsupportedAlgorithm", func(t *testing.T) {
		_, err := New("tiger")
		assert.Error(t, err)
	})
}

func TestNegotiate(t *testing.T) {
	assert.Equal(t, SHA1, Negotiate(SHA1))
	assert.Equal(t, Fallback, Negotiate("tiger"))
	assert.Equal(t, Fallback, Negotiate(""))
}

// ============================================================================
// Field Hashing
// ============================================================================

func TestSumConcatenatesWithoutSeparators(t *testing.T) {
	a, err := Sum(MD5, []byte("ab"), []byte("c"))
	require.NoError(t, err)
	b, err := Sum(MD5, []byte("a"), []byte("bc"))
	require.NoError(t, err)
	assert.Equal(t, a, b, "concatenation must be separator-free so a|bc == ab|c")
}

func TestSumDiffersByAlgorithm(t *testing.T) {
	md5Sum, err := Sum(MD5, []byte("revision"))
	require.NoError(t, err)
	sha1Sum, err := Sum(SHA1, []byte("revision"))
	require.NoError(t, err)
	assert.NotEqual(t, md5Sum, sha1Sum)
}
