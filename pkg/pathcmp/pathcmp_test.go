package pathcmp

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// Ordering Invariant (spec §8 property 6)
// ============================================================================

func TestCanonicalOrder(t *testing.T) {
	names := []string{"foob", "foo/bar", "foo/", "foo"}
	sort.Slice(names, func(i, j int) bool {
		return Less([]byte(names[i]), []byte(names[j]))
	})
	assert.Equal(t, []string{"foo", "foo/", "foo/bar", "foob"}, names)
}

func TestCompareEqual(t *testing.T) {
	assert.Equal(t, 0, Compare([]byte("a/b"), []byte("a/b")))
}

func TestCompareEmpty(t *testing.T) {
	assert.True(t, Less([]byte(""), []byte("a")))
	assert.False(t, Less([]byte("a"), []byte("")))
}
