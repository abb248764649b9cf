package refuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAtticDirectoryRefused exercises spec scenario S6: a refuse file
// containing "Attic/" skips any entry whose directory name is Attic, or
// whose name matches Attic/*.
func TestAtticDirectoryRefused(t *testing.T) {
	l, err := New([]string{"Attic/"})
	require.NoError(t, err)

	cases := []struct {
		path string
		want bool
	}{
		{"Attic", true},
		{"Attic/foo.c,v", true},
		{"src/Attic", true},
		{"src/Attic/bar.c,v", true},
		{"src/foo.c,v", false},
		{"AtticLike/foo.c,v", false},
	}
	for _, tc := range cases {
		got, err := l.Refuses(tc.path)
		require.NoError(t, err)
		assert.Equalf(t, tc.want, got, "path %q", tc.path)
	}
}

func TestEmptyListRefusesNothing(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	got, err := l.Refuses("anything/goes.c,v")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestGlobPattern(t *testing.T) {
	l, err := New([]string{"*.tmp"})
	require.NoError(t, err)
	got, err := l.Refuses("dir/scratch.tmp")
	require.NoError(t, err)
	assert.True(t, got)
}
