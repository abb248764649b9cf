package collection

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherInvalidatesOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refuse.txt")
	require.NoError(t, os.WriteFile(path, []byte("Attic\n"), 0644))

	changed := make(chan string, 1)
	w, err := NewWatcher(func(p string) {
		select {
		case changed <- p:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Watch(path))

	require.NoError(t, os.WriteFile(path, []byte("Attic\ncore\n"), 0644))

	select {
	case p := <-changed:
		assert.Equal(t, path, p)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch notification")
	}
}

func TestWatcherClosesCleanly(t *testing.T) {
	w, err := NewWatcher(nil)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}
