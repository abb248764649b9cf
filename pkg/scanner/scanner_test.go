package scanner

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dittosync/cvsync/pkg/collection"
	"github.com/dittosync/cvsync/pkg/cvattr"
	"github.com/dittosync/cvsync/pkg/refuse"
)

func writeFile(t *testing.T, root, rel string, contents string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
}

func readAll(t *testing.T, buf *bytes.Buffer) []Command {
	t.Helper()
	var cmds []Command
	for {
		cmd, err := ReadFrame(buf)
		require.NoError(t, err)
		cmds = append(cmds, cmd)
		if cmd.Op == OpEnd {
			return cmds
		}
	}
}

func TestScanClassifiesRCSAndAttic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "module/foo.c,v", "head\t1.1;\n")
	writeFile(t, root, "module/Attic/bar.c,v", "head\t1.1;\n")
	writeFile(t, root, "module/README", "not rcs")

	var buf bytes.Buffer
	require.NoError(t, Scan(&buf, root, collection.ReleaseRCS, nil))
	cmds := readAll(t, &buf)

	byName := map[string]Command{}
	for _, c := range cmds {
		if c.Op != OpEnd {
			byName[c.Name] = c
		}
	}

	require.Contains(t, byName, "module/foo.c,v")
	assert.Equal(t, cvattr.RCS, byName["module/foo.c,v"].Type)
	assert.Equal(t, OpAdd, byName["module/foo.c,v"].Op)

	require.Contains(t, byName, "module/Attic/bar.c,v")
	assert.Equal(t, cvattr.RCSAttic, byName["module/Attic/bar.c,v"].Type)
	assert.Equal(t, OpRCSAttic, byName["module/Attic/bar.c,v"].Op)

	require.Contains(t, byName, "module/README")
	assert.Equal(t, cvattr.File, byName["module/README"].Type)

	assert.Equal(t, OpEnd, cmds[len(cmds)-1].Op)
}

func TestScanAppliesRefuseList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "module/foo.c,v", "head\t1.1;\n")
	writeFile(t, root, "module/Attic/bar.c,v", "head\t1.1;\n")

	rl, err := refuse.New([]string{"Attic"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Scan(&buf, root, collection.ReleaseRCS, rl))
	cmds := readAll(t, &buf)

	for _, c := range cmds {
		assert.NotContains(t, c.Name, "Attic")
	}
}

func TestScanEmptyTreeEmitsOnlyEnd(t *testing.T) {
	root := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, Scan(&buf, root, collection.ReleaseRCS, nil))
	cmds := readAll(t, &buf)

	require.Len(t, cmds, 1)
	assert.Equal(t, OpEnd, cmds[0].Op)
}

func TestScanListReleaseNeverTagsRCS(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "foo.c,v", "head\t1.1;\n")

	var buf bytes.Buffer
	require.NoError(t, Scan(&buf, root, collection.ReleaseList, nil))
	cmds := readAll(t, &buf)

	require.Len(t, cmds, 2)
	assert.Equal(t, cvattr.File, cmds[0].Type)
}

func TestScanMissingRootIsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Scan(&buf, filepath.Join(t.TempDir(), "missing"), collection.ReleaseRCS, nil))
	cmds := readAll(t, &buf)
	require.Len(t, cmds, 1)
	assert.Equal(t, OpEnd, cmds[0].Op)
}
