package scanner

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dittosync/cvsync/internal/logger"
	"github.com/dittosync/cvsync/pkg/collection"
	"github.com/dittosync/cvsync/pkg/cvattr"
	"github.com/dittosync/cvsync/pkg/pathcmp"
	"github.com/dittosync/cvsync/pkg/refuse"
)

// atticDir is the classic CVS convention directory name holding dead
// revisions (spec §4.4 "ATTIC handling", GLOSSARY "Attic").
const atticDir = "Attic"

// rcsSuffix marks an RCS-format revision file.
const rcsSuffix = ",v"

// Entry pairs a discovered tree entry with its slash-separated relative
// path, for callers (the compare side) that need to match against the
// local tree rather than merely stream it.
type Entry struct {
	RelPath string
	Command Command
}

// Scan walks root (an RCS or list collection's local tree) in
// deterministic order and writes one Command per entry to w, followed
// by a terminating END (spec §4.4). Entries matching refuseList are
// silently skipped (spec §4.4 "Refuse patterns", scenario S6).
func Scan(w io.Writer, root string, rel collection.Release, refuseList *refuse.List) error {
	entries, err := ListLocal(root, rel, refuseList)
	if err != nil {
		return fmt.Errorf("scanner: walk %s: %w", root, err)
	}
	for _, e := range entries {
		if err := WriteFrame(w, e.Command); err != nil {
			return err
		}
	}
	return WriteFrame(w, Command{Op: OpEnd})
}

// ListLocal walks root and returns one Entry per non-refused file,
// directory, and symlink, in deterministic path-comparator order (spec
// §3 "Pathname"). Every Command's Op is ADD (or RCS_ATTIC for entries
// under an Attic directory); it is the caller's responsibility to
// rewrite Op when reusing these entries for a reverse record.
func ListLocal(root string, rel collection.Release, refuseList *refuse.List) ([]Entry, error) {
	var entries []Entry

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		relPath, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if refuseList != nil {
			refused, err := refuseList.Refuses(relPath)
			if err != nil {
				return err
			}
			if refused {
				logger.Debug("scan: entry refused", "path", relPath)
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			entries = append(entries, Entry{
				RelPath: relPath,
				Command: Command{
					Op:   OpAdd,
					Type: cvattr.Dir,
					Name: relPath,
					Attr: cvattr.Attr{Type: cvattr.Dir, Mode: uint16(info.Mode().Perm())},
				},
			})
		case info.Mode()&os.ModeSymlink != 0:
			entries = append(entries, Entry{
				RelPath: relPath,
				Command: Command{
					Op:   OpAdd,
					Type: cvattr.Symlink,
					Name: relPath,
					Attr: cvattr.Attr{Type: cvattr.Symlink, Mode: uint16(info.Mode().Perm())},
				},
			})
		default:
			ft := cvattr.File
			op := OpAdd
			if rel == collection.ReleaseRCS && strings.HasSuffix(relPath, rcsSuffix) {
				if path.Base(path.Dir(relPath)) == atticDir {
					ft = cvattr.RCSAttic
					op = OpRCSAttic
				} else {
					ft = cvattr.RCS
				}
			}
			entries = append(entries, Entry{
				RelPath: relPath,
				Command: Command{
					Op:   op,
					Type: ft,
					Name: relPath,
					Attr: cvattr.Attr{
						Type:  ft,
						Mtime: info.ModTime().Unix(),
						Size:  uint64(info.Size()),
						Mode:  uint16(info.Mode().Perm()),
					},
				},
			})
		}
		return nil
	})
	if walkErr != nil {
		if os.IsNotExist(walkErr) {
			return nil, nil
		}
		return nil, walkErr
	}

	sort.Slice(entries, func(i, j int) bool {
		return pathcmp.Less([]byte(entries[i].RelPath), []byte(entries[j].RelPath))
	})
	return entries, nil
}
