package session

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dittosync/cvsync/internal/logger"
	"github.com/dittosync/cvsync/pkg/comparer"
	"github.com/dittosync/cvsync/pkg/cvattr"
	"github.com/dittosync/cvsync/pkg/digest"
	"github.com/dittosync/cvsync/pkg/rcs"
	"github.com/dittosync/cvsync/pkg/scanner"
)

// applyRecords reads the reverse records the server sends over records
// (sub-channel 0) and realizes them against the local tree rooted at
// root, fetching any accompanying file content from body (sub-channel
// 1) (spec §4.4 scenarios S2-S5: the client-side half of ADD, REMOVE,
// SETATTR, UPDATE, and UPDATE_RCS). hashName is the digest algorithm
// negotiated for the session, needed to recompute a local RCS file's
// own digest for comparison against an UPDATE_RCS record.
func applyRecords(records io.Reader, body io.Reader, root string, hashName digest.Name) error {
	for {
		cmd, err := scanner.ReadFrame(records)
		if err != nil {
			return fmt.Errorf("session: read reverse record: %w", err)
		}
		if cmd.Op == scanner.OpEnd {
			return nil
		}
		if err := applyOne(cmd, body, root, hashName); err != nil {
			return fmt.Errorf("session: apply %s %s: %w", cmd.Op, cmd.Name, err)
		}
	}
}

func applyOne(cmd scanner.Command, body io.Reader, root string, hashName digest.Name) error {
	full := filepath.Join(root, filepath.FromSlash(cmd.Name))

	switch cmd.Op {
	case scanner.OpRemove:
		logger.Debug("apply: remove", logger.Path(full))
		if err := os.RemoveAll(full); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil

	case scanner.OpSetAttr:
		return applyAttr(full, cmd)

	case scanner.OpAdd, scanner.OpRCSAttic, scanner.OpUpdate:
		return applyContent(full, cmd, body)

	case scanner.OpUpdateRCS:
		return applyUpdateRCS(full, cmd, body, hashName)

	case scanner.OpUpdateEnd:
		// Bare record-level terminator closing the OpUpdateRCS
		// sub-dialogue (spec §4.4 "UPDATE_RCS"); the body has already
		// been consumed by applyUpdateRCS, nothing further to do.
		return nil

	default:
		return fmt.Errorf("unknown reverse op %d", cmd.Op)
	}
}

// applyUpdateRCS decodes the revision digest the server sent for full
// and compares it against the same digest recomputed from the locally
// held RCS file (spec §4.4 "UPDATE_RCS"): if they match byte for byte,
// the two sides already agree on content and only the mtime needs
// touching. A digest that doesn't match means the content itself has
// diverged in a way this sub-dialogue's hash-only encoding cannot
// repair on its own — as with an unreproducible symlink target,
// that's logged and left for a later full resync rather than failing
// the whole session.
func applyUpdateRCS(full string, cmd scanner.Command, body io.Reader, hashName digest.Name) error {
	raw, err := readBody(body)
	if err != nil {
		return err
	}

	local, closer, err := rcs.ParseFile(full)
	if err != nil {
		logger.Warn("apply: update_rcs on unreadable local file, needs full resync", logger.Path(full), logger.Err(err))
		return nil
	}
	defer closer()

	var localEncoded bytes.Buffer
	if err := comparer.WriteUpdateRCS(&localEncoded, local, hashName); err != nil {
		return fmt.Errorf("encode local update_rcs for %s: %w", full, err)
	}

	if !bytes.Equal(localEncoded.Bytes(), raw) {
		logger.Warn("apply: update_rcs digest mismatch, needs full resync", logger.Path(full))
		return nil
	}

	logger.Debug("apply: update_rcs content confirmed identical", logger.Path(full))
	mtime := time.Unix(cmd.Attr.Mtime, 0)
	return os.Chtimes(full, mtime, mtime)
}

func applyAttr(full string, cmd scanner.Command) error {
	if err := os.Chmod(full, fs.FileMode(cmd.Attr.Mode)); err != nil {
		return err
	}
	if cmd.Type == cvattr.RCS || cmd.Type == cvattr.RCSAttic || cmd.Type == cvattr.File {
		mtime := time.Unix(cmd.Attr.Mtime, 0)
		if err := os.Chtimes(full, mtime, mtime); err != nil {
			return err
		}
	}
	logger.Debug("apply: setattr", logger.Path(full), logger.Mode(uint32(cmd.Attr.Mode)))
	return nil
}

func applyContent(full string, cmd scanner.Command, body io.Reader) error {
	switch cmd.Type {
	case cvattr.Dir:
		logger.Debug("apply: mkdir", logger.Path(full))
		return os.MkdirAll(full, os.FileMode(cmd.Attr.Mode)|0o700)

	case cvattr.Symlink:
		// Scan/compare records carry only the symlink's mode, not its
		// target (spec §3 CvsyncAttr has no target field for SYMLINK),
		// so a symlink entry cannot be fully realized from this
		// dialogue alone. Record it and move on rather than fail the
		// whole session over one unreproducible entry.
		logger.Warn("apply: cannot recreate symlink without a target", logger.Path(full))
		return nil

	case cvattr.File, cvattr.RCS, cvattr.RCSAttic:
		data, err := readBody(body)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, data, fs.FileMode(cmd.Attr.Mode)); err != nil {
			return err
		}
		mtime := time.Unix(cmd.Attr.Mtime, 0)
		if err := os.Chtimes(full, mtime, mtime); err != nil {
			return err
		}
		logger.Debug("apply: write", logger.Path(full), logger.Size(uint64(len(data))))
		return nil

	default:
		return fmt.Errorf("unknown filetype %d", cmd.Type)
	}
}
