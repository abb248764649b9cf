// Package comparer implements the server side of the scan/compare
// dialogue (spec §4.4): consuming a client's scan stream, diffing it
// against the server's own collection tree, and emitting the reverse
// records the client must apply to converge.
package comparer

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/dittosync/cvsync/internal/logger"
	"github.com/dittosync/cvsync/pkg/collection"
	"github.com/dittosync/cvsync/pkg/cvattr"
	"github.com/dittosync/cvsync/pkg/digest"
	"github.com/dittosync/cvsync/pkg/rcs"
	"github.com/dittosync/cvsync/pkg/refuse"
	"github.com/dittosync/cvsync/pkg/scanner"
)

// MaxLegacySymbols is the admin-symbols ceiling under which a peer
// negotiated at a protocol minor version below LegacyMinor still gets
// the RCS-digest-optimized UPDATE_RCS path; the symbol count field
// that protocol used is too narrow to carry larger counts, so files
// with more symbols fall back to a plain whole-file UPDATE on those
// peers (spec §4.4 "UPDATE_RCS", minor<24 fallback).
const MaxLegacySymbols = 256

// LegacyMinor is the protocol minor version at and above which
// UPDATE_RCS's symbol count field is wide enough that MaxLegacySymbols
// no longer applies.
const LegacyMinor = 24

// Compare reads the client's scan stream from r, diffs each entry
// against col's local tree, and writes the reverse records to w:
// REMOVE for entries the client has but the server doesn't, SETATTR for
// attribute-only mismatches, UPDATE for RCS files whose content
// differs, and a final pass of server-initiated ADD records for
// entries the server has that the client never mentioned (spec §4.4
// scenarios S2-S5); a directory counts as mentioned when the client
// reports any entry beneath it. The stream is terminated by an END record, matching
// the scan side's framing.
//
// onSend, if non-nil, is invoked after every non-REMOVE record written
// to w whose payload the client must fetch separately (ADD/RCS_ATTIC/
// UPDATE/UPDATE_RCS of a File, RCS, or RCS_ATTIC entry). A session
// driving Compare over a mux uses this hook to stream the matching
// file content (or, for UPDATE_RCS, the encoded revision digest) on
// the content sub-channel immediately after the record that announces
// it.
//
// minor is the protocol minor version the two peers negotiated; it
// gates whether an RCS/RCS_ATTIC mismatch may use the UPDATE_RCS
// digest-reconciliation path instead of shipping the whole file body
// (spec §4.4 "UPDATE_RCS").
func Compare(r io.Reader, w io.Writer, col *collection.Collection, hashName digest.Name, refuseList *refuse.List, minor byte, onSend func(scanner.Command) error) error {
	root := col.ResolvedScanPath()
	if root == "" {
		root = col.ResolvedPrefix()
	}

	seen := make(map[string]bool)

	for {
		cmd, err := scanner.ReadFrame(r)
		if err != nil {
			return fmt.Errorf("comparer: read scan record: %w", err)
		}
		if cmd.Op == scanner.OpEnd {
			break
		}
		seen[cmd.Name] = true
		// A client that reports an entry necessarily holds every
		// directory above it, so those are not server-only either.
		for dir := path.Dir(cmd.Name); dir != "." && dir != "/"; dir = path.Dir(dir) {
			seen[dir] = true
		}

		reply, err := compareEntry(root, cmd, hashName, minor)
		if err != nil {
			return err
		}
		if reply == nil {
			continue
		}
		if err := scanner.WriteFrame(w, *reply); err != nil {
			return err
		}
		if err := sendBodyIfNeeded(onSend, *reply); err != nil {
			return err
		}
		if reply.Op == scanner.OpUpdateRCS {
			if err := scanner.WriteFrame(w, scanner.Command{Op: scanner.OpUpdateEnd}); err != nil {
				return err
			}
		}
	}

	local, err := scanner.ListLocal(root, col.Release, refuseList)
	if err != nil {
		return fmt.Errorf("comparer: list local tree: %w", err)
	}
	for _, e := range local {
		if seen[e.RelPath] {
			continue
		}
		logger.Debug("compare: server-only entry", "path", e.RelPath)
		if err := scanner.WriteFrame(w, e.Command); err != nil {
			return err
		}
		if err := sendBodyIfNeeded(onSend, e.Command); err != nil {
			return err
		}
	}

	return scanner.WriteFrame(w, scanner.Command{Op: scanner.OpEnd})
}

// sendBodyIfNeeded invokes onSend for records whose type carries file
// content the client must fetch off-band (spec §4.4 scenarios S2, S4's
// RCS-content variant, and S5's UPDATE_RCS digest exchange): ADD/
// RCS_ATTIC/UPDATE/UPDATE_RCS of File, RCS, or RCS_ATTIC entries.
// Directory and symlink records carry everything the client needs in
// their attribute blob, so they never trigger a body send.
func sendBodyIfNeeded(onSend func(scanner.Command) error, cmd scanner.Command) error {
	if onSend == nil {
		return nil
	}
	switch cmd.Op {
	case scanner.OpAdd, scanner.OpRCSAttic, scanner.OpUpdate, scanner.OpUpdateRCS:
	default:
		return nil
	}
	switch cmd.Type {
	case cvattr.File, cvattr.RCS, cvattr.RCSAttic:
	default:
		return nil
	}
	return onSend(cmd)
}

// compareEntry diffs one client-reported entry against the local tree
// and returns the reverse record to send, or nil if the entry already
// matches. minor gates the UPDATE_RCS digest path (see Compare).
func compareEntry(root string, cmd scanner.Command, hashName digest.Name, minor byte) (*scanner.Command, error) {
	full := filepath.Join(root, filepath.FromSlash(cmd.Name))
	info, err := os.Lstat(full)
	if os.IsNotExist(err) {
		reply := scanner.Command{Op: scanner.OpRemove, Type: cmd.Type, Name: cmd.Name}
		return &reply, nil
	}
	if err != nil {
		return nil, fmt.Errorf("comparer: stat %s: %w", cmd.Name, err)
	}

	localAttr := localAttrFor(info, cmd.Type)

	if localAttr == cmd.Attr {
		return nil, nil
	}

	if (cmd.Type == cvattr.RCS || cmd.Type == cvattr.RCSAttic) && localAttr.Mtime != cmd.Attr.Mtime {
		if updateRCSEligible(full, minor) {
			reply := scanner.Command{Op: scanner.OpUpdateRCS, Type: cmd.Type, Name: cmd.Name, Attr: localAttr}
			return &reply, nil
		}
		reply := scanner.Command{Op: scanner.OpUpdate, Type: cmd.Type, Name: cmd.Name, Attr: localAttr}
		return &reply, nil
	}

	reply := scanner.Command{Op: scanner.OpSetAttr, Type: cmd.Type, Name: cmd.Name, Attr: localAttr}
	return &reply, nil
}

// updateRCSEligible reports whether the local RCS file at full can be
// offered over the digest-reconciliation path rather than a whole-file
// UPDATE: it must parse as a valid RCS file, and, for peers negotiated
// below LegacyMinor, stay within MaxLegacySymbols admin symbols (spec
// §4.4 "UPDATE_RCS" minor<24 fallback). A file that fails to parse —
// or any other error reading it — simply isn't eligible; the caller
// falls back to shipping it whole, which needs no RCS structure at
// all.
func updateRCSEligible(full string, minor byte) bool {
	file, closer, err := rcs.ParseFile(full)
	if err != nil {
		return false
	}
	defer closer()
	if minor < LegacyMinor && len(file.Admin.Symbols) > MaxLegacySymbols {
		return false
	}
	return true
}

// localAttrFor builds the local Attr for comparison against a
// client-reported one. Fields not carried by a given FileType's wire
// encoding (pkg/cvattr) are left zero so equality comparisons only ever
// weigh the fields both sides actually exchanged.
func localAttrFor(info os.FileInfo, t cvattr.FileType) cvattr.Attr {
	switch t {
	case cvattr.Dir, cvattr.Symlink:
		return cvattr.Attr{Type: t, Mode: uint16(info.Mode().Perm())}
	case cvattr.RCS, cvattr.RCSAttic:
		return cvattr.Attr{Type: t, Mtime: info.ModTime().Unix(), Mode: uint16(info.Mode().Perm())}
	default:
		return cvattr.Attr{
			Type:  t,
			Mtime: info.ModTime().Unix(),
			Size:  uint64(info.Size()),
			Mode:  uint16(info.Mode().Perm()),
		}
	}
}
