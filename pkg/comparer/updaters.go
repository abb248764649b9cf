package comparer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dittosync/cvsync/pkg/digest"
	"github.com/dittosync/cvsync/pkg/rcs"
	"github.com/dittosync/cvsync/pkg/rcsnum"
	"github.com/dittosync/cvsync/pkg/wire"
)

// updateTag identifies a field record within the UPDATE_RCS sub-dialogue
// (spec §4.4 step 1-2, "admin field records").
type updateTag byte

const (
	tagHead updateTag = iota
	tagBranch
	tagAccess
	tagSymbol
	tagLock
	tagComment
	tagExpand
	tagUpdateEnd
)

// RevisionDigest is one entry in the delta or deltatext list: a
// revision number paired with the hash of the fields the sub-dialogue
// covers for that phase (spec §4.4 steps 3-4).
type RevisionDigest struct {
	Num  rcsnum.Num
	Hash []byte
}

// AdminSummary is the decoded admin-field half of an UPDATE_RCS
// sub-dialogue (spec §4.4 step 1-2).
type AdminSummary struct {
	Head    rcsnum.Num
	Branch  rcsnum.Num
	Access  [][]byte
	Symbols []rcs.SymbolEntry
	Locks   []rcs.LockEntry
	Comment []byte
	Expand  []byte
}

func writeTaggedBytes(w io.Writer, tag updateTag, payload []byte) error {
	fw := wire.NewWriter(1 + 2 + len(payload))
	fw.PutByte(byte(tag))
	fw.PutLengthPrefixed(payload)
	_, err := w.Write(fw.Bytes())
	return err
}

func readTagged(r io.Reader) (updateTag, []byte, error) {
	hdr := make([]byte, 1)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}
	tag := updateTag(hdr[0])
	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return tag, nil, err
	}
	n := wire.Uint16(lenBuf)
	if n == 0 {
		return tag, nil, nil
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return tag, nil, err
	}
	return tag, body, nil
}

// WriteUpdateRCS encodes the full UPDATE_RCS sub-dialogue for file: one
// tagged record per admin field, access entry, symbol and lock, with a
// single UPDATE_END after the last of them (the access, symbol and lock
// lists carry no count and no terminator of their own), followed by the
// delta list and deltatext list, each a 4-byte count plus per-revision
// {num, hash} pairs, and a final UPDATE_END (spec §4.4 steps 1-5).
func WriteUpdateRCS(w io.Writer, file *rcs.RcsFile, hashName digest.Name) error {
	if err := writeTaggedBytes(w, tagHead, file.Admin.Head.Bytes()); err != nil {
		return err
	}
	if !file.Admin.Branch.IsZero() {
		if err := writeTaggedBytes(w, tagBranch, file.Admin.Branch.Bytes()); err != nil {
			return err
		}
	}
	for _, a := range file.Admin.Access {
		if err := writeTaggedBytes(w, tagAccess, a); err != nil {
			return err
		}
	}
	for _, s := range file.Admin.Symbols {
		sw := wire.NewWriter(2 + len(s.Name) + 2 + len(s.Num.Bytes()))
		sw.PutLengthPrefixed(s.Name)
		sw.PutLengthPrefixed(s.Num.Bytes())
		if err := writeTaggedBytes(w, tagSymbol, sw.Bytes()); err != nil {
			return err
		}
	}
	for _, l := range file.Admin.Locks {
		lw := wire.NewWriter(2 + len(l.ID) + 2 + len(l.Num.Bytes()))
		lw.PutLengthPrefixed(l.ID)
		lw.PutLengthPrefixed(l.Num.Bytes())
		if err := writeTaggedBytes(w, tagLock, lw.Bytes()); err != nil {
			return err
		}
	}
	if file.Admin.Comment != nil {
		if err := writeTaggedBytes(w, tagComment, file.Admin.Comment); err != nil {
			return err
		}
	}
	if file.Admin.Expand != nil {
		if err := writeTaggedBytes(w, tagExpand, file.Admin.Expand); err != nil {
			return err
		}
	}
	if err := writeTaggedBytes(w, tagUpdateEnd, nil); err != nil {
		return err
	}

	if err := writeDeltaList(w, file, hashName); err != nil {
		return err
	}
	if err := writeDeltatextList(w, file, hashName); err != nil {
		return err
	}
	return writeTaggedBytes(w, tagUpdateEnd, nil)
}

func writeDeltaList(w io.Writer, file *rcs.RcsFile, hashName digest.Name) error {
	countBuf := make([]byte, 4)
	wire.PutUint32(countBuf, uint32(len(file.Delta)))
	if _, err := w.Write(countBuf); err != nil {
		return err
	}
	for _, rev := range file.Delta {
		hash, err := digest.Sum(hashName, rev.Date.Raw, rev.Author, rev.State, branchBytes(rev.Branches), rev.Next.Bytes())
		if err != nil {
			return fmt.Errorf("comparer: hash delta %s: %w", rev.Num, err)
		}
		if err := writeRevisionDigest(w, rev.Num, hash); err != nil {
			return err
		}
	}
	return nil
}

func writeDeltatextList(w io.Writer, file *rcs.RcsFile, hashName digest.Name) error {
	countBuf := make([]byte, 4)
	wire.PutUint32(countBuf, uint32(len(file.Delta)))
	if _, err := w.Write(countBuf); err != nil {
		return err
	}
	for _, rev := range file.Delta {
		hash, err := digest.Sum(hashName, rev.Log, rev.Text)
		if err != nil {
			return fmt.Errorf("comparer: hash deltatext %s: %w", rev.Num, err)
		}
		if err := writeRevisionDigest(w, rev.Num, hash); err != nil {
			return err
		}
	}
	return nil
}

func writeRevisionDigest(w io.Writer, num rcsnum.Num, hash []byte) error {
	rw := wire.NewWriter(2 + len(num.Bytes()) + 2 + len(hash))
	rw.PutLengthPrefixed(num.Bytes())
	rw.PutLengthPrefixed(hash)
	_, err := w.Write(rw.Bytes())
	return err
}

func branchBytes(branches []rcsnum.Num) []byte {
	var buf bytes.Buffer
	for _, b := range branches {
		buf.Write(b.Bytes())
	}
	return buf.Bytes()
}

// UpdateRCS is the decoded form of an UPDATE_RCS sub-dialogue.
type UpdateRCS struct {
	Admin      AdminSummary
	Deltas     []RevisionDigest
	Deltatexts []RevisionDigest
}

// ReadUpdateRCS decodes a sub-dialogue written by WriteUpdateRCS.
func ReadUpdateRCS(r io.Reader) (UpdateRCS, error) {
	var u UpdateRCS

	for {
		tag, payload, err := readTagged(r)
		if err != nil {
			return UpdateRCS{}, err
		}
		switch tag {
		case tagHead:
			u.Admin.Head, err = rcsnum.Parse(payload)
		case tagBranch:
			u.Admin.Branch, err = rcsnum.Parse(payload)
		case tagAccess:
			u.Admin.Access = append(u.Admin.Access, payload)
		case tagSymbol:
			var s rcs.SymbolEntry
			s.Name, s.Num, err = decodeNamedNum(payload)
			u.Admin.Symbols = append(u.Admin.Symbols, s)
		case tagLock:
			var l rcs.LockEntry
			l.ID, l.Num, err = decodeNamedNum(payload)
			u.Admin.Locks = append(u.Admin.Locks, l)
		case tagComment:
			u.Admin.Comment = payload
		case tagExpand:
			u.Admin.Expand = payload
		case tagUpdateEnd:
			goto deltas
		default:
			return UpdateRCS{}, fmt.Errorf("comparer: unknown update tag %d", tag)
		}
		if err != nil {
			return UpdateRCS{}, err
		}
	}

deltas:
	deltas, err := readRevisionDigestList(r)
	if err != nil {
		return UpdateRCS{}, err
	}
	u.Deltas = deltas

	deltatexts, err := readRevisionDigestList(r)
	if err != nil {
		return UpdateRCS{}, err
	}
	u.Deltatexts = deltatexts

	if _, _, err := readTagged(r); err != nil {
		return UpdateRCS{}, err
	}
	return u, nil
}

func decodeNamedNum(payload []byte) ([]byte, rcsnum.Num, error) {
	br := wire.NewReader(payload)
	name, err := br.LengthPrefixed()
	if err != nil {
		return nil, rcsnum.Num{}, err
	}
	numBytes, err := br.LengthPrefixed()
	if err != nil {
		return nil, rcsnum.Num{}, err
	}
	num, err := rcsnum.Parse(numBytes)
	if err != nil {
		return nil, rcsnum.Num{}, err
	}
	return name, num, nil
}

func readRevisionDigestList(r io.Reader) ([]RevisionDigest, error) {
	countBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, countBuf); err != nil {
		return nil, err
	}
	count := wire.Uint32(countBuf)
	digests := make([]RevisionDigest, 0, count)
	for i := uint32(0); i < count; i++ {
		hdr := make([]byte, 2)
		if _, err := io.ReadFull(r, hdr); err != nil {
			return nil, err
		}
		numBytes := make([]byte, wire.Uint16(hdr))
		if _, err := io.ReadFull(r, numBytes); err != nil {
			return nil, err
		}
		num, err := rcsnum.Parse(numBytes)
		if err != nil {
			return nil, err
		}
		hashHdr := make([]byte, 2)
		if _, err := io.ReadFull(r, hashHdr); err != nil {
			return nil, err
		}
		hash := make([]byte, wire.Uint16(hashHdr))
		if _, err := io.ReadFull(r, hash); err != nil {
			return nil, err
		}
		digests = append(digests, RevisionDigest{Num: num, Hash: hash})
	}
	return digests, nil
}
