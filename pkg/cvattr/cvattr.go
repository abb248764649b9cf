// Package cvattr encodes and decodes the per-entry attribute tuples
// carried in scan/compare records (spec §3 "CvsyncAttr").
package cvattr

import (
	"fmt"

	"github.com/dittosync/cvsync/pkg/wire"
)

// FileType tags which attribute shape a record carries (spec §4.4
// "Filetype tags").
type FileType byte

const (
	Dir FileType = iota
	File
	RCS
	RCSAttic
	Symlink
)

func (t FileType) String() string {
	switch t {
	case Dir:
		return "DIR"
	case File:
		return "FILE"
	case RCS:
		return "RCS"
	case RCSAttic:
		return "RCS_ATTIC"
	case Symlink:
		return "SYMLINK"
	default:
		return "UNKNOWN"
	}
}

// WireLen is the encoded byte length of this filetype's attribute blob.
func (t FileType) WireLen() int {
	switch t {
	case Dir:
		return 2
	case File:
		return 18
	case RCS, RCSAttic:
		return 10
	case Symlink:
		return 2
	default:
		return 0
	}
}

// Attr is the decoded attribute tuple for one scan/compare entry. Not
// every field is meaningful for every FileType; Encode/Decode only
// touch the fields the type defines (spec §3).
type Attr struct {
	Type  FileType
	Mode  uint16
	Mtime int64
	Size  uint64
}

// Encode appends the wire form of a for its Type to w.
func Encode(w *wire.Writer, a Attr) error {
	switch a.Type {
	case Dir, Symlink:
		w.PutUint16(a.Mode)
	case File:
		w.PutInt64(a.Mtime)
		w.PutUint64(a.Size)
		w.PutUint16(a.Mode)
	case RCS, RCSAttic:
		w.PutInt64(a.Mtime)
		w.PutUint16(a.Mode)
	default:
		return fmt.Errorf("cvattr: unknown filetype %d", a.Type)
	}
	return nil
}

// Decode reads one attribute blob for the given FileType from r.
func Decode(r *wire.Reader, t FileType) (Attr, error) {
	a := Attr{Type: t}
	switch t {
	case Dir, Symlink:
		mode, err := r.Uint16()
		if err != nil {
			return Attr{}, err
		}
		a.Mode = mode
	case File:
		mtime, err := r.Int64()
		if err != nil {
			return Attr{}, err
		}
		size, err := r.Uint64()
		if err != nil {
			return Attr{}, err
		}
		mode, err := r.Uint16()
		if err != nil {
			return Attr{}, err
		}
		a.Mtime, a.Size, a.Mode = mtime, size, mode
	case RCS, RCSAttic:
		mtime, err := r.Int64()
		if err != nil {
			return Attr{}, err
		}
		mode, err := r.Uint16()
		if err != nil {
			return Attr{}, err
		}
		a.Mtime, a.Mode = mtime, mode
	default:
		return Attr{}, fmt.Errorf("cvattr: unknown filetype %d", t)
	}
	return a, nil
}
