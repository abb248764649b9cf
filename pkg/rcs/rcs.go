// Package rcs implements a zero-copy parser for the RCS file format
// (rcsfile(5), as produced by CVS repositories): given a byte slice, it
// recovers the admin header, the ordered revision delta graph, and the
// deltatext bodies, without copying any string payload (spec §4.2).
//
// The returned RcsFile borrows every []byte field from the input buffer
// it was parsed from (save for string-token content, which is unescaped
// into freshly allocated storage because "@@" collapses to "@" and can no
// longer be a contiguous span of the input). The input buffer — typically
// a memory-mapped file — must outlive the RcsFile (spec §5 "Memory
// ownership"; spec §9 "Zero-copy parser over mmap").
package rcs

import "github.com/dittosync/cvsync/pkg/rcsnum"

// RevisionFlags records per-revision bookkeeping set during parsing.
type RevisionFlags uint8

// DeltatextPresent is set on a Revision once its deltatext phase (log +
// text) has been consumed (spec §3 invariant).
const DeltatextPresent RevisionFlags = 1 << 0

// Date is a parsed RCS revision timestamp (spec §4.2 "Date parsing").
type Date struct {
	Year, Month, Day, Hour, Min, Sec int
	Raw                              []byte // original "Y.mm.dd.hh.mm.ss" bytes
}

// SymbolEntry is one "tag : revision" pair from the admin symbols list.
type SymbolEntry struct {
	Name []byte
	Num  rcsnum.Num
}

// LockEntry is one "user : revision" pair from the admin locks list.
type LockEntry struct {
	ID  []byte
	Num rcsnum.Num
}

// Admin is the RCS file's header block (spec §3 "RcsFile").
type Admin struct {
	Head    rcsnum.Num
	Branch  rcsnum.Num // zero value if absent
	Access  [][]byte   // sorted by identifier bytes
	Symbols []SymbolEntry
	Locks   []LockEntry
	Strict  bool
	Comment []byte // nil if the phrase was absent entirely
	Expand  []byte
}

// Revision is one entry in the delta graph (spec §3 "RcsFile").
type Revision struct {
	Num      rcsnum.Num
	Date     Date
	Author   []byte
	State    []byte
	Branches []rcsnum.Num
	Next     rcsnum.Num // zero value if this is a tip
	Log      []byte
	Text     []byte
	NextIdx  int // index into RcsFile.Delta of Next, or -1
	Flags    RevisionFlags
}

// RcsFile is the complete parsed representation of one RCS file.
type RcsFile struct {
	Admin Admin
	// Delta is sorted by descending revision-number comparator
	// (rcsnum.Compare; spec §3 invariant, §4.2 "Revision ordering").
	Delta []Revision
	Desc  []byte
}

// HasDeltatext reports whether rev has completed its deltatext phase.
func (r *Revision) HasDeltatext() bool { return r.Flags&DeltatextPresent != 0 }
