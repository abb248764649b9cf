package rcs

import "github.com/dittosync/cvsync/pkg/wire"

// Serialize re-renders f as RCS file bytes. The output is semantically
// equivalent to any input Parse produced f from, but is not guaranteed to
// be byte-identical to it: whitespace and phrase ordering within a
// revision's optional tail are normalized (spec §8 property 4 explicitly
// excepts "incidental whitespace" from the round-trip guarantee).
func (f *RcsFile) Serialize() []byte {
	w := wire.NewWriter(4096)

	w.PutBytes([]byte("head"))
	if !f.Admin.Head.IsZero() {
		w.PutByte(' ')
		w.PutBytes(f.Admin.Head.Bytes())
	}
	w.PutBytes([]byte(";\n"))

	if !f.Admin.Branch.IsZero() {
		w.PutBytes([]byte("branch\t"))
		w.PutBytes(f.Admin.Branch.Bytes())
		w.PutBytes([]byte(";\n"))
	}

	w.PutBytes([]byte("access"))
	for _, id := range f.Admin.Access {
		w.PutByte(' ')
		w.PutBytes(id)
	}
	w.PutBytes([]byte(";\n"))

	w.PutBytes([]byte("symbols"))
	for _, s := range f.Admin.Symbols {
		w.PutBytes([]byte("\n\t"))
		w.PutBytes(s.Name)
		w.PutByte(':')
		w.PutBytes(s.Num.Bytes())
	}
	w.PutBytes([]byte(";\n"))

	w.PutBytes([]byte("locks"))
	for _, l := range f.Admin.Locks {
		w.PutBytes([]byte("\n\t"))
		w.PutBytes(l.ID)
		w.PutByte(':')
		w.PutBytes(l.Num.Bytes())
	}
	w.PutByte(';')
	if f.Admin.Strict {
		w.PutBytes([]byte(" strict"))
	}
	w.PutBytes([]byte(";\n"))

	if f.Admin.Comment != nil {
		w.PutBytes([]byte("comment\t@"))
		writeEscaped(w, f.Admin.Comment)
		w.PutBytes([]byte("@;\n"))
	}
	if f.Admin.Expand != nil {
		w.PutBytes([]byte("expand\t@"))
		writeEscaped(w, f.Admin.Expand)
		w.PutBytes([]byte("@;\n"))
	}
	w.PutByte('\n')

	for i := range f.Delta {
		writeDelta(w, &f.Delta[i])
	}

	w.PutBytes([]byte("\ndesc\n@"))
	writeEscaped(w, f.Desc)
	w.PutBytes([]byte("@\n\n"))

	for i := range f.Delta {
		writeDeltatext(w, &f.Delta[i])
	}

	return w.Bytes()
}

func writeDelta(w *wire.Writer, r *Revision) {
	w.PutBytes(r.Num.Bytes())
	w.PutBytes([]byte("\ndate\t"))
	w.PutBytes(r.Date.Raw)
	w.PutBytes([]byte(";\tauthor "))
	w.PutBytes(r.Author)
	w.PutBytes([]byte(";\tstate"))
	if r.State != nil {
		w.PutByte(' ')
		w.PutBytes(r.State)
	}
	w.PutBytes([]byte(";\nbranches"))
	for _, b := range r.Branches {
		w.PutBytes([]byte("\n\t"))
		w.PutBytes(b.Bytes())
	}
	w.PutBytes([]byte(";\nnext"))
	if !r.Next.IsZero() {
		w.PutByte(' ')
		w.PutBytes(r.Next.Bytes())
	}
	w.PutBytes([]byte(";\n\n"))
}

func writeDeltatext(w *wire.Writer, r *Revision) {
	w.PutBytes(r.Num.Bytes())
	w.PutBytes([]byte("\nlog\n@"))
	writeEscaped(w, r.Log)
	w.PutBytes([]byte("@\ntext\n@"))
	writeEscaped(w, r.Text)
	w.PutBytes([]byte("@\n\n"))
}

// writeEscaped emits s as RCS string content, doubling every '@' per the
// grammar's "@@" escape rule.
func writeEscaped(w *wire.Writer, s []byte) {
	for _, b := range s {
		w.PutByte(b)
		if b == '@' {
			w.PutByte('@')
		}
	}
}
