package rcs

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/dittosync/cvsync/pkg/rcsnum"
)

// reservedKeywords is the exact set of bytes a newphrase identifier must
// NOT match (spec §4.2 "Tokenization rules").
var reservedKeywords = map[string]bool{
	"access": true, "author": true, "branch": true, "branches": true,
	"comment": true, "date": true, "desc": true, "expand": true,
	"head": true, "locks": true, "log": true, "next": true,
	"state": true, "strict": true, "symbols": true, "text": true,
}

func looksLikeNum(lit []byte) bool {
	if len(lit) == 0 {
		return false
	}
	for _, b := range lit {
		if (b < '0' || b > '9') && b != '.' {
			return false
		}
	}
	return true
}

type parser struct {
	lx  *lexer
	cur token
}

func newParser(buf []byte) (*parser, error) {
	p := &parser{lx: newLexer(buf)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	t, err := p.lx.next()
	if err != nil {
		return &ParseError{Offset: p.lx.pos, Reason: err.Error()}
	}
	p.cur = t
	return nil
}

func (p *parser) errf(format string, args ...any) error {
	return &ParseError{Offset: p.cur.off, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) wrap(err error) error {
	return &ParseError{Offset: p.cur.off, Reason: err.Error()}
}

func (p *parser) isKeyword(kw string) bool {
	return p.cur.kind == tokWord && string(p.cur.lit) == kw
}

func (p *parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return p.errf("expected keyword %q", kw)
	}
	return p.advance()
}

func (p *parser) expectSemi() error {
	if p.cur.kind != tokSemi {
		return p.errf("expected ';'")
	}
	return p.advance()
}

func (p *parser) expectColon() error {
	if p.cur.kind != tokColon {
		return p.errf("expected ':'")
	}
	return p.advance()
}

// parseNewphrase consumes "id word* ;" without interpreting its content;
// newphrases are vendor/future extensions the grammar requires parsers to
// skip (spec §4.2).
func (p *parser) parseNewphrase() error {
	if p.cur.kind != tokWord || reservedKeywords[string(p.cur.lit)] {
		return p.errf("expected newphrase identifier")
	}
	if err := p.advance(); err != nil {
		return err
	}
	for p.cur.kind == tokWord || p.cur.kind == tokString || p.cur.kind == tokColon {
		if err := p.advance(); err != nil {
			return err
		}
	}
	return p.expectSemi()
}

func (p *parser) parseOptNum() (rcsnum.Num, bool, error) {
	if p.cur.kind != tokWord {
		return rcsnum.Num{}, false, nil
	}
	n, err := rcsnum.Parse(p.cur.lit)
	if err != nil {
		return rcsnum.Num{}, false, p.wrap(err)
	}
	if err := p.advance(); err != nil {
		return rcsnum.Num{}, false, err
	}
	return n, true, nil
}

func (p *parser) parseAdmin() (Admin, error) {
	var a Admin

	if err := p.expectKeyword("head"); err != nil {
		return a, err
	}
	head, _, err := p.parseOptNum()
	if err != nil {
		return a, err
	}
	a.Head = head
	if err := p.expectSemi(); err != nil {
		return a, err
	}

	if p.isKeyword("branch") {
		if err := p.advance(); err != nil {
			return a, err
		}
		branch, _, err := p.parseOptNum()
		if err != nil {
			return a, err
		}
		a.Branch = branch
		if err := p.expectSemi(); err != nil {
			return a, err
		}
	}

	if err := p.expectKeyword("access"); err != nil {
		return a, err
	}
	for p.cur.kind == tokWord {
		a.Access = append(a.Access, p.cur.lit)
		if err := p.advance(); err != nil {
			return a, err
		}
	}
	if err := p.expectSemi(); err != nil {
		return a, err
	}

	if err := p.expectKeyword("symbols"); err != nil {
		return a, err
	}
	for p.cur.kind == tokWord {
		name := p.cur.lit
		if err := p.advance(); err != nil {
			return a, err
		}
		if err := p.expectColon(); err != nil {
			return a, err
		}
		if p.cur.kind != tokWord {
			return a, p.errf("expected revision number after symbol %q", name)
		}
		num, err := rcsnum.Parse(p.cur.lit)
		if err != nil {
			return a, p.wrap(err)
		}
		if err := p.advance(); err != nil {
			return a, err
		}
		a.Symbols = append(a.Symbols, SymbolEntry{Name: name, Num: num})
	}
	if err := p.expectSemi(); err != nil {
		return a, err
	}

	if err := p.expectKeyword("locks"); err != nil {
		return a, err
	}
	for p.cur.kind == tokWord {
		id := p.cur.lit
		if err := p.advance(); err != nil {
			return a, err
		}
		if err := p.expectColon(); err != nil {
			return a, err
		}
		if p.cur.kind != tokWord {
			return a, p.errf("expected revision number after lock owner %q", id)
		}
		num, err := rcsnum.Parse(p.cur.lit)
		if err != nil {
			return a, p.wrap(err)
		}
		if err := p.advance(); err != nil {
			return a, err
		}
		a.Locks = append(a.Locks, LockEntry{ID: id, Num: num})
	}
	if err := p.expectSemi(); err != nil {
		return a, err
	}

	if p.isKeyword("strict") {
		if err := p.advance(); err != nil {
			return a, err
		}
		if err := p.expectSemi(); err != nil {
			return a, err
		}
		a.Strict = true
	}

	if p.isKeyword("comment") {
		if err := p.advance(); err != nil {
			return a, err
		}
		if p.cur.kind == tokString {
			a.Comment = p.cur.lit
			if err := p.advance(); err != nil {
				return a, err
			}
		}
		if err := p.expectSemi(); err != nil {
			return a, err
		}
	}

	if p.isKeyword("expand") {
		if err := p.advance(); err != nil {
			return a, err
		}
		if p.cur.kind == tokString {
			a.Expand = p.cur.lit
			if err := p.advance(); err != nil {
				return a, err
			}
		}
		if err := p.expectSemi(); err != nil {
			return a, err
		}
	}

	for p.cur.kind == tokWord && !looksLikeNum(p.cur.lit) {
		if err := p.parseNewphrase(); err != nil {
			return a, err
		}
	}

	return a, nil
}

func (p *parser) parseDelta() (Revision, error) {
	var r Revision
	if p.cur.kind != tokWord || !looksLikeNum(p.cur.lit) {
		return r, p.errf("expected revision number")
	}
	num, err := rcsnum.Parse(p.cur.lit)
	if err != nil {
		return r, p.wrap(err)
	}
	r.Num = num
	if err := p.advance(); err != nil {
		return r, err
	}

	if err := p.expectKeyword("date"); err != nil {
		return r, err
	}
	if p.cur.kind != tokWord {
		return r, p.errf("expected date")
	}
	date, err := parseDate(p.cur.lit)
	if err != nil {
		return r, err
	}
	r.Date = date
	if err := p.advance(); err != nil {
		return r, err
	}
	if err := p.expectSemi(); err != nil {
		return r, err
	}

	if err := p.expectKeyword("author"); err != nil {
		return r, err
	}
	if p.cur.kind != tokWord {
		return r, p.errf("expected author")
	}
	r.Author = p.cur.lit
	if err := p.advance(); err != nil {
		return r, err
	}
	if err := p.expectSemi(); err != nil {
		return r, err
	}

	if err := p.expectKeyword("state"); err != nil {
		return r, err
	}
	if p.cur.kind == tokWord {
		r.State = p.cur.lit
		if err := p.advance(); err != nil {
			return r, err
		}
	}
	if err := p.expectSemi(); err != nil {
		return r, err
	}

	if err := p.expectKeyword("branches"); err != nil {
		return r, err
	}
	for p.cur.kind == tokWord {
		n, err := rcsnum.Parse(p.cur.lit)
		if err != nil {
			return r, p.wrap(err)
		}
		r.Branches = append(r.Branches, n)
		if err := p.advance(); err != nil {
			return r, err
		}
	}
	if err := p.expectSemi(); err != nil {
		return r, err
	}

	if err := p.expectKeyword("next"); err != nil {
		return r, err
	}
	next, _, err := p.parseOptNum()
	if err != nil {
		return r, err
	}
	r.Next = next
	if err := p.expectSemi(); err != nil {
		return r, err
	}

	for p.cur.kind == tokWord && !looksLikeNum(p.cur.lit) && !p.isKeyword("desc") {
		if err := p.parseNewphrase(); err != nil {
			return r, err
		}
	}

	r.NextIdx = -1
	return r, nil
}

// Parse builds an RcsFile from buf, which must be the complete contents of
// an RCS file ending in '\n' (spec §4.2). Fields taken from word tokens
// (access ids, authors, states, symbol and lock names) borrow from buf,
// so buf must outlive the returned RcsFile; string contents (comment,
// expand, desc, log, text), revision numbers and dates are copies.
func Parse(buf []byte) (*RcsFile, error) {
	if len(buf) == 0 || buf[len(buf)-1] != '\n' {
		return nil, &ParseError{Offset: len(buf), Reason: "input does not end with a newline"}
	}

	p, err := newParser(buf)
	if err != nil {
		return nil, err
	}

	admin, err := p.parseAdmin()
	if err != nil {
		return nil, err
	}

	var delta []Revision
	for p.cur.kind == tokWord && looksLikeNum(p.cur.lit) {
		if len(delta) >= MaxRevisions {
			return nil, &ParseError{Offset: p.cur.off, Reason: ErrTooManyRevisions.Error()}
		}
		rev, err := p.parseDelta()
		if err != nil {
			return nil, err
		}
		delta = append(delta, rev)
	}

	if err := p.expectKeyword("desc"); err != nil {
		return nil, err
	}
	if p.cur.kind != tokString {
		return nil, p.errf("expected desc string")
	}
	desc := p.cur.lit
	if err := p.advance(); err != nil {
		return nil, err
	}

	for p.cur.kind == tokWord && looksLikeNum(p.cur.lit) {
		num, err := rcsnum.Parse(p.cur.lit)
		if err != nil {
			return nil, p.wrap(err)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}

		if err := p.expectKeyword("log"); err != nil {
			return nil, err
		}
		if p.cur.kind != tokString {
			return nil, p.errf("expected log string")
		}
		logBody := p.cur.lit
		if err := p.advance(); err != nil {
			return nil, err
		}

		for p.cur.kind == tokWord && !p.isKeyword("text") {
			if err := p.parseNewphrase(); err != nil {
				return nil, err
			}
		}

		if err := p.expectKeyword("text"); err != nil {
			return nil, err
		}
		if p.cur.kind != tokString {
			return nil, p.errf("expected text string")
		}
		textBody := p.cur.lit
		if err := p.advance(); err != nil {
			return nil, err
		}

		idx := indexOfRevision(delta, num)
		if idx < 0 {
			return nil, p.errf("deltatext for unknown revision %s", num)
		}
		delta[idx].Log = logBody
		delta[idx].Text = textBody
		delta[idx].Flags |= DeltatextPresent
	}

	if p.cur.kind != tokEOF {
		return nil, p.errf("unexpected trailing data")
	}

	for i := range delta {
		if !delta[i].HasDeltatext() {
			return nil, &ParseError{Reason: fmt.Sprintf("%s: %s", ErrMissingDeltatext.Error(), delta[i].Num)}
		}
	}

	sortDescending(delta)

	for i := range delta {
		if delta[i].Next.IsZero() {
			continue
		}
		idx := indexOfRevision(delta, delta[i].Next)
		if idx < 0 {
			return nil, &ParseError{Reason: fmt.Sprintf("%s: %s -> %s", ErrDanglingNext.Error(), delta[i].Num, delta[i].Next)}
		}
		delta[i].NextIdx = idx
	}

	sortAdmin(&admin)

	return &RcsFile{Admin: admin, Delta: delta, Desc: desc}, nil
}

func indexOfRevision(delta []Revision, num rcsnum.Num) int {
	for i := range delta {
		if delta[i].Num.Equal(num) {
			return i
		}
	}
	return -1
}

// sortDescending orders delta under rcsnum.Compare (spec §4.2 "Revision
// ordering"), skipping the sort entirely when already ordered, per spec's
// "when already sorted... skip the sort".
func sortDescending(delta []Revision) {
	sorted := true
	for i := 1; i < len(delta); i++ {
		if rcsnum.Compare(delta[i-1].Num, delta[i].Num) > 0 {
			sorted = false
			break
		}
	}
	if sorted {
		return
	}
	sort.SliceStable(delta, func(i, j int) bool {
		return rcsnum.Compare(delta[i].Num, delta[j].Num) < 0
	})
}

func sortAdmin(a *Admin) {
	sort.Slice(a.Access, func(i, j int) bool { return bytes.Compare(a.Access[i], a.Access[j]) < 0 })
	sort.Slice(a.Symbols, func(i, j int) bool { return bytes.Compare(a.Symbols[i].Name, a.Symbols[j].Name) < 0 })
	sort.Slice(a.Locks, func(i, j int) bool {
		if c := bytes.Compare(a.Locks[i].ID, a.Locks[j].ID); c != 0 {
			return c < 0
		}
		return rcsnum.Compare(a.Locks[i].Num, a.Locks[j].Num) < 0
	})
}
