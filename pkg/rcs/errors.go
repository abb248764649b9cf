package rcs

import "errors"

// ParseError is returned for any RCS grammar violation (spec §4.2
// "Failure semantics"). Partial parse state is always discarded alongside
// a ParseError — Parse never returns a partially populated *RcsFile.
type ParseError struct {
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return "rcs: parse error at offset " + itoa(e.Offset) + ": " + e.Reason
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Sentinel errors of the rcs package. ErrNoSuchRevision and
// ErrNoSuchSymbol are returned (wrapped) by the lookup functions.
// ErrMissingDeltatext, ErrDanglingNext and ErrTooManyRevisions only supply
// the text of the *ParseError that Parse returns; that error does not wrap
// them, so errors.Is does not match them.
var (
	// ErrNoSuchRevision is returned by LookupRevision when num does not
	// name any revision in the file.
	ErrNoSuchRevision = errors.New("rcs: no such revision")

	// ErrNoSuchSymbol is returned by LookupSymbol when the name resolves
	// to neither a symbol, a special literal, nor a valid revision number.
	ErrNoSuchSymbol = errors.New("rcs: no such symbol")

	// ErrMissingDeltatext names the failure when a revision listed in the delta
	// graph never received its deltatext phase (§3 invariant: every
	// revision gets DELTATEXT_PRESENT set).
	ErrMissingDeltatext = errors.New("rcs: revision missing deltatext")

	// ErrDanglingNext names the failure when a revision's "next" field does not
	// resolve to any revision present in the file (§3 invariant).
	ErrDanglingNext = errors.New("rcs: next revision not found")

	// ErrTooManyRevisions guards the implementation-level ceiling noted in
	// spec §9's Open Questions: the deltatext count field is a uint32 but
	// revision count is otherwise unbounded; files exceeding this are
	// rejected rather than risking unbounded allocation.
	ErrTooManyRevisions = errors.New("rcs: revision count exceeds implementation ceiling")
)

// MaxRevisions is the implementation-chosen ceiling resolving spec §9's
// third Open Question.
const MaxRevisions = 1 << 24
