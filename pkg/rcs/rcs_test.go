package rcs

import (
	"testing"

	"github.com/dittosync/cvsync/pkg/rcsnum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleRCS is a minimal but complete two-revision RCS file, hand-written
// in rcsfile(5) grammar. Both `desc` and each revision's `log`/`text` use
// "@@"-escaped strings to exercise string unescaping.
const sampleRCS = `head	1.2;
access;
symbols
	V1_0:1.1;
locks; strict;
comment	@# @@escaped@@ comment@;


1.2
date	2024.03.01.10.00.00;	author alice;	state Exp;
branches;
next	1.1;

1.1
date	2024.01.01.09.30.00;	author bob;	state Exp;
branches;
next	;


desc
@Sample file for testing@

1.2
log
@added a line@
text
@line one
line two
@

1.1
log
@initial revision@
text
@line one
@
`

func TestParseSample(t *testing.T) {
	f, err := Parse([]byte(sampleRCS))
	require.NoError(t, err)

	assert.Equal(t, "1.2", f.Admin.Head.String())
	assert.True(t, f.Admin.Strict)
	assert.Equal(t, "# @escaped@ comment", string(f.Admin.Comment))
	require.Len(t, f.Admin.Symbols, 1)
	assert.Equal(t, "V1_0", string(f.Admin.Symbols[0].Name))

	require.Len(t, f.Delta, 2)
	assert.Equal(t, "1.2", f.Delta[0].Num.String(), "descending sort puts 1.2 first")
	assert.Equal(t, "1.1", f.Delta[1].Num.String())
	assert.Equal(t, "alice", string(f.Delta[0].Author))
	assert.True(t, f.Delta[0].HasDeltatext())
	assert.True(t, f.Delta[1].HasDeltatext())
	assert.Equal(t, "added a line", string(f.Delta[0].Log))
	assert.Equal(t, "Sample file for testing", string(f.Desc))

	assert.Equal(t, 1, f.Delta[0].NextIdx, "1.2's next (1.1) must resolve to index 1")
}

func TestParseRejectsMissingTrailingNewline(t *testing.T) {
	_, err := Parse([]byte(sampleRCS[:len(sampleRCS)-1]))
	assert.Error(t, err)
}

func TestParseRejectsDanglingNext(t *testing.T) {
	broken := `head	1.1;
access;
symbols;
locks;
comment	@@;


1.1
date	2024.01.01.09.30.00;	author bob;	state Exp;
branches;
next	9.9;


desc
@d@

1.1
log
@l@
text
@t@
`
	_, err := Parse([]byte(broken))
	assert.Error(t, err)
}

// ============================================================================
// Round-trip (spec §8 property 4)
// ============================================================================

func TestRoundTripPreservesRevisionCount(t *testing.T) {
	f, err := Parse([]byte(sampleRCS))
	require.NoError(t, err)

	out := f.Serialize()
	f2, err := Parse(out)
	require.NoError(t, err, "re-parsing serialized output must succeed")

	assert.Equal(t, len(f.Delta), len(f2.Delta))
	for i := range f.Delta {
		assert.Equal(t, f.Delta[i].Num.String(), f2.Delta[i].Num.String())
		assert.Equal(t, string(f.Delta[i].Text), string(f2.Delta[i].Text))
		assert.Equal(t, string(f.Delta[i].Log), string(f2.Delta[i].Log))
	}
	assert.Equal(t, string(f.Desc), string(f2.Desc))
}

// ============================================================================
// Lookup
// ============================================================================

func TestLookupRevision(t *testing.T) {
	f, err := Parse([]byte(sampleRCS))
	require.NoError(t, err)

	num, _ := rcsnum.Parse([]byte("1.1"))
	rev, err := f.LookupRevision(num)
	require.NoError(t, err)
	assert.Equal(t, "bob", string(rev.Author))

	_, err = f.LookupRevision(mustNum(t, "9.9"))
	assert.ErrorIs(t, err, ErrNoSuchRevision)
}

func TestLookupSymbol(t *testing.T) {
	f, err := Parse([]byte(sampleRCS))
	require.NoError(t, err)

	num, err := f.LookupSymbol([]byte("V1_0"))
	require.NoError(t, err)
	assert.Equal(t, "1.1", num.String())

	num, err = f.LookupSymbol([]byte("HEAD"))
	require.NoError(t, err)
	assert.Equal(t, "1.2", num.String())

	num, err = f.LookupSymbol([]byte("1.2"))
	require.NoError(t, err, "a literal revision number must resolve directly")
	assert.Equal(t, "1.2", num.String())

	_, err = f.LookupSymbol([]byte("NOPE"))
	assert.ErrorIs(t, err, ErrNoSuchSymbol)
}

func mustNum(t *testing.T, s string) rcsnum.Num {
	t.Helper()
	n, err := rcsnum.Parse([]byte(s))
	require.NoError(t, err)
	return n
}
