package rcs

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/dittosync/cvsync/pkg/rcsnum"
)

// LookupRevision finds the revision named num (spec §4.2 "Lookup"). Below
// 100 revisions it scans linearly; at or above that it binary-searches,
// relying on Delta's rcsnum.Compare order. Either way the match is
// decided by exact byte equality of the revision number, not just
// component-wise equality.
func (f *RcsFile) LookupRevision(num rcsnum.Num) (*Revision, error) {
	if len(f.Delta) < 100 {
		for i := range f.Delta {
			if f.Delta[i].Num.Equal(num) {
				return &f.Delta[i], nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNoSuchRevision, num)
	}

	// Delta is kept so that rcsnum.Compare never decreases along it (the
	// newest trunk revision first), so probe for the first entry that
	// does not sort before num and check it for exact equality.
	i := sort.Search(len(f.Delta), func(i int) bool {
		return rcsnum.Compare(f.Delta[i].Num, num) >= 0
	})
	if i < len(f.Delta) && f.Delta[i].Num.Equal(num) {
		return &f.Delta[i], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuchRevision, num)
}

// LookupSymbol resolves a client-supplied name to a revision number (spec
// §4.2 "Lookup"):
//
//  1. An exact match against Admin.Symbols.
//  2. The literal "HEAD", resolving to Admin.Head.
//  3. The literal ".", resolving to Admin.Branch if set, else Admin.Head.
//  4. The bytes interpreted directly as a revision number.
//
// For an even-length symbol vector (a branch tag), the branch tip is
// located by walking the matching revision's Branches for the longest
// matching prefix; for odd-length (a point-in-time revision tag) the
// vector is used as-is once confirmed to name a real revision.
func (f *RcsFile) LookupSymbol(name []byte) (rcsnum.Num, error) {
	for _, s := range f.Admin.Symbols {
		if bytes.Equal(s.Name, name) {
			return f.resolveSymbolTarget(s.Num)
		}
	}

	switch string(name) {
	case "HEAD":
		if !f.Admin.Head.IsZero() {
			return f.Admin.Head, nil
		}
	case ".":
		if !f.Admin.Branch.IsZero() {
			return f.Admin.Branch, nil
		}
		if !f.Admin.Head.IsZero() {
			return f.Admin.Head, nil
		}
	}

	if n, err := rcsnum.Parse(name); err == nil {
		if _, lookErr := f.LookupRevision(n); lookErr == nil {
			return n, nil
		}
	}

	return rcsnum.Num{}, fmt.Errorf("%w: %q", ErrNoSuchSymbol, name)
}

// resolveSymbolTarget maps a raw symbol target (possibly a branch number)
// to the revision it actually names.
func (f *RcsFile) resolveSymbolTarget(target rcsnum.Num) (rcsnum.Num, error) {
	if target.IsBranch() {
		return f.resolveBranchTip(target)
	}
	if _, err := f.LookupRevision(target); err != nil {
		return rcsnum.Num{}, err
	}
	return target, nil
}

// resolveBranchTip finds the tip revision of the branch rooted at branch
// by locating, among all revisions, the one whose Branches entry has
// branch as its longest matching prefix, then following that branch's
// own chain to find where the requested branch number itself was
// recorded as a Branches entry on some revision along the trunk/parent
// branch.
func (f *RcsFile) resolveBranchTip(branch rcsnum.Num) (rcsnum.Num, error) {
	comps := branch.Components()
	var best rcsnum.Num
	bestLen := -1
	for i := range f.Delta {
		for _, b := range f.Delta[i].Branches {
			bc := b.Components()
			if len(bc) > len(comps) {
				continue
			}
			match := true
			for j := range bc {
				if bc[j] != comps[j] {
					match = false
					break
				}
			}
			if match && len(bc) > bestLen {
				best = b
				bestLen = len(bc)
			}
		}
	}
	if bestLen < 0 {
		return rcsnum.Num{}, fmt.Errorf("%w: branch %s has no revisions", ErrNoSuchSymbol, branch)
	}
	return best, nil
}
