// Package pathcmp implements the pathname comparator used to keep
// scan-tree traversal (pkg/scanner's ListLocal) in a stable, predictable
// order (spec §3 "Pathname").
//
// The ordering treats '/' as sorting before every other byte, so that a
// directory's entries always sort immediately before that directory's own
// name-as-prefix would: "foo" < "foo/bar" < "foob".
package pathcmp

// Compare orders a and b so that '/' sorts before any other byte. It
// returns a negative number if a < b, zero if equal, and a positive number
// if a > b.
func Compare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ca, cb := rank(a[i]), rank(b[i])
		if ca != cb {
			return int(ca) - int(cb)
		}
	}
	return len(a) - len(b)
}

// Less reports whether a sorts strictly before b.
func Less(a, b []byte) bool { return Compare(a, b) < 0 }

// rank maps a byte to its sort key: '/' sorts below every other byte value,
// including bytes numerically less than '/' (0x2F) such as control
// characters, space, '-' or '.'.
func rank(b byte) uint16 {
	if b == '/' {
		return 0
	}
	return uint16(b) + 1
}
