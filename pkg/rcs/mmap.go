package rcs

import (
	"fmt"

	"golang.org/x/exp/mmap"
)

// ParseFile memory-maps path, reads it via the mapping rather than a
// read(2) syscall, and parses the result (spec §9 "Zero-copy parser over
// mmap"). buf is a heap copy read out of the mapping, and the returned
// RcsFile borrows from it the fields Parse documents as borrowed; the
// caller must call closer once done with the RcsFile.
func ParseFile(path string) (file *RcsFile, closer func() error, err error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("rcs: mmap open %q: %w", path, err)
	}

	buf := make([]byte, r.Len())
	if _, err := r.ReadAt(buf, 0); err != nil {
		_ = r.Close()
		return nil, nil, fmt.Errorf("rcs: mmap read %q: %w", path, err)
	}

	parsed, err := Parse(buf)
	if err != nil {
		_ = r.Close()
		return nil, nil, fmt.Errorf("rcs: parse %q: %w", path, err)
	}

	return parsed, r.Close, nil
}
