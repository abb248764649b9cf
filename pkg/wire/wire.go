// Package wire provides fixed big-endian encoders and decoders for the
// integer widths used throughout the cvsync wire protocol, plus a small
// bounded-buffer cursor for reading them back off a byte slice.
//
// All multi-byte fields on the wire are big-endian (spec §3).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a Reader does not have enough remaining
// bytes to satisfy a read.
var ErrShortBuffer = errors.New("wire: short buffer")

// PutUint16 encodes v into the first 2 bytes of dst, big-endian.
func PutUint16(dst []byte, v uint16) {
	binary.BigEndian.PutUint16(dst, v)
}

// PutUint32 encodes v into the first 4 bytes of dst, big-endian.
func PutUint32(dst []byte, v uint32) {
	binary.BigEndian.PutUint32(dst, v)
}

// PutUint64 encodes v into the first 8 bytes of dst, big-endian.
func PutUint64(dst []byte, v uint64) {
	binary.BigEndian.PutUint64(dst, v)
}

// PutInt64 encodes a signed v into the first 8 bytes of dst, big-endian,
// using two's-complement representation (used for mtime fields).
func PutInt64(dst []byte, v int64) {
	binary.BigEndian.PutUint64(dst, uint64(v))
}

// Uint16 decodes a big-endian uint16 from the first 2 bytes of src.
func Uint16(src []byte) uint16 { return binary.BigEndian.Uint16(src) }

// Uint32 decodes a big-endian uint32 from the first 4 bytes of src.
func Uint32(src []byte) uint32 { return binary.BigEndian.Uint32(src) }

// Uint64 decodes a big-endian uint64 from the first 8 bytes of src.
func Uint64(src []byte) uint64 { return binary.BigEndian.Uint64(src) }

// Int64 decodes a big-endian, two's-complement int64 from the first 8
// bytes of src.
func Int64(src []byte) int64 { return int64(binary.BigEndian.Uint64(src)) }

// Reader is a forward-only cursor over a byte slice with bounds-checked
// fixed-width reads. It never copies the underlying slice; returned byte
// slices borrow from it.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential bounds-checked reads.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Bytes returns the next n bytes without advancing the cursor, or an error
// if fewer than n bytes remain.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrShortBuffer, n, r.Len())
	}
	return r.buf[r.pos : r.pos+n], nil
}

// Skip advances the cursor by n bytes, validating enough remain.
func (r *Reader) Skip(n int) error {
	if _, err := r.Bytes(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// Take returns the next n bytes and advances the cursor past them.
func (r *Reader) Take(n int) ([]byte, error) {
	b, err := r.Bytes(n)
	if err != nil {
		return nil, err
	}
	r.pos += n
	return b, nil
}

// Uint16 reads a big-endian uint16 and advances the cursor.
func (r *Reader) Uint16() (uint16, error) {
	b, err := r.Take(2)
	if err != nil {
		return 0, err
	}
	return Uint16(b), nil
}

// Uint32 reads a big-endian uint32 and advances the cursor.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Take(4)
	if err != nil {
		return 0, err
	}
	return Uint32(b), nil
}

// Uint64 reads a big-endian uint64 and advances the cursor.
func (r *Reader) Uint64() (uint64, error) {
	b, err := r.Take(8)
	if err != nil {
		return 0, err
	}
	return Uint64(b), nil
}

// Int64 reads a big-endian, two's-complement int64 and advances the cursor.
func (r *Reader) Int64() (int64, error) {
	b, err := r.Take(8)
	if err != nil {
		return 0, err
	}
	return Int64(b), nil
}

// Byte reads a single byte and advances the cursor.
func (r *Reader) Byte() (byte, error) {
	b, err := r.Take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// LengthPrefixed reads a 2-byte big-endian length followed by that many
// bytes, the framing used throughout the protocol layer (spec §4.3).
func (r *Reader) LengthPrefixed() ([]byte, error) {
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return r.Take(int(n))
}
