package session

import (
	"fmt"
	"io"

	"github.com/dittosync/cvsync/pkg/wire"
)

// writeBody sends data on the content sub-channel as an 8-byte
// big-endian length prefix followed by the raw bytes (spec §4.4's ADD/
// UPDATE records carry "then file body" out of band from the record
// itself; this is that out-of-band framing).
func writeBody(w io.Writer, data []byte) error {
	hdr := make([]byte, 8)
	wire.PutUint64(hdr, uint64(len(data)))
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("session: write body length: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("session: write body: %w", err)
	}
	return nil
}

// readBody reads one writeBody-framed payload from r.
func readBody(r io.Reader) ([]byte, error) {
	hdr := make([]byte, 8)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("session: read body length: %w", err)
	}
	n := wire.Uint64(hdr)
	if n == 0 {
		return nil, nil
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("session: read body: %w", err)
	}
	return body, nil
}
