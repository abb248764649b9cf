package protocol

import (
	"fmt"
	"io"
	"net"

	"github.com/dittosync/cvsync/pkg/digest"
	"github.com/dittosync/cvsync/pkg/wire"
)

// writeASCII writes a length-prefixed ASCII payload (spec §4.3 "Hash":
// "Length-prefixed ASCII").
func writeASCII(conn net.Conn, s string) error {
	w := wire.NewWriter(2 + len(s))
	w.PutLengthPrefixed([]byte(s))
	if _, err := conn.Write(w.Bytes()); err != nil {
		return fmt.Errorf("protocol: write %q: %w", s, err)
	}
	return nil
}

func readASCII(conn net.Conn) (string, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return "", fmt.Errorf("protocol: read length prefix: %w", err)
	}
	n := wire.Uint16(hdr)
	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(conn, body); err != nil {
			return "", fmt.Errorf("protocol: read payload: %w", err)
		}
	}
	return string(body), nil
}

// NegotiateHashClient sends the client's preferred digest name and
// accepts whatever the server chooses back (spec §4.3 "Hash").
func NegotiateHashClient(conn net.Conn, preferred digest.Name) (digest.Name, error) {
	if err := writeASCII(conn, string(preferred)); err != nil {
		return "", err
	}
	chosen, err := readASCII(conn)
	if err != nil {
		return "", err
	}
	name := digest.Name(chosen)
	if !digest.Supported(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDigest, chosen)
	}
	return name, nil
}

// NegotiateHashServer reads the client's preferred digest name and
// responds with the negotiated choice (downgrading to the fallback if
// unsupported), per spec §4.3 "Hash": "server sends the chosen
// algorithm (may downgrade to MD5...)".
func NegotiateHashServer(conn net.Conn) (digest.Name, error) {
	requested, err := readASCII(conn)
	if err != nil {
		return "", err
	}
	chosen := digest.Negotiate(digest.Name(requested))
	if err := writeASCII(conn, string(chosen)); err != nil {
		return "", err
	}
	return chosen, nil
}
