// Package protocol implements the serial negotiation phase that brings
// a freshly connected socket to a state where the mux can be built:
// version exchange, hash negotiation, the collection list, and
// per-channel setup (spec §4.3 "Protocol layer").
package protocol

import (
	"fmt"
	"io"
	"net"

	"github.com/dittosync/cvsync/pkg/wire"
)

// Current is the version this implementation offers (spec §4.3
// "Current (0, 24)").
var Current = Version{Major: 0, Minor: 24}

// MinAcceptedMinor is the oldest minor version this implementation will
// negotiate down to (spec §4.3 "minimum accepted minor 20").
const MinAcceptedMinor = 20

// errorMajor is a sentinel Major value marking a version-pair message as
// an ERROR response rather than a real version offer. The source's wire
// format for this case is left unspecified by the distilled spec (it
// only says "sends (ERROR, reason) as its pair"); this rewrite picks an
// out-of-band Major value so the two message shapes share one 2-byte
// frame without an extra discriminator byte.
const errorMajor = 0xFF

// Version is the (major, minor) pair exchanged at connection start
// (spec §4.3 "Versioning").
type Version struct {
	Major byte
	Minor byte
}

// ErrorReason is carried in the Minor field of an ERROR version pair
// (spec §4.3 "reason ∈ {DENIED, LIMITED, UNAVAIL, UNSPEC}").
type ErrorReason byte

const (
	ReasonUnspec ErrorReason = iota
	ReasonDenied
	ReasonLimited
	ReasonUnavail
)

func (r ErrorReason) String() string {
	switch r {
	case ReasonDenied:
		return "DENIED"
	case ReasonLimited:
		return "LIMITED"
	case ReasonUnavail:
		return "UNAVAIL"
	default:
		return "UNSPEC"
	}
}

// NegotiationError reports a version-phase rejection, either one this
// side observed locally or one reported by the peer's ERROR pair (spec
// §7 "User-visible failure").
type NegotiationError struct {
	Reason ErrorReason
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("protocol: version rejected: %s", e.Reason)
}

func isError(v Version) bool { return v.Major == errorMajor }

func errorVersion(reason ErrorReason) Version {
	return Version{Major: errorMajor, Minor: byte(reason)}
}

func writeVersion(conn net.Conn, v Version) error {
	w := wire.NewWriter(4)
	w.PutUint16(2)
	w.PutByte(v.Major)
	w.PutByte(v.Minor)
	if _, err := conn.Write(w.Bytes()); err != nil {
		return fmt.Errorf("protocol: write version: %w", err)
	}
	return nil
}

func readVersion(conn net.Conn) (Version, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return Version{}, fmt.Errorf("protocol: read version length: %w", err)
	}
	length := wire.Uint16(hdr)
	if length != 2 {
		return Version{}, fmt.Errorf("%w: got %d, want 2", ErrVersionLengthMismatch, length)
	}
	body := make([]byte, 2)
	if _, err := io.ReadFull(conn, body); err != nil {
		return Version{}, fmt.Errorf("protocol: read version body: %w", err)
	}
	return Version{Major: body[0], Minor: body[1]}, nil
}

func minMinor(a, b byte) byte {
	if a < b {
		return a
	}
	return b
}

// NegotiateClient performs the client half of version negotiation: send
// self, read the peer's offer, validate it, send the agreed pair, then
// read the peer's echoed agreement (spec §4.3 "Versioning").
func NegotiateClient(conn net.Conn, self Version) (Version, error) {
	if err := writeVersion(conn, self); err != nil {
		return Version{}, err
	}
	peer, err := readVersion(conn)
	if err != nil {
		return Version{}, err
	}
	if isError(peer) {
		return Version{}, &NegotiationError{Reason: ErrorReason(peer.Minor)}
	}
	if peer.Major != 0 {
		_ = writeVersion(conn, errorVersion(ReasonUnspec))
		return Version{}, &NegotiationError{Reason: ReasonUnspec}
	}
	if peer.Minor < MinAcceptedMinor {
		_ = writeVersion(conn, errorVersion(ReasonUnspec))
		return Version{}, &NegotiationError{Reason: ReasonUnspec}
	}

	agreed := Version{Major: 0, Minor: minMinor(peer.Minor, self.Minor)}
	if err := writeVersion(conn, agreed); err != nil {
		return Version{}, err
	}
	peerAgreed, err := readVersion(conn)
	if err != nil {
		return Version{}, err
	}
	if isError(peerAgreed) {
		return Version{}, &NegotiationError{Reason: ErrorReason(peerAgreed.Minor)}
	}
	return agreed, nil
}

// Admission is evaluated by the server before completing version
// negotiation (spec §4.5 "ACL evaluation" feeding into §4.3's "server
// refusing admission").
type Admission func() (ok bool, reason ErrorReason)

// NegotiateServer performs the server half. If admit reports rejection,
// the server writes an ERROR pair and negotiation stops there without
// expecting any further message from the client.
func NegotiateServer(conn net.Conn, self Version, admit Admission) (Version, error) {
	if admit != nil {
		if ok, reason := admit(); !ok {
			_ = writeVersion(conn, errorVersion(reason))
			return Version{}, &NegotiationError{Reason: reason}
		}
	}
	if err := writeVersion(conn, self); err != nil {
		return Version{}, err
	}
	peer, err := readVersion(conn)
	if err != nil {
		return Version{}, err
	}
	if isError(peer) {
		return Version{}, &NegotiationError{Reason: ErrorReason(peer.Minor)}
	}
	if peer.Major != 0 || peer.Minor < MinAcceptedMinor {
		_ = writeVersion(conn, errorVersion(ReasonUnspec))
		return Version{}, &NegotiationError{Reason: ReasonUnspec}
	}

	agreed := Version{Major: 0, Minor: minMinor(peer.Minor, self.Minor)}
	clientAgreed, err := readVersion(conn)
	if err != nil {
		return Version{}, err
	}
	if isError(clientAgreed) {
		return Version{}, &NegotiationError{Reason: ErrorReason(clientAgreed.Minor)}
	}
	if clientAgreed != agreed {
		_ = writeVersion(conn, errorVersion(ReasonUnspec))
		return Version{}, &NegotiationError{Reason: ReasonUnspec}
	}
	if err := writeVersion(conn, agreed); err != nil {
		return Version{}, err
	}
	return agreed, nil
}
