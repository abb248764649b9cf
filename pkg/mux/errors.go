package mux

import "errors"

// Errors surfaced by Mux operations. Every one of them is fatal to the
// session (spec §7 "Protocol errors" / "Transport errors"): the mux
// transitions to StateError, broadcasts every condition variable, and
// shuts the socket down half-duplex (spec §4.1 "Failure model").
var (
	// ErrAborted is returned by Send/Recv once the mux (or the specific
	// buffer) has entered StateError, whether from a local failure or a
	// protocol violation observed from the peer.
	ErrAborted = errors.New("mux: aborted")

	// ErrClosed is returned by Recv when the inbound ring is CLOSED and
	// holds no further bytes (spec §4.1 "Recv contract").
	ErrClosed = errors.New("mux: channel closed")

	// ErrProtocol wraps any wire-level violation: an unexpected opcode,
	// an out-of-range channel number, a DATA frame with length zero, a
	// DATA frame exceeding the negotiated MSS, or a RESET credit that
	// exceeds the outstanding amount on the matching outbound ring.
	ErrProtocol = errors.New("mux: protocol violation")

	// ErrResetOnClosed is returned (and is fatal) when a RESET frame
	// arrives for an outbound ring that the peer has already closed.
	// Spec §9 Open Questions leaves this case unspecified in the
	// original; this rewrite treats it as an error.
	ErrResetOnClosed = errors.New("mux: reset credit on closed outbound ring")
)
