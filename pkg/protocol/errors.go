package protocol

import "errors"

// Sentinel errors for the negotiation phase, grouped by the message they
// interrupt. Wrapped with fmt.Errorf("...: %w", err) at each call site so
// callers can errors.Is against the underlying condition while still
// getting a message naming exactly what was read or sent.
var (
	// ErrVersionLengthMismatch is returned when a peer's version message
	// declares a length other than 2, the fixed size of a (major, minor)
	// pair. Protocol mapping: fatal to negotiation, equivalent to an
	// ERROR/UNSPEC outcome.
	ErrVersionLengthMismatch = errors.New("protocol: version message has wrong length")

	// ErrChannelOutOfOrder is returned when a peer's channel setup
	// record names a channel_id other than the one this side is
	// currently exchanging for. Protocol mapping: fatal to channel
	// setup; the connection must be dropped.
	ErrChannelOutOfOrder = errors.New("protocol: channel setup record out of order")

	// ErrUnsupportedDigest is returned when a server's chosen hash
	// algorithm name is not one this implementation recognizes.
	// Protocol mapping: fatal to hash negotiation.
	ErrUnsupportedDigest = errors.New("protocol: server chose unsupported digest")
)
