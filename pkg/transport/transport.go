// Package transport provides the raw connection-level plumbing cvsync
// sits on: timeout-guarded TCP dial/accept, the listener, and the
// per-call deadline helper SetDeadline (spec §2 "Transport"). Framing
// lives in the protocol and mux layers, not here.
//
// The read/write timeout discipline here mirrors NetBIOS-style framing
// helpers: a deadline is pushed onto the connection immediately before
// the blocking call it guards, never left to accumulate across an
// entire session.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/dittosync/cvsync/internal/logger"
)

// Defaults for connection-level timeouts (spec §5 "Timeouts").
const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultIdleTimeout      = 5 * time.Minute
	DefaultDialTimeout      = 15 * time.Second
)

// Dialer opens client connections to an origin server.
type Dialer struct {
	Timeout   time.Duration
	TLSConfig *tls.Config
}

// NewDialer returns a Dialer with DefaultDialTimeout applied if timeout
// is zero.
func NewDialer(timeout time.Duration, tlsConfig *tls.Config) *Dialer {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return &Dialer{Timeout: timeout, TLSConfig: tlsConfig}
}

// Dial connects to addr, optionally upgrading to TLS when a TLSConfig is
// configured (spec §7 "Transport security", carried as an ambient
// concern the distilled spec leaves to deployment).
func (d *Dialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	if d.TLSConfig != nil {
		tlsConn := tls.Client(conn, d.TLSConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("transport: tls handshake %s: %w", addr, err)
		}
		return tlsConn, nil
	}
	return conn, nil
}

// SetDeadline pushes a fresh deadline d onto conn immediately before a
// blocking call, never letting a session-wide deadline accumulate. A
// non-positive d clears any deadline.
func SetDeadline(conn net.Conn, d time.Duration) error {
	if d <= 0 {
		return conn.SetDeadline(time.Time{})
	}
	return conn.SetDeadline(time.Now().Add(d))
}

// LogAccept emits a structured record for a newly accepted connection.
func LogAccept(conn net.Conn) {
	logger.Info("accepted connection", "remote", conn.RemoteAddr().String())
}
