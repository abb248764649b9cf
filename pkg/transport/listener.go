package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/dittosync/cvsync/internal/logger"
)

// ListenerOptions configures the server-side TCP listener.
type ListenerOptions struct {
	// ReusePort sets SO_REUSEPORT on the listening socket so a restarted
	// daemon can rebind immediately without waiting out TIME_WAIT (spec
	// §7 "Server startup").
	ReusePort bool
}

// Listen opens a TCP listener on addr, applying ListenerOptions via a
// raw syscall.RawConn Control callback.
func Listen(ctx context.Context, addr string, opts ListenerOptions) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var controlErr error
			err := c.Control(func(fd uintptr) {
				if setErr := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); setErr != nil {
					controlErr = fmt.Errorf("set SO_REUSEADDR: %w", setErr)
					return
				}
				if opts.ReusePort {
					if setErr := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); setErr != nil {
						controlErr = fmt.Errorf("set SO_REUSEPORT: %w", setErr)
					}
				}
			})
			if err != nil {
				return err
			}
			return controlErr
		},
	}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	logger.Info("listening", "addr", addr, "reuseport", opts.ReusePort)
	return ln, nil
}
