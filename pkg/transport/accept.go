package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// AcceptTick is the periodic wake interval the accept loop's readiness
// wait uses to re-check ctx liveness between connections (spec
// §7 "The main accept loop blocks on a readiness primitive with a
// 1-second periodic wake for liveness/interrupt checks").
const AcceptTick = time.Second

// AcceptWithReadiness waits for ln to become readable using
// golang.org/x/sys/unix.Select rather than blocking indefinitely in
// Accept, waking every tick so the caller can observe ctx cancellation
// between connections. It returns the first connection accepted after
// ctx is still live, or ctx.Err() once ctx is done.
//
// ln is expected to be a *net.TCPListener (as returned by Listen); any
// other ln falls back to a plain blocking Accept, which does not observe
// ctx.
func AcceptWithReadiness(ctx context.Context, ln net.Listener, tick time.Duration) (net.Conn, error) {
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return ln.Accept()
	}

	if tick <= 0 {
		tick = AcceptTick
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ready, err := waitReadable(tcpLn, tick)
		if err != nil {
			return nil, err
		}
		if !ready {
			continue
		}
		return tcpLn.Accept()
	}
}

// waitReadable blocks up to tick waiting for ln's underlying file
// descriptor to become readable (i.e. a connection is pending),
// reporting whether it became ready before the tick elapsed.
func waitReadable(ln *net.TCPListener, tick time.Duration) (bool, error) {
	rc, err := ln.SyscallConn()
	if err != nil {
		return false, err
	}

	var ready bool
	var selectErr error
	ctrlErr := rc.Control(func(fd uintptr) {
		var readfds unix.FdSet
		setFd(&readfds, int(fd))

		tv := unix.NsecToTimeval(tick.Nanoseconds())
		n, err := unix.Select(int(fd)+1, &readfds, nil, nil, &tv)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				return
			}
			selectErr = err
			return
		}
		ready = n > 0
	})
	if ctrlErr != nil {
		return false, ctrlErr
	}
	return ready, selectErr
}

// setFd sets fd's bit in set, matching the kernel fd_set layout
// golang.org/x/sys/unix.FdSet mirrors (an array of word-sized bitmaps).
func setFd(set *unix.FdSet, fd int) {
	wordBits := 64
	set.Bits[fd/wordBits] |= 1 << uint(fd%wordBits)
}
