package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenAndDial(t *testing.T) {
	ctx := context.Background()
	ln, err := Listen(ctx, "127.0.0.1:0", ListenerOptions{})
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	dialer := NewDialer(time.Second, nil)
	conn, err := dialer.Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	require.NoError(t, SetDeadline(conn, 0))
	assert.NotNil(t, server)
}

func TestDialTimeoutDefaultApplied(t *testing.T) {
	d := NewDialer(0, nil)
	assert.Equal(t, DefaultDialTimeout, d.Timeout)
}

func TestAcceptWithReadinessAcceptsConnection(t *testing.T) {
	ctx := context.Background()
	ln, err := Listen(ctx, "127.0.0.1:0", ListenerOptions{})
	require.NoError(t, err)
	defer ln.Close()

	dialer := NewDialer(time.Second, nil)
	go func() {
		conn, err := dialer.Dial(ctx, ln.Addr().String())
		if err == nil {
			defer conn.Close()
		}
	}()

	conn, err := AcceptWithReadiness(ctx, ln, 50*time.Millisecond)
	require.NoError(t, err)
	defer conn.Close()
	assert.NotNil(t, conn)
}

func TestAcceptWithReadinessRespectsCancellation(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0", ListenerOptions{})
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = AcceptWithReadiness(ctx, ln, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}
