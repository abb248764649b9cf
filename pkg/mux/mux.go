// Package mux implements the multiplexed, optionally compressed,
// bidirectional framing channel that carries the cvsync protocol's
// sub-channels over a single TCP connection (spec §4.1).
//
// A Mux carries NumChannels full-duplex sub-channels. Sub-channel 0
// carries the scan/compare command dialogue; sub-channel 1 carries file
// content transfer (spec §4.3 "Post-setup flow"). Exactly one goroutine
// per Mux — the receiver loop started by Run — demultiplexes incoming
// frames into the per-channel inbound rings; any number of callers may
// concurrently Send/Recv on distinct channels.
package mux

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/dittosync/cvsync/internal/logger"
)

// ChannelParams describes one sub-channel's negotiated ring shapes (spec
// §4.3 "Channel setup"): InMSS/InBufSize size the ring this side reads
// into (and so are dictated by what this side advertised to the peer),
// OutMSS/OutBufSize size the ring this side writes into before flushing
// (dictated by what the peer advertised to us).
type ChannelParams struct {
	InMSS, OutMSS         int
	InBufSize, OutBufSize int
}

// Options configures a new Mux.
type Options struct {
	Compress bool
	Channels [NumChannels]ChannelParams
	Metrics  *Metrics
}

// Mux is one endpoint of the multiplexed framing channel (spec §3 "Mux").
type Mux struct {
	conn     net.Conn
	compress bool
	deflate  *deflater
	inflate  *inflater
	metrics  *Metrics

	// sendMu serializes all writes to conn, matching spec §4.1 "Send
	// contract": flushes across channels and control frames (RESET,
	// CLOSE) must not interleave their bytes on the wire.
	sendMu sync.Mutex

	in  [NumChannels]*MuxBuf
	out [NumChannels]*MuxBuf

	doneMu    sync.Mutex
	doneCond  *sync.Cond
	inClosed  [NumChannels]bool
	outClosed [NumChannels]bool

	recvDone chan struct{}
	recvErr  error
}

// New constructs a Mux over conn. Callers must call Run to start the
// receiver loop before using Send/Recv.
func New(conn net.Conn, opts Options) *Mux {
	m := &Mux{
		conn:     conn,
		compress: opts.Compress,
		metrics:  opts.Metrics,
		recvDone: make(chan struct{}),
	}
	m.doneCond = sync.NewCond(&m.doneMu)
	if opts.Compress {
		m.deflate = newDeflater()
		m.inflate = newInflater()
	}
	for i := 0; i < NumChannels; i++ {
		cp := opts.Channels[i]
		m.in[i] = newMuxBuf(ClampBufSize(cp.InBufSize), cp.InMSS)
		m.out[i] = newMuxBuf(ClampBufSize(cp.OutBufSize), cp.OutMSS)
		m.in[i].state = StateRunning
		m.out[i].state = StateRunning
	}
	return m
}

// Run starts the receiver loop in a new goroutine and returns
// immediately. Wait blocks for its completion.
func (m *Mux) Run() {
	go m.receiveLoop()
}

// Wait blocks until the receiver loop has observed both channels closed
// in both directions (spec §4.1 "Receiver loop"), or until an abort. It
// returns the error that caused the abort, if any.
func (m *Mux) Wait() error {
	<-m.recvDone
	return m.recvErr
}

// Send copies p into channel ch's outbound ring, flushing full segments
// to the wire as they accumulate (spec §4.1 "Send contract").
func (m *Mux) Send(ch int, p []byte) error {
	if ch < 0 || ch >= NumChannels {
		return fmt.Errorf("%w: channel %d", ErrProtocol, ch)
	}
	buf := m.out[ch]
	buf.mu.Lock()
	defer buf.mu.Unlock()

	for len(p) > 0 {
		if buf.state == StateError {
			return ErrAborted
		}
		free := buf.capacity - buf.length
		if free == 0 {
			buf.inCond.Wait()
			continue
		}
		n := free
		if n > len(p) {
			n = len(p)
		}
		buf.writeLocked(p[:n])
		p = p[n:]
		if err := m.flushFullSegmentsLocked(ch, buf); err != nil {
			return err
		}
	}
	return nil
}

// flushFullSegmentsLocked sends every complete buf.mss-sized segment
// currently queued. buf.mu must be held on entry and is held throughout.
func (m *Mux) flushFullSegmentsLocked(ch int, buf *MuxBuf) error {
	for buf.length >= buf.mss && buf.mss > 0 {
		for buf.capacity-buf.rlength < buf.mss {
			if buf.state == StateError {
				return ErrAborted
			}
			buf.inCond.Wait()
		}
		if buf.state == StateError {
			return ErrAborted
		}
		seg := make([]byte, buf.mss)
		buf.readLocked(seg)
		buf.rlength += len(seg)
		if err := m.writeDataFrame(ch, seg); err != nil {
			buf.setErrorLocked()
			return err
		}
	}
	return nil
}

// Flush sends any partial segment queued in channel ch's outbound ring
// as a single (possibly undersized) DATA frame (spec §4.1: "Flushes
// write partial segments"), used by the close protocol.
func (m *Mux) Flush(ch int) error {
	buf := m.out[ch]
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return m.flushPartialLocked(ch, buf)
}

func (m *Mux) flushPartialLocked(ch int, buf *MuxBuf) error {
	for buf.length > 0 {
		if buf.state == StateError {
			return ErrAborted
		}
		credit := buf.capacity - buf.rlength
		if credit == 0 {
			buf.inCond.Wait()
			continue
		}
		n := buf.length
		if n > credit {
			n = credit
		}
		seg := make([]byte, n)
		buf.readLocked(seg)
		buf.rlength += n
		if err := m.writeDataFrame(ch, seg); err != nil {
			buf.setErrorLocked()
			return err
		}
	}
	return nil
}

// Recv drains up to len(dst) bytes from channel ch's inbound ring,
// blocking until at least one byte is available (spec §4.1 "Recv
// contract"). It emits a RESET frame once cumulative drained bytes since
// the last RESET reach half the ring's capacity.
func (m *Mux) Recv(ch int, dst []byte) (int, error) {
	if ch < 0 || ch >= NumChannels {
		return 0, fmt.Errorf("%w: channel %d", ErrProtocol, ch)
	}
	buf := m.in[ch]
	buf.mu.Lock()
	defer buf.mu.Unlock()

	for buf.length == 0 {
		if buf.state == StateError {
			return 0, ErrAborted
		}
		if buf.state == StateClosed {
			return 0, ErrClosed
		}
		buf.outCond.Wait()
	}
	if buf.state == StateError {
		return 0, ErrAborted
	}

	n := buf.readLocked(dst)
	buf.rlength += n
	m.metrics.bytes(ch, "received", n)

	if buf.rlength >= buf.capacity/2 {
		credit := buf.rlength
		buf.rlength = 0
		if err := m.writeResetFrame(ch, credit); err != nil {
			buf.setErrorLocked()
			return n, err
		}
	}
	return n, nil
}

// CloseIn declares this side done reading channel ch (spec §4.1 "Close
// protocol"): once every byte already received has been drained, it
// flushes any residual RESET credit still owed to the peer, marks the
// inbound ring CLOSED, and sends the CLOSE frame telling the peer it may
// stop sending on ch. It does not wait for anything.
func (m *Mux) CloseIn(ch int) error {
	buf := m.in[ch]
	buf.mu.Lock()
	defer buf.mu.Unlock()

	if buf.state == StateError {
		return ErrAborted
	}
	if buf.length != 0 {
		return fmt.Errorf("%w: channel %d closed with unread data pending", ErrProtocol, ch)
	}
	if buf.rlength > 0 {
		credit := buf.rlength
		buf.rlength = 0
		if err := m.writeResetFrame(ch, credit); err != nil {
			buf.setErrorLocked()
			return err
		}
	}
	buf.state = StateClosed
	buf.outCond.Broadcast()

	if err := m.writeCloseFrame(ch); err != nil {
		buf.setErrorLocked()
		return err
	}
	return nil
}

// CloseOut performs the "close_out" half of the close protocol for
// channel ch (spec §4.1 "Close protocol"): flush residual outbound data,
// then wait for the peer's own CloseIn — observed as channel ch's
// outbound ring transitioning to StateClosed via handleClose — before
// marking the outbound half finished. CloseOut puts nothing on the wire
// beyond the flush.
func (m *Mux) CloseOut(ch int) error {
	buf := m.out[ch]
	buf.mu.Lock()
	if err := m.flushPartialLocked(ch, buf); err != nil {
		buf.mu.Unlock()
		return err
	}
	for buf.state != StateClosed && buf.state != StateError {
		buf.inCond.Wait()
	}
	if buf.state == StateError {
		buf.mu.Unlock()
		return ErrAborted
	}
	if buf.rlength != 0 {
		buf.mu.Unlock()
		return fmt.Errorf("%w: channel %d closed with %d bytes unacknowledged", ErrProtocol, ch, buf.rlength)
	}
	buf.mu.Unlock()

	m.doneMu.Lock()
	m.outClosed[ch] = true
	m.doneCond.Broadcast()
	m.doneMu.Unlock()
	return nil
}

func (m *Mux) allOutClosedLocked() bool {
	for i := 0; i < NumChannels; i++ {
		if !m.outClosed[i] {
			return false
		}
	}
	return true
}

// Abort immediately transitions every buffer to StateError, shuts the
// socket down half-duplex, and wakes every waiter (spec §5
// "Cancellation": mux_abort).
func (m *Mux) Abort(cause error) {
	for i := 0; i < NumChannels; i++ {
		m.in[i].mu.Lock()
		m.in[i].setErrorLocked()
		m.in[i].mu.Unlock()

		m.out[i].mu.Lock()
		m.out[i].setErrorLocked()
		m.out[i].mu.Unlock()
	}
	if cn, ok := m.conn.(interface{ CloseWrite() error }); ok {
		_ = cn.CloseWrite()
	} else {
		_ = m.conn.Close()
	}
	m.metrics.abort(cause.Error())
	logger.Warn("mux aborted", "reason", cause)

	m.doneMu.Lock()
	m.doneCond.Broadcast()
	m.doneMu.Unlock()
}

// Context-aware shutdown helper: callers driving a session against a
// cancellable context should select on ctx.Done() alongside Wait() and
// call Abort on cancellation.
func abortOnCancel(ctx context.Context, m *Mux) {
	<-ctx.Done()
	m.Abort(ctx.Err())
}

// RunWithContext starts the receiver loop and arranges for ctx
// cancellation to abort the mux (spec §5 "Cancellation").
func (m *Mux) RunWithContext(ctx context.Context) {
	m.Run()
	go abortOnCancel(ctx, m)
}
