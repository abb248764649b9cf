package mux

import (
	"errors"
	"fmt"
	"io"

	"github.com/dittosync/cvsync/internal/logger"
)

// receiveLoop is the Mux's single demultiplexing goroutine (spec §4.1
// "Receiver loop"). It reads frames off the wire until both channels'
// inbound rings have seen a CLOSE, then waits for both outbound halves
// to finish their own close protocol before signaling recvDone.
func (m *Mux) receiveLoop() {
	var inClosed [NumChannels]bool

	finish := func(err error) {
		m.recvErr = err
		if err != nil {
			m.Abort(err)
		}
		m.doneMu.Lock()
		for !m.allOutClosedLocked() && err == nil {
			m.doneCond.Wait()
		}
		m.doneMu.Unlock()
		close(m.recvDone)
	}

	for {
		if inClosed[0] && inClosed[1] {
			finish(nil)
			return
		}

		op, ch, payload, err := m.readFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: connection closed before both channels saw CLOSE", ErrProtocol)
			}
			finish(err)
			return
		}

		switch op {
		case opData:
			if err := m.handleData(ch, payload); err != nil {
				finish(err)
				return
			}
		case opReset:
			if err := m.handleReset(ch, payload); err != nil {
				finish(err)
				return
			}
		case opClose:
			inClosed[ch] = true
			m.handleClose(ch)
		default:
			finish(fmt.Errorf("%w: unknown opcode 0x%02x", ErrProtocol, byte(op)))
			return
		}
	}
}

// handleData appends a received DATA frame's (decompressed) payload to
// channel ch's inbound ring. A frame larger than the ring's MSS, or one
// the ring lacks space for, is rejected as a protocol violation (spec
// §4.1 invariant: "a correct sender never exceeds its credit").
func (m *Mux) handleData(ch int, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: channel %d empty DATA frame", ErrProtocol, ch)
	}

	data := payload
	if m.compress {
		d, err := m.inflate.Decompress(payload)
		if err != nil {
			return err
		}
		data = d
	}

	buf := m.in[ch]
	buf.mu.Lock()
	defer buf.mu.Unlock()

	if buf.mss > 0 && len(data) > buf.mss {
		buf.setErrorLocked()
		return fmt.Errorf("%w: channel %d DATA frame of %d bytes exceeds MSS %d", ErrProtocol, ch, len(data), buf.mss)
	}
	if buf.capacity-buf.length < len(data) {
		buf.setErrorLocked()
		return fmt.Errorf("%w: channel %d peer exceeded its credit", ErrProtocol, ch)
	}
	buf.writeLocked(data)
	buf.outCond.Broadcast()
	return nil
}

// handleReset applies received RESET credit to channel ch's outbound
// ring, unblocking any Send/flush waiting on buf.inCond (spec §4.1
// "RESET frame").
func (m *Mux) handleReset(ch int, payload []byte) error {
	if len(payload) != 4 {
		return fmt.Errorf("%w: malformed RESET payload length %d", ErrProtocol, len(payload))
	}
	credit := int(payload[0])<<24 | int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])

	buf := m.out[ch]
	buf.mu.Lock()
	defer buf.mu.Unlock()

	if buf.state == StateClosed {
		return fmt.Errorf("%w: channel %d", ErrResetOnClosed, ch)
	}
	buf.rlength -= credit
	if buf.rlength < 0 {
		buf.setErrorLocked()
		return fmt.Errorf("%w: channel %d RESET credit %d exceeds outstanding bytes", ErrProtocol, ch, credit)
	}
	m.metrics.reset(ch, "received")
	buf.inCond.Broadcast()
	return nil
}

// handleClose marks channel ch's outbound ring CLOSED, unblocking any
// CloseOut waiting for confirmation that the peer is done reading ch
// (spec §4.1 "Close protocol"): a received CLOSE frame is the peer's own
// CloseIn declaring it will consume no further DATA frames on ch, which
// is this side's signal that it may stop sending on ch.
func (m *Mux) handleClose(ch int) {
	out := m.out[ch]
	out.mu.Lock()
	out.state = StateClosed
	out.inCond.Broadcast()
	out.mu.Unlock()

	logger.Debug("mux channel closed by peer", "channel", ch)
}
