package mux

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dittosync/cvsync/pkg/wire"
)

// frameHeaderLen is the fixed opcode+channel+length prefix preceding
// every frame's payload (spec §4.1 "Wire frame").
const frameHeaderLen = 4

// writeDataFrame compresses p (if configured) and writes one DATA frame
// for channel ch. Writes are serialized through sendMu so frames never
// interleave on the wire.
func (m *Mux) writeDataFrame(ch int, p []byte) error {
	payload := p
	if m.compress {
		c, err := m.deflate.Compress(p)
		if err != nil {
			return err
		}
		payload = c
	}
	if len(payload) > maxWireLength(m.compress) {
		return fmt.Errorf("%w: frame payload %d exceeds limit", ErrProtocol, len(payload))
	}
	if err := m.writeFrame(opData, ch, payload); err != nil {
		return err
	}
	m.metrics.bytes(ch, "sent", len(p))
	return nil
}

// writeResetFrame sends a RESET frame crediting credit bytes back to the
// peer's outbound ring for channel ch (spec §4.1 "RESET frame").
func (m *Mux) writeResetFrame(ch int, credit int) error {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(credit))
	if err := m.writeFrame(opReset, ch, payload); err != nil {
		return err
	}
	m.metrics.reset(ch, "sent")
	return nil
}

// writeCloseFrame sends a CLOSE frame for channel ch (spec §4.1 "CLOSE
// frame").
func (m *Mux) writeCloseFrame(ch int) error {
	return m.writeFrame(opClose, ch, nil)
}

func (m *Mux) writeFrame(op opcode, ch int, payload []byte) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	w := wire.NewWriter(frameHeaderLen + len(payload))
	w.PutByte(byte(op))
	w.PutByte(byte(ch))
	w.PutUint16(uint16(len(payload)))
	w.PutBytes(payload)
	if _, err := m.conn.Write(w.Bytes()); err != nil {
		return fmt.Errorf("mux: write %s frame: %w", op, err)
	}
	return nil
}

// readFrame reads one frame header and payload off the wire.
func (m *Mux) readFrame() (opcode, int, []byte, error) {
	hdr := make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(m.conn, hdr); err != nil {
		return 0, 0, nil, err
	}
	r := wire.NewReader(hdr)
	op, err := r.Byte()
	if err != nil {
		return 0, 0, nil, err
	}
	ch, err := r.Byte()
	if err != nil {
		return 0, 0, nil, err
	}
	length, err := r.Uint16()
	if err != nil {
		return 0, 0, nil, err
	}
	if int(ch) >= NumChannels {
		return 0, 0, nil, fmt.Errorf("%w: channel %d out of range", ErrProtocol, ch)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(m.conn, payload); err != nil {
			return 0, 0, nil, err
		}
	}
	return opcode(op), int(ch), payload, nil
}
