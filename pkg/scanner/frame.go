// Package scanner implements the client side of the scan/compare
// dialogue (spec §4.4): walking a local collection tree and emitting
// one record per entry on sub-channel 0.
package scanner

import (
	"fmt"
	"io"

	"github.com/dittosync/cvsync/pkg/cvattr"
	"github.com/dittosync/cvsync/pkg/wire"
)

// Op identifies a scan-side command (spec §4.4 "Scan opcodes").
type Op byte

const (
	OpAdd Op = iota
	OpRemove
	OpRCSAttic
	OpSetAttr
	OpUpdate
	OpEnd
	// OpUpdateRCS opens a revision-digest reconciliation sub-dialogue in
	// place of a whole-file UPDATE (spec §4.4 "UPDATE_RCS"): the body
	// channel carries an encoded comparer.UpdateRCS instead of a raw
	// file body.
	OpUpdateRCS
	// OpUpdateEnd closes an OpUpdateRCS sub-dialogue's record-level
	// framing, once the body has been fully sent.
	OpUpdateEnd
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "ADD"
	case OpRemove:
		return "REMOVE"
	case OpRCSAttic:
		return "RCS_ATTIC"
	case OpSetAttr:
		return "SETATTR"
	case OpUpdate:
		return "UPDATE"
	case OpEnd:
		return "END"
	case OpUpdateRCS:
		return "UPDATE_RCS"
	case OpUpdateEnd:
		return "UPDATE_END"
	default:
		return "UNKNOWN"
	}
}

// Command is one scan-side record (spec §4.4 "Framing"): a 2-byte
// length prefix, opcode, and — for every opcode but END — a filetype, a
// length-prefixed name, and a filetype-specific attribute blob.
type Command struct {
	Op   Op
	Type cvattr.FileType
	Name string
	Attr cvattr.Attr
}

// WriteFrame encodes cmd and writes the framed record to w. The framing
// shape (2-byte length, opcode, filetype, 2-byte name length, name,
// attribute blob) is shared verbatim by the compare side's reverse
// records (spec §4.4).
func WriteFrame(w io.Writer, cmd Command) error {
	body := wire.NewWriter(1 + 1 + 2 + len(cmd.Name) + cmd.Type.WireLen())
	body.PutByte(byte(cmd.Op))
	if cmd.Op != OpEnd && cmd.Op != OpUpdateEnd {
		body.PutByte(byte(cmd.Type))
		body.PutUint16(uint16(len(cmd.Name)))
		body.PutBytes([]byte(cmd.Name))
		if err := cvattr.Encode(body, cmd.Attr); err != nil {
			return err
		}
	}

	frame := wire.NewWriter(2 + body.Len())
	frame.PutUint16(uint16(body.Len()))
	frame.PutBytes(body.Bytes())
	if _, err := w.Write(frame.Bytes()); err != nil {
		return fmt.Errorf("scanner: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads and decodes one framed record from r.
func ReadFrame(r io.Reader) (Command, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Command{}, err
	}
	length := wire.Uint16(hdr)
	if length == 0 {
		return Command{}, fmt.Errorf("scanner: zero-length frame")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Command{}, fmt.Errorf("scanner: read frame body: %w", err)
	}

	br := wire.NewReader(body)
	opByte, err := br.Byte()
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Op: Op(opByte)}
	if cmd.Op == OpEnd || cmd.Op == OpUpdateEnd {
		return cmd, nil
	}

	typeByte, err := br.Byte()
	if err != nil {
		return Command{}, err
	}
	cmd.Type = cvattr.FileType(typeByte)

	nameLen, err := br.Uint16()
	if err != nil {
		return Command{}, err
	}
	name, err := br.Take(int(nameLen))
	if err != nil {
		return Command{}, err
	}
	cmd.Name = string(name)

	attr, err := cvattr.Decode(br, cmd.Type)
	if err != nil {
		return Command{}, err
	}
	cmd.Attr = attr
	return cmd, nil
}
