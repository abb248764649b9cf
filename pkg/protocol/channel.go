package protocol

import (
	"fmt"
	"io"
	"net"

	"github.com/dittosync/cvsync/pkg/mux"
	"github.com/dittosync/cvsync/pkg/wire"
)

// ChannelRecord is the 7-byte {channel_id, mss, bufsize} record
// exchanged once per sub-channel during setup (spec §4.3 "Channel
// setup").
type ChannelRecord struct {
	ChannelID byte
	MSS       uint16
	BufSize   uint32
}

func writeChannelRecord(conn net.Conn, r ChannelRecord) error {
	w := wire.NewWriter(7)
	w.PutByte(r.ChannelID)
	w.PutUint16(r.MSS)
	w.PutUint32(r.BufSize)
	if _, err := conn.Write(w.Bytes()); err != nil {
		return fmt.Errorf("protocol: write channel record: %w", err)
	}
	return nil
}

func readChannelRecord(conn net.Conn) (ChannelRecord, error) {
	buf := make([]byte, 7)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return ChannelRecord{}, fmt.Errorf("protocol: read channel record: %w", err)
	}
	r := wire.NewReader(buf)
	id, err := r.Byte()
	if err != nil {
		return ChannelRecord{}, err
	}
	mss, err := r.Uint16()
	if err != nil {
		return ChannelRecord{}, err
	}
	bufsize, err := r.Uint32()
	if err != nil {
		return ChannelRecord{}, err
	}
	return ChannelRecord{ChannelID: id, MSS: mss, BufSize: bufsize}, nil
}

// SetupChannelsClient sends the client's own receive-buffer parameters
// for each sub-channel, then reads the server's matching echo, and
// derives the mux.Options both endpoints will instantiate (spec §4.3:
// "the server's outbound ring uses the client's advertised parameters
// and vice versa").
func SetupChannelsClient(conn net.Conn, local [mux.NumChannels]ChannelRecord) (mux.Options, error) {
	return setupChannels(conn, local, true)
}

// SetupChannelsServer mirrors SetupChannelsClient for the server side.
func SetupChannelsServer(conn net.Conn, local [mux.NumChannels]ChannelRecord) (mux.Options, error) {
	return setupChannels(conn, local, false)
}

func setupChannels(conn net.Conn, local [mux.NumChannels]ChannelRecord, sendFirst bool) (mux.Options, error) {
	var opts mux.Options

	exchange := func(i int) (ChannelRecord, error) {
		if sendFirst {
			if err := writeChannelRecord(conn, local[i]); err != nil {
				return ChannelRecord{}, err
			}
			return readChannelRecord(conn)
		}
		peer, err := readChannelRecord(conn)
		if err != nil {
			return ChannelRecord{}, err
		}
		if err := writeChannelRecord(conn, local[i]); err != nil {
			return ChannelRecord{}, err
		}
		return peer, nil
	}

	for i := 0; i < mux.NumChannels; i++ {
		peer, err := exchange(i)
		if err != nil {
			return mux.Options{}, err
		}
		if int(peer.ChannelID) != i {
			return mux.Options{}, fmt.Errorf("%w: got %d, want %d", ErrChannelOutOfOrder, peer.ChannelID, i)
		}
		// This side's inbound ring receives using ITS OWN advertised
		// parameters; its outbound ring is sized by what the peer
		// advertised it will receive into.
		opts.Channels[i] = mux.ChannelParams{
			InMSS:      int(local[i].MSS),
			InBufSize:  int(local[i].BufSize),
			OutMSS:     int(peer.MSS),
			OutBufSize: int(peer.BufSize),
		}
	}
	return opts, nil
}
