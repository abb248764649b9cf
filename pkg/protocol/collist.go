package protocol

import (
	"fmt"
	"io"
	"net"

	"github.com/dittosync/cvsync/pkg/collection"
	"github.com/dittosync/cvsync/pkg/wire"
)

// sentinelName/sentinelRelease terminate the collection list exchange
// (spec §4.3 "Collection list": "both sides send the sentinel record
// {name=\".\", release=\".\"}").
const (
	sentinelName    = "."
	sentinelRelease = "."
)

// CollectionRequest is one client-side entry in the collection list
// exchange (spec §4.3 "Collection list").
type CollectionRequest struct {
	Name    string
	Release collection.Release
	Umask   uint16 // meaningful only when Release == ReleaseRCS
}

func (r CollectionRequest) isSentinel() bool {
	return r.Name == sentinelName && string(r.Release) == sentinelRelease
}

func writeRecord(conn net.Conn, payload []byte) error {
	w := wire.NewWriter(2 + len(payload))
	w.PutLengthPrefixed(payload)
	if _, err := conn.Write(w.Bytes()); err != nil {
		return fmt.Errorf("protocol: write record: %w", err)
	}
	return nil
}

func readRecordPayload(conn net.Conn) ([]byte, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return nil, fmt.Errorf("protocol: read record length: %w", err)
	}
	n := wire.Uint16(hdr)
	if n == 0 {
		return nil, nil
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, fmt.Errorf("protocol: read record body: %w", err)
	}
	return body, nil
}

func encodeRequest(r CollectionRequest) []byte {
	w := wire.NewWriter(2 + len(r.Name) + len(r.Release) + 2)
	w.PutByte(byte(len(r.Name)))
	w.PutByte(byte(len(r.Release)))
	w.PutBytes([]byte(r.Name))
	w.PutBytes([]byte(r.Release))
	if r.Release == collection.ReleaseRCS {
		w.PutUint16(r.Umask)
	}
	return w.Bytes()
}

func decodeRequest(payload []byte) (CollectionRequest, error) {
	r := wire.NewReader(payload)
	nameLen, err := r.Byte()
	if err != nil {
		return CollectionRequest{}, err
	}
	releaseLen, err := r.Byte()
	if err != nil {
		return CollectionRequest{}, err
	}
	name, err := r.Take(int(nameLen))
	if err != nil {
		return CollectionRequest{}, err
	}
	release, err := r.Take(int(releaseLen))
	if err != nil {
		return CollectionRequest{}, err
	}
	req := CollectionRequest{Name: string(name), Release: collection.Release(release)}
	if req.Release == collection.ReleaseRCS {
		umask, err := r.Uint16()
		if err != nil {
			return CollectionRequest{}, err
		}
		req.Umask = umask
	}
	return req, nil
}

// CollectionResponse is the server's reply to one CollectionRequest.
type CollectionResponse struct {
	Available    bool
	Name         string
	Release      collection.Release
	GrantedUmask uint16 // meaningful only when Release == ReleaseRCS
	RPrefix      string
}

func encodeResponse(resp CollectionResponse) []byte {
	if !resp.Available {
		return nil
	}
	w := wire.NewWriter(2 + len(resp.Name) + len(resp.Release) + 2 + len(resp.RPrefix))
	w.PutByte(byte(len(resp.Name)))
	w.PutByte(byte(len(resp.Release)))
	w.PutBytes([]byte(resp.Name))
	w.PutBytes([]byte(resp.Release))
	if resp.Release == collection.ReleaseRCS {
		w.PutUint16(resp.GrantedUmask)
		w.PutBytes([]byte(resp.RPrefix))
	}
	return w.Bytes()
}

func decodeResponse(payload []byte) (CollectionResponse, error) {
	if payload == nil {
		return CollectionResponse{Available: false}, nil
	}
	r := wire.NewReader(payload)
	nameLen, err := r.Byte()
	if err != nil {
		return CollectionResponse{}, err
	}
	releaseLen, err := r.Byte()
	if err != nil {
		return CollectionResponse{}, err
	}
	name, err := r.Take(int(nameLen))
	if err != nil {
		return CollectionResponse{}, err
	}
	release, err := r.Take(int(releaseLen))
	if err != nil {
		return CollectionResponse{}, err
	}
	resp := CollectionResponse{Available: true, Name: string(name), Release: collection.Release(release)}
	if resp.Release == collection.ReleaseRCS {
		umask, err := r.Uint16()
		if err != nil {
			return CollectionResponse{}, err
		}
		resp.GrantedUmask = umask
		rprefix, err := r.Bytes(r.Len())
		if err != nil {
			return CollectionResponse{}, err
		}
		resp.RPrefix = string(rprefix)
	}
	return resp, nil
}

// ExchangeCollectionsClient sends each request in order, terminated by
// the sentinel record, and returns the server's responses in the same
// order (spec §4.3 "Collection list").
func ExchangeCollectionsClient(conn net.Conn, requests []CollectionRequest) ([]CollectionResponse, error) {
	responses := make([]CollectionResponse, 0, len(requests))
	for _, req := range requests {
		if err := writeRecord(conn, encodeRequest(req)); err != nil {
			return nil, err
		}
		payload, err := readRecordPayload(conn)
		if err != nil {
			return nil, err
		}
		resp, err := decodeResponse(payload)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	if err := writeRecord(conn, encodeRequest(CollectionRequest{Name: sentinelName, Release: sentinelRelease})); err != nil {
		return nil, err
	}
	if _, err := readRecordPayload(conn); err != nil {
		return nil, err
	}
	return responses, nil
}

// Resolver maps a requested collection name to a served Collection, or
// reports unavailability.
type Resolver func(req CollectionRequest) (c *collection.Collection, available bool)

// ExchangeCollectionsServer reads client requests until the sentinel,
// resolving each via resolve and replying with its availability and (if
// available) granted parameters.
func ExchangeCollectionsServer(conn net.Conn, resolve Resolver) ([]*collection.Collection, error) {
	var granted []*collection.Collection
	for {
		payload, err := readRecordPayload(conn)
		if err != nil {
			return nil, err
		}
		req, err := decodeRequest(payload)
		if err != nil {
			return nil, err
		}
		if req.isSentinel() {
			if err := writeRecord(conn, encodeRequest(CollectionRequest{Name: sentinelName, Release: sentinelRelease})); err != nil {
				return nil, err
			}
			return granted, nil
		}

		c, available := resolve(req)
		if !available {
			if err := writeRecord(conn, nil); err != nil {
				return nil, err
			}
			continue
		}

		resp := CollectionResponse{Available: true, Name: c.Name, Release: c.Release, RPrefix: c.RPrefix}
		if c.Release == collection.ReleaseRCS {
			resp.GrantedUmask = c.GrantUmask(req.Umask)
		}
		if err := writeRecord(conn, encodeResponse(resp)); err != nil {
			return nil, err
		}
		granted = append(granted, c)
	}
}
