// Package session orchestrates one connection end to end: the protocol
// negotiation phases, building the Mux over the negotiated channels,
// and driving the scan/compare dialogue and its content transfer to
// completion (spec §4.3 "Post-setup flow", §4.4).
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dittosync/cvsync/internal/logger"
	"github.com/dittosync/cvsync/pkg/acl"
	"github.com/dittosync/cvsync/pkg/collection"
	"github.com/dittosync/cvsync/pkg/comparer"
	"github.com/dittosync/cvsync/pkg/digest"
	"github.com/dittosync/cvsync/pkg/mux"
	"github.com/dittosync/cvsync/pkg/protocol"
	"github.com/dittosync/cvsync/pkg/rcs"
	"github.com/dittosync/cvsync/pkg/refuse"
	"github.com/dittosync/cvsync/pkg/scanner"
)

// recordChannel and contentChannel name the two sub-channels a Mux
// carries (spec §4.3 "Post-setup flow": "sub-channel 0 carries the
// scan/compare command dialogue; sub-channel 1 carries file content
// transfer").
const (
	recordChannel  = 0
	contentChannel = 1
)

// defaultChannelParams is the ChannelRecord this implementation
// advertises for both sub-channels absent any caller-supplied tuning.
var defaultChannelParams = protocol.ChannelRecord{MSS: mux.MaxMSS, BufSize: mux.MinBufSize}

// ClientCollection is one collection the client requests to synchronize.
type ClientCollection struct {
	Name    string
	Release collection.Release
	Umask   uint16
	// LocalRoot is the local directory ClientCollection's tree lives
	// under; reverse records are applied relative to it.
	LocalRoot string
}

// ClientConfig configures RunClient.
type ClientConfig struct {
	Version     protocol.Version
	Preferred   digest.Name
	Compress    bool
	Collections []ClientCollection
	Metrics     *mux.Metrics
}

// RunClient drives the full client side of one connection: negotiate
// version, hash, and collections, set up the mux, then for each granted
// collection scan the local tree, exchange it for the server's reverse
// records, and apply them (spec §4.3, §4.4 scenarios S1-S4).
func RunClient(ctx context.Context, conn net.Conn, cfg ClientConfig) error {
	nonce := uuid.NewString()
	logger.Info("session: client negotiating", logger.SessionID(nonce), logger.Peer(conn.RemoteAddr().String()))

	self := cfg.Version
	if self == (protocol.Version{}) {
		self = protocol.Current
	}
	if _, err := protocol.NegotiateClient(conn, self); err != nil {
		return fmt.Errorf("session: version negotiation: %w", err)
	}

	chosenHash, err := protocol.NegotiateHashClient(conn, cfg.Preferred)
	if err != nil {
		return fmt.Errorf("session: hash negotiation: %w", err)
	}
	logger.Debug("session: hash negotiated", logger.SessionID(nonce), logger.HashAlgo(string(chosenHash)))

	requests := make([]protocol.CollectionRequest, 0, len(cfg.Collections))
	for _, c := range cfg.Collections {
		requests = append(requests, protocol.CollectionRequest{Name: c.Name, Release: c.Release, Umask: c.Umask})
	}
	responses, err := protocol.ExchangeCollectionsClient(conn, requests)
	if err != nil {
		return fmt.Errorf("session: collection exchange: %w", err)
	}

	local := [mux.NumChannels]protocol.ChannelRecord{
		{ChannelID: recordChannel, MSS: defaultChannelParams.MSS, BufSize: defaultChannelParams.BufSize},
		{ChannelID: contentChannel, MSS: defaultChannelParams.MSS, BufSize: defaultChannelParams.BufSize},
	}
	opts, err := protocol.SetupChannelsClient(conn, local)
	if err != nil {
		return fmt.Errorf("session: channel setup: %w", err)
	}
	opts.Compress = cfg.Compress
	opts.Metrics = cfg.Metrics

	m := mux.New(conn, opts)
	m.RunWithContext(ctx)

	for i, resp := range responses {
		if !resp.Available {
			logger.Warn("session: collection unavailable", logger.SessionID(nonce), logger.Collection(cfg.Collections[i].Name))
			continue
		}
		if err := runClientCollection(m, cfg.Collections[i], chosenHash); err != nil {
			m.Abort(err)
			return fmt.Errorf("session: collection %s: %w", cfg.Collections[i].Name, err)
		}
	}

	return closeMux(m)
}

func runClientCollection(m *mux.Mux, c ClientCollection, hashName digest.Name) error {
	records := newChanConn(m, recordChannel)
	content := newChanConn(m, contentChannel)

	if err := scanner.Scan(records, c.LocalRoot, c.Release, nil); err != nil {
		return fmt.Errorf("scan %s: %w", c.LocalRoot, err)
	}
	return applyRecords(records, content, c.LocalRoot, hashName)
}

// ServerCollection is one collection the server may serve, resolved by
// name from the client's request.
type ServerCollection struct {
	Collection *collection.Collection
	Refuse     *refuse.List
}

// ServerConfig configures RunServer.
type ServerConfig struct {
	Version     protocol.Version
	Collections map[string]ServerCollection
	ACL         *acl.Evaluator
	Compress    bool
	Metrics     *mux.Metrics
	// HaltFile, if non-empty and present on disk, rejects every new
	// connection with a policy error while letting in-flight sessions
	// finish (spec §7 "Server startup"; spec §5 lists haltfile-present
	// among the conditions surfaced via the ERROR version response).
	HaltFile string
}

// RunServer drives the full server side of one connection: admit via
// ACL, negotiate version/hash/collections, set up the mux, then for
// each granted collection run the compare dialogue against the
// client's scan stream, streaming matching file content on the content
// sub-channel (spec §4.3, §4.5, §4.4 scenarios S1-S4).
func RunServer(ctx context.Context, conn net.Conn, cfg ServerConfig) error {
	nonce := uuid.NewString()
	logger.Info("session: server accepted", logger.SessionID(nonce), logger.Peer(conn.RemoteAddr().String()))

	peerIP := peerAddr(conn)
	var lease *acl.Lease
	admit := func() (bool, protocol.ErrorReason) {
		if cfg.HaltFile != "" {
			if _, err := os.Stat(cfg.HaltFile); err == nil {
				logger.Info("session: rejecting connection, halt file present", logger.SessionID(nonce))
				return false, protocol.ReasonUnavail
			}
		}
		if cfg.ACL == nil {
			return true, protocol.ReasonUnspec
		}
		decision, l, err := cfg.ACL.Evaluate(peerIP)
		if err != nil {
			logger.Warn("session: acl evaluation failed", logger.SessionID(nonce), logger.Err(err))
			return false, protocol.ReasonUnavail
		}
		lease = l
		switch decision {
		case acl.DecisionAllowed:
			return true, protocol.ReasonUnspec
		case acl.DecisionLimited:
			return false, protocol.ReasonLimited
		default:
			return false, protocol.ReasonDenied
		}
	}
	self := cfg.Version
	if self == (protocol.Version{}) {
		self = protocol.Current
	}
	negotiated, err := protocol.NegotiateServer(conn, self, admit)
	if err != nil {
		return fmt.Errorf("session: version negotiation: %w", err)
	}
	// admit has now run (NegotiateServer calls it before anything else),
	// so lease reflects whatever capacity the ACL granted this peer.
	if lease != nil {
		defer cfg.ACL.Release(lease)
	}

	chosenHash, err := protocol.NegotiateHashServer(conn)
	if err != nil {
		return fmt.Errorf("session: hash negotiation: %w", err)
	}

	resolver := func(req protocol.CollectionRequest) (*collection.Collection, bool) {
		sc, ok := cfg.Collections[req.Name]
		if !ok || sc.Collection.Release != req.Release {
			return nil, false
		}
		return sc.Collection, true
	}
	granted, err := protocol.ExchangeCollectionsServer(conn, resolver)
	if err != nil {
		return fmt.Errorf("session: collection exchange: %w", err)
	}

	local := [mux.NumChannels]protocol.ChannelRecord{
		{ChannelID: recordChannel, MSS: defaultChannelParams.MSS, BufSize: defaultChannelParams.BufSize},
		{ChannelID: contentChannel, MSS: defaultChannelParams.MSS, BufSize: defaultChannelParams.BufSize},
	}
	opts, err := protocol.SetupChannelsServer(conn, local)
	if err != nil {
		return fmt.Errorf("session: channel setup: %w", err)
	}
	opts.Compress = cfg.Compress
	opts.Metrics = cfg.Metrics

	m := mux.New(conn, opts)
	m.RunWithContext(ctx)

	for _, c := range granted {
		sc := cfg.Collections[c.Name]
		if err := runServerCollection(m, sc, chosenHash, negotiated.Minor); err != nil {
			m.Abort(err)
			return fmt.Errorf("session: collection %s: %w", c.Name, err)
		}
	}

	return closeMux(m)
}

func runServerCollection(m *mux.Mux, sc ServerCollection, hashName digest.Name, minor byte) error {
	records := newChanConn(m, recordChannel)
	content := newChanConn(m, contentChannel)

	root := sc.Collection.ResolvedScanPath()
	if root == "" {
		root = sc.Collection.ResolvedPrefix()
	}

	onSend := func(cmd scanner.Command) error {
		full := filepath.Join(root, filepath.FromSlash(cmd.Name))
		if cmd.Op == scanner.OpUpdateRCS {
			return sendUpdateRCS(content, full, hashName)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("read content for %s: %w", cmd.Name, err)
		}
		return writeBody(content, data)
	}

	return comparer.Compare(records, records, sc.Collection, hashName, sc.Refuse, minor, onSend)
}

// sendUpdateRCS re-parses the local RCS file at full and writes its
// encoded revision digest (spec §4.4 "UPDATE_RCS") to the content
// sub-channel, framed the same way as a whole-file body so the client
// side can tell the two apart only by the record's opcode.
func sendUpdateRCS(content io.Writer, full string, hashName digest.Name) error {
	file, closer, err := rcs.ParseFile(full)
	if err != nil {
		return fmt.Errorf("read content for %s: %w", full, err)
	}
	defer closer()

	var buf bytes.Buffer
	if err := comparer.WriteUpdateRCS(&buf, file, hashName); err != nil {
		return fmt.Errorf("encode update_rcs for %s: %w", full, err)
	}
	return writeBody(content, buf.Bytes())
}

// closeMux runs the close protocol on both sub-channels (spec §4.1
// "Close protocol") and waits for the receiver loop to observe the
// peer's matching close before returning. CloseIn must run first: it is
// the half that actually puts the CLOSE frame on the wire, and CloseOut
// on either end blocks until it sees the peer's.
func closeMux(m *mux.Mux) error {
	for ch := 0; ch < mux.NumChannels; ch++ {
		if err := m.CloseIn(ch); err != nil {
			return fmt.Errorf("session: close channel: %w", err)
		}
	}
	errc := make(chan error, mux.NumChannels)
	for ch := 0; ch < mux.NumChannels; ch++ {
		ch := ch
		go func() { errc <- m.CloseOut(ch) }()
	}
	for i := 0; i < mux.NumChannels; i++ {
		if err := <-errc; err != nil {
			return fmt.Errorf("session: waiting for peer close: %w", err)
		}
	}
	return m.Wait()
}

func peerAddr(conn net.Conn) net.IP {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return net.ParseIP(conn.RemoteAddr().String())
	}
	return net.ParseIP(host)
}
