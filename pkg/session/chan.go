package session

import "github.com/dittosync/cvsync/pkg/mux"

// chanConn adapts one Mux sub-channel to io.Reader/io.Writer so the
// scanner/comparer packages, which only know about plain streams, can
// be driven directly over a mux channel without any session-specific
// framing logic leaking into them. Every Write is flushed to the wire
// before it returns, so a short record is not held back waiting for a
// full segment.
type chanConn struct {
	m  *mux.Mux
	ch int
}

func newChanConn(m *mux.Mux, ch int) chanConn { return chanConn{m: m, ch: ch} }

func (c chanConn) Read(p []byte) (int, error) { return c.m.Recv(c.ch, p) }

func (c chanConn) Write(p []byte) (int, error) {
	if err := c.m.Send(c.ch, p); err != nil {
		return 0, err
	}
	if err := c.m.Flush(c.ch); err != nil {
		return 0, err
	}
	return len(p), nil
}
