package protocol

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dittosync/cvsync/pkg/collection"
	"github.com/dittosync/cvsync/pkg/digest"
	"github.com/dittosync/cvsync/pkg/mux"
)

// tcpPair returns the two ends of a loopback TCP connection. The version
// exchange has each side write its pair before reading the peer's, so it
// needs a transport that buffers writes; over an unbuffered net.Pipe both
// opening writes would block forever.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	c1, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	c2 := <-accepted
	require.NotNil(t, c2)
	t.Cleanup(func() {
		_ = c1.Close()
		_ = c2.Close()
	})
	return c1, c2
}

func TestVersionNegotiationAgreesOnMinMinor(t *testing.T) {
	c1, c2 := tcpPair(t)
	var wg sync.WaitGroup
	wg.Add(2)

	var clientAgreed, serverAgreed Version
	var clientErr, serverErr error

	go func() {
		defer wg.Done()
		clientAgreed, clientErr = NegotiateClient(c1, Version{Major: 0, Minor: 24})
	}()
	go func() {
		defer wg.Done()
		serverAgreed, serverErr = NegotiateServer(c2, Version{Major: 0, Minor: 22}, nil)
	}()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	assert.Equal(t, Version{Major: 0, Minor: 22}, clientAgreed)
	assert.Equal(t, clientAgreed, serverAgreed)
}

// TestVersionNegotiationServerRejectsForgedAgreement exercises spec
// invariant that the server independently computes the agreed minor
// version rather than trusting whatever the client submits: a client
// that writes a version-phase handshake by hand and claims an agreement
// the server would not itself have computed must be rejected.
func TestVersionNegotiationServerRejectsForgedAgreement(t *testing.T) {
	c1, c2 := tcpPair(t)
	var wg sync.WaitGroup
	wg.Add(2)

	var serverErr error
	go func() {
		defer wg.Done()
		_, serverErr = NegotiateServer(c2, Version{Major: 0, Minor: 22}, nil)
	}()

	var clientErr error
	go func() {
		defer wg.Done()
		if err := writeVersion(c1, Version{Major: 0, Minor: 24}); err != nil {
			clientErr = err
			return
		}
		if _, err := readVersion(c1); err != nil {
			clientErr = err
			return
		}
		// Claim a higher minor than min(24, 22) actually allows.
		if err := writeVersion(c1, Version{Major: 0, Minor: 24}); err != nil {
			clientErr = err
			return
		}
		_, clientErr = readVersion(c1)
	}()
	wg.Wait()

	require.NoError(t, clientErr)
	require.Error(t, serverErr)
	var negErr *NegotiationError
	require.ErrorAs(t, serverErr, &negErr)
	assert.Equal(t, ReasonUnspec, negErr.Reason)
}

func TestVersionNegotiationServerDenies(t *testing.T) {
	c1, c2 := tcpPair(t)
	var wg sync.WaitGroup
	wg.Add(2)

	var clientErr, serverErr error
	go func() {
		defer wg.Done()
		_, clientErr = NegotiateClient(c1, Current)
	}()
	go func() {
		defer wg.Done()
		_, serverErr = NegotiateServer(c2, Current, func() (bool, ErrorReason) {
			return false, ReasonDenied
		})
	}()
	wg.Wait()

	require.Error(t, clientErr)
	var negErr *NegotiationError
	require.ErrorAs(t, clientErr, &negErr)
	assert.Equal(t, ReasonDenied, negErr.Reason)
	require.Error(t, serverErr)
}

func TestHashNegotiationDowngradesUnsupported(t *testing.T) {
	c1, c2 := net.Pipe()
	var wg sync.WaitGroup
	wg.Add(2)

	var clientChosen, serverChosen digest.Name
	var clientErr, serverErr error
	go func() {
		defer wg.Done()
		clientChosen, clientErr = NegotiateHashClient(c1, digest.Name("tiger192"))
	}()
	go func() {
		defer wg.Done()
		serverChosen, serverErr = NegotiateHashServer(c2)
	}()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	assert.Equal(t, digest.Fallback, clientChosen)
	assert.Equal(t, clientChosen, serverChosen)
}

func TestCollectionListExchange(t *testing.T) {
	c1, c2 := net.Pipe()

	served, err := collection.New("foo", collection.ReleaseRCS, "rcs/foo", collection.WithUmask(0o022))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)

	var responses []CollectionResponse
	var clientErr error
	go func() {
		defer wg.Done()
		responses, clientErr = ExchangeCollectionsClient(c1, []CollectionRequest{
			{Name: "foo", Release: collection.ReleaseRCS, Umask: 0o777},
			{Name: "missing", Release: collection.ReleaseList},
		})
	}()

	var serverErr error
	go func() {
		defer wg.Done()
		_, serverErr = ExchangeCollectionsServer(c2, func(req CollectionRequest) (*collection.Collection, bool) {
			if req.Name == served.Name {
				return served, true
			}
			return nil, false
		})
	}()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	require.Len(t, responses, 2)
	assert.True(t, responses[0].Available)
	assert.Equal(t, uint16(0o022), responses[0].GrantedUmask)
	assert.False(t, responses[1].Available)
}

func TestChannelSetupDerivesMuxOptions(t *testing.T) {
	c1, c2 := net.Pipe()

	clientLocal := [mux.NumChannels]ChannelRecord{
		{ChannelID: 0, MSS: 4096, BufSize: 32768},
		{ChannelID: 1, MSS: 8192, BufSize: 65536},
	}
	serverLocal := [mux.NumChannels]ChannelRecord{
		{ChannelID: 0, MSS: 2048, BufSize: 16384},
		{ChannelID: 1, MSS: 4096, BufSize: 32768},
	}

	var wg sync.WaitGroup
	wg.Add(2)
	var clientOpts, serverOpts mux.Options
	var clientErr, serverErr error
	go func() {
		defer wg.Done()
		clientOpts, clientErr = SetupChannelsClient(c1, clientLocal)
	}()
	go func() {
		defer wg.Done()
		serverOpts, serverErr = SetupChannelsServer(c2, serverLocal)
	}()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)

	assert.Equal(t, 4096, clientOpts.Channels[0].InMSS)
	assert.Equal(t, 2048, clientOpts.Channels[0].OutMSS)
	assert.Equal(t, 2048, serverOpts.Channels[0].InMSS)
	assert.Equal(t, 4096, serverOpts.Channels[0].OutMSS)
}
