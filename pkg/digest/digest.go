// Package digest provides the polymorphic hash abstraction the protocol
// negotiates by name (spec §2, "Hash abstraction"): a fixed set of
// algorithms exposed through one capability interface, so the protocol
// layer and the scan/compare dialogue never need to know which concrete
// algorithm is in play.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"fmt"
	"hash"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for wire compatibility with legacy cvsync peers
)

// Name identifies a negotiated hash algorithm by its wire name.
type Name string

const (
	MD5       Name = "md5"
	SHA1      Name = "sha1"
	RIPEMD160 Name = "rmd160"
)

// Fallback is the algorithm used when negotiation fails to agree on
// anything else (spec §4.3 "Hash").
const Fallback = MD5

// Digest is the capability set {init, update, finalize, destroy} from
// spec §2, expressed idiomatically as a resettable hash.Hash. "destroy"
// has no Go equivalent (the garbage collector reclaims it); "init" is
// New/Reset.
type Digest interface {
	hash.Hash
	// Name returns the wire name of this algorithm.
	Name() Name
}

type digest struct {
	hash.Hash
	name Name
}

func (d *digest) Name() Name { return d.name }

// New constructs a Digest for the named algorithm. It returns an error for
// any name other than the required set; callers negotiating a peer-supplied
// name should fall back to Fallback on error, per spec §4.3.
func New(name Name) (Digest, error) {
	switch name {
	case MD5:
		return &digest{Hash: md5.New(), name: MD5}, nil
	case SHA1:
		return &digest{Hash: sha1.New(), name: SHA1}, nil
	case RIPEMD160:
		return &digest{Hash: ripemd160.New(), name: RIPEMD160}, nil
	default:
		return nil, fmt.Errorf("digest: unsupported algorithm %q", name)
	}
}

// Supported reports whether name names one of the required algorithms.
func Supported(name Name) bool {
	switch name {
	case MD5, SHA1, RIPEMD160:
		return true
	default:
		return false
	}
}

// Negotiate picks the algorithm to use given the client's preference and
// the server's supported set, downgrading to Fallback when the client's
// choice isn't supported (spec §4.3: "server sends the chosen algorithm
// (may downgrade to MD5 if the client's choice is unsupported...)").
func Negotiate(clientPreferred Name) Name {
	if Supported(clientPreferred) {
		return clientPreferred
	}
	return Fallback
}

// Sum computes the digest of the concatenation of fields using the named
// algorithm. This is the shape the UPDATE_RCS sub-dialogue uses for its
// per-revision and per-deltatext hashes (spec §4.4 step 3-4): a hash over a
// fixed ordered list of byte fields concatenated without separators.
func Sum(name Name, fields ...[]byte) ([]byte, error) {
	d, err := New(name)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if _, err := d.Write(f); err != nil {
			return nil, err
		}
	}
	return d.Sum(nil), nil
}
