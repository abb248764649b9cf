// Package collection models a named tree of files served under a single
// prefix and release type (spec §3 "Collection"), including the
// "super collection" prefix-inheritance hierarchy and the reference
// counting that keeps a collection's configuration immutable for the
// lifetime of every session admitted under it (spec §5 "Memory
// ownership").
package collection

import (
	"fmt"
	"sync"
)

// Release is the kind of tree a collection serves (spec §3).
type Release string

const (
	ReleaseList Release = "list"
	ReleaseRCS  Release = "rcs"
)

// ErrorMode controls how the compare side reacts to local filesystem
// inconsistencies found while reconciling a collection (spec §7
// "Filesystem errors").
type ErrorMode string

const (
	ErrorModeAbort ErrorMode = "abort"
	ErrorModeFixup ErrorMode = "fixup"
)

// AllPerms is CVSYNC_ALLPERMS: the mask every configured umask is
// restricted to (spec §3: "umask is bitwise restricted to
// CVSYNC_ALLPERMS (0o7777)").
const AllPerms = 0o7777

// Collection is one served or requested tree (spec §3).
type Collection struct {
	Name      string
	Release   Release
	Prefix    string
	RPrefix   string
	Umask     uint16
	ErrorMode ErrorMode
	SymFollow bool
	DistPath  string
	ScanPath  string

	// Super, if non-nil, is the parent collection this one inherits
	// Prefix/DistPath/ScanPath from; Prefix on a super-child is a
	// relative sub-prefix joined under the parent's (spec §6: "super
	// builds a containment hierarchy").
	Super *Collection

	mu       sync.Mutex
	refCount int
}

// New validates and constructs a Collection. Umask is masked to
// AllPerms per the spec invariant.
func New(name string, release Release, prefix string, opts ...Option) (*Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("collection: name required")
	}
	if release != ReleaseList && release != ReleaseRCS {
		return nil, fmt.Errorf("collection: unknown release %q", release)
	}
	c := &Collection{
		Name:      name,
		Release:   release,
		Prefix:    prefix,
		ErrorMode: ErrorModeAbort,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Umask &= AllPerms
	return c, nil
}

// Option configures an optional Collection field at construction.
type Option func(*Collection)

func WithRPrefix(p string) Option        { return func(c *Collection) { c.RPrefix = p } }
func WithUmask(u uint16) Option          { return func(c *Collection) { c.Umask = u } }
func WithErrorMode(m ErrorMode) Option   { return func(c *Collection) { c.ErrorMode = m } }
func WithSymFollow(b bool) Option        { return func(c *Collection) { c.SymFollow = b } }
func WithDistPath(p string) Option       { return func(c *Collection) { c.DistPath = p } }
func WithScanPath(p string) Option       { return func(c *Collection) { c.ScanPath = p } }
func WithSuper(parent *Collection) Option {
	return func(c *Collection) { c.Super = parent }
}

// ResolvedPrefix returns the collection's effective filesystem prefix,
// joining through any Super chain (spec §6 "super").
func (c *Collection) ResolvedPrefix() string {
	if c.Super == nil {
		return c.Prefix
	}
	parent := c.Super.ResolvedPrefix()
	if c.Prefix == "" {
		return parent
	}
	return parent + "/" + c.Prefix
}

// ResolvedDistPath returns DistPath, inherited from Super if unset
// locally.
func (c *Collection) ResolvedDistPath() string {
	if c.DistPath != "" || c.Super == nil {
		return c.DistPath
	}
	return c.Super.ResolvedDistPath()
}

// ResolvedScanPath returns ScanPath, inherited from Super if unset
// locally.
func (c *Collection) ResolvedScanPath() string {
	if c.ScanPath != "" || c.Super == nil {
		return c.ScanPath
	}
	return c.Super.ResolvedScanPath()
}

// Acquire increments the collection's reference count; it must be held
// by every session admitted under this collection until the session
// finishes, so a concurrent config reload cannot mutate a Collection a
// session is actively using (spec §5 "Memory ownership").
func (c *Collection) Acquire() {
	c.mu.Lock()
	c.refCount++
	c.mu.Unlock()
}

// Release decrements the reference count.
func (c *Collection) Release() {
	c.mu.Lock()
	if c.refCount > 0 {
		c.refCount--
	}
	c.mu.Unlock()
}

// RefCount returns the current reference count, primarily for tests and
// diagnostics.
func (c *Collection) RefCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refCount
}

// GrantUmask computes the umask granted to a client's requested umask:
// the bitwise AND of the request and this collection's configured
// policy umask (spec §4.3 "granted umask (AND of requested and server's
// policy)").
func (c *Collection) GrantUmask(requested uint16) uint16 {
	return (requested & AllPerms) & c.Umask
}
