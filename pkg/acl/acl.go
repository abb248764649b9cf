// Package acl evaluates the ordered access-control rule list cvsync
// consults on every accepted connection (spec §4.5 "ACL evaluation").
//
// Rule matching and per-rule/global connection counting are grounded on
// a reverse-DNS-cached netgroup matcher: the same cache-with-TTL pattern
// avoids letting a slow PTR lookup stall every accept.
package acl

import (
	"fmt"
	"net"
	"strings"
	"sync"
)

// Status is the verdict a single rule carries (spec §2 "Aclent").
type Status int

const (
	Deny Status = iota
	Allow
	Always
)

func (s Status) String() string {
	switch s {
	case Allow:
		return "allow"
	case Always:
		return "always"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Decision is the outcome of evaluating the full rule list against one
// peer address (spec §4.5).
type Decision int

const (
	DecisionAllowed Decision = iota
	DecisionDenied
	DecisionLimited
)

// Rule is one entry in the ordered ACL list. Exactly one of Network or
// HostnamePattern is set, matching spec §2's address-or-hostname-glob
// Aclent shape.
type Rule struct {
	Status          Status
	Network         *net.IPNet // set for address[/prefix_len] rules
	HostnamePattern string     // set for hostname rules: an exact name (case-insensitive) or a "*." suffix wildcard such as "*.example.com"; no other glob forms are matched
	Max             int        // 0 means unlimited; only meaningful for Allow
}

func (r Rule) String() string {
	target := r.HostnamePattern
	if r.Network != nil {
		target = r.Network.String()
	}
	if r.Max > 0 {
		return fmt.Sprintf("%s %s,%d", r.Status, target, r.Max)
	}
	return fmt.Sprintf("%s %s", r.Status, target)
}

// Matches reports whether addr (and its cached reverse-DNS names, looked
// up lazily) satisfies the rule.
func (r Rule) matches(addr net.IP, resolve func() []string) bool {
	if r.Network != nil {
		return r.Network.Contains(addr)
	}
	for _, host := range resolve() {
		host = strings.TrimSuffix(host, ".")
		if strings.HasPrefix(r.HostnamePattern, "*.") {
			suffix := r.HostnamePattern[1:]
			if strings.HasSuffix(strings.ToLower(host), strings.ToLower(suffix)) {
				return true
			}
			continue
		}
		if strings.EqualFold(host, r.HostnamePattern) {
			return true
		}
	}
	return false
}

// Evaluator holds the ordered rule list, the global connection cap, and
// live per-rule/global connection counts (spec §4.5 "Global cap").
type Evaluator struct {
	rules      []Rule
	maxClients int
	metrics    *Metrics

	mu          sync.Mutex
	ruleCounts  []int
	totalCount  int
	dnsResolver *dnsCache
}

// NewEvaluator constructs an Evaluator over rules with the given global
// connection cap (0 disables the cap).
func NewEvaluator(rules []Rule, maxClients int) *Evaluator {
	return &Evaluator{
		rules:       rules,
		maxClients:  maxClients,
		ruleCounts:  make([]int, len(rules)),
		dnsResolver: newDNSCache(0, 0),
	}
}

// WithMetrics attaches m to record every future Evaluate/Release call. m
// may be nil, in which case metrics recording is a no-op.
func (e *Evaluator) WithMetrics(m *Metrics) *Evaluator {
	e.metrics = m
	return e
}

// Lease represents one admitted connection's hold on ACL capacity.
// Release must be called exactly once when the connection ends.
type Lease struct {
	ruleIndex int // -1 for Always rules, which hold no counted capacity
}

// Evaluate walks the rule list in order and returns the first matching
// rule's decision (spec §4.5: "the first matching entry decides").
//
//   - ALLOW: admitted unless its own max (if set) or the global
//     maxclients cap has been reached, in which case DecisionLimited.
//   - ALWAYS: admitted unconditionally, bypassing both caps.
//   - DENY: DecisionDenied.
//
// No matching rule denies by default (spec §4.5 default-deny posture).
func (e *Evaluator) Evaluate(addr net.IP) (Decision, *Lease, error) {
	decision, lease, err := e.evaluate(addr)
	e.metrics.decision(decision, lease)
	return decision, lease, err
}

func (e *Evaluator) evaluate(addr net.IP) (Decision, *Lease, error) {
	resolveOnce := func() func() []string {
		var names []string
		var done bool
		return func() []string {
			if !done {
				names, _ = e.dnsResolver.lookupAddr(addr.String())
				done = true
			}
			return names
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, rule := range e.rules {
		if !rule.matches(addr, resolveOnce) {
			continue
		}
		switch rule.Status {
		case Deny:
			return DecisionDenied, nil, nil
		case Always:
			return DecisionAllowed, &Lease{ruleIndex: -1}, nil
		case Allow:
			if rule.Max > 0 && e.ruleCounts[i] >= rule.Max {
				return DecisionLimited, nil, nil
			}
			if e.maxClients > 0 && e.totalCount >= e.maxClients {
				return DecisionLimited, nil, nil
			}
			e.ruleCounts[i]++
			e.totalCount++
			return DecisionAllowed, &Lease{ruleIndex: i}, nil
		}
	}
	return DecisionDenied, nil, nil
}

// Release returns a Lease's capacity to the Evaluator. Safe to call with
// a nil Lease (a no-op), so callers need not special-case Always/deny
// outcomes.
func (e *Evaluator) Release(l *Lease) {
	if l == nil || l.ruleIndex < 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ruleCounts[l.ruleIndex]--
	e.totalCount--
	e.metrics.released()
}
