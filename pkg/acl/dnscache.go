package acl

import (
	"net"
	"sync"
	"time"
)

// Default reverse-DNS cache TTLs (spec §4.5: hostname-glob rules resolve
// the peer's PTR record; this cache keeps a slow resolver from stalling
// every accept).
const (
	defaultDNSCacheTTL    = 5 * time.Minute
	defaultDNSCacheNegTTL = 1 * time.Minute
)

type dnsCacheEntry struct {
	hostnames []string
	err       error
	expiresAt time.Time
}

// dnsCache is a thread-safe, TTL-bounded cache of reverse DNS lookups.
type dnsCache struct {
	mu      sync.RWMutex
	entries map[string]*dnsCacheEntry
	ttl     time.Duration
	negTTL  time.Duration
}

func newDNSCache(ttl, negTTL time.Duration) *dnsCache {
	if ttl <= 0 {
		ttl = defaultDNSCacheTTL
	}
	if negTTL <= 0 {
		negTTL = defaultDNSCacheNegTTL
	}
	return &dnsCache{
		entries: make(map[string]*dnsCacheEntry),
		ttl:     ttl,
		negTTL:  negTTL,
	}
}

func (c *dnsCache) lookupAddr(ip string) ([]string, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.entries[ip]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.hostnames, entry.err
	}

	hostnames, err := net.LookupAddr(ip)

	ttl := c.ttl
	if err != nil {
		ttl = c.negTTL
	}

	c.mu.Lock()
	c.entries[ip] = &dnsCacheEntry{hostnames: hostnames, err: err, expiresAt: now.Add(ttl)}
	c.cleanExpiredLocked(now)
	c.mu.Unlock()

	return hostnames, err
}

func (c *dnsCache) cleanExpiredLocked(now time.Time) {
	for ip, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, ip)
		}
	}
}
