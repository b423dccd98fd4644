package auth

import (
	"sync"
	"time"
)

// DefaultKeyTTL is how long a resolved verification key stays usable
// before the source is consulted again.
const DefaultKeyTTL = 15 * time.Minute

// keyEntry pairs a cached key with its fetch time.
type keyEntry struct {
	key       any
	fetchedAt time.Time
}

// KeyCache holds verification keys by key id with a TTL.
//
// Design decision: entries expire by fetch time rather than being
// invalidated on verification failure. A token signed with a rotated-out
// key fails verification either way; the TTL only bounds how long a
// revoked key keeps verifying, which is an explicit operational choice.
type KeyCache struct {
	mu      sync.Mutex
	entries map[string]keyEntry

	ttl time.Duration
	now func() time.Time
}

// NewKeyCache creates a key cache with the given TTL.
// Non-positive TTLs fall back to DefaultKeyTTL.
func NewKeyCache(ttl time.Duration) *KeyCache {
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	return &KeyCache{
		entries: make(map[string]keyEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached key for the key id, if present and fresh.
func (c *KeyCache) Get(kid string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[kid]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.fetchedAt) > c.ttl {
		delete(c.entries, kid)
		return nil, false
	}
	return entry.key, true
}

// Put stores a key for the key id, stamping the fetch time.
func (c *KeyCache) Put(kid string, key any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[kid] = keyEntry{key: key, fetchedAt: c.now()}
}

// Len returns the number of cached entries, expired or not.
func (c *KeyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
