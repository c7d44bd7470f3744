package cache

import (
	"time"
)

// CacheEntry represents a cached case-key listing.
type CacheEntry struct {
	// Keys are the case keys in page order.
	Keys []string `json:"keys"`

	// Expires is when the cache entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this listing.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry creates an entry for keys that lives for ttl.
func NewEntry(keys []string, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Keys:     keys,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
