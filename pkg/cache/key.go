package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix is the namespace for every cached listing.
const KeyPrefix = "qatouch:cases"

// CacheKey identifies one enumerated case-key listing.
type CacheKey struct {
	// Subdomain is the QA Touch account the listing belongs to.
	Subdomain string

	// Endpoint is the listing path (e.g., "/getAllTestCases/L6df/")
	Endpoint string

	// QueryParams are the listing filters (e.g., {"mode": "Automation"}).
	// The page parameter is ignored: a cache entry always holds every page.
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: qatouch:cases:subdomain:endpoint:query1=val1:query2=val2
//
// Example:
//
//	qatouch:cases:acme:getAllTestCases/L6df:mode=Automation
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if k.Subdomain != "" {
		parts = append(parts, k.Subdomain)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			if key == "page" {
				continue
			}
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}

// KeyForURL builds a CacheKey from a full listing URL.
func KeyForURL(subdomain, rawURL string) (CacheKey, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return CacheKey{}, fmt.Errorf("parse listing url: %w", err)
	}
	return CacheKey{
		Subdomain:   subdomain,
		Endpoint:    u.Path,
		QueryParams: u.Query(),
	}, nil
}
