// Package cache stores enumerated QA Touch case-key listings in Redis.
//
// Enumerating every automation case of a project costs one request per
// listing page against a quota of 45 requests per minute. When several
// commands run back to back (list cases, then create a run from them) the
// listing is reused instead of paged again.
//
// Only listings are cached. Test results are never persisted.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 5*time.Minute)
//
//	key, err := cache.KeyForURL("acme", listingURL)
//	if err != nil {
//		return err
//	}
//
//	keys, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// Cache miss - page through the listing
//	}
//
// # Metrics
//
//   - qatouch_cache_hits_total - Cache hits
//   - qatouch_cache_misses_total - Cache misses
//   - qatouch_cache_errors_total{operation} - Cache operation errors
package cache
