// Package cache keeps resolved CallRail scope identifiers in Redis.
//
// Every run needs the account id (and, for some endpoints, the first company
// id) before it can fetch anything. Caching those ids lets repeated runs skip
// the lookup requests, which count against the hourly request budget.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Kind:   cache.KindAccount,
//		Tenant: cache.TenantFor(apiKey),
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// look the account up, then
//		_ = manager.Set(ctx, key, cache.NewEntry(accountID, cache.DefaultTTL))
//	}
//
// Keys never contain the API key itself; TenantFor hashes it.
//
// # Metrics
//
//   - callrail_scope_cache_hits_total{kind} - Cache hits
//   - callrail_scope_cache_misses_total{kind} - Cache misses
//   - callrail_scope_cache_errors_total{operation} - Cache operation errors
package cache
