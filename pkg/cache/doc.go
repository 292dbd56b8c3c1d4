// Package cache provides the key/value cache contract the authorization
// engine depends on, together with a reference in-memory implementation and
// a redis-backed distributed implementation.
//
// The contract is deliberately narrow: byte values, per-entry TTL, tag and
// glob-pattern bulk invalidation, batched reads/writes, compute-and-cache
// via GetOrSet, hit/miss statistics, and an optional Locker capability for
// stampede protection. Callers own serialization so that both backends
// behave identically.
//
// # In-memory cache
//
// Memory keeps entries under an LRU bound with a background janitor for
// expired entries, maintains a tag index for O(tag) bulk invalidation, and
// collapses concurrent GetOrSet misses for one key into a single
// computation:
//
//	c := cache.NewMemory(cache.WithMaxEntries(5000), cache.WithDefaultTTL(5*time.Minute))
//	defer c.Close()
//
//	err := c.Set(ctx, "rbac:user:u1", payload,
//	    cache.WithTTL(5*time.Minute),
//	    cache.WithTags("user:u1"),
//	)
//
//	// Later, when the user's assignments change:
//	_, _ = c.DeleteByTags(ctx, "user:u1")
//
// # Redis cache
//
// Redis wraps a go-redis client. Values travel as JSON envelopes so sliding
// TTLs survive the round trip, tags are maintained as redis sets, pattern
// deletes run server-side over SCAN, and Lock is a SET NX advisory lock
// with a token-checked release:
//
//	client, err := cache.Connect(ctx, cfg)
//	if err != nil { ... }
//	c := cache.NewRedis(client, cache.WithRedisDefaultTTL(5*time.Minute))
//
// # Keys
//
// KeyBuilder assembles namespaced keys (default prefix "rbac", separator
// ":") so multiple engine instances can share a backing store:
//
//	kb := cache.NewKeyBuilder("", "")
//	key := kb.Build("user", "u1", "org1") // "rbac:user:u1:org1"
//
// # Error semantics
//
// Absent or expired keys yield ErrCacheMiss. Transport failures are
// returned as-is, never collapsed into a miss; the engine decides whether
// to degrade to the source of truth.
package cache
