package cache

import (
	"context"
	"time"
)

// Factory computes a value on cache miss for GetOrSet.
type Factory func(ctx context.Context) ([]byte, error)

// Cache is the contract the authorization engine depends on. Values are raw
// bytes; callers own serialization so that in-memory and distributed
// implementations behave identically.
//
// Read failures must be surfaced as errors, never silently converted into
// misses: the engine decides how to degrade.
type Cache interface {
	// Get retrieves a value. Returns ErrCacheMiss when the key is absent or
	// expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. Options control TTL, tags and sliding expiry.
	Set(ctx context.Context, key string, value []byte, opts ...SetOption) error

	// Delete removes a key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// DeletePattern removes every key matching the glob pattern and returns
	// the number of keys removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// DeleteByTags removes every key associated with any of the tags and
	// returns the number of keys removed.
	DeleteByTags(ctx context.Context, tags ...string) (int, error)

	// GetMany retrieves multiple keys at once. Missing keys are simply
	// absent from the result, not errors.
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)

	// SetMany stores multiple values with shared options.
	SetMany(ctx context.Context, values map[string][]byte, opts ...SetOption) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// GetOrSet returns the cached value or computes, stores and returns it.
	// Concurrent callers for the same key may both compute unless the
	// implementation provides stampede protection.
	GetOrSet(ctx context.Context, key string, factory Factory, opts ...SetOption) ([]byte, error)

	// Stats returns hit/miss/size counters for observability.
	Stats() Stats

	// Close releases resources held by the cache.
	Close() error
}

// Locker is an optional capability for stampede protection. Implementations
// that support it let a single caller repopulate a key while others wait or
// serve stale data.
type Locker interface {
	// Lock attempts to acquire a lock on key for at most ttl. It returns an
	// unlock function and whether the lock was acquired. The unlock function
	// is safe to call when the lock was not acquired.
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), acquired bool, err error)
}

// Stats carries cache counters.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int64
}

// HitRate returns the hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// options collects Set behavior.
type options struct {
	ttl     time.Duration
	tags    []string
	sliding bool
}

// SetOption configures a Set, SetMany or GetOrSet call.
type SetOption func(*options)

// WithTTL sets the entry lifetime. Zero means the implementation default; a
// negative TTL means no expiry.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *options) { o.ttl = ttl }
}

// WithTags associates the entry with tags for bulk invalidation.
func WithTags(tags ...string) SetOption {
	return func(o *options) { o.tags = append(o.tags, tags...) }
}

// WithSliding refreshes the expiry on every read.
func WithSliding() SetOption {
	return func(o *options) { o.sliding = true }
}

func applyOptions(opts []SetOption) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
