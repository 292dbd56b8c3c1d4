package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config holds redis connection settings for the distributed cache.
type Config struct {
	ConnectionURL  string        `env:"RBAC_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"RBAC_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"RBAC_REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"RBAC_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// LoadConfig populates Config from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Connect establishes a redis connection, retrying per the configuration.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseConnString, err)
	}

	for attempt := 0; attempt < cfg.RetryAttempts; attempt++ {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrNotReady
}

// Healthcheck returns a probe suitable for engine health checks.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// redisEntry is the stored envelope. Sliding entries carry their TTL so a
// read can refresh the expiry without a side channel.
type redisEntry struct {
	Value   []byte        `json:"v"`
	TTL     time.Duration `json:"ttl,omitempty"`
	Sliding bool          `json:"sliding,omitempty"`
}

// tagKeyPrefix namespaces the sets that back tag invalidation. It sits
// outside the data-key prefix so pattern deletes never remove tag indexes.
const tagKeyPrefix = "cachetag:"

// unlockScript deletes a lock key only when the caller still holds it.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is the distributed Cache implementation backed by go-redis. Values
// are stored as JSON envelopes; tags are maintained as redis sets and
// pattern deletes use SCAN, so bulk invalidation stays server-side.
type Redis struct {
	client     redis.UniversalClient
	defaultTTL time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

var (
	_ Cache  = (*Redis)(nil)
	_ Locker = (*Redis)(nil)
)

// RedisOption configures the redis cache.
type RedisOption func(*Redis)

// WithRedisDefaultTTL sets the TTL applied when Set is called without one.
func WithRedisDefaultTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.defaultTTL = ttl }
}

// NewRedis wraps an existing redis client in the Cache contract. The caller
// owns the client lifecycle unless Close is used.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.misses.Add(1)
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}

	if entry.Sliding && entry.TTL > 0 {
		// Best effort refresh; a failed EXPIRE only shortens the window.
		_ = r.client.Expire(ctx, key, entry.TTL).Err()
	}

	r.hits.Add(1)
	return entry.Value, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	o := applyOptions(opts)
	ttl := o.ttl
	if ttl == 0 {
		ttl = r.defaultTTL
	}
	if ttl < 0 {
		ttl = 0 // redis: zero expiration means persist
	}

	raw, err := json.Marshal(redisEntry{Value: value, TTL: ttl, Sliding: o.sliding})
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, raw, ttl)
	for _, tag := range o.tags {
		pipe.SAdd(ctx, tagKeyPrefix+tag, key)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (r *Redis) DeleteByTags(ctx context.Context, tags ...string) (int, error) {
	removed := 0
	for _, tag := range tags {
		keys, err := r.client.SMembers(ctx, tagKeyPrefix+tag).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		if err := r.client.Del(ctx, tagKeyPrefix+tag).Err(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (r *Redis) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(keys))
	for i, v := range values {
		if v == nil {
			r.misses.Add(1)
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		var entry redisEntry
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			return nil, err
		}
		r.hits.Add(1)
		result[keys[i]] = entry.Value
	}
	return result, nil
}

func (r *Redis) SetMany(ctx context.Context, values map[string][]byte, opts ...SetOption) error {
	for key, value := range values {
		if err := r.Set(ctx, key, value, opts...); err != nil {
			return err
		}
	}
	return nil
}

// Clear flushes the database. The cache is expected to own a dedicated
// logical database.
func (r *Redis) Clear(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

func (r *Redis) GetOrSet(ctx context.Context, key string, factory Factory, opts ...SetOption) ([]byte, error) {
	value, err := r.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, err
	}

	value, err = factory(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.Set(ctx, key, value, opts...); err != nil {
		return nil, err
	}
	return value, nil
}

// Lock implements Locker with SET NX and a token-checked release, so only
// the holder can unlock.
func (r *Redis) Lock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	lockKey := "cachelock:" + key

	acquired, err := r.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return func() {}, false, err
	}
	if !acquired {
		return func() {}, false, nil
	}

	unlock := func() {
		_ = unlockScript.Run(context.WithoutCancel(ctx), r.client, []string{lockKey}, token).Err()
	}
	return unlock, true, nil
}

func (r *Redis) Stats() Stats {
	size, _ := r.client.DBSize(context.Background()).Result()
	return Stats{Hits: r.hits.Load(), Misses: r.misses.Load(), Size: size}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
