package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pandora-labs/extproc-gateway/internal/observability"
)

// Store is the key/value backing for the idempotency cache. Every method
// swallows its own store-level failures: a down store degrades to "not
// cached" rather than failing the request, per the engine's fail-open
// policy. Implementations log every swallowed failure at warn so an
// operator can still see the store is unhealthy.
type Store interface {
	// TryCreateSentinel atomically writes entry under key with the given
	// TTL only if key does not already exist, reporting whether this call
	// won the race. A false return with no pre-existing key (store error)
	// is indistinguishable from "lost the race" by design — both cases
	// make the caller fall back to loading and replaying whatever is
	// there, which is the documented sentinel race behavior.
	TryCreateSentinel(ctx context.Context, key string, entry *CachedEntry, ttl time.Duration) bool

	// Get loads the entry at key, reporting false if absent or on error.
	Get(ctx context.Context, key string) (*CachedEntry, bool)

	// Set writes entry under key with the given TTL, unconditionally.
	Set(ctx context.Context, key string, entry *CachedEntry, ttl time.Duration)

	// Delete removes key. A no-op if key is absent or the store errors.
	Delete(ctx context.Context, key string)
}

// RedisStore is the production Store, backed by a shared *redis.Client.
// Construction mirrors the teacher's redis_store.go: a thin wrapper around
// a client the caller owns and closes, with a key prefix to avoid
// collisions with unrelated keys on a shared Redis instance.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *observability.Logger
	metrics   MetricsSink
}

// NewRedisStore builds a Store over client, namespacing every key under
// keyPrefix (e.g. "extproc:idemp:"). metrics may be nil.
func NewRedisStore(client *redis.Client, keyPrefix string, logger *observability.Logger, metrics MetricsSink) *RedisStore {
	if metrics == nil {
		metrics = NoopMetricsSink
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, logger: logger, metrics: metrics}
}

func (s *RedisStore) fullKey(key string) string {
	return s.keyPrefix + key
}

func (s *RedisStore) TryCreateSentinel(ctx context.Context, key string, entry *CachedEntry, ttl time.Duration) bool {
	start := time.Now()
	encoded, err := Encode(entry)
	if err != nil {
		s.warn("setnx", key, err)
		return false
	}

	won, err := s.client.SetNX(ctx, s.fullKey(key), encoded, ttl).Result()
	s.metrics.RecordCacheOperation("setnx", won, time.Since(start))
	if err != nil {
		s.warn("setnx", key, err)
		return false
	}
	return won
}

func (s *RedisStore) Get(ctx context.Context, key string) (*CachedEntry, bool) {
	start := time.Now()
	raw, err := s.client.Get(ctx, s.fullKey(key)).Result()
	if err == redis.Nil {
		s.metrics.RecordCacheOperation("get", false, time.Since(start))
		return nil, false
	}
	if err != nil {
		s.metrics.RecordCacheOperation("get", false, time.Since(start))
		s.warn("get", key, err)
		return nil, false
	}

	entry, err := Decode(raw)
	if err != nil {
		s.metrics.RecordCacheOperation("get", false, time.Since(start))
		s.warn("decode", key, err)
		return nil, false
	}
	s.metrics.RecordCacheOperation("get", true, time.Since(start))
	return entry, true
}

func (s *RedisStore) Set(ctx context.Context, key string, entry *CachedEntry, ttl time.Duration) {
	start := time.Now()
	encoded, err := Encode(entry)
	if err != nil {
		s.warn("set", key, err)
		return
	}
	err = s.client.Set(ctx, s.fullKey(key), encoded, ttl).Err()
	s.metrics.RecordCacheOperation("set", err == nil, time.Since(start))
	if err != nil {
		s.warn("set", key, err)
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.fullKey(key)).Err(); err != nil {
		s.warn("delete", key, err)
	}
}

func (s *RedisStore) warn(op, key string, err error) {
	s.metrics.RecordIdempotencyStoreError(op)
	if s.logger == nil {
		return
	}
	s.logger.WithFields(map[string]interface{}{
		"operation": op,
		"key":       key,
		"error":     err.Error(),
	}).Warn("idempotency store operation failed")
}
