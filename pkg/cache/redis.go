package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/boltpm/bolt/pkg/errors"
)

// RedisMetadataStore is a Redis-backed metadata store for environments
// where many machines share one registry-facing cache (CI fleets, build
// farms). It carries the same envelope and TTL contract as the file store;
// the package and content tiers always stay on the local filesystem.
type RedisMetadataStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMetadataStore connects to the Redis instance at addr
// (host:port) and verifies the connection.
func NewRedisMetadataStore(ctx context.Context, addr string, ttl time.Duration) (*RedisMetadataStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(errors.CodeCache, err, "connect to redis at %s", addr)
	}
	return &RedisMetadataStore{client: client, ttl: ttl}, nil
}

func (s *RedisMetadataStore) key(name string) string {
	return "bolt:metadata:" + name
}

// Get implements MetadataStore. Expiry is enforced both by the stored
// timestamp and by the Redis key TTL, so a clock-skewed writer cannot
// extend freshness.
func (s *RedisMetadataStore) Get(ctx context.Context, name string) (*CachedMetadata, error) {
	payload, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeCache, err, "redis get %s", name)
	}

	var cached CachedMetadata
	if err := json.Unmarshal(payload, &cached); err != nil {
		_ = s.client.Del(ctx, s.key(name)).Err()
		return nil, nil
	}
	if s.ttl > 0 && time.Since(time.Unix(cached.CachedAt, 0)) > s.ttl {
		return nil, nil
	}
	return &cached, nil
}

// Set implements MetadataStore.
func (s *RedisMetadataStore) Set(ctx context.Context, name, data string) error {
	cached := CachedMetadata{Data: data, CachedAt: time.Now().Unix()}
	payload, err := json.Marshal(cached)
	if err != nil {
		return errors.Wrap(errors.CodeCache, err, "marshal metadata for %s", name)
	}
	if err := s.client.Set(ctx, s.key(name), payload, s.ttl).Err(); err != nil {
		return errors.Wrap(errors.CodeCache, err, "redis set %s", name)
	}
	return nil
}

// Close implements MetadataStore.
func (s *RedisMetadataStore) Close() error {
	return s.client.Close()
}

var _ MetadataStore = (*RedisMetadataStore)(nil)
