// Package redis stores session keys in Redis, letting several gateway
// instances share client sessions.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"tender-admin/internal/domain"
	"tender-admin/internal/observability"
)

const (
	backendName   = "redis"
	DefaultPrefix = "tender-admin:"
)

// KVStore is a domain.KeyValueStore on Redis strings.
type KVStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ domain.KeyValueStore = (*KVStore)(nil)

// NewKVStore wraps client. Keys are stored under prefix and expire after ttl;
// zero ttl keeps them until removed.
func NewKVStore(client goredis.UniversalClient, prefix string, ttl time.Duration) *KVStore {
	return &KVStore{client: client, prefix: prefix, ttl: ttl}
}

// Connect parses a redis:// URL, connects and pings.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (s *KVStore) key(k string) string {
	return s.prefix + k
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	defer observability.ObserveKV(backendName, "get", time.Now())

	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key: %w", err)
	}
	return val, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	defer observability.ObserveKV(backendName, "set", time.Now())

	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// SetMany writes all entries in one MULTI/EXEC block.
func (s *KVStore) SetMany(ctx context.Context, entries map[string]string) error {
	defer observability.ObserveKV(backendName, "set_many", time.Now())

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, s.key(k), v, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set keys: %w", err)
	}
	return nil
}

func (s *KVStore) Remove(ctx context.Context, keys ...string) error {
	defer observability.ObserveKV(backendName, "remove", time.Now())

	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("failed to remove keys: %w", err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *KVStore) Close() error {
	return s.client.Close()
}
