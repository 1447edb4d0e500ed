package processor

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisNonceStore records processed nonces as keys in Redis.
// Listeners sharing the same Redis and prefix share one nonce set.
type RedisNonceStore struct {
	client *redis.Client
	prefix string
}

// NewRedisNonceStore connects to url and verifies the connection with PING
func NewRedisNonceStore(ctx context.Context, url, prefix string) (*RedisNonceStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisNonceStore{client: client, prefix: prefix}, nil
}

func (s *RedisNonceStore) MarkIfAbsent(ctx context.Context, nonce string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+nonce, 1, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", nonce, err)
	}
	return ok, nil
}

func (s *RedisNonceStore) Close() error {
	return s.client.Close()
}
