package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares failure counters across server instances.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedis stores counters under prefix+key.
func NewRedis(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, s.prefix+key)
		p.ExpireNX(ctx, s.prefix+key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record reauth failure: %w", err)
	}
	return int(incr.Val()), nil
}

func (s *RedisStore) Failures(ctx context.Context, key string) (int, error) {
	n, err := s.client.Get(ctx, s.prefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read reauth failures: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("clear reauth failures: %w", err)
	}
	return nil
}
