package cache

import (
	"context"
	"errors"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// RedisStore implements Backend using redis.
type RedisStore struct {
	client    *redisv9.Client
	retention time.Duration
}

// NewRedisStore connects to addr lazily; use Ping to check reachability.
// retention is the redis TTL for stored values (0 keeps them forever).
func NewRedisStore(addr, password string, db int, retention time.Duration) *RedisStore {
	return &RedisStore{
		client: redisv9.NewClient(&redisv9.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		retention: retention,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redisv9.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, keyPrefix+key, value, s.retention).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
