package httpcache

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the response cache with Redis: plain GET/SET for
// bodies, a hash per response for headers, TTL on both.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetBody(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) GetHeaders(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

func (s *RedisStore) Put(ctx context.Context, bodyKey, headersKey, body string, headers map[string]string, ttl time.Duration) error {
	if err := s.client.Set(ctx, bodyKey, body, ttl).Err(); err != nil {
		return err
	}
	if len(headers) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, headersKey, headers).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, headersKey, ttl).Err()
}

// Recoverable is the named policy for which backend failures the filter
// may treat as a transparent bypass: the backend not being there, or not
// answering in time.
func (s *RedisStore) Recoverable(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, context.DeadlineExceeded)
}
