package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "authclient"

// RedisStore keeps the pair in a Redis hash at "<prefix>:<instance>".
type RedisStore struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

// NewRedisStore binds a store to one application instance. ttl <= 0 keeps the hash until Clear.
func NewRedisStore(rdb redis.UniversalClient, prefix, instance string, ttl time.Duration) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	instance = strings.TrimSpace(instance)
	if instance == "" {
		instance = defaultAppName
	}
	return &RedisStore{
		rdb: rdb,
		key: prefix + ":" + instance,
		ttl: ttl,
	}, nil
}

// Key returns the Redis key backing the store.
func (s *RedisStore) Key() string {
	return s.key
}

func (s *RedisStore) Get(ctx context.Context) (Pair, error) {
	vals, err := s.rdb.HMGet(ctx, s.key, KeyAccessToken, KeyRefreshToken, KeyTokenType).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Pair{}, ErrEmpty
		}
		return Pair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(vals) != 3 {
		return Pair{}, ErrEmpty
	}
	return fromEntries(stringValue(vals[0]), stringValue(vals[1]), stringValue(vals[2]))
}

func (s *RedisStore) Set(ctx context.Context, pair Pair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	pair = pair.Normalized()

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key,
			KeyAccessToken, pair.AccessToken,
			KeyRefreshToken, pair.RefreshToken,
			KeyTokenType, pair.TokenType,
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
