package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the connection settings for a Redis-backed durable tier.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string        // defaults to "comic:"
	TTL       time.Duration // zero keeps entries until the sweeper removes them
}

// RedisStore keeps each day as a string value under <KeyPrefix><DateKey>.png.
// A single SET replaces the value atomically.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore connects to Redis and verifies the connection with a PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	s := NewRedisStoreFromClient(rdb, cfg.KeyPrefix, cfg.TTL, logger)
	s.logger.Info().Str("redis_address", cfg.Addr).Msg("Redis store initialized.")
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "comic:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "RedisStore").Logger(),
	}
}

func (s *RedisStore) redisKey(key datekey.Key) string {
	return s.prefix + key.Filename()
}

// Read returns the value stored for key.
func (s *RedisStore) Read(ctx context.Context, key datekey.Key) ([]byte, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", s.redisKey(key), ErrNotExist)
		}
		return nil, fmt.Errorf("redis GET failed for %s: %w", s.redisKey(key), err)
	}
	return data, nil
}

// Write sets the value for key.
func (s *RedisStore) Write(ctx context.Context, key datekey.Key, data []byte) error {
	if err := s.client.Set(ctx, s.redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed for %s: %w", s.redisKey(key), err)
	}
	return nil
}

// Delete removes the value for key. DEL on a missing key is a no-op.
func (s *RedisStore) Delete(ctx context.Context, key datekey.Key) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis DEL failed for %s: %w", s.redisKey(key), err)
	}
	return nil
}

// List scans the key space under the prefix.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var names []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis SCAN failed for prefix %s: %w", s.prefix, err)
	}
	return names, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
