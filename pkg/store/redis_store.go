package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/luongdev/fsmeasure/pkg/measure"
)

// RedisOptions configures the Redis snapshot backend
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type redisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection with PING
func NewRedisStore(ctx context.Context, opts RedisOptions) (SnapshotStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	return newRedisStore(client, opts.KeyPrefix), nil
}

func newRedisStore(client *redis.Client, keyPrefix string) *redisStore {
	if keyPrefix != "" && !strings.HasSuffix(keyPrefix, ":") {
		keyPrefix += ":"
	}
	return &redisStore{client: client, keyPrefix: keyPrefix}
}

func (s *redisStore) Save(ctx context.Context, key string, cm *measure.CallMetrics) error {
	data, err := cm.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	// SET replaces the value in one step, so a reader sees the old or the new snapshot
	if err := s.client.Set(ctx, s.keyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Load(ctx context.Context, key string) (*measure.CallMetrics, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return measure.UnmarshalBinary(data, measure.WithTitle(key))
}

func (s *redisStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.keyPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}
	return filterSorted(keys, prefix), nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
