package slotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	redisstorage "github.com/taoyao-code/zw-fingerprint/internal/storage/redis"
)

// RedisStore 以 JSON 存放快照，Key 为 <prefix>slots:<address>
type RedisStore struct {
	client *redisstorage.Client
	ttl    time.Duration
}

// NewRedisStore ttl 为 0 表示不过期
func NewRedisStore(client *redisstorage.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Put(ctx context.Context, s Snapshot) error {
	s = normalize(s)
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.client.Key("slots", s.Address), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, address string) (*Snapshot, error) {
	data, err := r.client.Get(ctx, r.client.Key("slots", address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
