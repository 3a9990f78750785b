package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ultrashots/pkg/config"
)

// RedisStore keeps sessions as JSON strings under prefix+id with the session lifetime as TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedis connects and pings the configured server.
func OpenRedis(ctx context.Context, c config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.Addr, err)
	}
	return client, nil
}

func (r *RedisStore) Load(ctx context.Context, id string) (map[string]any, error) {
	b, err := r.client.Get(ctx, r.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(b)
}

func (r *RedisStore) Save(ctx context.Context, id string, data map[string]any, ttl time.Duration) error {
	b, err := encode(data)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+id, b, ttl).Err()
}

func (r *RedisStore) Destroy(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.prefix+id).Err()
}
