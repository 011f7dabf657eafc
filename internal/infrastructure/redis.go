package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/interfaces"

	redis "github.com/redis/go-redis/v9"
)

// RedisCache satisfies interfaces.Cache on top of a go-redis v9 client.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Ensure interface compliance at compile time
var _ interfaces.Cache = (*RedisCache)(nil)

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	res, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", interfaces.ErrCacheMiss
	}
	if err != nil {
		return "", err
	}
	return res, nil
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.prefix + k
	}
	return r.client.Del(ctx, prefixed...).Err()
}

// RedisEventSink republishes hub events on a per-association Redis channel so attendant
// consoles served by other instances see them too.
type RedisEventSink struct {
	client *redis.Client
	prefix string
}

func NewRedisEventSink(client *redis.Client, prefix string) *RedisEventSink {
	return &RedisEventSink{client: client, prefix: prefix}
}

// Channel is the Redis channel carrying events of one association.
func (s *RedisEventSink) Channel(associationID int) string {
	return fmt.Sprintf("%sevents:%d", s.prefix, associationID)
}

func (s *RedisEventSink) Deliver(ctx context.Context, evt entities.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.Channel(evt.AssociationID), payload).Err()
}
