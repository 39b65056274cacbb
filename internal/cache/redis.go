package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces series keys.
const DefaultPrefix = "ivseries:"

// Redis is a Cache shared between processes. Each series is one JSON value
// under prefix+symbol.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis wraps client. An empty prefix uses DefaultPrefix; ttl 0 keeps
// entries until Clear.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(sym string) string { return r.prefix + sym }

func (r *Redis) Put(ctx context.Context, s Series) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal series: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.Symbol), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set series %s: %w", s.Symbol, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, sym string) (Series, error) {
	b, err := r.client.Get(ctx, r.key(sym)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Series{}, ErrMiss
	}
	if err != nil {
		return Series{}, fmt.Errorf("failed to get series %s: %w", sym, err)
	}
	var s Series
	if err := json.Unmarshal(b, &s); err != nil {
		return Series{}, fmt.Errorf("failed to unmarshal series %s: %w", sym, err)
	}
	return s, nil
}

// Clear deletes every key under the prefix.
func (r *Redis) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan series keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete series keys: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
