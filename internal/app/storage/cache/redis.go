// Package cache provides a Redis-backed read-through cache for stored records.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/crud_service/internal/app/metrics"
)

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Dial connects to Redis and verifies the server answers.
func Dial(ctx context.Context, opts Options) (*redis.Client, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("redis address not configured")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// tombstone marks an invalidated key. It is not valid JSON, so it can never
// collide with an encoded value.
const tombstone = "\x00deleted"

// Redis stores JSON encoded values of type T under prefix:id.
type Redis[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis wraps client. A non-positive ttl keeps entries until evicted.
func NewRedis[T any](client *redis.Client, prefix string, ttl time.Duration) *Redis[T] {
	if ttl < 0 {
		ttl = 0
	}
	return &Redis[T]{client: client, prefix: strings.Trim(prefix, ":"), ttl: ttl}
}

func (c *Redis[T]) key(id string) string {
	return c.prefix + ":" + id
}

// Get returns the cached value. A miss is reported with found=false.
func (c *Redis[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheLookup(false)
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("cache get %s: %w", id, err)
	}
	if string(data) == tombstone {
		metrics.RecordCacheLookup(false)
		return zero, false, nil
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		// A corrupt entry is a miss; drop it so the next write replaces it.
		_ = c.client.Del(ctx, c.key(id)).Err()
		metrics.RecordCacheLookup(false)
		return zero, false, nil
	}
	metrics.RecordCacheLookup(true)
	return value, true, nil
}

// Set stores value under id, replacing any entry or tombstone.
func (c *Redis[T]) Set(ctx context.Context, id string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", id, err)
	}
	if err := c.client.Set(ctx, c.key(id), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", id, err)
	}
	return nil
}

// Fill stores value under id only when the key is absent. An existing entry
// or tombstone wins.
func (c *Redis[T]) Fill(ctx context.Context, id string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", id, err)
	}
	if err := c.client.SetNX(ctx, c.key(id), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache fill %s: %w", id, err)
	}
	return nil
}

// Invalidate replaces id with a tombstone for the cache TTL.
func (c *Redis[T]) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Set(ctx, c.key(id), tombstone, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", id, err)
	}
	return nil
}
