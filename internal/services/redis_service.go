package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned by KVStore.Get when the key is absent or expired
var ErrKeyNotFound = errors.New("key not found")

// KVStore is the string key/value store behind the response cache
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisService provides Redis connection and operations
type RedisService struct {
	client *redis.Client
	mu     sync.RWMutex
}

// NewRedisService connects to Redis and verifies the connection with a ping
func NewRedisService(redisURL string) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")
	return NewRedisServiceFromClient(client), nil
}

// NewRedisServiceFromClient wraps an existing client without pinging it
func NewRedisServiceFromClient(client *redis.Client) *RedisService {
	return &RedisService{client: client}
}

// Client returns the underlying Redis client
func (r *RedisService) Client() *redis.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks if Redis is healthy
func (r *RedisService) Ping(ctx context.Context) error {
	return r.Client().Ping(ctx).Err()
}

// Get retrieves a value by key. A missing key yields ErrKeyNotFound.
func (r *RedisService) Get(ctx context.Context, key string) (string, error) {
	value, err := r.Client().Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	return value, err
}

// SetEx stores a value with an expiry (SET key value EX ttl)
func (r *RedisService) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.Client().Set(ctx, key, value, ttl).Err()
}

// Delete removes a key
func (r *RedisService) Delete(ctx context.Context, keys ...string) error {
	return r.Client().Del(ctx, keys...).Err()
}

// AppendBounded pushes a value onto a list and trims it to the newest capacity
// entries inside a single MULTI/EXEC. A positive idle TTL refreshes the expiry.
func (r *RedisService) AppendBounded(ctx context.Context, key, value string, capacity int, idleTTL time.Duration) error {
	_, err := r.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, value)
		pipe.LTrim(ctx, key, int64(-capacity), -1)
		if idleTTL > 0 {
			pipe.Expire(ctx, key, idleTTL)
		}
		return nil
	})
	return err
}

// ListRange returns every element of a list, oldest first
func (r *RedisService) ListRange(ctx context.Context, key string) ([]string, error) {
	return r.Client().LRange(ctx, key, 0, -1).Result()
}
