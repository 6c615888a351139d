package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/backstage/services/fleet/config"

	"github.com/go-redis/redis/v8"
)

var (
	// ErrCacheMiss is returned by Get when the key does not exist
	ErrCacheMiss = errors.New("cache miss")
	// ErrUpdateConflict is returned by Update when the key kept changing under it
	ErrUpdateConflict = errors.New("cache update conflict")
)

// maxUpdateAttempts bounds the optimistic retries of Update
const maxUpdateAttempts = 16

// UpdateFunc computes the new value of a key from its current one. miss
// reports that the key does not exist. Returning an error aborts the update
// without writing.
type UpdateFunc func(current string, miss bool) (string, error)

// RedisClient is an interface for Redis operations
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	Update(ctx context.Context, key string, fn UpdateFunc, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// redisClient implements the RedisClient interface
type redisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg config.RedisConfig) (RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisClient{client: client}, nil
}

// NewFromClient wraps an existing go-redis client
func NewFromClient(client *redis.Client) RedisClient {
	return &redisClient{client: client}
}

// Get retrieves a value from Redis
func (r *redisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// Set stores a value in Redis with expiration
func (r *redisClient) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Update runs a read-modify-write of key under WATCH. The write is committed
// with MULTI/EXEC only if nobody changed the key since it was read, otherwise
// fn runs again on the fresh value.
func (r *redisClient) Update(ctx context.Context, key string, fn UpdateFunc, expiration time.Duration) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		miss := errors.Is(err, redis.Nil)
		if err != nil && !miss {
			return err
		}

		updated, err := fn(current, miss)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, expiration)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			// Lost the race, retry on the new value
			continue
		}
		return err
	}

	return ErrUpdateConflict
}

// Delete removes a key from Redis
func (r *redisClient) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Keys returns every key starting with prefix. It walks the keyspace with
// SCAN so large databases are not blocked.
func (r *redisClient) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Ping checks the connection
func (r *redisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *redisClient) Close() error {
	return r.client.Close()
}
