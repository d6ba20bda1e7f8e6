// Package redisstore wraps a Redis client for fast key/value access and
// distributed locking, adapted directly from redis_service.go's connection
// setup, SetNX-based locking, and Lua-script-guarded unlock.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a *redis.Client for the subset of StoragePort Redis can serve
// fastest (working-memory TTL'd keys), and implements batch.DistributedLocker
// for cross-instance batch coordination.
type Store struct {
	client *redis.Client
}

// New parses redisURL and verifies connectivity before returning a Store.
func New(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

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
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get retrieves a raw value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value under key with an optional TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete %s: %w", key, err)
	}
	return n > 0, nil
}

// List returns keys matching prefix*. Uses KEYS, acceptable for the small
// working-set sizes Redis holds here (archives and lock keys, not the bulk
// memory store).
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.client.Keys(ctx, prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s*: %w", prefix, err)
	}
	return keys, nil
}

// AcquireLock implements batch.DistributedLocker via SETNX.
func (s *Store) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// ReleaseLock implements batch.DistributedLocker, deleting key only if owner
// still holds it (atomic check-and-delete via Lua, same script as
// redis_service.go's ReleaseLock).
func (s *Store) ReleaseLock(ctx context.Context, key, owner string) (bool, error) {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	result, err := script.Run(ctx, s.client, []string{key}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("redis release lock %s: %w", key, err)
	}
	return result == 1, nil
}
