// Package cache implements the Cache Store (spec §4.A): a durable
// key/value store with TTL plus a pub/sub channel, backed by Redis.
// Grounded on easyweb3tools-easy-paas's internal/cache.RedisStore
// (Get/Set/Delete over github.com/redis/go-redis/v9) and on
// cryptoKingdom88-memeCoinBackend's use of the same client for
// connection-pooled, timeout-bounded access.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the Cache Store interface consumed by every other
// component (§4.A). Values are opaque byte strings; callers serialise.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetPermanent(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	ScanByPrefix(ctx context.Context, prefix string) ([]string, error)
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) (unsubscribe func(), err error)

	// TrySetNX atomically sets key to value with ttl only if key does
	// not already exist, returning whether it acquired the key. The
	// Scheduler (§4.H, §5) uses this as its cluster-wide mutual
	// exclusion primitive for addRepeating so a degraded queue never
	// creates parallel timers for the same mint.
	TrySetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// RedisStore implements Store using a pooled Redis client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr (host:port, as used by REDIS_URL) and
// returns a ready Store.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping verifies connectivity for the health endpoint (§6.1).
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get returns the value for key, or ok=false if it does not exist.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// SetWithTTL stores value under key for at least ttl (§4.A property i).
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// SetPermanent stores value under key with no expiry.
func (s *RedisStore) SetPermanent(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

// Delete removes one or more keys. Deleting a key that does not exist
// is not an error.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// ScanByPrefix enumerates keys matching prefix*, using SCAN so large
// keyspaces are walked incrementally rather than with a blocking KEYS.
func (s *RedisStore) ScanByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// TrySetNX acquires key atomically via Redis SETNX semantics.
func (s *RedisStore) TrySetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Publish delivers message to every subscriber currently attached to
// channel. Delivery is at-least-once with no persistence: subscribers
// joining after this call do not receive it (§4.A).
func (s *RedisStore) Publish(ctx context.Context, channel string, message []byte) error {
	return s.client.Publish(ctx, channel, message).Err()
}

// Subscribe attaches handler to channel and returns an idempotent
// unsubscribe function (§4.A property iii).
func (s *RedisStore) Subscribe(ctx context.Context, channel string, handler func(message []byte)) (func(), error) {
	sub := s.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}

	msgCh := sub.Channel()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			case <-done:
				return
			}
		}
	}()

	var closed bool
	unsubscribe := func() {
		if closed {
			return
		}
		closed = true
		close(done)
		_ = sub.Close()
	}
	return unsubscribe, nil
}
