package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/domain/shared"
)

// releaseScript deletes the lock key only when it still holds our token, so
// a holder whose lock expired cannot release a lock someone else acquired.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisCartLock implements cart.Locker on Redis SETNX. It is suitable for
// distributed deployments where multiple instances mutate the same carts.
// Every lock carries a TTL so a crashed holder cannot wedge a cart forever.
type RedisCartLock struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
	retry     time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisCartLock creates a Redis-backed cart locker. ttl bounds how long a
// held lock survives its holder; wait bounds how long Acquire blocks before
// reporting contention.
func NewRedisCartLock(cfg RedisConfig, ttl, wait time.Duration) (*RedisCartLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCartLockWithClient(client, "cart:lock:", ttl, wait), nil
}

// NewRedisCartLockWithClient creates a locker with an existing Redis client.
// This is useful for testing or when sharing a client across components.
func NewRedisCartLockWithClient(client *redis.Client, keyPrefix string, ttl, wait time.Duration) *RedisCartLock {
	if keyPrefix == "" {
		keyPrefix = "cart:lock:"
	}
	return &RedisCartLock{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		wait:      wait,
		retry:     50 * time.Millisecond,
	}
}

// Acquire takes the per-cart lock, retrying until the wait bound elapses.
// On contention it returns shared.ErrCartLocked so the caller can surface a
// retryable conflict instead of hanging.
func (l *RedisCartLock) Acquire(ctx context.Context, cartID uuid.UUID) (func(), error) {
	key := l.keyPrefix + cartID.String()
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire cart lock: %w", err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, shared.ErrCartLocked
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// Close closes the Redis client
func (l *RedisCartLock) Close() error {
	return l.client.Close()
}

// Ensure RedisCartLock implements cart.Locker
var _ cart.Locker = (*RedisCartLock)(nil)
