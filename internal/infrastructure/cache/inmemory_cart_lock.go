package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/domain/shared"
)

// InMemoryCartLock implements cart.Locker with per-cart semaphores.
// This is suitable for single-instance deployments and testing; distributed
// deployments should use RedisCartLock so instances contend on shared state.
type InMemoryCartLock struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
	wait  time.Duration
}

// NewInMemoryCartLock creates an in-memory cart locker. wait bounds how long
// Acquire blocks before reporting contention.
func NewInMemoryCartLock(wait time.Duration) *InMemoryCartLock {
	return &InMemoryCartLock{
		locks: make(map[uuid.UUID]chan struct{}),
		wait:  wait,
	}
}

func (l *InMemoryCartLock) semaphore(cartID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.locks[cartID]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[cartID] = sem
	}
	return sem
}

// Acquire takes the per-cart lock, blocking up to the wait bound. On
// contention it returns shared.ErrCartLocked.
func (l *InMemoryCartLock) Acquire(ctx context.Context, cartID uuid.UUID) (func(), error) {
	sem := l.semaphore(cartID)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-sem })
		}, nil
	case <-timer.C:
		return nil, shared.ErrCartLocked
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ensure InMemoryCartLock implements cart.Locker
var _ cart.Locker = (*InMemoryCartLock)(nil)
