package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// Both scripts act only while KEYS[1] still holds the caller's token.
var (
	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0`)
)

// LockManager implements domain.LockManager. A held lock is extended every
// third of its TTL until released.
type LockManager struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewLockManager(c *Client, logger *slog.Logger) *LockManager {
	return &LockManager{rdb: c.rdb, logger: logger.With(slog.String("component", "redis_lock"))}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire takes the lock for key or fails with domain.ErrLockHeld. The held
// context is cancelled with domain.ErrLockLost once an extension finds the
// token gone. release stops the extension and deletes the lock; calling it
// again is a no-op.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (context.Context, func(), error) {
	lk, token := lockKey(key), uuid.NewString()

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	switch {
	case err != nil:
		return nil, nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	case !ok:
		return nil, nil, fmt.Errorf("redis: acquire lock %s: %w", key, domain.ErrLockHeld)
	}

	held, cancel := context.WithCancelCause(ctx)
	extend := func(ctx context.Context) (bool, error) {
		n, err := extendScript.Run(ctx, lm.rdb, []string{lk}, token, ttl.Milliseconds()).Int()
		return n == 1, err
	}
	lost := func() {
		lm.logger.Warn("lock lost while held", slog.String("key", key))
		cancel(fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockLost))
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go keepAlive(extend, refreshInterval(ttl), lost, stop, done)

	var once sync.Once
	return held, func() {
		once.Do(func() {
			close(stop)
			<-done
			cancel(nil)
			// The caller's context may already be cancelled.
			rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer rcancel()
			_ = releaseScript.Run(rctx, lm.rdb, []string{lk}, token).Err()
		})
	}, nil
}

// keepAlive calls extend every interval until stop closes. It calls lost and
// returns when extend reports the lock is no longer owned. Transport errors
// are retried on the next tick.
func keepAlive(extend func(context.Context) (bool, error), interval time.Duration, lost func(), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			owned, err := extend(ctx)
			cancel()
			if err == nil && !owned {
				lost()
				return
			}
		}
	}
}

func refreshInterval(ttl time.Duration) time.Duration {
	return max(ttl/3, 100*time.Millisecond)
}

var _ domain.LockManager = (*LockManager)(nil)
