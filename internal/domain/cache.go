package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking.
type LockManager interface {
	// Acquire takes the lock for key. held derives from ctx and is cancelled
	// with cause ErrLockLost if the lock is lost before release is called.
	Acquire(ctx context.Context, key string, ttl time.Duration) (held context.Context, release func(), err error)
}

// DayProgress records a day whose table has been published.
type DayProgress struct {
	Day         time.Time
	Rows        int
	CompletedAt time.Time
}

// ProgressCache remembers which days are already published so reruns over
// the same range can skip them.
type ProgressCache interface {
	MarkDone(ctx context.Context, p DayProgress) error
	Done(ctx context.Context, day time.Time) (DayProgress, bool, error)
	Clear(ctx context.Context, day time.Time) error
}

// DayPublisher announces published day tables to downstream consumers.
type DayPublisher interface {
	PublishDay(ctx context.Context, table DayTable, location string) error
}
