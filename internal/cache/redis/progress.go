package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// ProgressCache implements domain.ProgressCache as one hash field per day.
type ProgressCache struct {
	rdb *redis.Client
	key string
}

// NewProgressCache creates a ProgressCache storing under the hash key.
func NewProgressCache(c *Client, key string) *ProgressCache {
	return &ProgressCache{rdb: c.rdb, key: key}
}

type progressValue struct {
	Rows        int       `json:"rows"`
	CompletedAt time.Time `json:"completed_at"`
}

func encodeProgress(p domain.DayProgress) (string, []byte, error) {
	b, err := json.Marshal(progressValue{Rows: p.Rows, CompletedAt: p.CompletedAt.UTC()})
	return domain.DateString(p.Day), b, err
}

func decodeProgress(day time.Time, raw string) (domain.DayProgress, error) {
	var v progressValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return domain.DayProgress{}, err
	}
	return domain.DayProgress{Day: domain.Day(day), Rows: v.Rows, CompletedAt: v.CompletedAt}, nil
}

func (pc *ProgressCache) MarkDone(ctx context.Context, p domain.DayProgress) error {
	field, val, err := encodeProgress(p)
	if err != nil {
		return fmt.Errorf("redis: encode progress %s: %w", field, err)
	}
	if err := pc.rdb.HSet(ctx, pc.key, field, val).Err(); err != nil {
		return fmt.Errorf("redis: mark %s done: %w", field, err)
	}
	return nil
}

func (pc *ProgressCache) Done(ctx context.Context, day time.Time) (domain.DayProgress, bool, error) {
	field := domain.DateString(day)
	raw, err := pc.rdb.HGet(ctx, pc.key, field).Result()
	if errors.Is(err, redis.Nil) {
		return domain.DayProgress{}, false, nil
	}
	if err != nil {
		return domain.DayProgress{}, false, fmt.Errorf("redis: progress %s: %w", field, err)
	}
	p, err := decodeProgress(day, raw)
	if err != nil {
		return domain.DayProgress{}, false, fmt.Errorf("redis: decode progress %s: %w", field, err)
	}
	return p, true, nil
}

func (pc *ProgressCache) Clear(ctx context.Context, day time.Time) error {
	field := domain.DateString(day)
	if err := pc.rdb.HDel(ctx, pc.key, field).Err(); err != nil {
		return fmt.Errorf("redis: clear progress %s: %w", field, err)
	}
	return nil
}

var _ domain.ProgressCache = (*ProgressCache)(nil)
