package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// streamMaxLen bounds the stream via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// DayStream implements domain.DayPublisher by appending one entry per
// written day to a Redis stream.
type DayStream struct {
	rdb    *redis.Client
	stream string
}

// NewDayStream creates a DayStream appending to stream.
func NewDayStream(c *Client, stream string) *DayStream {
	return &DayStream{rdb: c.rdb, stream: stream}
}

func dayEntry(table domain.DayTable, location string) (map[string]any, error) {
	stats, err := json.Marshal(table.Stats)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"day":      domain.DateString(table.Day),
		"rows":     strconv.Itoa(len(table.Orders)),
		"location": location,
		"stats":    string(stats),
	}, nil
}

func (ds *DayStream) PublishDay(ctx context.Context, table domain.DayTable, location string) error {
	values, err := dayEntry(table, location)
	if err != nil {
		return fmt.Errorf("redis: encode day %s: %w", domain.DateString(table.Day), err)
	}
	err = ds.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: ds.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", ds.stream, err)
	}
	return nil
}

var _ domain.DayPublisher = (*DayStream)(nil)
