package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

func TestProgressEncoding(t *testing.T) {
	day := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	done := time.Date(2021, 6, 3, 4, 5, 6, 0, time.UTC)

	field, val, err := encodeProgress(domain.DayProgress{Day: day.Add(5 * time.Hour), Rows: 42, CompletedAt: done})
	require.NoError(t, err)
	assert.Equal(t, "2021-06-01", field)

	p, err := decodeProgress(day, string(val))
	require.NoError(t, err)
	assert.Equal(t, domain.DayProgress{Day: day, Rows: 42, CompletedAt: done}, p)

	_, err = decodeProgress(day, "not json")
	assert.Error(t, err)
}

func TestDayEntry(t *testing.T) {
	table := domain.DayTable{
		Day:    time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
		Orders: make([]domain.CanonicalOrder, 3),
		Stats:  domain.ResolveStats{Raw: 10, Duplicates: 2, Resolved: 3},
	}
	values, err := dayEntry(table, "tables/2021/orderbook_2021-06-01.csv.zip")
	require.NoError(t, err)
	assert.Equal(t, "2021-06-01", values["day"])
	assert.Equal(t, "3", values["rows"])
	assert.Equal(t, "tables/2021/orderbook_2021-06-01.csv.zip", values["location"])

	var stats domain.ResolveStats
	require.NoError(t, json.Unmarshal([]byte(values["stats"].(string)), &stats))
	assert.Equal(t, table.Stats, stats)
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "lock:bookparse:day:2021-06-01", lockKey("bookparse:day:2021-06-01"))
}

func TestOptions(t *testing.T) {
	opts := options(ClientConfig{Addr: "cache:6379", DB: 2, PoolSize: 5})
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "bookparse", opts.ClientName)
	assert.Nil(t, opts.TLSConfig)

	opts = options(ClientConfig{Addr: "cache:6380", TLSEnabled: true})
	require.NotNil(t, opts.TLSConfig)
}

func TestRefreshInterval(t *testing.T) {
	assert.Equal(t, 10*time.Second, refreshInterval(30*time.Second))
	assert.Equal(t, 100*time.Millisecond, refreshInterval(90*time.Millisecond))
}

func TestKeepAlive_StopsWhenLockLost(t *testing.T) {
	var calls atomic.Int32
	extend := func(context.Context) (bool, error) {
		return calls.Add(1) < 3, nil
	}
	lostCh := make(chan struct{})
	stop := make(chan struct{})
	done := make(chan struct{})
	go keepAlive(extend, 5*time.Millisecond, func() { close(lostCh) }, stop, done)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("keepAlive did not return after losing the lock")
	}
	assert.Equal(t, int32(3), calls.Load())
	select {
	case <-lostCh:
	default:
		t.Fatal("lost callback not called")
	}
}

func TestKeepAlive_RetriesErrorsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	extend := func(context.Context) (bool, error) {
		calls.Add(1)
		return false, errors.New("i/o timeout")
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	lost := false
	go keepAlive(extend, 5*time.Millisecond, func() { lost = true }, stop, done)

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, time.Millisecond)
	close(stop)
	<-done
	assert.False(t, lost)
}
