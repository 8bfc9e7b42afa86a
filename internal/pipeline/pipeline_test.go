package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/intradaybook/internal/domain"
	"github.com/alanyoungcy/intradaybook/internal/resolve"
)

var d0 = time.Date(2021, 3, 10, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ev(action domain.Action, order int64, tx, validity time.Time, qty int64) domain.RawEvent {
	return domain.RawEvent{
		OrderID:         order,
		InitialID:       order,
		Action:          action,
		Side:            domain.SideSell,
		Product:         "XBID_Hour_Power",
		DeliveryStart:   tx.Add(6 * time.Hour).Truncate(time.Hour),
		TransactionTime: tx,
		ValidityTime:    validity,
		Price:           decimal.NewFromInt(50),
		Quantity:        decimal.NewFromInt(qty),
	}
}

// memLoader serves per-day event files and counts loads.
type memLoader struct {
	mu    sync.Mutex
	days  map[time.Time][]domain.RawEvent
	loads map[time.Time]int
}

func newMemLoader(events []domain.RawEvent) *memLoader {
	return &memLoader{days: resolve.PartitionByDay(events), loads: map[time.Time]int{}}
}

func (m *memLoader) Load(_ context.Context, day time.Time) ([]domain.RawEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads[day]++
	evs, ok := m.days[day]
	if !ok {
		return nil, &domain.MissingDataError{Day: day, Location: "mem"}
	}
	return evs, nil
}

// ensure creates an empty file for days with no events.
func (m *memLoader) ensure(from, to time.Time) *memLoader {
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if _, ok := m.days[d]; !ok {
			m.days[d] = nil
		}
	}
	return m
}

// market builds n days of traffic. Every day has an order amended the same
// day, an order opened late and amended then cancelled after midnight, and
// an iceberg.
func market(n int) []domain.RawEvent {
	var out []domain.RawEvent
	for k := 0; k < n; k++ {
		day := d0.AddDate(0, 0, k)
		base := int64(k * 10)
		far := day.AddDate(0, 0, 2)

		out = append(out,
			ev(domain.ActionAdd, base+1, day.Add(10*time.Hour), far, 1),
			ev(domain.ActionChange, base+1, day.Add(12*time.Hour), far, 2),
			ev(domain.ActionAdd, base+2, day.Add(23*time.Hour+30*time.Minute), far, 3),
			ev(domain.ActionChange, base+2, day.Add(24*time.Hour+15*time.Minute), far, 4),
			ev(domain.ActionDelete, base+2, day.Add(25*time.Hour), far, 4),
			ev(domain.ActionAdd, base+3, day.Add(5*time.Hour), far, 1),
			ev(domain.ActionIceberg, base+3, day.Add(6*time.Hour), far, 1),
		)
	}
	return out
}

func newWindower(l DayLoader) *Windower {
	return NewWindower(l, resolve.New(resolve.Options{}, discardLogger()), discardLogger())
}

func collect(t *testing.T, w *Windower, from, to, horizon time.Time) []domain.DayTable {
	t.Helper()
	var tables []domain.DayTable
	err := w.Run(context.Background(), from, to, horizon, func(_ context.Context, tb domain.DayTable) error {
		tables = append(tables, tb)
		return nil
	})
	require.NoError(t, err)
	return tables
}

func TestWindower_DayBoundary(t *testing.T) {
	d1 := d0.AddDate(0, 0, 1)
	add := ev(domain.ActionAdd, 1, d0.Add(24*time.Hour-time.Second), d1.Add(time.Hour), 1)
	change := ev(domain.ActionChange, 1, d1.Add(time.Second), d1.Add(time.Hour), 2)

	tables := collect(t, newWindower(newMemLoader([]domain.RawEvent{add, change})), d0, d1, d1)
	require.Len(t, tables, 2)

	require.Len(t, tables[0].Orders, 1)
	assert.Equal(t, "2021-03-10T23:59:59.000Z", tables[0].Orders[0].Transaction)
	assert.Equal(t, "2021-03-11T00:00:01.000Z", tables[0].Orders[0].Validity)

	// Resolved alone, the change has no Add and is dropped from day N+1.
	assert.Empty(t, tables[1].Orders)
	assert.Equal(t, 1, tables[1].Stats.Orphans)
}

func TestWindower_TerminalStep(t *testing.T) {
	l := newMemLoader(market(2))
	w := newWindower(l)

	table, carry, err := w.Step(context.Background(), d0, d0, nil)
	require.NoError(t, err)
	assert.Nil(t, carry)
	assert.Equal(t, 1, l.loads[d0])
	assert.Zero(t, l.loads[d0.AddDate(0, 0, 1)])

	// Without lookahead the late order keeps its original validity.
	var late *domain.CanonicalOrder
	for i := range table.Orders {
		if table.Orders[i].Transaction == "2021-03-10T23:30:00.000Z" {
			late = &table.Orders[i]
		}
	}
	require.NotNil(t, late)
	assert.Equal(t, "2021-03-12T00:00:00.000Z", late.Validity)
}

func TestWindower_SteadyStep(t *testing.T) {
	l := newMemLoader(market(2))
	w := newWindower(l)
	d1 := d0.AddDate(0, 0, 1)

	table, carry, err := w.Step(context.Background(), d0, d1, nil)
	require.NoError(t, err)
	require.NotNil(t, carry)
	assert.Equal(t, d1, carry.Day)
	assert.Len(t, carry.Events, 7)

	require.Len(t, table.Orders, 3)
	for _, o := range table.Orders {
		assert.NotEqual(t, int64(3), o.InitialID, "iceberg excluded")
		assert.LessOrEqual(t, o.Transaction, o.Validity)
	}
	assert.Equal(t, "2021-03-11T00:15:00.000Z", table.Orders[2].Validity)
	assert.Equal(t, 3, table.Stats.Resolved)

	// The carried events are reused instead of reloaded.
	_, _, err = w.Step(context.Background(), d1, d1, carry)
	require.NoError(t, err)
	assert.Equal(t, 1, l.loads[d1])
}

func TestWindower_EmptyDay(t *testing.T) {
	l := newMemLoader(nil).ensure(d0, d0.AddDate(0, 0, 1))
	tables := collect(t, newWindower(l), d0, d0, d0.AddDate(0, 0, 1))
	require.Len(t, tables, 1)
	assert.Empty(t, tables[0].Orders)
	assert.Equal(t, d0, tables[0].Day)
}

func TestWindower_MissingLookahead(t *testing.T) {
	l := newMemLoader(market(1))
	delete(l.days, d0.AddDate(0, 0, 1))
	err := newWindower(l).Run(context.Background(), d0, d0, d0.AddDate(0, 0, 1),
		func(context.Context, domain.DayTable) error {
			t.Fatal("no table may be emitted for a failing window")
			return nil
		})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingData))
}

func TestWindower_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newWindower(newMemLoader(market(2))).Run(ctx, d0, d0, d0,
		func(context.Context, domain.DayTable) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateRange(t *testing.T) {
	tests := []struct {
		name     string
		from, to time.Time
		wantErr  bool
	}{
		{"single day", d0, d0, false},
		{"inverted", d0.AddDate(0, 0, 1), d0, true},
		{"before 2020", time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC), d0, true},
		{"first supported day", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), d0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRange(tt.from, tt.to)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, domain.ErrRange))
		})
	}
}

func TestSplitAndContiguous(t *testing.T) {
	var days []time.Time
	for i := 0; i < 7; i++ {
		days = append(days, d0.AddDate(0, 0, i))
	}
	chunks := split(days, 3)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[1], 2)
	assert.Len(t, chunks[2], 2)
	assert.Len(t, split(days[:2], 5), 2)
	assert.Nil(t, split(nil, 3))

	gappy := []time.Time{days[0], days[1], days[3], days[5], days[6]}
	ranges := contiguous(gappy)
	require.Len(t, ranges, 3)
	assert.Equal(t, dayRange{from: days[0], to: days[1]}, ranges[0])
	assert.Equal(t, dayRange{from: days[3], to: days[3]}, ranges[1])
	assert.Equal(t, dayRange{from: days[5], to: days[6]}, ranges[2])
}
