package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

type memStore struct {
	mu     sync.Mutex
	tables map[time.Time][]domain.CanonicalOrder
	err    error
}

func newMemStore() *memStore {
	return &memStore{tables: map[time.Time][]domain.CanonicalOrder{}}
}

func (s *memStore) ReplaceDay(_ context.Context, table domain.DayTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table.Day] = table.Orders
	return nil
}

func (s *memStore) ListDay(_ context.Context, day time.Time) ([]domain.CanonicalOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	orders, ok := s.tables[day]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return orders, nil
}

func (s *memStore) CountDay(_ context.Context, day time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return int64(len(s.tables[day])), nil
}

func TestVerifier_ReportsMissingAndChanged(t *testing.T) {
	d2 := d0.AddDate(0, 0, 2)
	loader := newMemLoader(market(3))
	store := newMemStore()
	for _, tb := range collect(t, newWindower(loader), d0, d2, d2) {
		require.NoError(t, store.ReplaceDay(context.Background(), tb))
	}

	// day 1 is tampered with, day 2 was never stored
	d1 := d0.AddDate(0, 0, 1)
	tampered := append([]domain.CanonicalOrder(nil), store.tables[d1]...)
	tampered[1].Price = decimal.NewFromInt(51)
	store.tables[d1] = tampered
	delete(store.tables, d2)

	got, err := NewVerifier(newWindower(loader), store, discardLogger()).Verify(context.Background(), d0, d2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, d1, got[0].Day)
	assert.False(t, got[0].Missing)
	assert.Equal(t, tampered[1].ID, got[0].Row)

	assert.Equal(t, d2, got[1].Day)
	assert.True(t, got[1].Missing)
	assert.Equal(t, 3, got[1].Fresh)
}

func TestVerifier_UsesLookaheadPastRange(t *testing.T) {
	d1, d2 := d0.AddDate(0, 0, 1), d0.AddDate(0, 0, 2)
	loader := newMemLoader(market(3))
	delete(loader.days, d2.AddDate(0, 0, 1))
	store := newMemStore()
	for _, tb := range collect(t, newWindower(loader), d0, d2, d2) {
		require.NoError(t, store.ReplaceDay(context.Background(), tb))
	}
	v := NewVerifier(newWindower(loader), store, discardLogger())

	// d1 was written with d2 as lookahead.
	got, err := v.Verify(context.Background(), d1, d1)
	require.NoError(t, err)
	assert.Empty(t, got)

	// d2 was the last archived day and had none.
	got, err = v.Verify(context.Background(), d2, d2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVerifier_StoreError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection reset")
	_, err := NewVerifier(newWindower(newMemLoader(market(1))), store, discardLogger()).
		Verify(context.Background(), d0, d0)
	assert.ErrorContains(t, err, "connection reset")
}

func TestCompareTables(t *testing.T) {
	row := func(id int, qty string) domain.CanonicalOrder {
		return domain.CanonicalOrder{ID: id, Side: "BUY", Price: decimal.NewFromInt(1), Quantity: decimal.RequireFromString(qty)}
	}
	a := []domain.CanonicalOrder{row(0, "1.0"), row(1, "2")}

	_, ok := compareTables(d0, a, []domain.CanonicalOrder{row(0, "1"), row(1, "2.00")})
	assert.True(t, ok)

	m, ok := compareTables(d0, a, a[:1])
	assert.False(t, ok)
	assert.Equal(t, 0, m.Row)
	assert.Equal(t, 2, m.Stored)
	assert.Equal(t, 1, m.Fresh)

	m, ok = compareTables(d0, a, []domain.CanonicalOrder{row(0, "1"), row(1, "3")})
	assert.False(t, ok)
	assert.Equal(t, 1, m.Row)
}

func TestStatus(t *testing.T) {
	d1 := d0.AddDate(0, 0, 1)
	done := time.Date(2021, 3, 12, 1, 0, 0, 0, time.UTC)
	progress := &memProgress{done: map[time.Time]domain.DayProgress{
		d0: {Day: d0, Rows: 3, CompletedAt: done},
	}}
	store := newMemStore()
	store.tables[d0] = make([]domain.CanonicalOrder, 3)

	got, err := Status(context.Background(), d0, d1, progress, store)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, DayStatus{Day: d0, Done: true, Rows: 3, CompletedAt: done, StoredRows: 3}, got[0])
	assert.Equal(t, DayStatus{Day: d1, StoredRows: 0}, got[1])

	got, err = Status(context.Background(), d0, d0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []DayStatus{{Day: d0, StoredRows: -1}}, got)

	_, err = Status(context.Background(), d1, d0, nil, nil)
	assert.ErrorIs(t, err, domain.ErrRange)
}
