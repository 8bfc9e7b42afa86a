package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// OrderStore implements domain.OrderStore.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const (
	upsertDayTable = `
		INSERT INTO day_tables (day, row_count, stats, written_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (day) DO UPDATE
		SET row_count = EXCLUDED.row_count, stats = EXCLUDED.stats, written_at = NOW()`

	deleteDayOrders = `DELETE FROM canonical_orders WHERE day = $1`

	// Numerics travel as text so decimals keep their exact scale.
	insertOrder = `
		INSERT INTO canonical_orders (
			day, row_id, initial_id, side, start, transaction, validity, price, quantity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9::text::numeric)`

	selectDayOrders = `
		SELECT row_id, initial_id, side, start, transaction, validity, price::text, quantity::text
		FROM canonical_orders
		WHERE day = $1
		ORDER BY row_id`
)

// orderRow is a CanonicalOrder with parsed timestamps.
type orderRow struct {
	id          int
	initialID   int64
	side        string
	start       time.Time
	transaction time.Time
	validity    time.Time
	price       string
	quantity    string
}

func toRow(o domain.CanonicalOrder) (orderRow, error) {
	start, err := time.Parse(domain.StartLayout, o.Start)
	if err != nil {
		return orderRow{}, fmt.Errorf("row %d start: %w", o.ID, err)
	}
	tx, err := time.Parse(domain.EventLayout, o.Transaction)
	if err != nil {
		return orderRow{}, fmt.Errorf("row %d transaction: %w", o.ID, err)
	}
	validity, err := time.Parse(domain.EventLayout, o.Validity)
	if err != nil {
		return orderRow{}, fmt.Errorf("row %d validity: %w", o.ID, err)
	}
	return orderRow{
		id:          o.ID,
		initialID:   o.InitialID,
		side:        o.Side,
		start:       start,
		transaction: tx,
		validity:    validity,
		price:       o.Price.String(),
		quantity:    o.Quantity.String(),
	}, nil
}

func (r orderRow) toOrder() (domain.CanonicalOrder, error) {
	price, err := decimal.NewFromString(r.price)
	if err != nil {
		return domain.CanonicalOrder{}, fmt.Errorf("row %d price: %w", r.id, err)
	}
	qty, err := decimal.NewFromString(r.quantity)
	if err != nil {
		return domain.CanonicalOrder{}, fmt.Errorf("row %d quantity: %w", r.id, err)
	}
	return domain.CanonicalOrder{
		ID:          r.id,
		InitialID:   r.initialID,
		Side:        r.side,
		Start:       r.start.UTC().Format(domain.StartLayout),
		Transaction: r.transaction.UTC().Format(domain.EventLayout),
		Validity:    r.validity.UTC().Format(domain.EventLayout),
		Price:       price,
		Quantity:    qty,
	}, nil
}

// ReplaceDay swaps the stored rows of table.Day for table.Orders in one
// transaction. Readers see either the old table or the new one.
func (s *OrderStore) ReplaceDay(ctx context.Context, table domain.DayTable) error {
	day := domain.Day(table.Day)
	date := domain.DateString(day)

	stats, err := json.Marshal(table.Stats)
	if err != nil {
		return fmt.Errorf("postgres: marshal stats %s: %w", date, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin replace %s: %w", date, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	batch.Queue(upsertDayTable, day, len(table.Orders), stats)
	batch.Queue(deleteDayOrders, day)
	for _, o := range table.Orders {
		r, err := toRow(o)
		if err != nil {
			return fmt.Errorf("postgres: replace %s: %w", date, err)
		}
		batch.Queue(insertOrder, day, r.id, r.initialID, r.side, r.start, r.transaction, r.validity, r.price, r.quantity)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: replace %s: %w", date, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit replace %s: %w", date, err)
	}
	return nil
}

// ListDay returns the stored table for day ordered by row id. A day that
// was never written yields domain.ErrNotFound.
func (s *OrderStore) ListDay(ctx context.Context, day time.Time) ([]domain.CanonicalOrder, error) {
	day = domain.Day(day)
	date := domain.DateString(day)

	var n int
	err := s.pool.QueryRow(ctx, `SELECT row_count FROM day_tables WHERE day = $1`, day).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: list %s: %w", date, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", date, err)
	}

	rows, err := s.pool.Query(ctx, selectDayOrders, day)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", date, err)
	}
	defer rows.Close()

	orders := make([]domain.CanonicalOrder, 0, n)
	for rows.Next() {
		var r orderRow
		if err := rows.Scan(&r.id, &r.initialID, &r.side, &r.start, &r.transaction, &r.validity, &r.price, &r.quantity); err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", date, err)
		}
		o, err := r.toOrder()
		if err != nil {
			return nil, fmt.Errorf("postgres: decode %s: %w", date, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list %s rows: %w", date, err)
	}
	return orders, nil
}

// CountDay returns the number of stored rows for day, zero when absent.
func (s *OrderStore) CountDay(ctx context.Context, day time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM canonical_orders WHERE day = $1`, domain.Day(day)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count %s: %w", domain.DateString(day), err)
	}
	return n, nil
}

var _ domain.OrderStore = (*OrderStore)(nil)
