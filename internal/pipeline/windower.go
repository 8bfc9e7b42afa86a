// Package pipeline drives resolution over a date range: the Windower walks
// days one at a time with a one-day lookahead, and the Runner splits a range
// across workers and persists each finished table.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/intradaybook/internal/domain"
	"github.com/alanyoungcy/intradaybook/internal/resolve"
	"github.com/alanyoungcy/intradaybook/internal/schema"
)

// DayLoader returns the raw events archived for one calendar day.
type DayLoader interface {
	Load(ctx context.Context, day time.Time) ([]domain.RawEvent, error)
}

// Carry hands the next day's raw events to the following Step so they are
// loaded only once.
type Carry struct {
	Day    time.Time
	Events []domain.RawEvent
}

// Windower resolves day N over the union of days N and N+1, so amendments
// arriving after midnight still close versions opened the day before.
type Windower struct {
	loader   DayLoader
	resolver *resolve.Resolver
	logger   *slog.Logger
}

// NewWindower creates a Windower.
func NewWindower(loader DayLoader, resolver *resolve.Resolver, logger *slog.Logger) *Windower {
	return &Windower{
		loader:   loader,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "windower")),
	}
}

// ValidateRange checks a requested date range.
func ValidateRange(from, to time.Time) error {
	from, to = domain.Day(from), domain.Day(to)
	if from.After(to) {
		return &domain.RangeError{Start: from, End: to, Reason: "start date is after end date"}
	}
	if from.Year() < schema.FirstSupportedYear {
		return &domain.RangeError{
			Start:  from,
			End:    to,
			Reason: fmt.Sprintf("start year must be %d or later", schema.FirstSupportedYear),
		}
	}
	return nil
}

// Step resolves one day. horizon is the last day of the overall run: day+1
// is used as lookahead only when it does not pass horizon. carry, if it holds
// day's events, saves reloading them. The returned carry is nil when no
// lookahead was loaded.
func (w *Windower) Step(ctx context.Context, day, horizon time.Time, carry *Carry) (domain.DayTable, *Carry, error) {
	day, horizon = domain.Day(day), domain.Day(horizon)

	var current []domain.RawEvent
	if carry != nil && carry.Day.Equal(day) {
		current = carry.Events
	} else {
		evs, err := w.loader.Load(ctx, day)
		if err != nil {
			return domain.DayTable{}, nil, fmt.Errorf("pipeline: load %s: %w", domain.DateString(day), err)
		}
		current = evs
	}

	window := current
	var next *Carry
	if nextDay := day.AddDate(0, 0, 1); !nextDay.After(horizon) {
		evs, err := w.loader.Load(ctx, nextDay)
		if err != nil {
			return domain.DayTable{}, nil, fmt.Errorf("pipeline: load %s: %w", domain.DateString(nextDay), err)
		}
		window = make([]domain.RawEvent, 0, len(current)+len(evs))
		window = append(window, current...)
		window = append(window, evs...)
		next = &Carry{Day: nextDay, Events: evs}
	}

	resolved, st, err := w.resolver.Resolve(day, window)
	if err != nil {
		return domain.DayTable{}, nil, fmt.Errorf("pipeline: resolve %s: %w", domain.DateString(day), err)
	}
	orders, inverted := resolve.Export(resolve.PartitionByDay(resolved)[day])
	st.Inverted = inverted
	st.Resolved = len(orders)

	w.logger.InfoContext(ctx, "day resolved",
		slog.String("day", domain.DateString(day)),
		slog.Int("window_events", len(window)),
		slog.Bool("lookahead", next != nil),
		slog.Int("orders", len(orders)),
		slog.Int("inverted", inverted),
	)
	return domain.DayTable{Day: day, Orders: orders, Stats: st}, next, nil
}

// Run steps through [from, to] in order, calling emit with each table.
// Cancellation is checked between days.
func (w *Windower) Run(ctx context.Context, from, to, horizon time.Time, emit func(context.Context, domain.DayTable) error) error {
	if err := ValidateRange(from, to); err != nil {
		return err
	}
	var carry *Carry
	for day := domain.Day(from); !day.After(domain.Day(to)); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return err
		}
		table, next, err := w.Step(ctx, day, horizon, carry)
		if err != nil {
			return err
		}
		if err := emit(ctx, table); err != nil {
			return err
		}
		carry = next
	}
	return nil
}
