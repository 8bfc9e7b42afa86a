package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// Mismatch describes a stored day table that differs from a fresh resolution
// of the archive.
type Mismatch struct {
	Day     time.Time
	Missing bool
	Stored  int
	Fresh   int
	// Row is the id of the first differing row, zero when only the lengths
	// differ.
	Row int
}

// Verifier re-resolves days and compares the result with the tables held in
// an OrderStore.
type Verifier struct {
	windower *Windower
	store    domain.OrderStore
	logger   *slog.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(w *Windower, store domain.OrderStore, logger *slog.Logger) *Verifier {
	return &Verifier{
		windower: w,
		store:    store,
		logger:   logger.With(slog.String("component", "verifier")),
	}
}

// Verify checks every day of [from, to] and returns the days whose stored
// table is absent or different. Each day is resolved with its next day as
// lookahead whenever that day is archived, including the day after to.
func (v *Verifier) Verify(ctx context.Context, from, to time.Time) ([]Mismatch, error) {
	if err := ValidateRange(from, to); err != nil {
		return nil, err
	}
	from, to = domain.Day(from), domain.Day(to)

	horizon, err := v.horizon(ctx, to)
	if err != nil {
		return nil, err
	}

	var out []Mismatch
	err = v.windower.Run(ctx, from, to, horizon, func(ctx context.Context, table domain.DayTable) error {
		date := domain.DateString(table.Day)
		stored, err := v.store.ListDay(ctx, table.Day)
		if errors.Is(err, domain.ErrNotFound) {
			v.logger.WarnContext(ctx, "day not stored", slog.String("day", date))
			out = append(out, Mismatch{Day: table.Day, Missing: true, Fresh: len(table.Orders)})
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: list stored %s: %w", date, err)
		}
		if m, ok := compareTables(table.Day, stored, table.Orders); !ok {
			v.logger.WarnContext(ctx, "stored table differs",
				slog.String("day", date),
				slog.Int("stored", m.Stored),
				slog.Int("fresh", m.Fresh),
				slog.Int("row", m.Row),
			)
			out = append(out, m)
			return nil
		}
		v.logger.DebugContext(ctx, "day verified", slog.String("day", date), slog.Int("rows", len(stored)))
		return nil
	})
	return out, err
}

// horizon returns the day after to when it is archived, to otherwise.
func (v *Verifier) horizon(ctx context.Context, to time.Time) (time.Time, error) {
	next := to.AddDate(0, 0, 1)
	_, err := v.windower.loader.Load(ctx, next)
	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, domain.ErrMissingData):
		v.logger.DebugContext(ctx, "no lookahead after range", slog.String("day", domain.DateString(next)))
		return to, nil
	default:
		return time.Time{}, fmt.Errorf("pipeline: load %s: %w", domain.DateString(next), err)
	}
}

func compareTables(day time.Time, stored, fresh []domain.CanonicalOrder) (Mismatch, bool) {
	m := Mismatch{Day: day, Stored: len(stored), Fresh: len(fresh)}
	for i := range min(len(stored), len(fresh)) {
		if !sameOrder(stored[i], fresh[i]) {
			m.Row = fresh[i].ID
			return m, false
		}
	}
	return m, len(stored) == len(fresh)
}

func sameOrder(a, b domain.CanonicalOrder) bool {
	return a.ID == b.ID &&
		a.InitialID == b.InitialID &&
		a.Side == b.Side &&
		a.Start == b.Start &&
		a.Transaction == b.Transaction &&
		a.Validity == b.Validity &&
		a.Price.Equal(b.Price) &&
		a.Quantity.Equal(b.Quantity)
}
