package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// DayStatus is the recorded state of one day.
type DayStatus struct {
	Day         time.Time
	Done        bool
	Rows        int
	CompletedAt time.Time
	// StoredRows is -1 when no OrderStore is configured.
	StoredRows int64
}

// Status reports progress marks and stored row counts for [from, to]. Either
// collaborator may be nil.
func Status(ctx context.Context, from, to time.Time, progress domain.ProgressCache, store domain.OrderStore) ([]DayStatus, error) {
	if err := ValidateRange(from, to); err != nil {
		return nil, err
	}
	var out []DayStatus
	for d := domain.Day(from); !d.After(domain.Day(to)); d = d.AddDate(0, 0, 1) {
		st := DayStatus{Day: d, StoredRows: -1}
		if progress != nil {
			p, done, err := progress.Done(ctx, d)
			if err != nil {
				return nil, fmt.Errorf("pipeline: progress lookup %s: %w", domain.DateString(d), err)
			}
			st.Done, st.Rows, st.CompletedAt = done, p.Rows, p.CompletedAt
		}
		if store != nil {
			n, err := store.CountDay(ctx, d)
			if err != nil {
				return nil, fmt.Errorf("pipeline: count stored %s: %w", domain.DateString(d), err)
			}
			st.StoredRows = n
		}
		out = append(out, st)
	}
	return out, nil
}
