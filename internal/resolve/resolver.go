// Package resolve turns a window of raw order-book messages into committed
// order versions with their validity windows.
//
// The pipeline is Dedup, DropIcebergs, the change fixed point, the cancel
// pass and finally Export. Every resolved event is an Add whose ValidityTime
// marks the end of the version's life in the book.
package resolve

import (
	"log/slog"
	"time"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// Options tunes the Resolver.
type Options struct {
	// MaxIterations caps the change fixed point. Zero derives the cap from
	// the window: one more than its number of Change events.
	MaxIterations int
}

// Resolver runs the resolution pipeline over one window of events.
type Resolver struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Resolver.
func New(opts Options, logger *slog.Logger) *Resolver {
	return &Resolver{
		opts:   opts,
		logger: logger.With(slog.String("component", "resolver")),
	}
}

// Resolve deduplicates, filters and resolves events, returning only Add
// events with their final validity. The input slice is not modified. day
// labels the window in errors and logs.
func (r *Resolver) Resolve(day time.Time, events []domain.RawEvent) ([]domain.RawEvent, domain.ResolveStats, error) {
	st := domain.ResolveStats{Raw: len(events)}

	work, dups := Dedup(events)
	st.Duplicates = dups

	work, icebergs := DropIcebergs(work)
	st.Icebergs = icebergs

	work, err := r.resolveChanges(day, work, &st)
	if err != nil {
		return nil, st, err
	}
	work = resolveCancels(work, &st)
	st.Resolved = len(work)

	r.logger.Debug("window resolved",
		slog.String("day", domain.DateString(day)),
		slog.Int("raw", st.Raw),
		slog.Int("duplicates", st.Duplicates),
		slog.Int("icebergs", st.Icebergs),
		slog.Int("orphans", st.Orphans),
		slog.Int("changes", st.Changes),
		slog.Int("cancels", st.Cancels),
		slog.Int("iterations", st.Iterations),
		slog.Int("resolved", st.Resolved),
	)
	return work, st, nil
}

// latestAdds indexes, per order ID, the Add event with the greatest
// transaction time. Ties go to the event observed last.
func latestAdds(events []domain.RawEvent) map[int64]int {
	idx := make(map[int64]int)
	for i, ev := range events {
		if ev.Action != domain.ActionAdd {
			continue
		}
		j, ok := idx[ev.OrderID]
		if !ok || !ev.TransactionTime.Before(events[j].TransactionTime) {
			idx[ev.OrderID] = i
		}
	}
	return idx
}

func countAction(events []domain.RawEvent, a domain.Action) int {
	n := 0
	for _, ev := range events {
		if ev.Action == a {
			n++
		}
	}
	return n
}

// resolveChanges folds Change events into the validity of their order's
// latest Add, one Change per order per iteration, until none are left.
// Orphaned changes, whose order has no Add in the window, are discarded.
func (r *Resolver) resolveChanges(day time.Time, events []domain.RawEvent, st *domain.ResolveStats) ([]domain.RawEvent, error) {
	limit := r.opts.MaxIterations
	if limit <= 0 {
		limit = countAction(events, domain.ActionChange) + 1
	}

	for iter := 0; ; iter++ {
		latest := latestAdds(events)

		n := len(events)
		events = compact(events, func(ev domain.RawEvent) bool {
			if ev.Action != domain.ActionChange {
				return true
			}
			_, ok := latest[ev.OrderID]
			return ok
		})
		if dropped := n - len(events); dropped > 0 {
			st.Orphans += dropped
			latest = latestAdds(events)
		}

		// First observed Change per order, in observation order.
		var selected []int
		picked := make(map[int64]struct{})
		for i, ev := range events {
			if ev.Action != domain.ActionChange {
				continue
			}
			if _, ok := picked[ev.OrderID]; ok {
				continue
			}
			picked[ev.OrderID] = struct{}{}
			selected = append(selected, i)
		}
		if len(selected) == 0 {
			return events, nil
		}
		if iter >= limit {
			return nil, &domain.ResolutionError{
				Day:        day,
				Iterations: iter,
				Pending:    countAction(events, domain.ActionChange),
			}
		}

		for _, ci := range selected {
			ai := latest[events[ci].OrderID]
			events[ai].ValidityTime = events[ci].TransactionTime
			events[ci].Action = domain.ActionAdd
		}
		st.Changes += len(selected)
		st.Iterations++
	}
}

// resolveCancels closes each deleted order's latest Add at the Delete's
// transaction time, then discards every non-Add event.
func resolveCancels(events []domain.RawEvent, st *domain.ResolveStats) []domain.RawEvent {
	latest := latestAdds(events)
	for _, ev := range events {
		if ev.Action != domain.ActionDelete {
			continue
		}
		ai, ok := latest[ev.OrderID]
		if !ok {
			st.Orphans++
			continue
		}
		events[ai].ValidityTime = ev.TransactionTime
		st.Cancels++
	}
	return compact(events, func(ev domain.RawEvent) bool {
		return ev.Action == domain.ActionAdd
	})
}
