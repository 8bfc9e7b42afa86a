package resolve

import "github.com/alanyoungcy/intradaybook/internal/domain"

// dedupKey is the natural key of a raw message. Retransmissions repeat it
// byte for byte.
type dedupKey struct {
	order    int64
	initial  int64
	action   domain.Action
	validity int64
	price    string
	quantity string
}

func keyOf(ev domain.RawEvent) dedupKey {
	return dedupKey{
		order:    ev.OrderID,
		initial:  ev.InitialID,
		action:   ev.Action,
		validity: ev.ValidityTime.UnixNano(),
		price:    ev.Price.String(),
		quantity: ev.Quantity.String(),
	}
}

// Dedup returns a new slice holding the first event of every natural key, in
// input order, and the number of duplicates removed.
func Dedup(events []domain.RawEvent) ([]domain.RawEvent, int) {
	seen := make(map[dedupKey]struct{}, len(events))
	out := make([]domain.RawEvent, 0, len(events))
	for _, ev := range events {
		k := keyOf(ev)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ev)
	}
	return out, len(events) - len(out)
}

// DropIcebergs removes every event whose initial ID appears on at least one
// Iceberg message. It filters events in place and returns the shortened
// slice with the number of events removed.
func DropIcebergs(events []domain.RawEvent) ([]domain.RawEvent, int) {
	tainted := make(map[int64]struct{})
	for _, ev := range events {
		if ev.Action == domain.ActionIceberg {
			tainted[ev.InitialID] = struct{}{}
		}
	}
	if len(tainted) == 0 {
		return events, 0
	}
	n := len(events)
	events = compact(events, func(ev domain.RawEvent) bool {
		_, drop := tainted[ev.InitialID]
		return !drop
	})
	return events, n - len(events)
}

// compact keeps the events accepted by keep, preserving order and reusing the
// backing array.
func compact(events []domain.RawEvent, keep func(domain.RawEvent) bool) []domain.RawEvent {
	out := events[:0]
	for _, ev := range events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	clear(events[len(out):])
	return out
}
