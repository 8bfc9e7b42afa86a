package resolve

import (
	"slices"
	"time"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// Export projects resolved Add events to canonical orders sorted by
// transaction time. The sort is stable, so events sharing a transaction time
// keep their relative order. Versions whose validity precedes their
// transaction were never live and are dropped; the count is returned.
func Export(events []domain.RawEvent) ([]domain.CanonicalOrder, int) {
	adds := make([]domain.RawEvent, 0, len(events))
	inverted := 0
	for _, ev := range events {
		if ev.Action != domain.ActionAdd {
			continue
		}
		if ev.ValidityTime.Before(ev.TransactionTime) {
			inverted++
			continue
		}
		adds = append(adds, ev)
	}
	slices.SortStableFunc(adds, func(a, b domain.RawEvent) int {
		return a.TransactionTime.Compare(b.TransactionTime)
	})

	orders := make([]domain.CanonicalOrder, len(adds))
	for i, ev := range adds {
		orders[i] = domain.CanonicalOrder{
			ID:          i,
			InitialID:   ev.InitialID,
			Side:        ev.Side.String(),
			Start:       ev.DeliveryStart.UTC().Format(domain.StartLayout),
			Transaction: ev.TransactionTime.UTC().Format(domain.EventLayout),
			Validity:    ev.ValidityTime.UTC().Format(domain.EventLayout),
			Price:       ev.Price,
			Quantity:    ev.Quantity,
		}
	}
	return orders, inverted
}

// PartitionByDay groups events by the UTC date of their transaction time,
// preserving order within each group.
func PartitionByDay(events []domain.RawEvent) map[time.Time][]domain.RawEvent {
	parts := make(map[time.Time][]domain.RawEvent)
	for _, ev := range events {
		d := ev.TransactionDay()
		parts[d] = append(parts[d], ev)
	}
	return parts
}
