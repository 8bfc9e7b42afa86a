package domain

import (
	"context"
	"time"
)

// OrderStore persists canonical day tables.
type OrderStore interface {
	// ReplaceDay atomically swaps the stored table for table.Day.
	ReplaceDay(ctx context.Context, table DayTable) error
	ListDay(ctx context.Context, day time.Time) ([]CanonicalOrder, error)
	CountDay(ctx context.Context, day time.Time) (int64, error)
}

// Audit event names written by a run.
const (
	AuditDayWritten   = "day.written"
	AuditRunCompleted = "run.completed"
	AuditRunFailed    = "run.failed"
)

// AuditFilter narrows an audit listing. Zero fields do not filter.
type AuditFilter struct {
	Event  string
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

// AuditEntry is one recorded run event. Detail holds the event's JSON payload.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore is the append-only run log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}
