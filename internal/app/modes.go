package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/intradaybook/internal/archive"
	"github.com/alanyoungcy/intradaybook/internal/domain"
	"github.com/alanyoungcy/intradaybook/internal/pipeline"
	"github.com/alanyoungcy/intradaybook/internal/resolve"
)

// recentAuditEntries bounds the audit tail printed by StatusMode.
const recentAuditEntries = 20

func (a *App) newWindower(deps *Dependencies) *pipeline.Windower {
	loader := archive.NewLoader(deps.Archive, a.logger)
	resolver := resolve.New(resolve.Options{MaxIterations: a.cfg.Parse.MaxIterations}, a.logger)
	return pipeline.NewWindower(loader, resolver, a.logger)
}

// ParseMode resolves [from, to] and writes every day table to the configured
// sinks. With dryRun set tables are resolved and logged only.
func (a *App) ParseMode(ctx context.Context, deps *Dependencies, from, to time.Time, dryRun bool) error {
	a.logger.InfoContext(ctx, "starting parse mode", slog.Bool("dry_run", dryRun))

	rd := pipeline.RunnerDeps{
		Windower:  a.newWindower(deps),
		Sinks:     deps.Sinks,
		Locks:     deps.LockManager,
		Progress:  deps.Progress,
		Publisher: deps.Publisher,
		Audit:     deps.AuditStore,
	}
	if deps.Notifier != nil {
		rd.Notifier = deps.Notifier
	}

	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Workers:       a.cfg.Parse.Workers,
		SkipCompleted: a.cfg.Parse.SkipCompleted,
		DryRun:        dryRun,
		LockTTL:       a.cfg.Redis.LockTTL.Duration,
	}, rd, a.logger)

	sum, err := runner.Run(ctx, from, to)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "parse mode finished",
		slog.String("run_id", sum.RunID),
		slog.Int("days", sum.Days),
		slog.Int("rows", sum.Rows),
		slog.Int("raw", sum.Totals.Raw),
		slog.Int("inverted", sum.Totals.Inverted),
		slog.Int("iterations", sum.Totals.Iterations),
	)
	return nil
}

// VerifyMode re-resolves [from, to] and compares each day with the table
// stored in Postgres. Any difference fails the run.
func (a *App) VerifyMode(ctx context.Context, deps *Dependencies, from, to time.Time) error {
	a.logger.InfoContext(ctx, "starting verify mode")

	mismatches, err := pipeline.NewVerifier(a.newWindower(deps), deps.OrderStore, a.logger).Verify(ctx, from, to)
	if err != nil {
		return err
	}
	for _, m := range mismatches {
		a.logger.WarnContext(ctx, "verify mismatch",
			slog.String("day", domain.DateString(m.Day)),
			slog.Bool("missing", m.Missing),
			slog.Int("stored", m.Stored),
			slog.Int("fresh", m.Fresh),
			slog.Int("row", m.Row),
		)
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("app: verify: %d day(s) differ from the archive", len(mismatches))
	}
	a.logger.InfoContext(ctx, "verify mode finished",
		slog.String("from", domain.DateString(from)),
		slog.String("to", domain.DateString(to)),
	)
	return nil
}

// StatusMode logs the progress marks and stored row counts of [from, to] and
// the tail of the audit log.
func (a *App) StatusMode(ctx context.Context, deps *Dependencies, from, to time.Time) error {
	days, err := pipeline.Status(ctx, from, to, deps.Progress, deps.OrderStore)
	if err != nil {
		return err
	}
	done := 0
	for _, d := range days {
		if d.Done {
			done++
		}
		a.logger.InfoContext(ctx, "day status",
			slog.String("day", domain.DateString(d.Day)),
			slog.Bool("done", d.Done),
			slog.Int("rows", d.Rows),
			slog.Time("completed_at", d.CompletedAt),
			slog.Int64("stored_rows", d.StoredRows),
		)
	}

	if deps.AuditStore != nil {
		since := from
		entries, err := deps.AuditStore.List(ctx, domain.AuditFilter{Since: &since, Limit: recentAuditEntries})
		if err != nil {
			return fmt.Errorf("app: audit tail: %w", err)
		}
		for _, e := range entries {
			a.logger.InfoContext(ctx, "audit",
				slog.Int64("id", e.ID),
				slog.String("event", e.Event),
				slog.Time("at", e.CreatedAt),
				slog.Any("detail", e.Detail),
			)
		}
	}

	a.logger.InfoContext(ctx, "status mode finished",
		slog.Int("days", len(days)),
		slog.Int("done", done),
	)
	return nil
}
