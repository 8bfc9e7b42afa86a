package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/intradaybook/internal/domain"
	"github.com/alanyoungcy/intradaybook/internal/export"
)

// Notification event types sent by the Runner.
const (
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
)

// Notifier delivers operator notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	Workers       int
	SkipCompleted bool
	DryRun        bool
	LockTTL       time.Duration
}

// RunnerDeps are the Runner's collaborators. Only Windower is required.
type RunnerDeps struct {
	Windower  *Windower
	Sinks     []export.Sink
	Locks     domain.LockManager
	Progress  domain.ProgressCache
	Publisher domain.DayPublisher
	Audit     domain.AuditStore
	Notifier  Notifier
}

// Summary aggregates a finished run.
type Summary struct {
	RunID   string
	From    time.Time
	To      time.Time
	Days    int
	Skipped int
	Rows    int
	Totals  domain.ResolveStats
	Elapsed time.Duration
}

// Runner processes a date range with a pool of workers. Each worker owns a
// contiguous slice of the range and runs its own Windower loop.
type Runner struct {
	cfg    RunnerConfig
	deps   RunnerDeps
	logger *slog.Logger

	mu  sync.Mutex
	sum Summary
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig, deps RunnerDeps, logger *slog.Logger) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Runner{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "runner")),
	}
}

// dayRange is an inclusive span of days.
type dayRange struct {
	from, to time.Time
}

// DayLockKey is the lock key guarding writes of one day's table.
func DayLockKey(day time.Time) string {
	return "bookparse:day:" + domain.DateString(day)
}

// Run processes [from, to]. Every day is resolved with the same lookahead a
// single sequential pass would use, so the output does not depend on the
// number of workers.
func (r *Runner) Run(ctx context.Context, from, to time.Time) (Summary, error) {
	if err := ValidateRange(from, to); err != nil {
		return Summary{}, err
	}
	from, to = domain.Day(from), domain.Day(to)

	runID := uuid.NewString()
	r.mu.Lock()
	r.sum = Summary{RunID: runID, From: from, To: to}
	r.mu.Unlock()
	start := time.Now()

	log := r.logger.With(slog.String("run_id", runID))
	log.InfoContext(ctx, "run starting",
		slog.String("from", domain.DateString(from)),
		slog.String("to", domain.DateString(to)),
		slog.Int("workers", r.cfg.Workers),
		slog.Bool("dry_run", r.cfg.DryRun),
	)

	days, err := r.pendingDays(ctx, from, to)
	if err != nil {
		return r.fail(ctx, log, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range split(days, r.cfg.Workers) {
		log.DebugContext(ctx, "worker assigned",
			slog.Int("worker", i),
			slog.Int("days", len(chunk)),
		)
		g.Go(func() error {
			for _, rg := range contiguous(chunk) {
				if err := r.deps.Windower.Run(gctx, rg.from, rg.to, to, r.emit); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return r.fail(ctx, log, err)
	}

	r.mu.Lock()
	r.sum.Elapsed = time.Since(start)
	sum := r.sum
	r.mu.Unlock()

	log.InfoContext(ctx, "run completed",
		slog.Int("days", sum.Days),
		slog.Int("skipped", sum.Skipped),
		slog.Int("rows", sum.Rows),
		slog.Int("duplicates", sum.Totals.Duplicates),
		slog.Int("icebergs", sum.Totals.Icebergs),
		slog.Int("orphans", sum.Totals.Orphans),
		slog.Duration("elapsed", sum.Elapsed),
	)
	r.audit(ctx, domain.AuditRunCompleted, map[string]any{
		"run_id": sum.RunID,
		"from":   domain.DateString(from),
		"to":     domain.DateString(to),
		"days":   sum.Days,
		"rows":   sum.Rows,
	})
	r.notify(ctx, EventRunCompleted, "Order book run completed", fmt.Sprintf(
		"%s to %s: %d days, %d rows, %d skipped in %s",
		domain.DateString(from), domain.DateString(to), sum.Days, sum.Rows, sum.Skipped,
		sum.Elapsed.Round(time.Second)))
	return sum, nil
}

func (r *Runner) fail(ctx context.Context, log *slog.Logger, err error) (Summary, error) {
	r.mu.Lock()
	sum := r.sum
	r.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		log.WarnContext(ctx, "run cancelled", slog.Int("days", sum.Days))
		return sum, err
	}
	log.ErrorContext(ctx, "run failed",
		slog.Int("days", sum.Days),
		slog.String("error", err.Error()),
	)
	r.audit(ctx, domain.AuditRunFailed, map[string]any{"run_id": sum.RunID, "error": err.Error()})
	r.notify(ctx, EventRunFailed, "Order book run failed", err.Error())
	return sum, err
}

// pendingDays lists the days of [from, to] still to be produced.
func (r *Runner) pendingDays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if r.cfg.SkipCompleted && r.deps.Progress != nil {
			p, done, err := r.deps.Progress.Done(ctx, d)
			if err != nil {
				return nil, fmt.Errorf("pipeline: progress lookup %s: %w", domain.DateString(d), err)
			}
			if done {
				r.mu.Lock()
				r.sum.Skipped++
				r.mu.Unlock()
				r.logger.InfoContext(ctx, "day already published",
					slog.String("day", domain.DateString(d)),
					slog.Int("rows", p.Rows),
					slog.Time("completed_at", p.CompletedAt),
				)
				continue
			}
		}
		days = append(days, d)
	}
	return days, nil
}

// emit persists one finished table. A table is written to every sink or the
// run fails; nothing is recorded as done before all sinks succeed.
func (r *Runner) emit(ctx context.Context, table domain.DayTable) error {
	date := domain.DateString(table.Day)
	if r.cfg.DryRun {
		r.logger.InfoContext(ctx, "dry run: table not written",
			slog.String("day", date),
			slog.Int("rows", len(table.Orders)),
		)
		r.record(table)
		return nil
	}

	// Writes run under held so that losing the day lock stops them.
	held := ctx
	if r.deps.Locks != nil {
		lctx, release, err := r.deps.Locks.Acquire(ctx, DayLockKey(table.Day), r.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("pipeline: lock %s: %w", date, err)
		}
		defer release()
		held = lctx
	}

	// A day being rewritten is not done until every sink has its new table.
	if r.deps.Progress != nil {
		if err := r.deps.Progress.Clear(held, table.Day); err != nil {
			return fmt.Errorf("pipeline: clear %s progress: %w", date, err)
		}
	}

	locations := make(map[string]any, len(r.deps.Sinks))
	var primary string
	for _, s := range r.deps.Sinks {
		loc, err := s.Write(held, table)
		if err != nil {
			if cause := context.Cause(held); cause != nil {
				err = cause
			}
			return fmt.Errorf("pipeline: write %s to %s: %w", date, s.Name(), err)
		}
		locations[s.Name()] = loc
		if primary == "" {
			primary = loc
		}
	}
	if held.Err() != nil {
		return fmt.Errorf("pipeline: write %s: %w", date, context.Cause(held))
	}

	if r.deps.Progress != nil {
		err := r.deps.Progress.MarkDone(ctx, domain.DayProgress{
			Day:         table.Day,
			Rows:        len(table.Orders),
			CompletedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("pipeline: mark %s done: %w", date, err)
		}
	}
	if r.deps.Publisher != nil {
		if err := r.deps.Publisher.PublishDay(ctx, table, primary); err != nil {
			r.logger.WarnContext(ctx, "publish day failed",
				slog.String("day", date),
				slog.String("error", err.Error()),
			)
		}
	}
	r.audit(ctx, domain.AuditDayWritten, map[string]any{
		"run_id":    r.runID(),
		"day":       date,
		"rows":      len(table.Orders),
		"stats":     table.Stats,
		"locations": locations,
	})

	r.logger.InfoContext(ctx, "day written",
		slog.String("day", date),
		slog.Int("rows", len(table.Orders)),
		slog.Int("sinks", len(r.deps.Sinks)),
	)
	r.record(table)
	return nil
}

func (r *Runner) record(table domain.DayTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sum.Days++
	r.sum.Rows += len(table.Orders)
	r.sum.Totals = r.sum.Totals.Add(table.Stats)
}

func (r *Runner) runID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sum.RunID
}

func (r *Runner) audit(ctx context.Context, event string, detail map[string]any) {
	if r.deps.Audit == nil || r.cfg.DryRun {
		return
	}
	if err := r.deps.Audit.Log(ctx, event, detail); err != nil {
		r.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) notify(ctx context.Context, event, title, message string) {
	if r.deps.Notifier == nil {
		return
	}
	if err := r.deps.Notifier.Notify(ctx, event, title, message); err != nil {
		r.logger.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
}

// split cuts days into at most n contiguous chunks of near-equal length.
func split(days []time.Time, n int) [][]time.Time {
	if len(days) == 0 {
		return nil
	}
	if n > len(days) {
		n = len(days)
	}
	chunks := make([][]time.Time, 0, n)
	size, rem := len(days)/n, len(days)%n
	for i, lo := 0, 0; i < n; i++ {
		hi := lo + size
		if i < rem {
			hi++
		}
		chunks = append(chunks, days[lo:hi])
		lo = hi
	}
	return chunks
}

// contiguous groups sorted days into runs without gaps.
func contiguous(days []time.Time) []dayRange {
	var out []dayRange
	for _, d := range days {
		if n := len(out); n > 0 && out[n-1].to.AddDate(0, 0, 1).Equal(d) {
			out[n-1].to = d
			continue
		}
		out = append(out, dayRange{from: d, to: d})
	}
	return out
}
