package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/intradaybook/internal/domain"
	"github.com/alanyoungcy/intradaybook/internal/export"
)

type memSink struct {
	mu     sync.Mutex
	tables map[time.Time]domain.DayTable
	failOn time.Time
}

func newMemSink() *memSink {
	return &memSink{tables: map[time.Time]domain.DayTable{}}
}

func (s *memSink) Name() string { return "mem" }

func (s *memSink) Write(_ context.Context, table domain.DayTable) (string, error) {
	if !s.failOn.IsZero() && s.failOn.Equal(table.Day) {
		return "", errors.New("disk full")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table.Day] = table
	return "mem/" + domain.DateString(table.Day), nil
}

type memProgress struct {
	mu   sync.Mutex
	done map[time.Time]domain.DayProgress
}

func (p *memProgress) MarkDone(_ context.Context, dp domain.DayProgress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done[dp.Day] = dp
	return nil
}

func (p *memProgress) Done(_ context.Context, day time.Time) (domain.DayProgress, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dp, ok := p.done[day]
	return dp, ok, nil
}

func (p *memProgress) Clear(_ context.Context, day time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.done, day)
	return nil
}

type memPublisher struct {
	mu        sync.Mutex
	locations []string
}

func (p *memPublisher) PublishDay(_ context.Context, _ domain.DayTable, location string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locations = append(p.locations, location)
	return nil
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (context.Context, func(), error) {
	return nil, nil, domain.ErrLockHeld
}

// losingLocks grants every lock and reports it lost straight away.
type losingLocks struct {
	released int
}

func (l *losingLocks) Acquire(ctx context.Context, _ string, _ time.Duration) (context.Context, func(), error) {
	held, cancel := context.WithCancelCause(ctx)
	cancel(domain.ErrLockLost)
	return held, func() { l.released++ }, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func runWith(t *testing.T, cfg RunnerConfig, deps RunnerDeps, from, to time.Time) (Summary, error) {
	t.Helper()
	return NewRunner(cfg, deps, discardLogger()).Run(context.Background(), from, to)
}

func TestRunner_ParallelMatchesSequential(t *testing.T) {
	const days = 6
	last := d0.AddDate(0, 0, days-1)

	seq := newMemSink()
	_, err := runWith(t, RunnerConfig{Workers: 1},
		RunnerDeps{Windower: newWindower(newMemLoader(market(days))), Sinks: []export.Sink{seq}}, d0, last)
	require.NoError(t, err)

	par := newMemSink()
	sum, err := runWith(t, RunnerConfig{Workers: 4},
		RunnerDeps{Windower: newWindower(newMemLoader(market(days))), Sinks: []export.Sink{par}}, d0, last)
	require.NoError(t, err)

	assert.Equal(t, days, sum.Days)
	require.Len(t, par.tables, days)
	assert.Equal(t, seq.tables, par.tables)

	// Every day but the last one sees its late order closed after midnight.
	for d := d0; d.Before(last); d = d.AddDate(0, 0, 1) {
		assert.Len(t, par.tables[d].Orders, 3, domain.DateString(d))
	}
}

func TestRunner_WritesAndPublishes(t *testing.T) {
	sink := newMemSink()
	progress := &memProgress{done: map[time.Time]domain.DayProgress{}}
	pub := &memPublisher{}
	notes := &recordingNotifier{}
	d1 := d0.AddDate(0, 0, 1)

	sum, err := runWith(t, RunnerConfig{Workers: 2}, RunnerDeps{
		Windower:  newWindower(newMemLoader(market(2))),
		Sinks:     []export.Sink{sink},
		Progress:  progress,
		Publisher: pub,
		Notifier:  notes,
	}, d0, d1)
	require.NoError(t, err)

	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 2, sum.Days)
	assert.Equal(t, len(sink.tables[d0].Orders)+len(sink.tables[d1].Orders), sum.Rows)
	assert.Len(t, progress.done, 2)
	assert.ElementsMatch(t, []string{"mem/2021-03-10", "mem/2021-03-11"}, pub.locations)
	assert.Equal(t, []string{EventRunCompleted}, notes.events)
}

func TestRunner_SkipCompleted(t *testing.T) {
	d1, d2 := d0.AddDate(0, 0, 1), d0.AddDate(0, 0, 2)
	progress := &memProgress{done: map[time.Time]domain.DayProgress{
		d1: {Day: d1, Rows: 3},
	}}
	sink := newMemSink()
	loader := newMemLoader(market(3))

	sum, err := runWith(t, RunnerConfig{SkipCompleted: true}, RunnerDeps{
		Windower: newWindower(loader),
		Sinks:    []export.Sink{sink},
		Progress: progress,
	}, d0, d2)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 2, sum.Days)
	assert.Contains(t, sink.tables, d0)
	assert.NotContains(t, sink.tables, d1)
	assert.Contains(t, sink.tables, d2)
}

func TestRunner_DryRunWritesNothing(t *testing.T) {
	sink := newMemSink()
	progress := &memProgress{done: map[time.Time]domain.DayProgress{}}
	sum, err := runWith(t, RunnerConfig{DryRun: true}, RunnerDeps{
		Windower: newWindower(newMemLoader(market(1))),
		Sinks:    []export.Sink{sink},
		Progress: progress,
	}, d0, d0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Days)
	assert.Empty(t, sink.tables)
	assert.Empty(t, progress.done)
}

func TestRunner_FailingSinkFailsRun(t *testing.T) {
	d1 := d0.AddDate(0, 0, 1)
	sink := newMemSink()
	sink.failOn = d1
	progress := &memProgress{done: map[time.Time]domain.DayProgress{}}
	notes := &recordingNotifier{}

	_, err := runWith(t, RunnerConfig{}, RunnerDeps{
		Windower: newWindower(newMemLoader(market(2))),
		Sinks:    []export.Sink{sink},
		Progress: progress,
		Notifier: notes,
	}, d0, d1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NotContains(t, progress.done, d1)
	assert.Equal(t, []string{EventRunFailed}, notes.events)
}

func TestRunner_FailedRewriteClearsProgress(t *testing.T) {
	sink := newMemSink()
	sink.failOn = d0
	progress := &memProgress{done: map[time.Time]domain.DayProgress{
		d0: {Day: d0, Rows: 99},
	}}

	_, err := runWith(t, RunnerConfig{}, RunnerDeps{
		Windower: newWindower(newMemLoader(market(1))),
		Sinks:    []export.Sink{sink},
		Progress: progress,
	}, d0, d0)
	require.Error(t, err)
	assert.NotContains(t, progress.done, d0)
}

func TestRunner_LockHeld(t *testing.T) {
	_, err := runWith(t, RunnerConfig{}, RunnerDeps{
		Windower: newWindower(newMemLoader(market(1))),
		Sinks:    []export.Sink{newMemSink()},
		Locks:    heldLocks{},
	}, d0, d0)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestRunner_LockLostDuringWrite(t *testing.T) {
	locks := &losingLocks{}
	progress := &memProgress{done: map[time.Time]domain.DayProgress{}}
	pub := &memPublisher{}

	_, err := runWith(t, RunnerConfig{}, RunnerDeps{
		Windower:  newWindower(newMemLoader(market(1))),
		Sinks:     []export.Sink{newMemSink()},
		Locks:     locks,
		Progress:  progress,
		Publisher: pub,
	}, d0, d0)
	require.ErrorIs(t, err, domain.ErrLockLost)
	assert.Empty(t, progress.done)
	assert.Empty(t, pub.locations)
	assert.Equal(t, 1, locks.released)
}

func TestRunner_InvalidRange(t *testing.T) {
	_, err := runWith(t, RunnerConfig{}, RunnerDeps{Windower: newWindower(newMemLoader(nil))},
		d0, d0.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, domain.ErrRange)
}

func TestDayLockKey(t *testing.T) {
	assert.Equal(t, "bookparse:day:2021-03-10", DayLockKey(d0.Add(13*time.Hour)))
}
