// Package scheduler runs periodic background tasks for the gateway.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/health"
	"github.com/c360/switchboard/metric"
)

// Tick results as recorded in metrics
const (
	ResultRun     = "run"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Task is the unit of work run on every tick.
type Task func(ctx context.Context) error

// Option is a functional option for configuring a Ticker
type Option func(*Ticker)

// WithLogger sets a custom logger for the ticker
func WithLogger(logger *slog.Logger) Option {
	return func(t *Ticker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics records tick outcomes in the given registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(t *Ticker) {
		t.metrics = registry.CoreMetrics()
	}
}

// Ticker invokes a task at a fixed period with at most one invocation in flight.
// A tick that comes due while the previous run is still busy is skipped, not queued.
// Task errors and panics are logged and counted; they never stop the ticker.
type Ticker struct {
	name     string
	interval time.Duration
	task     Task
	logger   *slog.Logger
	metrics  *metric.Metrics

	busy    atomic.Bool
	started atomic.Bool

	runs    atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
	lastRun atomic.Value // time.Time
	lastErr atomic.Value // string
	since   atomic.Value // time.Time, when Start was called

	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	mu        sync.Mutex
}

// NewTicker creates a stopped ticker.
func NewTicker(name string, interval time.Duration, task Task, opts ...Option) (*Ticker, error) {
	if interval <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Ticker", "NewTicker",
			fmt.Sprintf("check interval %s", interval))
	}
	if task == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Ticker", "NewTicker", "check task")
	}

	t := &Ticker{
		name:     name,
		interval: interval,
		task:     task,
		logger:   slog.Default().With("component", "ticker", "task", name),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.lastRun.Store(time.Time{})
	t.lastErr.Store("")
	t.since.Store(time.Time{})
	return t, nil
}

// Start begins ticking until ctx is cancelled or Stop is called.
func (t *Ticker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Ticker", "Start", "start ticker "+t.name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.since.Store(time.Now())

	t.waitGroup.Add(1)
	go t.loop(runCtx)

	t.logger.Info("Ticker started", "interval", t.interval)
	return nil
}

// Stop halts the ticker and waits up to timeout for an in-flight run to finish.
func (t *Ticker) Stop(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started.Load() {
		return nil
	}
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.waitGroup.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.logger.Warn("Ticker stop timed out with a run in flight", "timeout", timeout)
	}

	t.started.Store(false)
	t.logger.Info("Ticker stopped", "runs", t.runs.Load(), "skipped", t.skipped.Load(), "failed", t.failed.Load())
	return nil
}

func (t *Ticker) loop(ctx context.Context) {
	defer t.waitGroup.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.fire(ctx)
		}
	}
}

// fire starts one run unless the previous one is still busy.
func (t *Ticker) fire(ctx context.Context) {
	if !t.busy.CompareAndSwap(false, true) {
		t.skipped.Add(1)
		t.metrics.RecordTick(t.name, ResultSkipped, 0)
		t.logger.Debug("Tick skipped, previous run still in flight")
		return
	}

	t.waitGroup.Add(1)
	go func() {
		defer t.waitGroup.Done()
		defer t.busy.Store(false)
		t.RunOnce(ctx)
	}()
}

// RunOnce invokes the task synchronously, recovering panics. It ignores the busy
// flag and is meant for tests and for the first run at startup.
func (t *Ticker) RunOnce(ctx context.Context) {
	start := time.Now()
	err := t.safeRun(ctx)
	elapsed := time.Since(start)
	t.lastRun.Store(start)

	if err != nil {
		t.failed.Add(1)
		t.lastErr.Store(err.Error())
		t.metrics.RecordTick(t.name, ResultFailed, elapsed)
		t.logger.Error("Tick failed", "error", err, "duration", elapsed)
		return
	}
	t.runs.Add(1)
	t.lastErr.Store("")
	t.metrics.RecordTick(t.name, ResultRun, elapsed)
}

func (t *Ticker) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapFatal(fmt.Errorf("panic: %v", r), "Ticker", "RunOnce", "run task "+t.name)
		}
	}()
	return t.task(ctx)
}

// Stats is a point-in-time view of the ticker counters.
type Stats struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Running   bool          `json:"running"`
	Runs      int64         `json:"runs"`
	Skipped   int64         `json:"skipped"`
	Failed    int64         `json:"failed"`
	LastRun   time.Time     `json:"last_run"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns the current counters.
func (t *Ticker) Stats() Stats {
	return Stats{
		Name:      t.name,
		Interval:  t.interval,
		Running:   t.started.Load(),
		Runs:      t.runs.Load(),
		Skipped:   t.skipped.Load(),
		Failed:    t.failed.Load(),
		LastRun:   t.lastRun.Load().(time.Time),
		LastError: t.lastErr.Load().(string),
	}
}

// LastRun returns when the task last started, zero if never.
func (t *Ticker) LastRun() time.Time {
	return t.lastRun.Load().(time.Time)
}

// stallFactor is how many missed intervals mark a started ticker as stalled.
const stallFactor = 3

// Health reports unhealthy when the ticker is stopped or has not started a run
// for several intervals, and degraded when the last run failed.
func (t *Ticker) Health() health.Status {
	if !t.started.Load() {
		return health.NewUnhealthy(t.name, "ticker not running")
	}

	ref := t.LastRun()
	if since := t.since.Load().(time.Time); since.After(ref) {
		ref = since
	}
	if idle := time.Since(ref); idle > stallFactor*t.interval {
		return health.NewUnhealthy(t.name, fmt.Sprintf("no run for %s", idle.Truncate(time.Millisecond)))
	}

	stats := t.Stats()
	metrics := &health.Metrics{
		ErrorCount:   stats.Failed,
		Processed:    stats.Runs,
		LastActivity: stats.LastRun,
	}
	if stats.LastError != "" {
		return health.NewDegraded(t.name, "last run failed").WithMetrics(metrics)
	}
	return health.NewHealthy(t.name, fmt.Sprintf("every %s", t.interval)).WithMetrics(metrics)
}
