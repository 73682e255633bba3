package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the executor for logging and metrics.
//
// Callbacks may arrive concurrently from fork branches, so implementations
// must be safe for concurrent use. Keep them fast; they run inline with
// workflow execution.
type Observer interface {
	// OnRunStart is called once when a run is started, before its first
	// step. Resumed runs do not trigger it again.
	OnRunStart(ctx context.Context, run *WorkflowRun)

	// OnRunCompleted is called when a run reaches RunCompleted.
	OnRunCompleted(ctx context.Context, run *WorkflowRun)

	// OnRunFailed is called when driving a run returns an error.
	OnRunFailed(ctx context.Context, run *WorkflowRun, err error)

	// OnRunCancelled is called when a run is stopped by cancellation.
	OnRunCancelled(ctx context.Context, run *WorkflowRun)

	// OnStateStart is called before a state is executed.
	OnStateStart(ctx context.Context, run *WorkflowRun, state StateID)

	// OnStateCompleted is called after a state is executed, for both
	// successes and failures (err != nil).
	OnStateCompleted(ctx context.Context, run *WorkflowRun, state StateID, err error, duration time.Duration)

	// OnTransition is called after the run moved from one state to another.
	OnTransition(ctx context.Context, run *WorkflowRun, from, to StateID)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *WorkflowRun)                {}
func (NoopObserver) OnRunCompleted(ctx context.Context, run *WorkflowRun)            {}
func (NoopObserver) OnRunFailed(ctx context.Context, run *WorkflowRun, err error)    {}
func (NoopObserver) OnRunCancelled(ctx context.Context, run *WorkflowRun)            {}
func (NoopObserver) OnStateStart(ctx context.Context, run *WorkflowRun, s StateID)   {}
func (NoopObserver) OnTransition(ctx context.Context, run *WorkflowRun, f, t StateID) {}
func (NoopObserver) OnStateCompleted(ctx context.Context, run *WorkflowRun, s StateID, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *WorkflowRun) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, run *WorkflowRun) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, run)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run *WorkflowRun, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnRunCancelled(ctx context.Context, run *WorkflowRun) {
	for _, o := range c.observers {
		o.OnRunCancelled(ctx, run)
	}
}

func (c *CompositeObserver) OnStateStart(ctx context.Context, run *WorkflowRun, s StateID) {
	for _, o := range c.observers {
		o.OnStateStart(ctx, run, s)
	}
}

func (c *CompositeObserver) OnStateCompleted(ctx context.Context, run *WorkflowRun, s StateID, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStateCompleted(ctx, run, s, err, d)
	}
}

func (c *CompositeObserver) OnTransition(ctx context.Context, run *WorkflowRun, from, to StateID) {
	for _, o := range c.observers {
		o.OnTransition(ctx, run, from, to)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run and state lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func runAttrs(run *WorkflowRun) []any {
	attrs := []any{
		slog.String("workflow", run.Workflow.Name),
		slog.String("run_id", run.ID),
	}
	if run.ParentID != "" {
		attrs = append(attrs, slog.String("parent_run_id", run.ParentID))
	}
	return attrs
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *WorkflowRun) {
	o.Logger.InfoContext(ctx, "run_start", runAttrs(run)...)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, run *WorkflowRun) {
	o.Logger.InfoContext(ctx, "run_completed",
		append(runAttrs(run), slog.String("state", string(run.CurrentState)))...,
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run *WorkflowRun, err error) {
	o.Logger.ErrorContext(ctx, "run_failed",
		append(runAttrs(run),
			slog.String("state", string(run.CurrentState)),
			slog.Any("error", err),
		)...,
	)
}

func (o *LoggingObserver) OnRunCancelled(ctx context.Context, run *WorkflowRun) {
	o.Logger.WarnContext(ctx, "run_cancelled",
		append(runAttrs(run), slog.String("state", string(run.CurrentState)))...,
	)
}

func (o *LoggingObserver) OnStateStart(ctx context.Context, run *WorkflowRun, s StateID) {
	o.Logger.DebugContext(ctx, "state_start",
		append(runAttrs(run), slog.String("state", string(s)))...,
	)
}

func (o *LoggingObserver) OnStateCompleted(ctx context.Context, run *WorkflowRun, s StateID, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "state_completed",
		append(runAttrs(run),
			slog.String("state", string(s)),
			slog.Duration("duration", d),
			slog.Any("error", err),
		)...,
	)
}

func (o *LoggingObserver) OnTransition(ctx context.Context, run *WorkflowRun, from, to StateID) {
	o.Logger.DebugContext(ctx, "transition",
		append(runAttrs(run),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)...,
	)
}

// BasicMetrics collects simple counters and aggregate state durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted        atomic.Int64
	runsCompleted      atomic.Int64
	runsFailed         atomic.Int64
	runsCancelled      atomic.Int64
	transitions        atomic.Int64
	statesCompleted    atomic.Int64
	totalStateDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	RunsCancelled int64
	ActiveRuns    int64

	Transitions      int64
	StatesCompleted  int64
	AvgStateDuration time.Duration
}

// Branch sub-runs are not counted as runs of their own.

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *WorkflowRun) {
	if run.ParentID == "" {
		m.runsStarted.Add(1)
	}
}

func (m *BasicMetrics) OnRunCompleted(ctx context.Context, run *WorkflowRun) {
	if run.ParentID == "" {
		m.runsCompleted.Add(1)
	}
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, run *WorkflowRun, err error) {
	if run.ParentID == "" {
		m.runsFailed.Add(1)
	}
}

func (m *BasicMetrics) OnRunCancelled(ctx context.Context, run *WorkflowRun) {
	if run.ParentID == "" {
		m.runsCancelled.Add(1)
	}
}

func (m *BasicMetrics) OnTransition(ctx context.Context, run *WorkflowRun, from, to StateID) {
	m.transitions.Add(1)
}

func (m *BasicMetrics) OnStateCompleted(ctx context.Context, run *WorkflowRun, s StateID, err error, d time.Duration) {
	// Only count successful states for average duration.
	if err == nil {
		m.statesCompleted.Add(1)
		m.totalStateDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	failed := m.runsFailed.Load()
	cancelled := m.runsCancelled.Load()
	states := m.statesCompleted.Load()
	totalNs := m.totalStateDuration.Load()

	var avg time.Duration
	if states > 0 {
		avg = time.Duration(totalNs / states)
	}

	return BasicMetricsSnapshot{
		RunsStarted:      started,
		RunsCompleted:    completed,
		RunsFailed:       failed,
		RunsCancelled:    cancelled,
		ActiveRuns:       started - completed - failed - cancelled,
		Transitions:      m.transitions.Load(),
		StatesCompleted:  states,
		AvgStateDuration: avg,
	}
}
