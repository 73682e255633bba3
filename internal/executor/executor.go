package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowstate-dev/flowstate/internal/expression"
	"github.com/flowstate-dev/flowstate/pkg/api"
)

const (
	// DefaultMaxTransitions bounds the steps of one StartWorkflow or
	// ResumeWorkflow call.
	DefaultMaxTransitions = 1000

	// DefaultMaxBranchTransitions bounds the steps of a single fork branch.
	DefaultMaxBranchTransitions = 100
)

// Config describes how to construct an Executor.
type Config struct {
	MaxTransitions       int
	MaxBranchTransitions int
	MaxHistorySize       int

	Expression expression.Config

	// Actions runs state and transition actions. States without actions
	// work without it.
	Actions api.ActionExecutor

	Observer api.Observer
	Logger   *slog.Logger

	// EventSink, if set, receives every event as it is recorded.
	EventSink func(api.ExecutionEvent)
}

// Executor drives workflow runs. One Executor may drive many runs
// concurrently; a single run must only be driven by one caller at a time.
type Executor struct {
	maxTransitions       int
	maxBranchTransitions int

	actions   api.ActionExecutor
	evaluator *expression.Evaluator
	observer  api.Observer
	logger    *slog.Logger
	events    *eventLog
	sink      func(api.ExecutionEvent)
}

// New creates an Executor. Zero-valued fields of cfg select the defaults.
func New(cfg Config) *Executor {
	if cfg.MaxTransitions <= 0 {
		cfg.MaxTransitions = DefaultMaxTransitions
	}
	if cfg.MaxBranchTransitions <= 0 {
		cfg.MaxBranchTransitions = DefaultMaxBranchTransitions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}
	if cfg.Expression.Logger == nil {
		cfg.Expression.Logger = cfg.Logger
	}
	return &Executor{
		maxTransitions:       cfg.MaxTransitions,
		maxBranchTransitions: cfg.MaxBranchTransitions,
		actions:              cfg.Actions,
		evaluator:            expression.New(cfg.Expression),
		observer:             cfg.Observer,
		logger:               cfg.Logger,
		events:               newEventLog(cfg.MaxHistorySize),
		sink:                 cfg.EventSink,
	}
}

// Evaluator exposes the expression evaluator, mainly for cache statistics.
func (e *Executor) Evaluator() *expression.Evaluator {
	return e.evaluator
}

// StartWorkflow creates a run of wf at its initial state and drives it.
// The run is returned even when err != nil.
func (e *Executor) StartWorkflow(ctx context.Context, wf api.Workflow) (*api.WorkflowRun, error) {
	run := api.NewWorkflowRun(wf)
	return run, e.Execute(ctx, run)
}

// Execute drives a freshly created run, typically one whose context was
// seeded by the caller after api.NewWorkflowRun.
func (e *Executor) Execute(ctx context.Context, run *api.WorkflowRun) error {
	if run.IsTerminal() {
		return fmt.Errorf("run %s is %s: %w", run.ID, run.Status, api.ErrWorkflowCompleted)
	}
	if run.Context == nil {
		run.Context = make(map[string]any)
	}
	e.emit(run, api.EventStarted, "workflow %q started at state %q", run.Workflow.Name, run.CurrentState)
	e.observer.OnRunStart(ctx, run)
	return e.drive(ctx, run)
}

// ResumeWorkflow continues a run that is still Running. Terminal runs are
// left untouched and return api.ErrWorkflowCompleted.
func (e *Executor) ResumeWorkflow(ctx context.Context, run *api.WorkflowRun) error {
	if run.IsTerminal() {
		return fmt.Errorf("run %s is %s: %w", run.ID, run.Status, api.ErrWorkflowCompleted)
	}
	if run.Context == nil {
		run.Context = make(map[string]any)
	}
	e.logger.InfoContext(ctx, "run_resume",
		slog.String("workflow", run.Workflow.Name),
		slog.String("run_id", run.ID),
		slog.String("state", string(run.CurrentState)),
	)
	return e.drive(ctx, run)
}

// ExecuteState executes exactly one step of run: the current state's
// action, then at most one transition.
func (e *Executor) ExecuteState(ctx context.Context, run *api.WorkflowRun) error {
	if run.IsTerminal() {
		return fmt.Errorf("run %s is %s: %w", run.ID, run.Status, api.ErrWorkflowCompleted)
	}
	if run.Context == nil {
		run.Context = make(map[string]any)
	}
	_, err := e.step(ctx, run)
	if err != nil && run.Status == api.RunFailed {
		e.notifyFailed(ctx, run, err)
	}
	return err
}

// drive steps run until it is terminal, a step takes no transition, the
// step bound trips, or ctx is cancelled. Cancellation is only observed
// between steps.
func (e *Executor) drive(ctx context.Context, run *api.WorkflowRun) error {
	steps := 0
	for !run.IsTerminal() {
		if err := ctx.Err(); err != nil {
			return e.cancel(ctx, run, err)
		}
		if steps >= e.maxTransitions {
			return e.fail(ctx, run, &api.TransitionLimitError{Limit: e.maxTransitions})
		}
		steps++

		advanced, err := e.step(ctx, run)
		if cancelled(ctx, err) {
			return e.cancel(ctx, run, err)
		}
		if err != nil {
			return e.fail(ctx, run, err)
		}
		if !advanced && !run.IsTerminal() {
			// The run stays Running at this state and can be resumed once
			// its context lets a transition match.
			e.logger.WarnContext(ctx, "run_stalled",
				slog.String("workflow", run.Workflow.Name),
				slog.String("run_id", run.ID),
				slog.String("state", string(run.CurrentState)),
			)
			return nil
		}
	}
	return nil
}

// step executes the current state and reports whether the run moved.
func (e *Executor) step(ctx context.Context, run *api.WorkflowRun) (bool, error) {
	state, ok := run.Workflow.State(run.CurrentState)
	if !ok {
		return false, &api.StateNotFoundError{State: run.CurrentState}
	}

	started := time.Now()
	e.observer.OnStateStart(ctx, run, state.ID)
	advanced, err := e.executeState(ctx, run, state)
	e.observer.OnStateCompleted(ctx, run, state.ID, err, time.Since(started))
	return advanced, err
}

func (e *Executor) executeState(ctx context.Context, run *api.WorkflowRun, state api.State) (bool, error) {
	switch state.Type {
	case api.StateFork:
		return e.executeFork(ctx, run, state)
	case api.StateNormal, api.StateJoin, api.StateChoice:
	default:
		return false, api.ExecutionFailed("state %q has unknown type %q", state.ID, state.Type)
	}

	if state.Action != "" {
		if err := e.runAction(ctx, run, state.Action); err != nil {
			return false, err
		}
	}

	if state.IsTerminal {
		e.complete(ctx, run)
		return false, nil
	}

	next, err := e.selectTransition(run, state)
	if err != nil {
		return false, err
	}
	if next == nil {
		e.emit(run, api.EventStateExecution, "no transition matched from %q", state.ID)
		return false, nil
	}

	target, ok := run.Workflow.State(next.To)
	if !ok {
		return false, &api.StateNotFoundError{State: next.To}
	}
	if next.Action != "" {
		if err := e.runAction(ctx, run, next.Action); err != nil {
			return false, err
		}
	}
	e.enter(ctx, run, state.ID, target)
	return true, nil
}

// runAction executes action against the run context and records its
// outcome. Only a missing ActionExecutor is an error; a failing action is
// recorded as last_action_result=false.
func (e *Executor) runAction(ctx context.Context, run *api.WorkflowRun, action string) error {
	if e.actions == nil {
		return api.ExecutionFailed("state %q has action %q but no action executor is configured", run.CurrentState, action)
	}

	// An in-flight action is never interrupted by run cancellation.
	res, err := e.actions.ExecuteAction(context.WithoutCancel(ctx), action, run.Context)
	if err != nil {
		e.logger.WarnContext(ctx, "action_failed",
			slog.String("run_id", run.ID),
			slog.String("state", string(run.CurrentState)),
			slog.String("action", action),
			slog.Any("error", err),
		)
		res.Success = false
	}

	run.Context[api.LastActionResultKey] = res.Success
	if res.Output != "" {
		key := res.OutputKey
		if !api.IsResultKey(key) {
			key = api.ResultKey
		}
		run.Context[key] = res.Output
	}
	e.emit(run, api.EventStateExecution, "action %q success=%t", action, res.Success)
	return nil
}

// enter moves run into target and completes it if target is terminal.
func (e *Executor) enter(ctx context.Context, run *api.WorkflowRun, from api.StateID, target api.State) {
	run.TransitionTo(target.ID)
	e.emit(run, api.EventStateTransition, "%s -> %s", from, target.ID)
	e.observer.OnTransition(ctx, run, from, target.ID)
	if target.IsTerminal {
		e.complete(ctx, run)
	}
}

// complete marks run completed. Branch sub-runs complete silently; their
// parent reports the outcome.
func (e *Executor) complete(ctx context.Context, run *api.WorkflowRun) {
	run.Complete()
	if run.ParentID != "" {
		return
	}
	e.emit(run, api.EventCompleted, "workflow %q completed at state %q", run.Workflow.Name, run.CurrentState)
	e.observer.OnRunCompleted(ctx, run)
}

func (e *Executor) cancel(ctx context.Context, run *api.WorkflowRun, err error) error {
	run.Cancel()
	e.emit(run, api.EventCancelled, "cancelled at state %q: %v", run.CurrentState, err)
	e.observer.OnRunCancelled(ctx, run)
	return err
}

// cancelled reports whether err is ctx's own cancellation surfacing from a
// step, as opposed to a step failure.
func cancelled(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
}

func (e *Executor) fail(ctx context.Context, run *api.WorkflowRun, err error) error {
	if !run.IsTerminal() {
		run.Fail()
	}
	e.notifyFailed(ctx, run, err)
	return err
}

func (e *Executor) notifyFailed(ctx context.Context, run *api.WorkflowRun, err error) {
	e.emit(run, api.EventFailed, "%v", err)
	e.observer.OnRunFailed(ctx, run, err)
}
