package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/flowstate-dev/flowstate/internal/executor"
	"github.com/flowstate-dev/flowstate/internal/persistence"
	"github.com/flowstate-dev/flowstate/pkg/api"
)

// Engine is a synchronous, in-process api.Engine: runs are driven on the
// caller's goroutine and checkpointed to the configured stores after every
// transition.
type Engine struct {
	workflows persistence.WorkflowStore
	runs      persistence.RunStore
	events    persistence.EventStore

	exec     *executor.Executor
	observer api.Observer
	logger   *slog.Logger
	active   *runRegistry
}

var _ api.Engine = (*Engine)(nil)

// Config describes how to construct an Engine.
type Config struct {
	Persistence persistence.Persistence

	// Executor configures the underlying executor. Its Observer and
	// EventSink are wrapped by the engine.
	Executor executor.Config

	Observer api.Observer
	Logger   *slog.Logger
}

// NewInMemoryEngine returns an Engine that keeps everything in memory.
func NewInMemoryEngine(cfg Config) *Engine {
	cfg.Persistence = persistence.NewInMemoryPersistence()
	return NewEngineWithConfig(cfg)
}

// NewSQLiteEngine returns an Engine that persists runs and events in SQLite.
// Workflow definitions remain in memory.
func NewSQLiteEngine(db *sql.DB, cfg Config) (*Engine, error) {
	runs, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	events, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	cfg.Persistence = persistence.Persistence{
		Workflows: persistence.NewInMemoryStore(),
		Runs:      runs,
		Events:    events,
	}
	return NewEngineWithConfig(cfg), nil
}

// NewPostgresEngine returns an Engine that persists runs and events in
// PostgreSQL. Workflow definitions remain in memory.
func NewPostgresEngine(db *sql.DB, cfg Config) (*Engine, error) {
	runs, err := persistence.NewPostgresRunStore(db)
	if err != nil {
		return nil, err
	}
	events, err := persistence.NewPostgresEventStore(db)
	if err != nil {
		return nil, err
	}
	cfg.Persistence = persistence.Persistence{
		Workflows: persistence.NewInMemoryStore(),
		Runs:      runs,
		Events:    events,
	}
	return NewEngineWithConfig(cfg), nil
}

// NewRedisEngine returns an Engine that persists runs and events in Redis
// under prefix.
func NewRedisEngine(client redis.UniversalClient, prefix string, cfg Config) *Engine {
	store := persistence.NewRedisRunStore(client, prefix)
	cfg.Persistence = persistence.Persistence{
		Workflows: persistence.NewInMemoryStore(),
		Runs:      store,
		Events:    store,
	}
	return NewEngineWithConfig(cfg)
}

// NewMongoEngine returns an Engine that persists runs and events in the
// MongoDB database dbName.
func NewMongoEngine(client *mongo.Client, dbName string, cfg Config) *Engine {
	store := persistence.NewMongoRunStore(client, dbName, "")
	cfg.Persistence = persistence.Persistence{
		Workflows: persistence.NewInMemoryStore(),
		Runs:      store,
		Events:    store,
	}
	return NewEngineWithConfig(cfg)
}

// NewEngineWithConfig creates a new Engine using the given configuration.
// Missing stores default to in-memory ones.
func NewEngineWithConfig(cfg Config) *Engine {
	mem := persistence.NewInMemoryStore()
	p := cfg.Persistence
	if p.Workflows == nil {
		p.Workflows = mem
	}
	if p.Runs == nil {
		p.Runs = mem
	}
	if p.Events == nil {
		p.Events = persistence.NoopEventStore{}
	}

	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		workflows: p.Workflows,
		runs:      p.Runs,
		events:    p.Events,
		observer:  obs,
		logger:    logger,
		active:    newRunRegistry(),
	}

	ecfg := cfg.Executor
	if ecfg.Logger == nil {
		ecfg.Logger = logger
	}
	ecfg.Observer = api.NewCompositeObserver(&checkpointer{engine: e}, obs, ecfg.Observer)
	userSink := ecfg.EventSink
	ecfg.EventSink = func(ev api.ExecutionEvent) {
		e.recordEvent(ev)
		if userSink != nil {
			userSink(ev)
		}
	}
	e.exec = executor.New(ecfg)
	return e
}

// Executor exposes the underlying executor.
func (e *Engine) Executor() *executor.Executor {
	return e.exec
}

func (e *Engine) RegisterWorkflow(wf api.Workflow) error {
	if wf.Name == "" {
		return errors.New("workflow name is required")
	}
	if len(wf.States) == 0 {
		return errors.New("workflow must have at least one state")
	}
	if _, ok := wf.State(wf.InitialState); !ok {
		return fmt.Errorf("workflow %s: initial %w", wf.Name, &api.StateNotFoundError{State: wf.InitialState})
	}

	ctx := context.Background()
	if _, err := e.workflows.GetWorkflow(ctx, wf.Name); err == nil {
		return fmt.Errorf("workflow already registered: %s", wf.Name)
	} else if !errors.Is(err, persistence.ErrWorkflowNotFound) {
		return err
	}
	return e.workflows.SaveWorkflow(ctx, wf)
}

func (e *Engine) Start(ctx context.Context, name string, vars map[string]any) (*api.WorkflowRun, error) {
	wf, err := e.workflows.GetWorkflow(ctx, name)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return nil, fmt.Errorf("unknown workflow %s: %w", name, api.ErrWorkflowNotFound)
		}
		return nil, err
	}

	run := api.NewWorkflowRun(wf)
	for k, v := range api.CloneContext(vars) {
		run.Context[k] = v
	}

	// Persist the run as soon as it exists so it can be resumed.
	if err := e.runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	return run, e.drive(ctx, run, e.exec.Execute)
}

func (e *Engine) Resume(ctx context.Context, id string) (*api.WorkflowRun, error) {
	run, err := e.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.IsTerminal() {
		return run, fmt.Errorf("cannot resume run %s in status %s: %w", id, run.Status, api.ErrWorkflowCompleted)
	}
	return run, e.drive(ctx, run, e.exec.ResumeWorkflow)
}

func (e *Engine) Step(ctx context.Context, id string) (*api.WorkflowRun, error) {
	run, err := e.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.IsTerminal() {
		return run, fmt.Errorf("cannot step run %s in status %s: %w", id, run.Status, api.ErrWorkflowCompleted)
	}
	return run, e.drive(ctx, run, e.exec.ExecuteState)
}

func (e *Engine) Cancel(ctx context.Context, id string) (*api.WorkflowRun, error) {
	if done, ok := e.active.Cancel(id); ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return e.GetRun(ctx, id)
	}

	run, err := e.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.IsTerminal() {
		return run, fmt.Errorf("cannot cancel run %s in status %s: %w", id, run.Status, api.ErrWorkflowCompleted)
	}

	run.Cancel()
	if err := e.runs.UpdateRun(ctx, run); err != nil {
		return run, err
	}
	e.recordEvent(api.ExecutionEvent{
		RunID:    run.ID,
		Workflow: run.Workflow.Name,
		State:    run.CurrentState,
		Type:     api.EventCancelled,
		Details:  "cancelled while idle",
		At:       *run.CompletedAt,
	})
	e.observer.OnRunCancelled(ctx, run)
	return run, nil
}

func (e *Engine) GetRun(ctx context.Context, id string) (*api.WorkflowRun, error) {
	run, err := e.runs.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, fmt.Errorf("run not found: %s: %w", id, api.ErrRunNotFound)
		}
		return nil, err
	}
	return run, nil
}

func (e *Engine) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.WorkflowRun, error) {
	return e.runs.ListRuns(ctx, persistence.RunFilter{
		WorkflowName: opts.WorkflowName,
		Status:       opts.Status,
	})
}

func (e *Engine) Events(ctx context.Context, id string) ([]api.ExecutionEvent, error) {
	return e.events.ListEvents(ctx, id)
}

// drive runs fn on run while it is registered as in flight, then stores
// the final state of the run.
func (e *Engine) drive(ctx context.Context, run *api.WorkflowRun, fn func(context.Context, *api.WorkflowRun) error) error {
	runCtx, release, err := e.active.Register(ctx, run.ID)
	if err != nil {
		return err
	}
	defer release()

	runErr := fn(runCtx, run)

	if err := e.runs.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.ErrorContext(ctx, "run_persist_failed",
			slog.String("run_id", run.ID),
			slog.Any("error", err),
		)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// recordEvent stores ev under its top-level run; fork branch events are
// filed with their parent.
func (e *Engine) recordEvent(ev api.ExecutionEvent) {
	root, _, _ := strings.Cut(ev.RunID, "/")
	ev.RunID = root
	if err := e.events.AppendEvent(context.Background(), ev); err != nil {
		e.logger.Warn("event_persist_failed",
			slog.String("run_id", ev.RunID),
			slog.String("type", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}

// checkpointer stores a run after each of its transitions. Branch sub-runs
// are not stored; the parent is stored once the fork joins.
type checkpointer struct {
	api.NoopObserver
	engine *Engine
}

func (c *checkpointer) OnTransition(ctx context.Context, run *api.WorkflowRun, from, to api.StateID) {
	if run.ParentID != "" {
		return
	}
	if err := c.engine.runs.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		c.engine.logger.WarnContext(ctx, "checkpoint_failed",
			slog.String("run_id", run.ID),
			slog.String("state", string(to)),
			slog.Any("error", err),
		)
	}
}
