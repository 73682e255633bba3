package flowstate

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/flowstate-dev/flowstate/internal/engine"
	"github.com/flowstate-dev/flowstate/internal/executor"
	"github.com/flowstate-dev/flowstate/internal/expression"
	"github.com/flowstate-dev/flowstate/internal/taskqueue"
	"github.com/flowstate-dev/flowstate/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Workflow             = api.Workflow
	WorkflowRun          = api.WorkflowRun
	State                = api.State
	StateID              = api.StateID
	StateType            = api.StateType
	Transition           = api.Transition
	Condition            = api.Condition
	RunStatus            = api.RunStatus
	RunListOptions       = api.RunListOptions
	ExecutionEvent       = api.ExecutionEvent
	ActionExecutor       = api.ActionExecutor
	ActionFunc           = api.ActionFunc
	ActionResult         = api.ActionResult
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export condition constructors and observer helpers.

var (
	Always    = api.Always
	Never     = api.Never
	OnSuccess = api.OnSuccess
	OnFailure = api.OnFailure
	When      = api.When

	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export enum values for convenience.

const (
	StateNormal = api.StateNormal
	StateFork   = api.StateFork
	StateJoin   = api.StateJoin
	StateChoice = api.StateChoice

	RunRunning   = api.RunRunning
	RunCompleted = api.RunCompleted
	RunFailed    = api.RunFailed
	RunCancelled = api.RunCancelled
)

// Options configures the engines returned by the constructors below. Zero
// values select the defaults.
type Options struct {
	// Actions runs state and transition actions, typically an
	// *actions.Registry.
	Actions ActionExecutor

	Observer Observer
	Logger   *slog.Logger

	// MaxTransitions bounds the steps of one run (default 1000).
	MaxTransitions int
	// MaxBranchTransitions bounds the steps of one fork branch (default 100).
	MaxBranchTransitions int
	// MaxHistorySize bounds the executor's diagnostic event log (default 10000).
	MaxHistorySize int

	// ExpressionCacheSize bounds the compiled expression cache (default 500).
	ExpressionCacheSize int
	// ExpressionTimeout is the longest a guard expression may take (default 100ms).
	ExpressionTimeout time.Duration
}

func (o Options) engineConfig() engine.Config {
	return engine.Config{
		Observer: o.Observer,
		Logger:   o.Logger,
		Executor: executor.Config{
			MaxTransitions:       o.MaxTransitions,
			MaxBranchTransitions: o.MaxBranchTransitions,
			MaxHistorySize:       o.MaxHistorySize,
			Actions:              o.Actions,
			Logger:               o.Logger,
			Expression: expression.Config{
				CacheSize: o.ExpressionCacheSize,
				Timeout:   o.ExpressionTimeout,
				Logger:    o.Logger,
			},
		},
	}
}

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine(opts Options) Engine {
	return engine.NewInMemoryEngine(opts.engineConfig())
}

// NewSQLiteEngine returns an Engine that persists runs and events in a
// SQLite database. Workflow definitions are kept in memory.
func NewSQLiteEngine(db *sql.DB, opts Options) (Engine, error) {
	return engine.NewSQLiteEngine(db, opts.engineConfig())
}

// NewPostgresEngine returns an Engine that persists runs and events in
// PostgreSQL. db must use the pgx driver.
func NewPostgresEngine(db *sql.DB, opts Options) (Engine, error) {
	return engine.NewPostgresEngine(db, opts.engineConfig())
}

// NewRedisEngine returns an Engine that persists runs and events in Redis.
// An empty prefix selects "flowstate:".
func NewRedisEngine(client redis.UniversalClient, prefix string, opts Options) Engine {
	return engine.NewRedisEngine(client, prefix, opts.engineConfig())
}

// NewMongoEngine returns an Engine that persists runs and events in the
// MongoDB database dbName.
func NewMongoEngine(client *mongo.Client, dbName string, opts Options) Engine {
	return engine.NewMongoEngine(client, dbName, opts.engineConfig())
}

// NewInMemoryQueue returns a bounded in-memory task queue for workers.
func NewInMemoryQueue(capacity int) *taskqueue.InMemoryQueue {
	return taskqueue.NewInMemoryQueue(capacity)
}

// Convenience helpers that just forward to the underlying Engine.

// Start runs a registered workflow synchronously.
func Start(ctx context.Context, eng Engine, name string, vars map[string]any) (*WorkflowRun, error) {
	return eng.Start(ctx, name, vars)
}

// Resume continues a stored, still running run.
func Resume(ctx context.Context, eng Engine, id string) (*WorkflowRun, error) {
	return eng.Resume(ctx, id)
}

// Cancel cancels a run.
func Cancel(ctx context.Context, eng Engine, id string) (*WorkflowRun, error) {
	return eng.Cancel(ctx, id)
}

// GetRun fetches a run by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*WorkflowRun, error) {
	return eng.GetRun(ctx, id)
}

// ListRuns lists runs according to the given options.
func ListRuns(ctx context.Context, eng Engine, opts RunListOptions) ([]*WorkflowRun, error) {
	return eng.ListRuns(ctx, opts)
}
