package flowstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/flowstate-dev/flowstate/internal/taskqueue"
	"github.com/flowstate-dev/flowstate/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a Worker
// to provide a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	runner := flowstate.NewLocalRunner(flowstate.Options{Actions: actions.NewRegistry(nil)})
//	flowstate.NewWorkflow("my-flow").State(...).MustRegister(runner.Engine)
//
//	// Synchronous run (no queue/worker involved):
//	run, err := flowstate.Start(ctx, runner.Engine, "my-flow", vars)
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.StartAsync(ctx, "my-flow", vars)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory workflow engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	logger  *slog.Logger
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine,
// in-memory queue, and a Worker with default config.
func NewLocalRunner(opts Options) *LocalRunner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eng := NewInMemoryEngine(opts)
	q := taskqueue.NewInMemoryQueue(1024)

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: worker.NewWithConfig(eng, q, worker.Config{Logger: logger}),
		logger: logger,
	}
}

// StartWorkers runs Worker.Run with the given concurrency in the
// background until Stop is called or ctx is cancelled. It fails if the
// workers are already running.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("flowstate: LocalRunner already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.Worker.Run(ctx, concurrency)
	}()
	r.logger.Debug("local_workers_started", slog.Int("concurrency", max(concurrency, 1)))
	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// StartAsync enqueues a task to start the given workflow asynchronously.
// The workflow must already be registered on LocalRunner.Engine.
func (r *LocalRunner) StartAsync(ctx context.Context, workflowName string, vars map[string]any) error {
	return r.Worker.EnqueueStart(ctx, workflowName, vars)
}

// ResumeAsync enqueues a task that continues a stored run.
func (r *LocalRunner) ResumeAsync(ctx context.Context, runID string) error {
	return r.Worker.EnqueueResume(ctx, runID)
}

// CancelAsync enqueues a task that cancels a run.
func (r *LocalRunner) CancelAsync(ctx context.Context, runID string) error {
	return r.Worker.EnqueueCancel(ctx, runID)
}
