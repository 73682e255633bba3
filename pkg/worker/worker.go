package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowstate-dev/flowstate/internal/taskqueue"
	"github.com/flowstate-dev/flowstate/pkg/api"
)

// Config controls how a Worker handles tasks that fail for transient
// reasons, such as a store being unavailable.
type Config struct {
	// MaxAttempts is the total number of attempts per task, including the
	// first. Values below 1 mean a single attempt.
	MaxAttempts int

	// Backoff is the delay before the first retry. It doubles per attempt.
	Backoff time.Duration

	Logger *slog.Logger
}

// Worker pulls tasks from a Queue and executes them using an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Worker that attempts every task once.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return NewWithConfig(engine, queue, Config{})
}

// NewWithConfig creates a Worker with a retry policy.
func NewWithConfig(engine api.Engine, queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		engine: engine,
		queue:  queue,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// EnqueueStart enqueues a task that starts a run of the named workflow
// seeded with vars. It does not run the workflow itself; that is done by
// ProcessOne.
func (w *Worker) EnqueueStart(ctx context.Context, workflowName string, vars map[string]any) error {
	return w.EnqueueStartAt(ctx, workflowName, vars, time.Time{})
}

// EnqueueStartAt is like EnqueueStart but the run is started no earlier
// than at.
func (w *Worker) EnqueueStartAt(ctx context.Context, workflowName string, vars map[string]any, at time.Time) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:         taskqueue.TaskTypeStartRun,
		WorkflowName: workflowName,
		Vars:         api.CloneContext(vars),
		NotBefore:    at,
	})
}

// EnqueueResume enqueues a task that continues a stored run.
func (w *Worker) EnqueueResume(ctx context.Context, runID string) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:  taskqueue.TaskTypeResumeRun,
		RunID: runID,
	})
}

// EnqueueCancel enqueues a task that cancels a run.
func (w *Worker) EnqueueCancel(ctx context.Context, runID string) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:  taskqueue.TaskTypeCancelRun,
		RunID: runID,
	})
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained, err says why (usually ctx).
//   - processed == true: a task was handled; err is the handler's error.
//
// A task that fails transiently is requeued with a backoff until
// Config.MaxAttempts is reached; the error is still returned.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	var run *api.WorkflowRun
	switch task.Type {
	case taskqueue.TaskTypeStartRun:
		run, err = w.engine.Start(ctx, task.WorkflowName, task.Vars)
	case taskqueue.TaskTypeResumeRun:
		run, err = w.engine.Resume(ctx, task.RunID)
	case taskqueue.TaskTypeCancelRun:
		run, err = w.engine.Cancel(ctx, task.RunID)
	default:
		return true, fmt.Errorf("unknown task type: %s", task.Type)
	}

	if err != nil {
		w.logger.WarnContext(ctx, "task_failed",
			slog.String("task_id", task.ID),
			slog.String("type", string(task.Type)),
			slog.Int("attempt", task.Attempts+1),
			slog.Any("error", err),
		)
		if retryable(err) {
			w.retry(ctx, *task, run)
		}
	}
	return true, err
}

// Run processes tasks on concurrency goroutines until ctx is cancelled.
// Task failures are logged by ProcessOne. When the queue itself fails the
// goroutine waits Config.Backoff (or a second) before polling again.
func (w *Worker) Run(ctx context.Context, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	pause := w.cfg.Backoff
	if pause <= 0 {
		pause = time.Second
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Go(func() {
			for {
				processed, err := w.ProcessOne(ctx)
				if ctx.Err() != nil {
					return
				}
				if processed || err == nil {
					continue
				}
				w.logger.ErrorContext(ctx, "worker_dequeue_failed",
					slog.Int("worker", i),
					slog.Any("error", err),
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(pause):
				}
			}
		})
	}
	wg.Wait()
	return nil
}

// retry requeues t unless it has used up its attempts. A start task whose
// run was already created is retried as a resume of that run so the
// workflow is not started twice.
func (w *Worker) retry(ctx context.Context, t taskqueue.Task, run *api.WorkflowRun) {
	if t.Attempts+1 >= w.cfg.MaxAttempts {
		return
	}
	if run != nil && t.Type == taskqueue.TaskTypeStartRun {
		if run.IsTerminal() {
			return
		}
		t.Type = taskqueue.TaskTypeResumeRun
		t.RunID = run.ID
		t.WorkflowName = ""
		t.Vars = nil
	}

	delay := w.cfg.Backoff << t.Attempts
	t.Attempts++
	t.NotBefore = w.now().Add(delay)

	if err := w.queue.Enqueue(context.WithoutCancel(ctx), t); err != nil {
		w.logger.ErrorContext(ctx, "task_requeue_failed",
			slog.String("task_id", t.ID),
			slog.Any("error", err),
		)
	}
}

// retryable reports whether err may go away on another attempt. Workflow
// defects, unknown ids and cancellation are permanent.
func retryable(err error) bool {
	for _, permanent := range []error{
		api.ErrWorkflowNotFound,
		api.ErrRunNotFound,
		api.ErrWorkflowCompleted,
		api.ErrStateNotFound,
		api.ErrTransitionLimitExceeded,
		api.ErrExecutionFailed,
		api.ErrExpression,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}
