package taskqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	TaskTypeStartRun  TaskType = "start-run"
	TaskTypeResumeRun TaskType = "resume-run"
	TaskTypeCancelRun TaskType = "cancel-run"
)

// ErrQueueFull is returned by bounded queues that cannot accept more tasks.
var ErrQueueFull = errors.New("task queue is full")

// Task represents a unit of work for the worker.
type Task struct {
	ID   string   `json:"id"`
	Type TaskType `json:"type"`

	// For start-run tasks
	WorkflowName string         `json:"workflow_name,omitempty"`
	Vars         map[string]any `json:"vars,omitempty"`

	// For resume-run and cancel-run tasks
	RunID string `json:"run_id,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately" (i.e., at enqueue time).
	NotBefore time.Time `json:"not_before"`

	// Attempts counts earlier failed attempts. Workers bump it when they
	// requeue a task.
	Attempts int `json:"attempts"`
}

// prepare fills in the ID and timestamps of a task about to be enqueued.
func prepare(t Task, now time.Time) Task {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}
	if t.NotBefore.IsZero() {
		t.NotBefore = t.EnqueuedAt
	}
	return t
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next due task, blocking until one is
	// available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
