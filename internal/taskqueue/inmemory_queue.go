package taskqueue

import (
	"context"
	"sync"
	"time"
)

// InMemoryQueue is a bounded Queue kept in memory. Due tasks are handed out
// in NotBefore order, ties in enqueue order. It is safe for concurrent use.
type InMemoryQueue struct {
	mu       sync.Mutex
	tasks    []Task
	capacity int
	notify   chan struct{}
	now      func() time.Time
}

// NewInMemoryQueue creates a new queue with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	if len(q.tasks) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.tasks = append(q.tasks, prepare(t, q.now()))
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *InMemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		task, wait := q.next()
		if task != nil {
			if q.Len() > 0 {
				// Pass the wakeup on to other waiting consumers.
				q.signal()
			}
			return task, nil
		}

		if err := q.wait(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// wait blocks until a task may have become due: something was enqueued,
// d elapsed (when d > 0), or ctx is done.
func (q *InMemoryQueue) wait(ctx context.Context, d time.Duration) error {
	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.notify:
	case <-timeout:
	}
	return nil
}

// next removes and returns the first due task. Otherwise it returns how
// long until the earliest task becomes due, or 0 if the queue is empty.
func (q *InMemoryQueue) next() (*Task, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	best := -1
	for i, t := range q.tasks {
		if best < 0 || t.NotBefore.Before(q.tasks[best].NotBefore) {
			best = i
		}
	}
	if best < 0 {
		return nil, 0
	}

	t := q.tasks[best]
	if t.NotBefore.After(now) {
		return nil, t.NotBefore.Sub(now)
	}
	q.tasks = append(q.tasks[:best], q.tasks[best+1:]...)
	return &t, 0
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
