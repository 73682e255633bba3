package engine

import (
	"context"
	"fmt"
	"sync"
)

// activeRun is a run currently being driven by this engine.
type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// runRegistry tracks in-flight runs so Cancel can reach their driver and
// a run is never driven twice at once.
type runRegistry struct {
	mu   sync.Mutex
	runs map[string]*activeRun
}

func newRunRegistry() *runRegistry {
	return &runRegistry{
		runs: make(map[string]*activeRun),
	}
}

// Register claims id for the caller. The returned context is cancelled by
// Cancel; release must be called once the driver returns.
func (r *runRegistry) Register(ctx context.Context, id string) (context.Context, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[id]; exists {
		return nil, nil, fmt.Errorf("run %s is already being executed", id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a := &activeRun{cancel: cancel, done: make(chan struct{})}
	r.runs[id] = a

	release := func() {
		r.mu.Lock()
		delete(r.runs, id)
		r.mu.Unlock()
		cancel()
		close(a.done)
	}
	return runCtx, release, nil
}

// Cancel cancels the driver of id and returns a channel closed once the
// driver has released the run. ok is false when id is not in flight.
func (r *runRegistry) Cancel(id string) (done <-chan struct{}, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.runs[id]
	if !exists {
		return nil, false
	}
	a.cancel()
	return a.done, true
}

// Active returns the IDs of the runs in flight.
func (r *runRegistry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.runs))
	for id := range r.runs {
		out = append(out, id)
	}
	return out
}
