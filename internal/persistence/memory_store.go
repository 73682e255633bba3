package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of
// WorkflowStore, RunStore and EventStore backed by maps. Runs are cloned
// on the way in and out.
type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]api.Workflow
	runs      map[string]*api.WorkflowRun
	events    map[string][]api.ExecutionEvent
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		workflows: make(map[string]api.Workflow),
		runs:      make(map[string]*api.WorkflowRun),
		events:    make(map[string][]api.ExecutionEvent),
	}
}

// Ensure InMemoryStore implements the interfaces.
var (
	_ WorkflowStore = (*InMemoryStore)(nil)
	_ RunStore      = (*InMemoryStore)(nil)
	_ EventStore    = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) SaveWorkflow(ctx context.Context, wf api.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[wf.Name] = wf.Clone()
	return nil
}

func (s *InMemoryStore) GetWorkflow(ctx context.Context, name string) (api.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[name]
	if !ok {
		return api.Workflow{}, ErrWorkflowNotFound
	}
	return wf.Clone(), nil
}

func (s *InMemoryStore) ListWorkflows(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.workflows))
	for name := range s.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *InMemoryStore) SaveRun(ctx context.Context, run *api.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run.Clone()
	return nil
}

func (s *InMemoryStore) UpdateRun(ctx context.Context, run *api.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

func (s *InMemoryStore) GetRun(ctx context.Context, id string) (*api.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Clone(), nil
}

func (s *InMemoryStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.WorkflowRun
	for _, run := range s.runs {
		if filter.Matches(run) {
			result = append(result, run.Clone())
		}
	}
	sortRuns(result)
	return result, nil
}

func (s *InMemoryStore) AppendEvent(ctx context.Context, ev api.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return nil
}

func (s *InMemoryStore) ListEvents(ctx context.Context, runID string) ([]api.ExecutionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]api.ExecutionEvent(nil), s.events[runID]...), nil
}
