package persistence

import (
	"context"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

var (
	// ErrWorkflowNotFound is returned when a workflow definition is not found.
	ErrWorkflowNotFound = api.ErrWorkflowNotFound

	// ErrRunNotFound is returned when a workflow run is not found.
	ErrRunNotFound = api.ErrRunNotFound
)

// WorkflowStore handles storage of workflow definitions.
type WorkflowStore interface {
	SaveWorkflow(ctx context.Context, wf api.Workflow) error
	GetWorkflow(ctx context.Context, name string) (api.Workflow, error)
	// ListWorkflows returns the registered workflow names in sorted order.
	ListWorkflows(ctx context.Context) ([]string, error)
}

// RunFilter is used to select runs from the store.
// Empty string / zero status mean "no filter" for that field.
type RunFilter struct {
	WorkflowName string
	Status       api.RunStatus
}

// Matches reports whether run passes the filter.
func (f RunFilter) Matches(run *api.WorkflowRun) bool {
	if f.WorkflowName != "" && run.Workflow.Name != f.WorkflowName {
		return false
	}
	if f.Status != "" && run.Status != f.Status {
		return false
	}
	return true
}

// RunStore handles storage of workflow runs. Stores keep their own copy of
// a run: mutating a run after SaveRun or UpdateRun does not change what is
// stored.
type RunStore interface {
	SaveRun(ctx context.Context, run *api.WorkflowRun) error
	// UpdateRun overwrites an existing run and returns ErrRunNotFound if
	// the run was never saved.
	UpdateRun(ctx context.Context, run *api.WorkflowRun) error
	GetRun(ctx context.Context, id string) (*api.WorkflowRun, error)
	// ListRuns returns the matching runs ordered by start time.
	ListRuns(ctx context.Context, filter RunFilter) ([]*api.WorkflowRun, error)
}
