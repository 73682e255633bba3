package api

import "context"

// RunListOptions filters ListRuns. Zero values mean "no filter".
type RunListOptions struct {
	WorkflowName string
	Status       RunStatus
}

// Engine is the high-level API over the executor: it owns workflow
// registration, run persistence and cancellation.
type Engine interface {
	// RegisterWorkflow registers a definition by name.
	RegisterWorkflow(wf Workflow) error

	// Start creates a run of the named workflow seeded with vars and drives
	// it until it finishes, fails, or ctx is cancelled. The run is returned
	// even when err != nil.
	Start(ctx context.Context, name string, vars map[string]any) (*WorkflowRun, error)

	// Resume continues a stored run that is still Running.
	// Runs that are Completed, Failed or Cancelled return ErrWorkflowCompleted.
	Resume(ctx context.Context, id string) (*WorkflowRun, error)

	// Step executes exactly one state of a stored Running run.
	Step(ctx context.Context, id string) (*WorkflowRun, error)

	// Cancel marks a run as Cancelled. If the run is being driven by this
	// engine, the driver stops at the next step boundary.
	Cancel(ctx context.Context, id string) (*WorkflowRun, error)

	// GetRun looks up a run by ID.
	GetRun(ctx context.Context, id string) (*WorkflowRun, error)

	// ListRuns returns runs matching opts.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*WorkflowRun, error)

	// Events returns the recorded execution events of a run, oldest first.
	Events(ctx context.Context, id string) ([]ExecutionEvent, error)
}
