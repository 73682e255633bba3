package api

import "context"

// ActionResult is what an ActionExecutor reports back to the executor.
type ActionResult struct {
	Success bool

	// Output is written into the run context when non-empty.
	Output string

	// OutputKey selects which of ResultKeys receives Output. Empty or
	// unknown keys fall back to ResultKey.
	OutputKey string
}

// ActionExecutor runs the opaque action identifiers attached to states and
// transitions. Implementations may read and write vars, which is the run
// context (or a fork branch's copy of it).
//
// A returned error is treated the same as Success == false.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, action string, vars map[string]any) (ActionResult, error)
}

// ActionFunc adapts a function to ActionExecutor.
type ActionFunc func(ctx context.Context, action string, vars map[string]any) (ActionResult, error)

func (f ActionFunc) ExecuteAction(ctx context.Context, action string, vars map[string]any) (ActionResult, error) {
	return f(ctx, action, vars)
}
