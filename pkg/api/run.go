package api

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Reserved run-context keys.
const (
	// LastActionResultKey holds the boolean outcome of the most recent action.
	LastActionResultKey = "last_action_result"

	// ResultKey is where action output is written unless the action picks
	// another of ResultKeys.
	ResultKey = "result"
)

// ResultKeys lists, in priority order, the context keys that may carry the
// textual result of an action.
var ResultKeys = []string{"result", "output", "response", "claude_result"}

// IsResultKey reports whether key is one of ResultKeys.
func IsResultKey(key string) bool {
	for _, k := range ResultKeys {
		if k == key {
			return true
		}
	}
	return false
}

// RunStatus is the lifecycle status of a WorkflowRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no further steps may be executed in status s.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// HistoryEntry records that a run entered a state.
type HistoryEntry struct {
	State StateID   `json:"state"`
	At    time.Time `json:"at"`
}

// WorkflowRun is one execution of a Workflow.
type WorkflowRun struct {
	ID string `json:"id"`

	// ParentID is set on the sub-runs that execute fork branches.
	ParentID string `json:"parent_id,omitempty"`

	Workflow     Workflow          `json:"workflow"`
	Status       RunStatus         `json:"status"`
	CurrentState StateID           `json:"current_state"`
	Context      map[string]any    `json:"context"`
	History      []HistoryEntry    `json:"history"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewWorkflowRun creates a Running run positioned at the workflow's initial
// state. The run holds its own copy of wf.
func NewWorkflowRun(wf Workflow) *WorkflowRun {
	now := time.Now()
	return &WorkflowRun{
		ID:           uuid.NewString(),
		Workflow:     wf.Clone(),
		Status:       RunRunning,
		CurrentState: wf.InitialState,
		Context:      make(map[string]any),
		History:      []HistoryEntry{{State: wf.InitialState, At: now}},
		StartedAt:    now,
		Metadata:     make(map[string]string),
	}
}

// TransitionTo moves the run to state and records it in the history.
func (r *WorkflowRun) TransitionTo(state StateID) {
	r.CurrentState = state
	r.History = append(r.History, HistoryEntry{State: state, At: time.Now()})
}

// Complete marks the run as completed.
func (r *WorkflowRun) Complete() { r.finish(RunCompleted) }

// Fail marks the run as failed.
func (r *WorkflowRun) Fail() { r.finish(RunFailed) }

// Cancel marks the run as cancelled.
func (r *WorkflowRun) Cancel() { r.finish(RunCancelled) }

func (r *WorkflowRun) finish(s RunStatus) {
	now := time.Now()
	r.Status = s
	r.CompletedAt = &now
}

// IsTerminal reports whether the run has finished.
func (r *WorkflowRun) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Clone returns a deep copy of the run.
func (r *WorkflowRun) Clone() *WorkflowRun {
	out := *r
	out.Workflow = r.Workflow.Clone()
	out.Context = CloneContext(r.Context)
	out.History = append([]HistoryEntry(nil), r.History...)
	out.Metadata = maps.Clone(r.Metadata)
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

// CloneContext deep-copies a run context. Nested maps and slices are copied;
// other values are shared.
func CloneContext(src map[string]any) map[string]any {
	if src == nil {
		return make(map[string]any)
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneContext(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
