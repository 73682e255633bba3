package api

import "time"

// EventType identifies an execution event.
type EventType string

const (
	EventStarted            EventType = "run.started"
	EventStateTransition    EventType = "state.transition"
	EventStateExecution     EventType = "state.execution"
	EventConditionEvaluated EventType = "condition.evaluated"
	EventCompleted          EventType = "run.completed"
	EventFailed             EventType = "run.failed"
	EventCancelled          EventType = "run.cancelled"
)

// ExecutionEvent is a small diagnostic record emitted by the executor.
// Keep Details short; it is meant for humans, not payloads.
type ExecutionEvent struct {
	RunID    string    `json:"run_id"`
	Workflow string    `json:"workflow"`
	State    StateID   `json:"state,omitempty"`
	Type     EventType `json:"type"`
	Details  string    `json:"details"`
	At       time.Time `json:"at"`
}
