package api

import (
	"fmt"
	"maps"
	"strings"
)

// StateID names a state within a workflow.
type StateID string

// StateType distinguishes how the executor treats a state.
type StateType string

const (
	StateNormal StateType = "normal"
	StateFork   StateType = "fork"
	StateJoin   StateType = "join"
	StateChoice StateType = "choice"
)

// ParseStateType parses a state type name case-insensitively.
// An empty string means StateNormal.
func ParseStateType(s string) (StateType, error) {
	switch StateType(strings.ToLower(strings.TrimSpace(s))) {
	case "", StateNormal:
		return StateNormal, nil
	case StateFork:
		return StateFork, nil
	case StateJoin:
		return StateJoin, nil
	case StateChoice:
		return StateChoice, nil
	default:
		return "", fmt.Errorf("unknown state type: %q", s)
	}
}

// ConditionType is the kind of guard attached to a transition.
type ConditionType string

const (
	ConditionAlways    ConditionType = "always"
	ConditionNever     ConditionType = "never"
	ConditionOnSuccess ConditionType = "on_success"
	ConditionOnFailure ConditionType = "on_failure"
	ConditionCustom    ConditionType = "custom"
)

// ParseConditionType parses a condition kind case-insensitively.
// Both "on_success" and "onsuccess" spellings are accepted.
func ParseConditionType(s string) (ConditionType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	switch norm {
	case "always":
		return ConditionAlways, nil
	case "never":
		return ConditionNever, nil
	case "on_success", "onsuccess":
		return ConditionOnSuccess, nil
	case "on_failure", "onfailure":
		return ConditionOnFailure, nil
	case "custom":
		return ConditionCustom, nil
	default:
		return "", fmt.Errorf("unknown condition type: %q", s)
	}
}

// DefaultExpression is the Custom expression that always matches and marks
// a transition as the fallback of a Choice state.
const DefaultExpression = "default"

// Condition guards a transition.
type Condition struct {
	Type ConditionType `json:"type"`

	// Expression is only meaningful for ConditionCustom.
	Expression string `json:"expression,omitempty"`
}

// Always returns an unconditional guard.
func Always() Condition { return Condition{Type: ConditionAlways} }

// Never returns a guard that never matches.
func Never() Condition { return Condition{Type: ConditionNever} }

// OnSuccess matches when the last action succeeded.
func OnSuccess() Condition { return Condition{Type: ConditionOnSuccess} }

// OnFailure matches when the last action failed.
func OnFailure() Condition { return Condition{Type: ConditionOnFailure} }

// When returns a Custom guard evaluating expr.
func When(expr string) Condition { return Condition{Type: ConditionCustom, Expression: expr} }

// IsDefault reports whether c acts as a fallback in a Choice state.
func (c Condition) IsDefault() bool {
	switch c.Type {
	case ConditionAlways:
		return true
	case ConditionCustom:
		return strings.TrimSpace(c.Expression) == DefaultExpression
	default:
		return false
	}
}

func (c Condition) String() string {
	if c.Type == ConditionCustom {
		return fmt.Sprintf("custom(%s)", c.Expression)
	}
	return string(c.Type)
}

// State is a node of the workflow graph.
type State struct {
	ID          StateID           `json:"id"`
	Description string            `json:"description,omitempty"`
	Type        StateType         `json:"type"`
	IsTerminal  bool              `json:"is_terminal,omitempty"`
	Action      string            `json:"action,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Transition is a directed, guarded edge between two states.
type Transition struct {
	From      StateID           `json:"from"`
	To        StateID           `json:"to"`
	Condition Condition         `json:"condition"`
	Action    string            `json:"action,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Workflow is a loaded workflow definition. It is treated as immutable once
// registered; runs hold their own copy.
type Workflow struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	InitialState StateID           `json:"initial_state"`
	States       map[StateID]State `json:"states"`
	Transitions  []Transition      `json:"transitions"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// State looks up a state by id.
func (w *Workflow) State(id StateID) (State, bool) {
	s, ok := w.States[id]
	return s, ok
}

// TransitionsFrom returns the transitions leaving id, in declaration order.
func (w *Workflow) TransitionsFrom(id StateID) []Transition {
	var out []Transition
	for _, t := range w.Transitions {
		if t.From == id {
			out = append(out, t)
		}
	}
	return out
}

// Clone returns a deep copy of the workflow.
func (w Workflow) Clone() Workflow {
	out := w
	out.Metadata = maps.Clone(w.Metadata)
	if w.States != nil {
		out.States = make(map[StateID]State, len(w.States))
		for id, s := range w.States {
			s.Metadata = maps.Clone(s.Metadata)
			out.States[id] = s
		}
	}
	if w.Transitions != nil {
		out.Transitions = make([]Transition, len(w.Transitions))
		for i, t := range w.Transitions {
			t.Metadata = maps.Clone(t.Metadata)
			out.Transitions[i] = t
		}
	}
	return out
}
