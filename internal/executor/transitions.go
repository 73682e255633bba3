package executor

import (
	"fmt"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// selectTransition returns the first outgoing transition of state whose
// condition holds, or nil when none does. Choice states are validated first
// and must always select something.
func (e *Executor) selectTransition(run *api.WorkflowRun, state api.State) (*api.Transition, error) {
	candidates := run.Workflow.TransitionsFrom(state.ID)

	if state.Type == api.StateChoice {
		if err := validateChoice(state.ID, candidates); err != nil {
			return nil, err
		}
	}

	for i := range candidates {
		t := candidates[i]
		ok, err := e.evaluateCondition(t.Condition, run.Context)
		if err != nil {
			return nil, fmt.Errorf("transition %s -> %s: %w", t.From, t.To, err)
		}
		e.emit(run, api.EventConditionEvaluated, "%s -> %s: %s = %t", t.From, t.To, t.Condition, ok)
		if ok {
			return &t, nil
		}
	}

	if state.Type == api.StateChoice {
		return nil, api.ExecutionFailed("choice state %q: no matching conditions", state.ID)
	}
	return nil, nil
}

// validateChoice checks that a Choice state can pick a target
// deterministically: it needs outgoing transitions, may not use Never, and
// may only repeat OnSuccess or OnFailure when a default transition exists.
func validateChoice(id api.StateID, transitions []api.Transition) error {
	if len(transitions) == 0 {
		return api.ExecutionFailed("choice state %q has no outgoing transitions", id)
	}

	var onSuccess, onFailure int
	hasDefault := false
	for _, t := range transitions {
		switch t.Condition.Type {
		case api.ConditionNever:
			return api.ExecutionFailed("choice state %q has a never condition to %q", id, t.To)
		case api.ConditionOnSuccess:
			onSuccess++
		case api.ConditionOnFailure:
			onFailure++
		}
		if t.Condition.IsDefault() {
			hasDefault = true
		}
	}

	if !hasDefault && (onSuccess > 1 || onFailure > 1) {
		return api.ExecutionFailed(
			"choice state %q has ambiguous conditions (%d on_success, %d on_failure) and no default transition",
			id, onSuccess, onFailure,
		)
	}
	return nil
}
