package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

func normal(id string) api.State {
	return api.State{ID: api.StateID(id), Type: api.StateNormal}
}

func terminal(id string) api.State {
	return api.State{ID: api.StateID(id), Type: api.StateNormal, IsTerminal: true}
}

func typed(id string, typ api.StateType) api.State {
	return api.State{ID: api.StateID(id), Type: typ}
}

func withAction(s api.State, action string) api.State {
	s.Action = action
	return s
}

func edge(from, to string, c api.Condition) api.Transition {
	return api.Transition{From: api.StateID(from), To: api.StateID(to), Condition: c}
}

func workflow(name, initial string, states []api.State, transitions ...api.Transition) api.Workflow {
	m := make(map[api.StateID]api.State, len(states))
	for _, s := range states {
		m[s.ID] = s
	}
	return api.Workflow{
		Name:         name,
		InitialState: api.StateID(initial),
		States:       m,
		Transitions:  transitions,
	}
}

// scriptedActions dispatches on the first word of an action:
//
//	ok [output]    succeeds, optionally with output
//	fail           fails
//	error          returns an error
//	set k=v        writes vars[k] = v and succeeds
//
// Anything else is looked up in funcs.
type scriptedActions struct {
	mu    sync.Mutex
	calls []string
	funcs map[string]api.ActionFunc
}

func (a *scriptedActions) ExecuteAction(ctx context.Context, action string, vars map[string]any) (api.ActionResult, error) {
	a.mu.Lock()
	a.calls = append(a.calls, action)
	fn := a.funcs[action]
	a.mu.Unlock()

	if fn != nil {
		return fn(ctx, action, vars)
	}

	verb, arg, _ := strings.Cut(action, " ")
	switch verb {
	case "ok":
		return api.ActionResult{Success: true, Output: arg}, nil
	case "fail":
		return api.ActionResult{Success: false}, nil
	case "error":
		return api.ActionResult{}, fmt.Errorf("action %q exploded", action)
	case "set":
		k, v, _ := strings.Cut(arg, "=")
		vars[k] = v
		return api.ActionResult{Success: true}, nil
	default:
		return api.ActionResult{}, fmt.Errorf("unknown action %q", action)
	}
}

func (a *scriptedActions) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func newTestExecutor(actions api.ActionExecutor) *Executor {
	return New(Config{Actions: actions})
}
