package executor

import (
	"strings"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// evaluateCondition decides whether a transition guard holds for vars.
//
// OnSuccess and OnFailure read the last action's outcome; a missing or
// non-boolean value counts as success.
func (e *Executor) evaluateCondition(c api.Condition, vars map[string]any) (bool, error) {
	switch c.Type {
	case api.ConditionAlways:
		return true, nil
	case api.ConditionNever:
		return false, nil
	case api.ConditionOnSuccess:
		ok, present := vars[api.LastActionResultKey].(bool)
		if !present {
			return true, nil
		}
		return ok, nil
	case api.ConditionOnFailure:
		ok, present := vars[api.LastActionResultKey].(bool)
		if !present {
			return false, nil
		}
		return !ok, nil
	case api.ConditionCustom:
		if strings.TrimSpace(c.Expression) == "" {
			return false, &api.ExpressionError{Reason: "Custom condition requires an expression"}
		}
		return e.evaluator.Evaluate(c.Expression, vars)
	default:
		return false, api.ExecutionFailed("unknown condition type %q", c.Type)
	}
}
