// Package actions provides a small action language for workflow states
// and transitions.
//
// A Registry implements api.ActionExecutor. The first word of an action
// string selects a handler and the remainder, after ${var} substitution
// from the run context, is passed to it:
//
//	log processing ${item}
//	log warn disk almost full
//	set attempts=3
//	set status="ready"
//	wait 250ms
//	fail upstream returned ${code}
//	succeed done
//
// Applications add their own verbs with Registry.Register. WithRetry wraps
// any api.ActionExecutor with an exponential backoff retry policy.
package actions
