package api

import (
	"errors"
	"fmt"
)

var (
	// ErrStateNotFound is matched by *StateNotFoundError.
	ErrStateNotFound = errors.New("state not found")

	// ErrWorkflowCompleted is returned when resuming or stepping a run that
	// is already completed, failed or cancelled.
	ErrWorkflowCompleted = errors.New("workflow already completed")

	// ErrTransitionLimitExceeded is matched by *TransitionLimitError.
	ErrTransitionLimitExceeded = errors.New("transition limit exceeded")

	// ErrExecutionFailed is matched by *ExecutionError.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrExpression is matched by *ExpressionError.
	ErrExpression = errors.New("expression error")

	// ErrWorkflowNotFound is returned by engines for unknown workflow names.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound is returned by engines for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
)

// StateNotFoundError reports a reference to a state missing from the workflow.
type StateNotFoundError struct {
	State StateID
}

func (e *StateNotFoundError) Error() string {
	return fmt.Sprintf("state not found: %s", e.State)
}

func (e *StateNotFoundError) Is(target error) bool { return target == ErrStateNotFound }

// TransitionLimitError is returned when a run performs more transitions than
// the executor allows.
type TransitionLimitError struct {
	Limit int
}

func (e *TransitionLimitError) Error() string {
	return fmt.Sprintf("transition limit exceeded: %d", e.Limit)
}

func (e *TransitionLimitError) Is(target error) bool { return target == ErrTransitionLimitExceeded }

// ExecutionError is a structural or runtime failure while executing a run.
type ExecutionError struct {
	Reason string
}

func (e *ExecutionError) Error() string {
	return "execution failed: " + e.Reason
}

func (e *ExecutionError) Is(target error) bool { return target == ErrExecutionFailed }

// ExecutionFailed builds an *ExecutionError.
func ExecutionFailed(format string, args ...any) error {
	return &ExecutionError{Reason: fmt.Sprintf(format, args...)}
}

// ExpressionError reports an expression that was rejected, failed to compile,
// failed at run time, timed out, or produced a non-boolean-like value.
type ExpressionError struct {
	Expression string
	Reason     string
	Err        error
}

func (e *ExpressionError) Error() string {
	msg := "expression error: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExpressionError) Unwrap() error { return e.Err }

func (e *ExpressionError) Is(target error) bool { return target == ErrExpression }

// IsExpressionError reports whether err carries an *ExpressionError.
func IsExpressionError(err error) bool {
	var ee *ExpressionError
	return errors.As(err, &ee)
}
