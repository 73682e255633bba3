// Package api contains the core types shared by the flowstate workflow
// engine: workflow definitions, runs, conditions, actions, errors, events
// and observers.
//
// Most users interact with the higher-level flowstate package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom integrations, new storage backends and the
// engine's own packages.
//
// # Workflows
//
// A Workflow is an immutable graph of States joined by ordered Transitions.
// State types form a closed set (Normal, Fork, Join, Choice) and so do
// condition types (Always, Never, OnSuccess, OnFailure, Custom); the Parse
// helpers reject unknown names. Transition endpoints are not checked when
// a workflow is built; a missing state surfaces as ErrStateNotFound when
// execution reaches it.
//
// # Runs
//
// A WorkflowRun is one execution of a workflow. It owns a copy of its
// definition, the current state, a JSON-shaped context map, an append-only
// history and a status. Completed, Failed and Cancelled runs are final.
//
// Actions write their outcome into the context: the success flag under
// LastActionResultKey and their output under one of the result keys.
//
// # Errors
//
// Sentinel errors (ErrStateNotFound, ErrWorkflowCompleted,
// ErrTransitionLimitExceeded, ErrExecutionFailed, ErrExpression, ...) work
// with errors.Is. The typed errors carry the details and work with
// errors.As.
//
// # Observability
//
// The Observer interface is called by executors and engines on run, state
// and transition events. NoopObserver, CompositeObserver, LoggingObserver
// and BasicMetrics are ready-made implementations; the metrics and tracing
// packages add Prometheus and OpenTelemetry ones.
package api
