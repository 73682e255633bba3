// Package flowstate provides an embeddable workflow engine for Go that runs
// declarative finite state machines.
//
// A workflow is a set of named states connected by conditional transitions.
// Fork states split a run into concurrent branches and Join states bring them
// back together. Execution is bounded, auditable and deterministic outside
// of fork windows.
//
// # Core Concepts
//
// The programming model is small:
//
//  1. Workflow and WorkflowBuilder
//  2. Conditions
//  3. Actions
//  4. Engine
//  5. Worker and LocalRunner
//
// # Workflows
//
// A Workflow has an initial state, a map of states and an ordered list of
// transitions. States are Normal, Fork, Join or Choice, and any state may be
// terminal. WorkflowBuilder is the fluent way to define one:
//
//	flowstate.NewWorkflow("review").
//	    State("draft", "set status=draft").
//	    Choice("gate", "").
//	    Terminal("published").
//	    Terminal("rejected").
//	    Transition("draft", "gate", flowstate.Always()).
//	    Transition("gate", "published", flowstate.When(`score >= 7`)).
//	    Transition("gate", "rejected", flowstate.When(`default`))
//
// Workflows can also be loaded from YAML files with the flowstate CLI.
//
// # Conditions
//
// Transitions out of a state are evaluated in declaration order and the
// first match wins. Always and Never are constant, OnSuccess and OnFailure
// read the outcome of the last action (OnSuccess defaults to true when
// nothing ran), and When evaluates a guard expression against the run
// context. Guard expressions are validated, compiled once and cached.
//
// Choice states must have a deterministic condition set and must match; a
// Normal state whose conditions do not match simply stays put and is caught
// by the transition bound.
//
// # Actions
//
// States and transitions name an action as a plain string. The engine hands
// it to an ActionExecutor together with the run context; the success flag
// and output are written back for the conditions to read. The actions
// package provides a Registry with log, set, wait, fail and succeed verbs.
//
// # Engine
//
// The Engine stores workflow definitions and runs, and provides APIs to:
//   - start runs synchronously
//   - resume runs after a restart
//   - step a run one state at a time
//   - cancel runs, including ones being driven
//   - read runs and their execution events
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//   - MongoDB
//
// # Worker
//
// A Worker pulls start, resume and cancel tasks from a queue and applies
// them to an Engine. LocalRunner bundles an in-memory engine, queue and
// worker goroutines for development; NewSQLiteBundle provides a durable
// equivalent on a single SQLite database.
//
// For examples, see the /examples directory.
package flowstate
