// Package worker applies queued tasks to a workflow engine.
//
// A Worker consumes tasks from a taskqueue.Queue and turns each into one
// engine call:
//
//   - start-run: Engine.Start with the task's workflow name and vars
//   - resume-run: Engine.Resume of a stored run
//   - cancel-run: Engine.Cancel of a run, in flight or idle
//
// Tasks may carry a NotBefore time; queues hand them out once due.
//
// # Retries
//
// Errors that describe the workflow or the request (unknown workflow or
// run, a finished run, transition limits, expression and execution
// failures, cancellation) are final. Any other error, typically a store
// being unavailable, is treated as transient and the task is requeued with
// an exponential backoff until Config.MaxAttempts is reached. A start task
// whose run already exists is requeued as a resume of that run, so the
// workflow is never started twice.
//
// # Usage
//
// Workers are decoupled from any persistence backend. Most users create
// them through flowstate.NewLocalRunner or flowstate.NewSQLiteBundle and run
// ProcessOne in a loop on one or more goroutines; several workers may share
// one queue.
package worker
