// Package executor drives workflow runs through their state machines.
//
// A run advances one step at a time: the current state's action runs, the
// first outgoing transition whose condition holds is taken, and the run
// enters its target. Fork states start every outgoing branch concurrently
// and resume the parent at the first join state all branches reach.
package executor
