package executor

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// executeFork runs every outgoing transition of a Fork state as a
// concurrent branch, waits for all of them to reach the join state, merges
// their contexts into run and moves run to the join state.
//
// Branch conditions are not evaluated: a fork always starts all branches.
func (e *Executor) executeFork(ctx context.Context, run *api.WorkflowRun, fork api.State) (bool, error) {
	branches := run.Workflow.TransitionsFrom(fork.ID)
	if len(branches) < 2 {
		return false, api.ExecutionFailed("fork state %q needs at least 2 outgoing transitions, found %d", fork.ID, len(branches))
	}

	join, err := findJoin(&run.Workflow, branches)
	if err != nil {
		return false, err
	}
	joinState, ok := run.Workflow.State(join)
	if !ok {
		return false, &api.StateNotFoundError{State: join}
	}

	e.emit(run, api.EventStateExecution, "fork %q: %d branches joining at %q", fork.ID, len(branches), join)

	done, err := e.runBranches(ctx, run, branches, join)
	if err != nil {
		if !cancelled(ctx, err) {
			run.Fail()
		}
		return false, err
	}

	e.mergeBranches(ctx, run, done)
	e.enter(ctx, run, fork.ID, joinState)
	return true, nil
}

// findJoin returns the first Join state, in transition declaration order,
// that every branch can reach.
func findJoin(wf *api.Workflow, branches []api.Transition) (api.StateID, error) {
	reach := make([]map[api.StateID]bool, len(branches))
	for i, b := range branches {
		reach[i] = reachable(wf, b.To)
	}

	seen := make(map[api.StateID]bool)
	for _, t := range wf.Transitions {
		if seen[t.To] {
			continue
		}
		seen[t.To] = true

		s, ok := wf.State(t.To)
		if !ok || s.Type != api.StateJoin {
			continue
		}
		all := true
		for _, r := range reach {
			if !r[t.To] {
				all = false
				break
			}
		}
		if all {
			return t.To, nil
		}
	}
	return "", api.ExecutionFailed("no join state is reachable from all %d branches of fork at %q", len(branches), branches[0].From)
}

// reachable returns the states reachable from start, start included.
func reachable(wf *api.Workflow, start api.StateID) map[api.StateID]bool {
	out := map[api.StateID]bool{start: true}
	queue := []api.StateID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, t := range wf.Transitions {
			if t.From == cur && !out[t.To] {
				out[t.To] = true
				queue = append(queue, t.To)
			}
		}
	}
	return out
}

// branchResult is a branch sub-run that reached the join state.
type branchResult struct {
	run *api.WorkflowRun

	// base is the context the branch started from, used to tell which keys
	// the branch changed.
	base map[string]any
}

func (e *Executor) runBranches(ctx context.Context, parent *api.WorkflowRun, branches []api.Transition, join api.StateID) ([]branchResult, error) {
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	done := make([]branchResult, 0, len(branches))
	base := api.CloneContext(parent.Context)

	for i, t := range branches {
		branch := newBranchRun(parent, i, t.To)
		g.Go(func() error {
			if err := e.runBranch(gctx, branch, t, join); err != nil {
				return fmt.Errorf("fork branch %d (%s): %w", i, t.To, err)
			}
			mu.Lock()
			done = append(done, branchResult{run: branch, base: base})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return done, nil
}

func newBranchRun(parent *api.WorkflowRun, index int, start api.StateID) *api.WorkflowRun {
	now := time.Now()
	return &api.WorkflowRun{
		ID:           fmt.Sprintf("%s/branch-%d", parent.ID, index),
		ParentID:     parent.ID,
		Workflow:     parent.Workflow,
		Status:       api.RunRunning,
		CurrentState: start,
		Context:      api.CloneContext(parent.Context),
		History:      []api.HistoryEntry{{State: start, At: now}},
		StartedAt:    now,
		Metadata:     make(map[string]string),
	}
}

// runBranch steps branch until it reaches join. Reaching a terminal state
// first, exceeding the branch bound, or any step error fails the branch.
func (e *Executor) runBranch(ctx context.Context, branch *api.WorkflowRun, entry api.Transition, join api.StateID) error {
	if entry.Action != "" {
		if err := e.runAction(ctx, branch, entry.Action); err != nil {
			return err
		}
	}

	for steps := 0; ; steps++ {
		if branch.CurrentState == join {
			return nil
		}
		if branch.IsTerminal() {
			return api.ExecutionFailed("branch ended at %q before reaching join state %q", branch.CurrentState, join)
		}
		if steps >= e.maxBranchTransitions {
			return api.ExecutionFailed("branch did not reach join state %q within %d transitions", join, e.maxBranchTransitions)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.step(ctx, branch); err != nil {
			return err
		}
	}
}

// mergeBranches copies the keys each branch changed into run, in the order
// the branches finished, so the later branch wins a collision. The
// last action result is branch-local and never merged.
func (e *Executor) mergeBranches(ctx context.Context, run *api.WorkflowRun, done []branchResult) {
	writer := make(map[string]string)
	for _, b := range done {
		for k, v := range b.run.Context {
			if k == api.LastActionResultKey {
				continue
			}
			if orig, ok := b.base[k]; ok && reflect.DeepEqual(orig, v) {
				continue
			}
			if prev, ok := writer[k]; ok && !reflect.DeepEqual(run.Context[k], v) {
				e.logger.WarnContext(ctx, "fork_merge_collision",
					slog.String("run_id", run.ID),
					slog.String("key", k),
					slog.String("overwritten_by", b.run.ID),
					slog.String("previous_writer", prev),
				)
			}
			run.Context[k] = v
			writer[k] = b.run.ID
		}
		run.History = append(run.History, b.run.History...)
	}
}
