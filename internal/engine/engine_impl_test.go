package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowstate-dev/flowstate/internal/executor"
	"github.com/flowstate-dev/flowstate/pkg/api"
)

func linearWorkflow(name string) api.Workflow {
	return api.Workflow{
		Name:         name,
		InitialState: "a",
		States: map[api.StateID]api.State{
			"a": {ID: "a", Type: api.StateNormal, Action: "greet"},
			"b": {ID: "b", Type: api.StateNormal},
			"c": {ID: "c", Type: api.StateNormal, IsTerminal: true},
		},
		Transitions: []api.Transition{
			{From: "a", To: "b", Condition: api.OnSuccess()},
			{From: "b", To: "c", Condition: api.When(`count > 1`)},
		},
	}
}

var greet = api.ActionFunc(func(ctx context.Context, action string, vars map[string]any) (api.ActionResult, error) {
	return api.ActionResult{Success: true, Output: "hello " + action}, nil
})

func newTestEngine(t *testing.T, actions api.ActionExecutor) *Engine {
	t.Helper()
	return NewInMemoryEngine(Config{Executor: executor.Config{Actions: actions}})
}

func TestEngine_StartCompletesAndPersists(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, greet)
	if err := e.RegisterWorkflow(linearWorkflow("linear")); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	run, err := e.Start(ctx, "linear", map[string]any{"count": 2})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if run.Status != api.RunCompleted || run.CurrentState != "c" {
		t.Fatalf("unexpected run: %s at %s", run.Status, run.CurrentState)
	}

	stored, err := e.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if stored.Status != api.RunCompleted || stored.Context[api.ResultKey] != "hello greet" {
		t.Fatalf("stored run is stale: %s %v", stored.Status, stored.Context)
	}

	events, err := e.Events(ctx, run.ID)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) == 0 || events[0].Type != api.EventStarted || events[len(events)-1].Type != api.EventCompleted {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestEngine_StartDoesNotAliasVars(t *testing.T) {
	e := newTestEngine(t, greet)
	if err := e.RegisterWorkflow(linearWorkflow("linear")); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	vars := map[string]any{"count": 2}
	if _, err := e.Start(context.Background(), "linear", vars); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, ok := vars[api.ResultKey]; ok {
		t.Fatalf("caller vars were modified: %v", vars)
	}
}

func TestEngine_StartUnknownWorkflow(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.Start(context.Background(), "nope", nil)
	if !errors.Is(err, api.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestEngine_RegisterWorkflowValidation(t *testing.T) {
	e := newTestEngine(t, nil)

	if err := e.RegisterWorkflow(api.Workflow{}); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := e.RegisterWorkflow(api.Workflow{Name: "empty"}); err == nil {
		t.Fatalf("expected error for workflow without states")
	}

	wf := linearWorkflow("bad-initial")
	wf.InitialState = "zzz"
	if err := e.RegisterWorkflow(wf); !errors.Is(err, api.ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound for missing initial state, got %v", err)
	}

	if err := e.RegisterWorkflow(linearWorkflow("dup")); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	if err := e.RegisterWorkflow(linearWorkflow("dup")); err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
}

func TestEngine_StepAndResume(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, greet)
	if err := e.RegisterWorkflow(linearWorkflow("linear")); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	// count is too small, so the run parks at b and stays Running.
	run, err := e.Start(ctx, "linear", map[string]any{"count": 0})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if run.Status != api.RunRunning || run.CurrentState != "b" {
		t.Fatalf("expected running at b, got %s at %s", run.Status, run.CurrentState)
	}

	stored, err := e.GetRun(ctx, run.ID)
	if err != nil || stored.Status != api.RunRunning || stored.CurrentState != "b" {
		t.Fatalf("expected the parked run to be stored, got %v (%v)", stored, err)
	}

	stepped, err := e.Step(ctx, run.ID)
	if err != nil || stepped.CurrentState != "b" {
		t.Fatalf("expected step to leave the run at b, got %v (%v)", stepped, err)
	}
	resumed, err := e.Resume(ctx, run.ID)
	if err != nil || resumed.Status != api.RunRunning {
		t.Fatalf("expected resume to park again, got %v (%v)", resumed, err)
	}

	if _, err := e.Cancel(ctx, run.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := e.Resume(ctx, run.ID); !errors.Is(err, api.ErrWorkflowCompleted) {
		t.Fatalf("expected ErrWorkflowCompleted on resume of cancelled run, got %v", err)
	}
	if _, err := e.Step(ctx, run.ID); !errors.Is(err, api.ErrWorkflowCompleted) {
		t.Fatalf("expected ErrWorkflowCompleted on step of cancelled run, got %v", err)
	}
}

func TestEngine_StepDrivesStoredRun(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, greet)
	wf := linearWorkflow("manual")
	if err := e.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	// Store a fresh run directly so nothing has driven it yet.
	run := api.NewWorkflowRun(wf)
	run.Context["count"] = 5
	if err := e.runs.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := e.Step(ctx, run.ID)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if got.CurrentState != "b" || got.Status != api.RunRunning {
		t.Fatalf("expected running at b, got %s at %s", got.Status, got.CurrentState)
	}

	got, err = e.Resume(ctx, run.ID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if got.Status != api.RunCompleted {
		t.Fatalf("expected completed after resume, got %s", got.Status)
	}

	stored, _ := e.GetRun(ctx, run.ID)
	if stored.Status != api.RunCompleted || len(stored.History) != 3 {
		t.Fatalf("unexpected stored run: %s with %d history entries", stored.Status, len(stored.History))
	}
}

func TestEngine_CancelIdleRun(t *testing.T) {
	ctx := context.Background()
	metrics := &api.BasicMetrics{}
	e := NewInMemoryEngine(Config{Observer: metrics, Executor: executor.Config{Actions: greet}})
	wf := linearWorkflow("idle")
	if err := e.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	run := api.NewWorkflowRun(wf)
	if err := e.runs.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := e.Cancel(ctx, run.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if got.Status != api.RunCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if metrics.Snapshot().RunsCancelled != 1 {
		t.Fatalf("observer was not notified")
	}

	if _, err := e.Cancel(ctx, run.ID); !errors.Is(err, api.ErrWorkflowCompleted) {
		t.Fatalf("expected ErrWorkflowCompleted cancelling twice, got %v", err)
	}
	if _, err := e.Cancel(ctx, "missing"); !errors.Is(err, api.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}

	events, _ := e.Events(ctx, run.ID)
	if len(events) != 1 || events[0].Type != api.EventCancelled {
		t.Fatalf("expected a single cancelled event, got %+v", events)
	}
}

func TestEngine_CancelInFlightRun(t *testing.T) {
	ctx := context.Background()
	var ticks atomic.Int64
	tick := api.ActionFunc(func(ctx context.Context, action string, vars map[string]any) (api.ActionResult, error) {
		ticks.Add(1)
		time.Sleep(time.Millisecond)
		return api.ActionResult{Success: true}, nil
	})
	e := NewInMemoryEngine(Config{Executor: executor.Config{Actions: tick, MaxTransitions: 1_000_000}})
	wf := api.Workflow{
		Name:         "forever",
		InitialState: "spin",
		States: map[api.StateID]api.State{
			"spin": {ID: "spin", Type: api.StateNormal, Action: "tick"},
		},
		Transitions: []api.Transition{{From: "spin", To: "spin", Condition: api.Always()}},
	}
	if err := e.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	type result struct {
		run *api.WorkflowRun
		err error
	}
	done := make(chan result, 1)
	go func() {
		run, err := e.Start(ctx, "forever", nil)
		done <- result{run, err}
	}()

	var id string
	deadline := time.Now().Add(5 * time.Second)
	for id == "" {
		if time.Now().After(deadline) {
			t.Fatalf("run never became active")
		}
		if ticks.Load() > 0 {
			if active := e.active.Active(); len(active) == 1 {
				id = active[0]
			}
		}
		time.Sleep(time.Millisecond)
	}

	cancelled, err := e.Cancel(ctx, id)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != api.RunCancelled {
		t.Fatalf("expected stored run to be cancelled, got %s", cancelled.Status)
	}

	select {
	case res := <-done:
		if !errors.Is(res.err, context.Canceled) {
			t.Fatalf("expected context.Canceled from Start, got %v", res.err)
		}
		if res.run.Status != api.RunCancelled {
			t.Fatalf("expected cancelled run, got %s", res.run.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Start did not return after Cancel")
	}
}

func TestEngine_ListRuns(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, greet)
	for _, name := range []string{"one", "two"} {
		if err := e.RegisterWorkflow(linearWorkflow(name)); err != nil {
			t.Fatalf("RegisterWorkflow failed: %v", err)
		}
	}
	if _, err := e.Start(ctx, "one", map[string]any{"count": 3}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := e.Start(ctx, "two", map[string]any{"count": 3}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	all, err := e.ListRuns(ctx, api.RunListOptions{})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 runs, got %d (%v)", len(all), err)
	}
	ones, _ := e.ListRuns(ctx, api.RunListOptions{WorkflowName: "one"})
	if len(ones) != 1 || ones[0].Workflow.Name != "one" {
		t.Fatalf("unexpected filtered runs: %v", ones)
	}
	failed, _ := e.ListRuns(ctx, api.RunListOptions{Status: api.RunFailed})
	if len(failed) != 0 {
		t.Fatalf("expected no failed runs, got %d", len(failed))
	}
}

func TestEngine_ForkEventsAreFiledUnderParent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	wf := api.Workflow{
		Name:         "fan",
		InitialState: "fork",
		States: map[api.StateID]api.State{
			"fork":  {ID: "fork", Type: api.StateFork},
			"left":  {ID: "left", Type: api.StateNormal},
			"right": {ID: "right", Type: api.StateNormal},
			"join":  {ID: "join", Type: api.StateJoin, IsTerminal: true},
		},
		Transitions: []api.Transition{
			{From: "fork", To: "left", Condition: api.Always()},
			{From: "fork", To: "right", Condition: api.Always()},
			{From: "left", To: "join", Condition: api.Always()},
			{From: "right", To: "join", Condition: api.Always()},
		},
	}
	if err := e.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	run, err := e.Start(ctx, "fan", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	events, err := e.Events(ctx, run.ID)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	transitions := 0
	for _, ev := range events {
		if ev.RunID != run.ID {
			t.Fatalf("event filed under %q, want %q", ev.RunID, run.ID)
		}
		if ev.Type == api.EventStateTransition {
			transitions++
		}
	}
	// left -> join, right -> join, fork -> join
	if transitions != 3 {
		t.Fatalf("expected 3 transitions, got %d", transitions)
	}

	runs, _ := e.ListRuns(ctx, api.RunListOptions{})
	if len(runs) != 1 {
		t.Fatalf("branch runs must not be stored, got %d runs", len(runs))
	}
}

func TestSQLiteEngine_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/flowstate.db")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	first, err := NewSQLiteEngine(db, Config{Executor: executor.Config{Actions: greet}})
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	wf := linearWorkflow("durable")
	if err := first.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	run := api.NewWorkflowRun(wf)
	run.Context["count"] = 9
	if err := first.runs.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if _, err := first.Step(ctx, run.ID); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	second, err := NewSQLiteEngine(db, Config{Executor: executor.Config{Actions: greet}})
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	got, err := second.Resume(ctx, run.ID)
	if err != nil {
		t.Fatalf("Resume after restart failed: %v", err)
	}
	if got.Status != api.RunCompleted || got.CurrentState != "c" {
		t.Fatalf("unexpected resumed run: %s at %s", got.Status, got.CurrentState)
	}
}
