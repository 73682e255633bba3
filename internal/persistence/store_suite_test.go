package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// RunStoreSuite checks the behaviour every RunStore and EventStore
// backend must share. Backends plug in through newStores, which must
// return empty stores.
type RunStoreSuite struct {
	suite.Suite
	newStores func() (RunStore, EventStore)

	ctx    context.Context
	runs   RunStore
	events EventStore
}

func (s *RunStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.runs, s.events = s.newStores()
}

func sampleWorkflow(name string) api.Workflow {
	return api.Workflow{
		Name:         name,
		InitialState: "start",
		States: map[api.StateID]api.State{
			"start": {ID: "start", Type: api.StateNormal, Action: "log hello"},
			"check": {ID: "check", Type: api.StateChoice},
			"done":  {ID: "done", Type: api.StateNormal, IsTerminal: true},
		},
		Transitions: []api.Transition{
			{From: "start", To: "check", Condition: api.Always()},
			{From: "check", To: "done", Condition: api.When("count > 5")},
			{From: "check", To: "start", Condition: api.Always()},
		},
	}
}

func sampleRun(id, workflow string, startedAt time.Time) *api.WorkflowRun {
	run := api.NewWorkflowRun(sampleWorkflow(workflow))
	run.ID = id
	run.StartedAt = startedAt.UTC().Truncate(time.Millisecond)
	run.History[0].At = run.StartedAt
	run.Context["count"] = 7
	run.Context["name"] = "alice"
	run.Context["nested"] = map[string]any{"ok": true}
	return run
}

func (s *RunStoreSuite) TestSaveGetUpdate() {
	run := sampleRun("run-1", "wf", time.Now())
	s.Require().NoError(s.runs.SaveRun(s.ctx, run))

	got, err := s.runs.GetRun(s.ctx, "run-1")
	s.Require().NoError(err)
	s.Equal(run.ID, got.ID)
	s.Equal(api.RunRunning, got.Status)
	s.Equal(api.StateID("start"), got.CurrentState)
	s.Equal("wf", got.Workflow.Name)
	s.Len(got.Workflow.Transitions, 3)
	s.Equal("count > 5", got.Workflow.Transitions[1].Condition.Expression)
	s.Equal("alice", got.Context["name"])
	s.Equal("7", fmt.Sprint(got.Context["count"]))
	s.Equal(map[string]any{"ok": true}, got.Context["nested"])
	s.True(run.StartedAt.Equal(got.StartedAt))

	run.TransitionTo("check")
	run.TransitionTo("done")
	run.Complete()
	run.Context[api.ResultKey] = "finished"
	s.Require().NoError(s.runs.UpdateRun(s.ctx, run))

	got, err = s.runs.GetRun(s.ctx, "run-1")
	s.Require().NoError(err)
	s.Equal(api.RunCompleted, got.Status)
	s.Equal(api.StateID("done"), got.CurrentState)
	s.Len(got.History, 3)
	s.Require().NotNil(got.CompletedAt)
	s.Equal("finished", got.Context[api.ResultKey])
}

func (s *RunStoreSuite) TestNotFound() {
	_, err := s.runs.GetRun(s.ctx, "missing")
	s.ErrorIs(err, ErrRunNotFound)

	err = s.runs.UpdateRun(s.ctx, sampleRun("missing", "wf", time.Now()))
	s.ErrorIs(err, ErrRunNotFound)
}

func (s *RunStoreSuite) TestListRunsFiltersAndOrders() {
	base := time.Now().Add(-time.Hour)
	a := sampleRun("a", "alpha", base.Add(2*time.Second))
	b := sampleRun("b", "alpha", base)
	c := sampleRun("c", "beta", base.Add(time.Second))
	for _, r := range []*api.WorkflowRun{a, b, c} {
		s.Require().NoError(s.runs.SaveRun(s.ctx, r))
	}

	b.Fail()
	s.Require().NoError(s.runs.UpdateRun(s.ctx, b))

	all, err := s.runs.ListRuns(s.ctx, RunFilter{})
	s.Require().NoError(err)
	s.Equal([]string{"b", "c", "a"}, runIDs(all))

	alpha, err := s.runs.ListRuns(s.ctx, RunFilter{WorkflowName: "alpha"})
	s.Require().NoError(err)
	s.Equal([]string{"b", "a"}, runIDs(alpha))

	failed, err := s.runs.ListRuns(s.ctx, RunFilter{Status: api.RunFailed})
	s.Require().NoError(err)
	s.Equal([]string{"b"}, runIDs(failed))

	running, err := s.runs.ListRuns(s.ctx, RunFilter{WorkflowName: "alpha", Status: api.RunRunning})
	s.Require().NoError(err)
	s.Equal([]string{"a"}, runIDs(running))

	none, err := s.runs.ListRuns(s.ctx, RunFilter{WorkflowName: "gamma"})
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *RunStoreSuite) TestStoredRunIsACopy() {
	run := sampleRun("copy", "wf", time.Now())
	s.Require().NoError(s.runs.SaveRun(s.ctx, run))

	run.Context["name"] = "mallory"
	run.TransitionTo("check")

	got, err := s.runs.GetRun(s.ctx, "copy")
	s.Require().NoError(err)
	s.Equal("alice", got.Context["name"])
	s.Equal(api.StateID("start"), got.CurrentState)
}

func (s *RunStoreSuite) TestEventsAppendInOrder() {
	at := time.Now().UTC().Truncate(time.Millisecond)
	for i, typ := range []api.EventType{api.EventStarted, api.EventStateTransition, api.EventCompleted} {
		s.Require().NoError(s.events.AppendEvent(s.ctx, api.ExecutionEvent{
			RunID:    "run-ev",
			Workflow: "wf",
			State:    api.StateID("s"),
			Type:     typ,
			Details:  string(typ),
			At:       at.Add(time.Duration(i) * time.Millisecond),
		}))
	}
	s.Require().NoError(s.events.AppendEvent(s.ctx, api.ExecutionEvent{RunID: "other", Type: api.EventStarted}))

	got, err := s.events.ListEvents(s.ctx, "run-ev")
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal(api.EventStarted, got[0].Type)
	s.Equal(api.EventStateTransition, got[1].Type)
	s.Equal(api.EventCompleted, got[2].Type)
	s.Equal("wf", got[0].Workflow)
	s.Equal(api.StateID("s"), got[0].State)
	s.True(at.Equal(got[0].At), "expected %v, got %v", at, got[0].At)

	empty, err := s.events.ListEvents(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(empty)
}

func runIDs(runs []*api.WorkflowRun) []string {
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids
}
