package api

import (
	"errors"
	"testing"
)

func sampleWorkflow() Workflow {
	return Workflow{
		Name:         "sample",
		InitialState: "start",
		States: map[StateID]State{
			"start": {ID: "start", Type: StateNormal, Metadata: map[string]string{"k": "v"}},
			"end":   {ID: "end", Type: StateNormal, IsTerminal: true},
		},
		Transitions: []Transition{
			{From: "start", To: "end", Condition: Always()},
			{From: "start", To: "start", Condition: Never()},
			{From: "end", To: "start", Condition: Never()},
		},
	}
}

func TestWorkflow_TransitionsFromKeepsDeclarationOrder(t *testing.T) {
	wf := sampleWorkflow()
	ts := wf.TransitionsFrom("start")
	if len(ts) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(ts))
	}
	if ts[0].To != "end" || ts[1].To != "start" {
		t.Fatalf("unexpected order: %+v", ts)
	}
}

func TestWorkflow_CloneIsDeep(t *testing.T) {
	wf := sampleWorkflow()
	cp := wf.Clone()

	cp.States["start"].Metadata["k"] = "changed"
	cp.Transitions[0].To = "elsewhere"
	delete(cp.States, "end")

	if wf.States["start"].Metadata["k"] != "v" {
		t.Fatalf("state metadata aliased")
	}
	if wf.Transitions[0].To != "end" {
		t.Fatalf("transitions aliased")
	}
	if _, ok := wf.States["end"]; !ok {
		t.Fatalf("states map aliased")
	}
}

func TestCondition_IsDefault(t *testing.T) {
	cases := []struct {
		c    Condition
		want bool
	}{
		{Always(), true},
		{When("default"), true},
		{When(" default "), true},
		{When("default == true"), false},
		{OnSuccess(), false},
		{Never(), false},
	}
	for _, tc := range cases {
		if got := tc.c.IsDefault(); got != tc.want {
			t.Fatalf("%s: IsDefault=%v, want %v", tc.c, got, tc.want)
		}
	}
}

func TestParseConditionType(t *testing.T) {
	for in, want := range map[string]ConditionType{
		"Always":     ConditionAlways,
		"OnSuccess":  ConditionOnSuccess,
		"on-failure": ConditionOnFailure,
		"custom":     ConditionCustom,
	} {
		got, err := ParseConditionType(in)
		if err != nil || got != want {
			t.Fatalf("ParseConditionType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseConditionType("sometimes"); err == nil {
		t.Fatalf("expected error for unknown condition type")
	}
}

func TestParseStateType(t *testing.T) {
	if st, err := ParseStateType(""); err != nil || st != StateNormal {
		t.Fatalf("empty state type should be normal, got %q, %v", st, err)
	}
	if st, err := ParseStateType("Fork"); err != nil || st != StateFork {
		t.Fatalf("expected fork, got %q, %v", st, err)
	}
	if _, err := ParseStateType("parallel"); err == nil {
		t.Fatalf("expected error for unknown state type")
	}
}

func TestWorkflowRun_Lifecycle(t *testing.T) {
	run := NewWorkflowRun(sampleWorkflow())
	if run.ID == "" {
		t.Fatalf("expected generated run ID")
	}
	if run.Status != RunRunning || run.CurrentState != "start" {
		t.Fatalf("unexpected initial run: %+v", run)
	}
	if len(run.History) != 1 || run.History[0].State != "start" {
		t.Fatalf("expected history to start with initial state, got %+v", run.History)
	}

	run.TransitionTo("end")
	if run.CurrentState != "end" || len(run.History) != 2 {
		t.Fatalf("TransitionTo did not record history: %+v", run.History)
	}

	run.Complete()
	if !run.IsTerminal() || run.CompletedAt == nil {
		t.Fatalf("expected completed run with timestamp")
	}
}

func TestWorkflowRun_CloneCopiesNestedContext(t *testing.T) {
	run := NewWorkflowRun(sampleWorkflow())
	run.Context["nested"] = map[string]any{"list": []any{1, 2}}

	cp := run.Clone()
	cp.Context["nested"].(map[string]any)["list"].([]any)[0] = 99
	cp.History = append(cp.History, HistoryEntry{State: "x"})

	if run.Context["nested"].(map[string]any)["list"].([]any)[0] != 1 {
		t.Fatalf("nested context aliased")
	}
	if len(run.History) != 1 {
		t.Fatalf("history aliased")
	}
}

func TestErrors_MatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{&StateNotFoundError{State: "x"}, ErrStateNotFound},
		{&TransitionLimitError{Limit: 3}, ErrTransitionLimitExceeded},
		{ExecutionFailed("no matching conditions"), ErrExecutionFailed},
		{&ExpressionError{Reason: "too long"}, ErrExpression},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.sentinel) {
			t.Fatalf("%v should match %v", tc.err, tc.sentinel)
		}
	}

	var limit *TransitionLimitError
	if !errors.As(&TransitionLimitError{Limit: 1000}, &limit) || limit.Limit != 1000 {
		t.Fatalf("errors.As failed for TransitionLimitError")
	}
	if !IsExpressionError(&ExpressionError{Reason: "x"}) {
		t.Fatalf("IsExpressionError should be true")
	}
}
