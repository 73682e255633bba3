package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &RunStoreSuite{newStores: func() (RunStore, EventStore) {
		s := NewInMemoryStore()
		return s, s
	}})
}

func TestInMemoryStore_Workflows(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	if _, err := store.GetWorkflow(ctx, "missing"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}

	for _, name := range []string{"zeta", "alpha"} {
		if err := store.SaveWorkflow(ctx, sampleWorkflow(name)); err != nil {
			t.Fatalf("SaveWorkflow failed: %v", err)
		}
	}

	wf, err := store.GetWorkflow(ctx, "alpha")
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if wf.InitialState != "start" || len(wf.States) != 3 {
		t.Fatalf("unexpected workflow: %+v", wf)
	}

	// Mutating the returned copy must not leak into the store.
	wf.States["extra"] = wf.States["start"]
	again, _ := store.GetWorkflow(ctx, "alpha")
	if len(again.States) != 3 {
		t.Fatalf("stored workflow was mutated through a returned copy")
	}

	names, err := store.ListWorkflows(ctx)
	if err != nil {
		t.Fatalf("ListWorkflows failed: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestNewInMemoryPersistence_SharesOneStore(t *testing.T) {
	p := NewInMemoryPersistence()
	if p.Workflows == nil || p.Runs == nil || p.Events == nil {
		t.Fatalf("expected all stores to be set: %+v", p)
	}
	if p.Runs.(*InMemoryStore) != p.Events.(*InMemoryStore) {
		t.Fatalf("expected runs and events to share a store")
	}
}
