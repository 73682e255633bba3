package flowstate_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/flowstate-dev/flowstate"
	"github.com/flowstate-dev/flowstate/pkg/actions"
)

// Example_workflowBuilder demonstrates defining and running a simple workflow
// using the WorkflowBuilder API and an in-memory engine.
func Example_workflowBuilder() {
	ctx := context.Background()

	eng := flowstate.NewInMemoryEngine(flowstate.Options{Actions: actions.NewRegistry(nil)})

	flowstate.NewWorkflow("greeting").
		State("hello", "set message=hello, ${name}").
		Terminal("done").
		Transition("hello", "done", flowstate.OnSuccess()).
		MustRegister(eng)

	run, err := flowstate.Start(ctx, eng, "greeting", map[string]any{"name": "Gopher"})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(run.Status, run.CurrentState, run.Context["message"])
	// Output: completed done hello, Gopher
}

// Example_forkJoin shows two branches writing disjoint keys that are merged
// at the join.
func Example_forkJoin() {
	ctx := context.Background()
	eng := flowstate.NewInMemoryEngine(flowstate.Options{Actions: actions.NewRegistry(nil)})

	flowstate.NewWorkflow("fan-out").
		Fork("split").
		State("left", `set branch1_result="success"`).
		State("right", `set branch2_result="success"`).
		Join("merge").
		Terminal("done").
		Transition("split", "left", flowstate.Always()).
		Transition("split", "right", flowstate.Always()).
		Transition("left", "merge", flowstate.Always()).
		Transition("right", "merge", flowstate.Always()).
		Transition("merge", "done", flowstate.Always()).
		MustRegister(eng)

	run, err := flowstate.Start(ctx, eng, "fan-out", nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(run.Status, run.Context["branch1_result"], run.Context["branch2_result"])
	// Output: completed success success
}

// Example_localRunner demonstrates using LocalRunner to execute workflows
// with an in-process engine, queue, and worker.
func Example_localRunner() {
	ctx := context.Background()

	runner := flowstate.NewLocalRunner(flowstate.Options{Actions: actions.NewRegistry(nil)})

	flowstate.NewWorkflow("background").
		State("work", "wait 10ms").
		Terminal("done").
		Transition("work", "done", flowstate.OnSuccess()).
		MustRegister(runner.Engine)

	// Start one worker goroutine.
	if err := runner.StartWorkers(ctx, 1); err != nil {
		log.Fatal(err)
	}
	defer runner.Stop()

	// Enqueue an asynchronous workflow start.
	if err := runner.StartAsync(ctx, "background", nil); err != nil {
		log.Fatal(err)
	}

	// In a real application you'd poll for completion; for example purposes,
	// just give the worker a moment to run.
	time.Sleep(200 * time.Millisecond)
}
