package worker_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/flowstate-dev/flowstate"
	"github.com/flowstate-dev/flowstate/pkg/actions"
	"github.com/flowstate-dev/flowstate/pkg/worker"
)

// ExampleWorker demonstrates constructing a Worker explicitly and using it
// to process tasks from a queue.
func ExampleWorker() {
	ctx := context.Background()

	eng := flowstate.NewInMemoryEngine(flowstate.Options{Actions: actions.NewRegistry(nil)})
	queue := flowstate.NewInMemoryQueue(1024)

	flowstate.NewWorkflow("background-job").
		State("work", "set processed=${payload}").
		Terminal("done").
		Transition("work", "done", flowstate.OnSuccess()).
		MustRegister(eng)

	w := worker.NewWithConfig(eng, queue, worker.Config{
		MaxAttempts: 3,
		Backoff:     10 * time.Millisecond,
	})

	if err := w.EnqueueStart(ctx, "background-job", map[string]any{"payload": "report.csv"}); err != nil {
		log.Fatal(err)
	}

	// Process a single task. In a real application you would run ProcessOne
	// in a loop or via LocalRunner.
	processed, err := w.ProcessOne(ctx)
	if err != nil {
		log.Fatal(err)
	}

	runs, err := eng.ListRuns(ctx, flowstate.RunListOptions{WorkflowName: "background-job"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(processed, runs[0].Status, runs[0].Context["processed"])
	// Output: true completed report.csv
}
