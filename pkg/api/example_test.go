package api_test

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/flowstate-dev/flowstate"
	"github.com/flowstate-dev/flowstate/pkg/api"
)

// ExampleWorkflow shows how to build a workflow directly using the api
// package and register it on an Engine.
func ExampleWorkflow() {
	ctx := context.Background()

	def := api.Workflow{
		Name:         "add-prefix",
		InitialState: "prefix",
		States: map[api.StateID]api.State{
			"prefix": {ID: "prefix", Type: api.StateNormal, Action: "prefix"},
			"done":   {ID: "done", Type: api.StateNormal, IsTerminal: true},
		},
		Transitions: []api.Transition{
			{From: "prefix", To: "done", Condition: api.When(`result startsWith "prefix:"`)},
		},
	}

	prefix := api.ActionFunc(func(ctx context.Context, action string, vars map[string]any) (api.ActionResult, error) {
		s, _ := vars["value"].(string)
		return api.ActionResult{Success: true, Output: "prefix:" + strings.TrimSpace(s)}, nil
	})

	eng := flowstate.NewInMemoryEngine(flowstate.Options{Actions: prefix})
	if err := eng.RegisterWorkflow(def); err != nil {
		log.Fatal(err)
	}

	run, err := eng.Start(ctx, def.Name, map[string]any{"value": " value "})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(run.Status, run.Context["result"])
	// Output: completed prefix:value
}
