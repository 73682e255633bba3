package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/flowstate-dev/flowstate/internal/definition"
	"github.com/flowstate-dev/flowstate/pkg/actions"
	"github.com/flowstate-dev/flowstate/pkg/api"
	"github.com/flowstate-dev/flowstate/pkg/worker"
)

func (c *RunCmd) Run(ctx context.Context, app *App) error {
	wf, err := definition.LoadFile(c.File)
	if err != nil {
		return err
	}
	if err := app.Engine.RegisterWorkflow(wf); err != nil {
		return err
	}

	vars := make(map[string]any, len(c.Set))
	for k, v := range c.Set {
		vars[k] = actions.ParseValue(v)
	}

	if c.Async {
		var at time.Time
		if c.Delay > 0 {
			at = time.Now().Add(c.Delay)
		}
		w := worker.New(app.Engine, app.Queue)
		if err := w.EnqueueStartAt(ctx, wf.Name, vars, at); err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "enqueued %s (%d pending)\n", wf.Name, app.Queue.Len())
		return nil
	}

	run, err := app.Engine.Start(ctx, wf.Name, vars)
	if run != nil {
		printRun(app.Out, run)
	}
	return err
}

func (c *WorkerCmd) Run(ctx context.Context, app *App) error {
	names := make([]string, 0, len(c.Files))
	for _, f := range c.Files {
		wf, err := definition.LoadFile(f)
		if err != nil {
			return err
		}
		if err := app.Engine.RegisterWorkflow(wf); err != nil {
			return err
		}
		names = append(names, wf.Name)
	}

	w := worker.NewWithConfig(app.Engine, app.Queue, worker.Config{
		MaxAttempts: c.MaxAttempts,
		Backoff:     c.Backoff,
		Logger:      app.Logger,
	})
	app.Logger.InfoContext(ctx, "worker_started",
		slog.Any("workflows", names),
		slog.Int("concurrency", c.Concurrency),
		slog.String("storage", app.Config.Storage.Driver),
	)
	err := w.Run(ctx, c.Concurrency)
	app.Logger.Info("worker_stopped", slog.Int("pending", app.Queue.Len()))
	return err
}

func (c *ResumeCmd) Run(ctx context.Context, app *App) error {
	run, err := app.Engine.Resume(ctx, c.ID)
	if run != nil {
		printRun(app.Out, run)
	}
	return err
}

func (c *StepCmd) Run(ctx context.Context, app *App) error {
	run, err := app.Engine.Step(ctx, c.ID)
	if run != nil {
		printRun(app.Out, run)
	}
	return err
}

func (c *CancelCmd) Run(ctx context.Context, app *App) error {
	run, err := app.Engine.Cancel(ctx, c.ID)
	if run != nil {
		printRun(app.Out, run)
	}
	return err
}

func (c *RunsCmd) Run(ctx context.Context, app *App) error {
	status := api.RunStatus(strings.ToLower(c.Status))
	switch status {
	case "", api.RunRunning, api.RunCompleted, api.RunFailed, api.RunCancelled:
	default:
		return fmt.Errorf("unknown run status %q", c.Status)
	}
	runs, err := app.Engine.ListRuns(ctx, api.RunListOptions{
		WorkflowName: c.Workflow,
		Status:       status,
	})
	if err != nil {
		return err
	}
	slices.SortFunc(runs, func(a, b *api.WorkflowRun) int {
		return a.StartedAt.Compare(b.StartedAt)
	})

	tw := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKFLOW\tSTATUS\tSTATE\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Workflow.Name, r.Status, r.CurrentState, r.StartedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func (c *ShowCmd) Run(ctx context.Context, app *App) error {
	run, err := app.Engine.GetRun(ctx, c.ID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(app.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

func (c *EventsCmd) Run(ctx context.Context, app *App) error {
	events, err := app.Engine.Events(ctx, c.ID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.At.Format(time.RFC3339Nano), ev.Type, ev.State, ev.Details)
	}
	return tw.Flush()
}

// Validate does not need storage, so it runs before the App is built.
func (c *ValidateCmd) Run(out io.Writer) error {
	wf, err := definition.LoadFile(c.File)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(wf.States))
	for id := range wf.States {
		ids = append(ids, string(id))
	}
	slices.Sort(ids)

	fmt.Fprintf(out, "workflow %s: %d states, %d transitions, initial %s\n",
		wf.Name, len(wf.States), len(wf.Transitions), wf.InitialState)
	for _, id := range ids {
		s := wf.States[api.StateID(id)]
		line := fmt.Sprintf("  %s (%s)", id, s.Type)
		if s.IsTerminal {
			line += " terminal"
		}
		fmt.Fprintln(out, line)
		for _, t := range wf.TransitionsFrom(s.ID) {
			fmt.Fprintf(out, "    -> %s when %s\n", t.To, t.Condition)
		}
	}
	return nil
}

func (c *VersionCmd) Run(out io.Writer) error {
	fmt.Fprintf(out, "flowstate %s (commit %s, built %s)\n", version, commit, buildTime)
	return nil
}

func printRun(w io.Writer, run *api.WorkflowRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "run:\t%s\n", run.ID)
	fmt.Fprintf(tw, "workflow:\t%s\n", run.Workflow.Name)
	fmt.Fprintf(tw, "status:\t%s\n", run.Status)
	fmt.Fprintf(tw, "state:\t%s\n", run.CurrentState)
	if len(run.Context) > 0 {
		keys := make([]string, 0, len(run.Context))
		for k := range run.Context {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			b, err := json.Marshal(run.Context[k])
			if err != nil {
				b = []byte(fmt.Sprint(run.Context[k]))
			}
			parts = append(parts, k+"="+string(b))
		}
		fmt.Fprintf(tw, "context:\t%s\n", strings.Join(parts, " "))
	}
	_ = tw.Flush()
}
