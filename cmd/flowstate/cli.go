package main

import (
	"time"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Config  string `short:"c" type:"path" help:"TOML config file, falls back to the FLOWSTATE_CONFIG variable"`
	EnvFile string `name:"env-file" default:".env" help:"dotenv file loaded before the config (missing files are ignored)"`

	Run      RunCmd      `cmd:"" help:"Register a workflow file and start a run"`
	Resume   ResumeCmd   `cmd:"" help:"Resume a stored run that is still running"`
	Step     StepCmd     `cmd:"" help:"Execute a single state of a stored run"`
	Cancel   CancelCmd   `cmd:"" help:"Cancel a stored run"`
	Runs     RunsCmd     `cmd:"" help:"List stored runs"`
	Show     ShowCmd     `cmd:"" help:"Print a stored run as JSON"`
	Events   EventsCmd   `cmd:"" help:"Print the execution events of a run"`
	Worker   WorkerCmd   `cmd:"" help:"Process queued tasks for the given workflow files"`
	Validate ValidateCmd `cmd:"" help:"Check a workflow file without running it"`
	Version  VersionCmd  `cmd:"" help:"Show version information (${version})"`
}

// RunCmd starts a run of a workflow file.
type RunCmd struct {
	File string            `arg:"" type:"existingfile" help:"Workflow YAML file"`
	Set   map[string]string `short:"s" help:"Initial context key=value (repeatable, values parsed as JSON when possible)"`
	Async bool              `help:"Enqueue the run for a worker instead of executing it"`
	Delay time.Duration     `help:"With --async, start the run no earlier than this from now"`
}

// ResumeCmd continues a stored run.
type ResumeCmd struct {
	ID string `arg:"" help:"Run ID"`
}

// StepCmd executes one state of a stored run.
type StepCmd struct {
	ID string `arg:"" help:"Run ID"`
}

// CancelCmd cancels a stored run.
type CancelCmd struct {
	ID string `arg:"" help:"Run ID"`
}

// RunsCmd lists stored runs.
type RunsCmd struct {
	Workflow string `short:"w" help:"Only runs of this workflow"`
	Status   string `help:"Only runs in this status: running, completed, failed or cancelled"`
}

// ShowCmd prints a run.
type ShowCmd struct {
	ID string `arg:"" help:"Run ID"`
}

// EventsCmd prints the events of a run.
type EventsCmd struct {
	ID string `arg:"" help:"Run ID"`
}

// WorkerCmd consumes the task queue of the configured store.
type WorkerCmd struct {
	Files       []string      `arg:"" type:"existingfile" help:"Workflow YAML files to register"`
	Concurrency int           `short:"n" default:"1" help:"Number of tasks processed in parallel"`
	MaxAttempts int           `name:"max-attempts" default:"3" help:"Attempts per task before giving up on transient errors"`
	Backoff     time.Duration `default:"1s" help:"Delay before the first retry, doubled per attempt"`
}

// ValidateCmd loads a workflow file and prints its outline.
type ValidateCmd struct {
	File string `arg:"" type:"existingfile" help:"Workflow YAML file"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
