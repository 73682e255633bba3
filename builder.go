package flowstate

import (
	"fmt"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// WorkflowBuilder provides a fluent API for defining workflows:
//
//	wf := flowstate.NewWorkflow("deploy").
//	    State("build", "succeed built").
//	    Choice("check", "").
//	    Terminal("done").
//	    Terminal("rollback").
//	    Transition("build", "check", flowstate.Always()).
//	    Transition("check", "done", flowstate.OnSuccess()).
//	    Transition("check", "rollback", flowstate.OnFailure())
//
//	if err := wf.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
//
//	run, err := flowstate.Start(ctx, engine, wf.Name(), nil)
//
// The first declared state is the initial state unless Initial says
// otherwise.
type WorkflowBuilder struct {
	def api.Workflow
}

// NewWorkflow creates a new workflow builder with the given name.
func NewWorkflow(name string) *WorkflowBuilder {
	if name == "" {
		panic("flowstate: workflow name must not be empty")
	}
	return &WorkflowBuilder{
		def: api.Workflow{
			Name:   name,
			States: make(map[api.StateID]api.State),
		},
	}
}

// Name returns the workflow name.
func (b *WorkflowBuilder) Name() string {
	return b.def.Name
}

// Describe sets the workflow description.
func (b *WorkflowBuilder) Describe(description string) *WorkflowBuilder {
	b.def.Description = description
	return b
}

// Initial overrides the initial state.
func (b *WorkflowBuilder) Initial(id string) *WorkflowBuilder {
	b.def.InitialState = api.StateID(id)
	return b
}

// State adds a Normal state that runs action (which may be empty).
func (b *WorkflowBuilder) State(id, action string) *WorkflowBuilder {
	return b.add(api.State{ID: api.StateID(id), Type: api.StateNormal, Action: action})
}

// Terminal adds a terminal Normal state.
func (b *WorkflowBuilder) Terminal(id string) *WorkflowBuilder {
	return b.add(api.State{ID: api.StateID(id), Type: api.StateNormal, IsTerminal: true})
}

// Fork adds a Fork state. Each of its outgoing transitions starts a branch.
func (b *WorkflowBuilder) Fork(id string) *WorkflowBuilder {
	return b.add(api.State{ID: api.StateID(id), Type: api.StateFork})
}

// Join adds a Join state where fork branches meet.
func (b *WorkflowBuilder) Join(id string) *WorkflowBuilder {
	return b.add(api.State{ID: api.StateID(id), Type: api.StateJoin})
}

// Choice adds a Choice state that runs action (which may be empty). Its
// transitions must be deterministic and one of them must match.
func (b *WorkflowBuilder) Choice(id, action string) *WorkflowBuilder {
	return b.add(api.State{ID: api.StateID(id), Type: api.StateChoice, Action: action})
}

// AddState adds a fully specified state.
func (b *WorkflowBuilder) AddState(s api.State) *WorkflowBuilder {
	return b.add(s)
}

func (b *WorkflowBuilder) add(s api.State) *WorkflowBuilder {
	if s.ID == "" {
		panic("flowstate: state id must not be empty")
	}
	if _, dup := b.def.States[s.ID]; dup {
		panic(fmt.Sprintf("flowstate: state %q declared twice", s.ID))
	}
	if s.Type == "" {
		s.Type = api.StateNormal
	}
	b.def.States[s.ID] = s
	if b.def.InitialState == "" {
		b.def.InitialState = s.ID
	}
	return b
}

// Transition adds an edge. Edges are evaluated in the order they are added.
func (b *WorkflowBuilder) Transition(from, to string, cond api.Condition) *WorkflowBuilder {
	return b.TransitionWithAction(from, to, cond, "")
}

// TransitionWithAction adds an edge that runs action when it is taken.
func (b *WorkflowBuilder) TransitionWithAction(from, to string, cond api.Condition, action string) *WorkflowBuilder {
	if from == "" || to == "" {
		panic("flowstate: transition endpoints must not be empty")
	}
	b.def.Transitions = append(b.def.Transitions, api.Transition{
		From:      api.StateID(from),
		To:        api.StateID(to),
		Condition: cond,
		Action:    action,
	})
	return b
}

// Definition returns a copy of the workflow built so far.
func (b *WorkflowBuilder) Definition() Workflow {
	return b.def.Clone()
}

// Register registers the built workflow with the given engine.
func (b *WorkflowBuilder) Register(eng Engine) error {
	return eng.RegisterWorkflow(b.Definition())
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *WorkflowBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}
