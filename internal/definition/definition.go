// Package definition loads workflow definitions from YAML documents.
//
// A document looks like this:
//
//	name: review
//	description: route a draft by its score
//	states:
//	  - id: draft
//	    action: set status="draft"
//	  - id: gate
//	    type: choice
//	  - id: published
//	    terminal: true
//	  - id: rejected
//	    terminal: true
//	transitions:
//	  - from: draft
//	    to: gate
//	  - from: gate
//	    to: published
//	    when: score >= 7
//	  - from: gate
//	    to: rejected
//	    condition: custom
//	    when: default
//
// The first state is the initial one unless initial_state is set. A
// transition without a condition is Always, or Custom when it has a when
// expression. Endpoints are checked against the declared states, so a
// loaded workflow never references a missing state.
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// Document is the YAML shape of a workflow.
type Document struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description,omitempty"`
	InitialState string            `yaml:"initial_state,omitempty"`
	Metadata     map[string]string `yaml:"metadata,omitempty"`
	States       []StateDoc        `yaml:"states"`
	Transitions  []TransitionDoc   `yaml:"transitions"`
}

// StateDoc is the YAML shape of a state.
type StateDoc struct {
	ID          string            `yaml:"id"`
	Description string            `yaml:"description,omitempty"`
	Type        string            `yaml:"type,omitempty"`
	Terminal    bool              `yaml:"terminal,omitempty"`
	Action      string            `yaml:"action,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`
}

// TransitionDoc is the YAML shape of a transition.
type TransitionDoc struct {
	From      string            `yaml:"from"`
	To        string            `yaml:"to"`
	Condition string            `yaml:"condition,omitempty"`
	When      string            `yaml:"when,omitempty"`
	Action    string            `yaml:"action,omitempty"`
	Metadata  map[string]string `yaml:"metadata,omitempty"`
}

// LoadFile reads and parses a workflow file.
func LoadFile(path string) (api.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.Workflow{}, err
	}
	wf, err := Parse(data)
	if err != nil {
		return api.Workflow{}, fmt.Errorf("%s: %w", path, err)
	}
	return wf, nil
}

// Parse decodes a single YAML document into a Workflow. Unknown fields are
// rejected.
func Parse(data []byte) (api.Workflow, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a single YAML document from r.
func Decode(r io.Reader) (api.Workflow, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return api.Workflow{}, errors.New("empty workflow document")
		}
		return api.Workflow{}, fmt.Errorf("invalid workflow document: %w", err)
	}
	return doc.Workflow()
}

// Workflow converts the document, validating names and references.
func (d Document) Workflow() (api.Workflow, error) {
	if d.Name == "" {
		return api.Workflow{}, errors.New("workflow name is required")
	}
	if len(d.States) == 0 {
		return api.Workflow{}, fmt.Errorf("workflow %s: at least one state is required", d.Name)
	}

	wf := api.Workflow{
		Name:         d.Name,
		Description:  d.Description,
		InitialState: api.StateID(d.InitialState),
		States:       make(map[api.StateID]api.State, len(d.States)),
		Metadata:     d.Metadata,
	}

	for i, s := range d.States {
		if s.ID == "" {
			return api.Workflow{}, fmt.Errorf("workflow %s: state #%d has no id", d.Name, i+1)
		}
		id := api.StateID(s.ID)
		if _, dup := wf.States[id]; dup {
			return api.Workflow{}, fmt.Errorf("workflow %s: state %s declared twice", d.Name, s.ID)
		}
		typ, err := api.ParseStateType(s.Type)
		if err != nil {
			return api.Workflow{}, fmt.Errorf("workflow %s: state %s: %w", d.Name, s.ID, err)
		}
		wf.States[id] = api.State{
			ID:          id,
			Description: s.Description,
			Type:        typ,
			IsTerminal:  s.Terminal,
			Action:      s.Action,
			Metadata:    s.Metadata,
		}
	}
	if wf.InitialState == "" {
		wf.InitialState = api.StateID(d.States[0].ID)
	}
	if _, ok := wf.States[wf.InitialState]; !ok {
		return api.Workflow{}, fmt.Errorf("workflow %s: initial %w", d.Name, &api.StateNotFoundError{State: wf.InitialState})
	}

	for i, t := range d.Transitions {
		cond, err := t.condition()
		if err != nil {
			return api.Workflow{}, fmt.Errorf("workflow %s: transition #%d: %w", d.Name, i+1, err)
		}
		for _, end := range []string{t.From, t.To} {
			if _, ok := wf.States[api.StateID(end)]; !ok {
				return api.Workflow{}, fmt.Errorf("workflow %s: transition #%d: %w", d.Name, i+1, &api.StateNotFoundError{State: api.StateID(end)})
			}
		}
		wf.Transitions = append(wf.Transitions, api.Transition{
			From:      api.StateID(t.From),
			To:        api.StateID(t.To),
			Condition: cond,
			Action:    t.Action,
			Metadata:  t.Metadata,
		})
	}
	return wf, nil
}

func (t TransitionDoc) condition() (api.Condition, error) {
	if t.Condition == "" {
		if t.When != "" {
			return api.When(t.When), nil
		}
		return api.Always(), nil
	}
	typ, err := api.ParseConditionType(t.Condition)
	if err != nil {
		return api.Condition{}, err
	}
	if typ != api.ConditionCustom && t.When != "" {
		return api.Condition{}, fmt.Errorf("condition %s does not take an expression", typ)
	}
	return api.Condition{Type: typ, Expression: t.When}, nil
}
