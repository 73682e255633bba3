// Package tracing turns workflow execution into OpenTelemetry spans.
//
// Every run gets a span named "flowstate.run" and every executed state a
// child span named "flowstate.state". States of fork branches are parented
// under the run that forked them. Transitions are recorded as span events.
package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// InstrumentationName names the tracer used by NewObserver callers.
const InstrumentationName = "github.com/flowstate-dev/flowstate"

// Attribute keys.
const (
	AttrWorkflow = attribute.Key("flowstate.workflow")
	AttrRunID    = attribute.Key("flowstate.run.id")
	AttrParentID = attribute.Key("flowstate.run.parent_id")
	AttrState    = attribute.Key("flowstate.state")
	AttrStatus   = attribute.Key("flowstate.run.status")
	AttrFrom     = attribute.Key("flowstate.transition.from")
	AttrTo       = attribute.Key("flowstate.transition.to")
)

type spanEntry struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // parents the state spans
}

// Observer implements api.Observer by opening and closing spans. It is safe
// for concurrent use by fork branches.
type Observer struct {
	tracer trace.Tracer

	mu     sync.Mutex
	runs   map[string]*spanEntry // run id
	states map[string]*spanEntry // run id
}

// NewObserver creates an Observer that starts spans on tracer.
func NewObserver(tracer trace.Tracer) *Observer {
	return &Observer{
		tracer: tracer,
		runs:   make(map[string]*spanEntry),
		states: make(map[string]*spanEntry),
	}
}

func (o *Observer) OnRunStart(ctx context.Context, run *api.WorkflowRun) {
	o.runSpan(ctx, run)
}

// runSpan returns the run's span, opening one if the run was resumed and so
// never reported a start.
func (o *Observer) runSpan(ctx context.Context, run *api.WorkflowRun) *spanEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.runs[run.ID]; ok {
		return e
	}

	parent := ctx
	if run.ParentID != "" {
		if p, ok := o.runs[run.ParentID]; ok {
			parent = p.ctx
		}
	}
	attrs := []attribute.KeyValue{
		AttrWorkflow.String(run.Workflow.Name),
		AttrRunID.String(run.ID),
	}
	if run.ParentID != "" {
		attrs = append(attrs, AttrParentID.String(run.ParentID))
	}
	spanCtx, span := o.tracer.Start(parent, "flowstate.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(run.StartedAt),
		trace.WithAttributes(attrs...),
	)
	e := &spanEntry{span: span, ctx: spanCtx}
	o.runs[run.ID] = e
	return e
}

func (o *Observer) OnRunCompleted(ctx context.Context, run *api.WorkflowRun) {
	o.endRun(run, api.RunCompleted, nil)
}

func (o *Observer) OnRunFailed(ctx context.Context, run *api.WorkflowRun, err error) {
	o.endRun(run, api.RunFailed, err)
}

func (o *Observer) OnRunCancelled(ctx context.Context, run *api.WorkflowRun) {
	o.endRun(run, api.RunCancelled, nil)
}

func (o *Observer) endRun(run *api.WorkflowRun, status api.RunStatus, err error) {
	o.mu.Lock()
	e, ok := o.runs[run.ID]
	delete(o.runs, run.ID)
	o.mu.Unlock()
	if !ok {
		return
	}

	e.span.SetAttributes(AttrStatus.String(string(status)), AttrState.String(string(run.CurrentState)))
	switch status {
	case api.RunFailed:
		if err != nil {
			e.span.RecordError(err)
			e.span.SetStatus(codes.Error, err.Error())
		} else {
			e.span.SetStatus(codes.Error, "run failed")
		}
	case api.RunCancelled:
		e.span.SetStatus(codes.Error, "run cancelled")
	default:
		e.span.SetStatus(codes.Ok, "")
	}
	e.span.End()
}

func (o *Observer) OnStateStart(ctx context.Context, run *api.WorkflowRun, s api.StateID) {
	parent := o.stateParent(ctx, run)
	spanCtx, span := o.tracer.Start(parent, "flowstate.state",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrWorkflow.String(run.Workflow.Name),
			AttrRunID.String(run.ID),
			AttrState.String(string(s)),
		),
	)
	o.mu.Lock()
	o.states[run.ID] = &spanEntry{span: span, ctx: spanCtx}
	o.mu.Unlock()
}

// stateParent picks the span a state span hangs under: the run itself, or
// for a branch sub-run, the state that forked it.
func (o *Observer) stateParent(ctx context.Context, run *api.WorkflowRun) context.Context {
	if run.ParentID == "" {
		return o.runSpan(ctx, run).ctx
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if fork, ok := o.states[run.ParentID]; ok {
		return fork.ctx
	}
	if r, ok := o.runs[run.ParentID]; ok {
		return r.ctx
	}
	return ctx
}

func (o *Observer) OnStateCompleted(ctx context.Context, run *api.WorkflowRun, s api.StateID, err error, d time.Duration) {
	o.mu.Lock()
	e, ok := o.states[run.ID]
	delete(o.states, run.ID)
	o.mu.Unlock()
	if !ok {
		return
	}
	if err != nil {
		e.span.RecordError(err)
		e.span.SetStatus(codes.Error, err.Error())
	}
	e.span.End()
}

func (o *Observer) OnTransition(ctx context.Context, run *api.WorkflowRun, from, to api.StateID) {
	o.mu.Lock()
	e, ok := o.states[run.ID]
	if !ok {
		e, ok = o.runs[run.ID]
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	e.span.AddEvent("transition", trace.WithAttributes(
		AttrFrom.String(string(from)),
		AttrTo.String(string(to)),
	))
}

var _ api.Observer = (*Observer)(nil)
