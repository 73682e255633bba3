// Package metrics exports workflow execution metrics to Prometheus.
//
// Observer implements api.Observer and records run, state and transition
// metrics. CacheCollector reports the expression cache counters of an
// executor. Both register on a caller-supplied registry, so several engines
// (or tests) never share global state.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

const namespace = "flowstate"

// Observer records Prometheus metrics for workflow runs. Branch sub-runs
// count towards state and transition metrics but not as runs of their own.
// A resumed run is not started again, so only runs this Observer saw start
// move the active gauge.
type Observer struct {
	mu     sync.Mutex
	active map[string]struct{}

	runsStarted   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	runsActive    *prometheus.GaugeVec
	runDuration   *prometheus.HistogramVec
	stateDuration *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
}

// NewObserver creates an Observer and registers its collectors on reg.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		active: make(map[string]struct{}),
		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of workflow runs started",
			},
			[]string{"workflow"},
		),
		runsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_finished_total",
				Help:      "Total number of workflow runs that reached a final status",
			},
			[]string{"workflow", "status"}, // status: completed, failed, cancelled
		),
		runsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runs_active",
				Help:      "Number of workflow runs currently executing",
			},
			[]string{"workflow"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time from run start to its final status in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"workflow", "status"},
		),
		stateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "state_duration_seconds",
				Help:      "Duration of state execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"workflow", "state", "status"}, // status: success, error
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of state transitions taken",
			},
			[]string{"workflow"},
		),
	}

	for _, c := range o.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Observer) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		o.runsStarted,
		o.runsFinished,
		o.runsActive,
		o.runDuration,
		o.stateDuration,
		o.transitions,
	}
}

func (o *Observer) OnRunStart(ctx context.Context, run *api.WorkflowRun) {
	if run.ParentID != "" {
		return
	}
	o.mu.Lock()
	o.active[run.ID] = struct{}{}
	o.mu.Unlock()
	o.runsStarted.WithLabelValues(run.Workflow.Name).Inc()
	o.runsActive.WithLabelValues(run.Workflow.Name).Inc()
}

func (o *Observer) OnRunCompleted(ctx context.Context, run *api.WorkflowRun) {
	o.finish(run, api.RunCompleted)
}

func (o *Observer) OnRunFailed(ctx context.Context, run *api.WorkflowRun, err error) {
	o.finish(run, api.RunFailed)
}

func (o *Observer) OnRunCancelled(ctx context.Context, run *api.WorkflowRun) {
	o.finish(run, api.RunCancelled)
}

func (o *Observer) finish(run *api.WorkflowRun, status api.RunStatus) {
	if run.ParentID != "" {
		return
	}
	name := run.Workflow.Name
	o.mu.Lock()
	_, started := o.active[run.ID]
	delete(o.active, run.ID)
	o.mu.Unlock()
	if started {
		o.runsActive.WithLabelValues(name).Dec()
	}
	o.runsFinished.WithLabelValues(name, string(status)).Inc()

	end := time.Now()
	if run.CompletedAt != nil {
		end = *run.CompletedAt
	}
	o.runDuration.WithLabelValues(name, string(status)).Observe(end.Sub(run.StartedAt).Seconds())
}

func (o *Observer) OnStateStart(ctx context.Context, run *api.WorkflowRun, s api.StateID) {}

func (o *Observer) OnStateCompleted(ctx context.Context, run *api.WorkflowRun, s api.StateID, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	o.stateDuration.WithLabelValues(run.Workflow.Name, string(s), status).Observe(d.Seconds())
}

func (o *Observer) OnTransition(ctx context.Context, run *api.WorkflowRun, from, to api.StateID) {
	o.transitions.WithLabelValues(run.Workflow.Name).Inc()
}

var _ api.Observer = (*Observer)(nil)
