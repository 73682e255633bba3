package executor

import (
	"fmt"
	"sync"
	"time"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// DefaultMaxHistorySize bounds the diagnostic event log.
const DefaultMaxHistorySize = 10000

// eventLog keeps the most recent events; the oldest are evicted first.
type eventLog struct {
	mu     sync.Mutex
	max    int
	events []api.ExecutionEvent
}

func newEventLog(max int) *eventLog {
	if max <= 0 {
		max = DefaultMaxHistorySize
	}
	return &eventLog{max: max}
}

func (l *eventLog) append(ev api.ExecutionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	if len(l.events) > l.max {
		l.events = l.events[len(l.events)-l.max:]
	}
}

func (l *eventLog) snapshot() []api.ExecutionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]api.ExecutionEvent(nil), l.events...)
}

func (l *eventLog) resize(max int) {
	if max <= 0 {
		max = DefaultMaxHistorySize
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.max = max
	if len(l.events) > max {
		l.events = append([]api.ExecutionEvent(nil), l.events[len(l.events)-max:]...)
	}
}

func (l *eventLog) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

func (e *Executor) emit(run *api.WorkflowRun, typ api.EventType, format string, args ...any) {
	ev := api.ExecutionEvent{
		RunID:    run.ID,
		Workflow: run.Workflow.Name,
		State:    run.CurrentState,
		Type:     typ,
		Details:  fmt.Sprintf(format, args...),
		At:       time.Now(),
	}
	e.events.append(ev)
	if e.sink != nil {
		e.sink(ev)
	}
}

// History returns the retained execution events, oldest first.
func (e *Executor) History() []api.ExecutionEvent {
	return e.events.snapshot()
}

// SetMaxHistorySize changes how many events are retained, evicting the
// oldest ones if the log is already larger.
func (e *Executor) SetMaxHistorySize(n int) {
	e.events.resize(n)
}

// ClearHistory drops all retained events.
func (e *Executor) ClearHistory() {
	e.events.clear()
}
