package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// Handler runs one action verb. args is the text after the verb with
// ${var} references already substituted.
type Handler func(ctx context.Context, args string, vars map[string]any) (api.ActionResult, error)

// Registry is an api.ActionExecutor that dispatches on the first word of
// an action string. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

var _ api.ActionExecutor = (*Registry)(nil)

// NewRegistry returns a Registry with the built-in verbs registered:
//
//	log [info|warn|error] <message>
//	set <key>=<value>
//	wait <duration>
//	fail [<message>]
//	succeed [<output>]
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
		sleep:    sleep,
	}
	r.Register("log", r.log)
	r.Register("set", set)
	r.Register("wait", r.wait)
	r.Register("fail", fail)
	r.Register("succeed", succeed)
	return r
}

// Register adds or replaces the handler for verb. Verbs are matched
// case-insensitively.
func (r *Registry) Register(verb string, h Handler) {
	if verb == "" || h == nil {
		panic("actions: Register needs a verb and a handler")
	}
	r.mu.Lock()
	r.handlers[strings.ToLower(verb)] = h
	r.mu.Unlock()
}

// Verbs returns the registered verbs in no particular order.
func (r *Registry) Verbs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for v := range r.handlers {
		out = append(out, v)
	}
	return out
}

func (r *Registry) ExecuteAction(ctx context.Context, action string, vars map[string]any) (api.ActionResult, error) {
	verb, args := split(action)
	if verb == "" {
		return api.ActionResult{}, fmt.Errorf("empty action")
	}

	r.mu.RLock()
	h, ok := r.handlers[strings.ToLower(verb)]
	r.mu.RUnlock()
	if !ok {
		return api.ActionResult{}, fmt.Errorf("unknown action %q", verb)
	}
	return h(ctx, Expand(args, vars), vars)
}

// split separates the verb from its arguments.
func split(action string) (verb, args string) {
	action = strings.TrimSpace(action)
	i := strings.IndexAny(action, " \t")
	if i < 0 {
		return action, ""
	}
	return action[:i], strings.TrimSpace(action[i+1:])
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
