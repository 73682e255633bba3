package expression

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

const (
	DefaultCacheSize     = 500
	DefaultTimeout       = 100 * time.Millisecond
	DefaultSlowThreshold = 50 * time.Millisecond
)

// Config controls an Evaluator. Zero values select the defaults.
type Config struct {
	// CacheSize bounds the number of compiled programs kept.
	CacheSize int

	// Timeout is the longest an evaluation may run before its result is
	// discarded. It is measured after the fact; evaluation is not preempted.
	Timeout time.Duration

	// SlowThreshold is the total duration above which a warning is logged.
	SlowThreshold time.Duration

	Logger *slog.Logger
}

// CacheStats describes the compiled-program cache.
type CacheStats struct {
	Hits     int64
	Misses   int64
	Size     int
	Capacity int
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Evaluator compiles, caches and runs guard expressions. It is safe for
// concurrent use.
type Evaluator struct {
	cache    *lru.Cache[string, *vm.Program]
	capacity int
	hits     atomic.Int64
	misses   atomic.Int64

	timeout time.Duration
	slow    time.Duration
	logger  *slog.Logger

	now func() time.Time
}

// New creates an Evaluator.
func New(cfg Config) *Evaluator {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = DefaultSlowThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, *vm.Program](cfg.CacheSize)
	return &Evaluator{
		cache:    cache,
		capacity: cfg.CacheSize,
		timeout:  cfg.Timeout,
		slow:     cfg.SlowThreshold,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// timings holds per-phase durations of one evaluation.
type timings struct {
	validate time.Duration
	compile  time.Duration
	env      time.Duration
	execute  time.Duration
	coerce   time.Duration
}

func (t timings) total() time.Duration {
	return t.validate + t.compile + t.env + t.execute + t.coerce
}

// Evaluate validates, compiles (or reuses) and runs expression against vars
// and coerces the outcome to a boolean.
func (e *Evaluator) Evaluate(expression string, vars map[string]any) (bool, error) {
	var tm timings

	start := e.now()
	err := Validate(expression)
	tm.validate = e.now().Sub(start)
	if err != nil {
		return false, err
	}

	start = e.now()
	program, hit, err := e.program(expression)
	tm.compile = e.now().Sub(start)
	if err != nil {
		return false, err
	}

	start = e.now()
	env := BuildEnv(vars)
	tm.env = e.now().Sub(start)

	start = e.now()
	out, err := expr.Run(program, env)
	tm.execute = e.now().Sub(start)
	if err != nil {
		return false, &api.ExpressionError{Expression: expression, Reason: "evaluation failed", Err: err}
	}
	if tm.execute > e.timeout {
		return false, &api.ExpressionError{
			Expression: expression,
			Reason:     fmt.Sprintf("evaluation timed out after %s (limit %s)", tm.execute, e.timeout),
		}
	}

	start = e.now()
	result, err := Truthy(out)
	tm.coerce = e.now().Sub(start)
	if err != nil {
		return false, &api.ExpressionError{Expression: expression, Reason: err.Error()}
	}

	e.record(expression, hit, result, tm)
	return result, nil
}

func (e *Evaluator) program(expression string) (*vm.Program, bool, error) {
	if p, ok := e.cache.Get(expression); ok {
		e.hits.Add(1)
		return p, true, nil
	}
	e.misses.Add(1)

	p, err := expr.Compile(expression, compileOptions(expression)...)
	if err != nil {
		return nil, false, &api.ExpressionError{Expression: expression, Reason: "compilation failed", Err: err}
	}
	e.cache.Add(expression, p)
	return p, false, nil
}

func (e *Evaluator) record(expression string, hit bool, result bool, tm timings) {
	total := tm.total()
	attrs := []any{
		slog.String("expression", expression),
		slog.Bool("cache_hit", hit),
		slog.Bool("result", result),
		slog.Duration("validate", tm.validate),
		slog.Duration("compile", tm.compile),
		slog.Duration("env", tm.env),
		slog.Duration("execute", tm.execute),
		slog.Duration("coerce", tm.coerce),
		slog.Duration("total", total),
	}
	if total > e.slow {
		e.logger.Warn("expression_slow", append(attrs, slog.Duration("threshold", e.slow))...)
		return
	}
	e.logger.Debug("expression_evaluated", attrs...)
}

// IsCached reports whether expression has a compiled program in the cache.
func (e *Evaluator) IsCached(expression string) bool {
	return e.cache.Contains(expression)
}

// Stats returns a snapshot of the cache counters.
func (e *Evaluator) Stats() CacheStats {
	return CacheStats{
		Hits:     e.hits.Load(),
		Misses:   e.misses.Load(),
		Size:     e.cache.Len(),
		Capacity: e.capacity,
	}
}

// Purge drops every cached program. Counters are kept.
func (e *Evaluator) Purge() {
	e.cache.Purge()
}

// Truthy coerces an evaluation result to a boolean: numbers are true when
// non-zero, strings when non-empty, nil is false. Other types are an error.
func Truthy(v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case int8:
		return t != 0, nil
	case int16:
		return t != 0, nil
	case int32:
		return t != 0, nil
	case int64:
		return t != 0, nil
	case uint:
		return t != 0, nil
	case uint8:
		return t != 0, nil
	case uint16:
		return t != 0, nil
	case uint32:
		return t != 0, nil
	case uint64:
		return t != 0, nil
	case float32:
		return t != 0, nil
	case float64:
		return t != 0, nil
	case string:
		return t != "", nil
	default:
		return false, fmt.Errorf("unsupported result type %T", v)
	}
}
