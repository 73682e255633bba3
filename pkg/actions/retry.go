package actions

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// RetryPolicy describes how often and how patiently an action is retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// BackoffMultiplier grows the delay after every retry. Values <= 0
	// mean 2.
	BackoffMultiplier float64

	// MaxBackoff caps the delay. Zero means no cap.
	MaxBackoff time.Duration

	// RetryOnFailure also retries results with Success == false. By default
	// only errors are retried.
	RetryOnFailure bool
}

// Backoff returns the delay before retry number n (1-based).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(p.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= mult
		if p.MaxBackoff > 0 && d >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	return time.Duration(d)
}

type retrying struct {
	next   api.ActionExecutor
	policy RetryPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps next so that failing actions are attempted again
// according to policy. The result of the last attempt is returned.
func WithRetry(next api.ActionExecutor, policy RetryPolicy, logger *slog.Logger) api.ActionExecutor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retrying{next: next, policy: policy, logger: logger, sleep: sleep}
}

func (r *retrying) ExecuteAction(ctx context.Context, action string, vars map[string]any) (api.ActionResult, error) {
	var (
		res api.ActionResult
		err error
	)
	for attempt := 1; ; attempt++ {
		res, err = r.next.ExecuteAction(ctx, action, vars)
		if err == nil && (res.Success || !r.policy.RetryOnFailure) {
			return res, nil
		}
		if attempt >= r.policy.MaxAttempts {
			return res, err
		}

		delay := r.policy.Backoff(attempt)
		r.logger.WarnContext(ctx, "action_retry",
			slog.String("action", action),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.Any("error", err),
		)
		if serr := r.sleep(ctx, delay); serr != nil {
			if err == nil {
				err = serr
			}
			return res, err
		}
	}
}
