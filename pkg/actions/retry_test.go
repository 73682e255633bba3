package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// flaky fails until it has been called okAfter times.
type flaky struct {
	calls   int
	okAfter int
	soft    bool
}

func (f *flaky) ExecuteAction(ctx context.Context, action string, vars map[string]any) (api.ActionResult, error) {
	f.calls++
	if f.calls >= f.okAfter {
		return api.ActionResult{Success: true, Output: "ok"}, nil
	}
	if f.soft {
		return api.ActionResult{Success: false}, nil
	}
	return api.ActionResult{}, errors.New("transient")
}

func withFakeSleep(exec api.ActionExecutor) (*retrying, *[]time.Duration) {
	r := exec.(*retrying)
	var delays []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return r, &delays
}

func TestWithRetry_RetriesErrorsWithBackoff(t *testing.T) {
	inner := &flaky{okAfter: 3}
	r, delays := withFakeSleep(WithRetry(inner, RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 10 * time.Millisecond,
	}, nil))

	res, err := r.ExecuteAction(context.Background(), "call", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *delays)
}

func TestWithRetry_GivesUp(t *testing.T) {
	inner := &flaky{okAfter: 10}
	r, _ := withFakeSleep(WithRetry(inner, RetryPolicy{MaxAttempts: 2}, nil))

	_, err := r.ExecuteAction(context.Background(), "call", nil)
	assert.EqualError(t, err, "transient")
	assert.Equal(t, 2, inner.calls)
}

func TestWithRetry_SoftFailuresOnlyWhenAsked(t *testing.T) {
	inner := &flaky{okAfter: 2, soft: true}
	r, _ := withFakeSleep(WithRetry(inner, RetryPolicy{MaxAttempts: 3}, nil))
	res, err := r.ExecuteAction(context.Background(), "call", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, inner.calls)

	inner = &flaky{okAfter: 2, soft: true}
	r, _ = withFakeSleep(WithRetry(inner, RetryPolicy{MaxAttempts: 3, RetryOnFailure: true}, nil))
	res, err = r.ExecuteAction(context.Background(), "call", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, inner.calls)
}

func TestWithRetry_StopsWhenSleepIsInterrupted(t *testing.T) {
	inner := &flaky{okAfter: 10, soft: true}
	exec := WithRetry(inner, RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Minute, RetryOnFailure: true}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := exec.ExecuteAction(ctx, "call", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, BackoffMultiplier: 3, MaxBackoff: time.Second}
	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 900*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(4))

	assert.Equal(t, time.Duration(0), RetryPolicy{}.Backoff(3))
}
