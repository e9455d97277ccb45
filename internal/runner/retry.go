package runner

import (
	"context"
	"slices"
	"time"

	"github.com/torosent/shopflow/internal/httpclient"
)

// Attempt issues one request. It receives the statuses the retry policy is
// willing to continue on and should pass them as the request's acceptable set.
type Attempt func(ctx context.Context, acceptable []int) (*httpclient.Response, error)

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	MaxAttempts   int           // total attempts including initial try
	Delay         time.Duration // fixed delay between attempts
	SuccessStatus int           // the only status that ends the loop successfully
	Retryable     []int         // statuses the transport treats as continuable
	OnFailure     func()        // called once per unsuccessful attempt that is followed by another
}

// Acceptable is the whitelist handed to the transport: Retryable plus the
// success status.
func (p RetryPolicy) Acceptable() []int {
	out := slices.Clone(p.Retryable)
	if p.SuccessStatus != 0 && !slices.Contains(out, p.SuccessStatus) {
		out = append(out, p.SuccessStatus)
	}
	return out
}

// Retry runs fn until it returns SuccessStatus or MaxAttempts is spent. It
// returns the last response and whether it succeeded. Errors from fn (an
// unlisted status or a transport failure) end the loop immediately, as does
// context cancellation.
func Retry(ctx context.Context, policy RetryPolicy, fn Attempt) (*httpclient.Response, bool, error) {
	attempts := max(1, policy.MaxAttempts)
	acceptable := policy.Acceptable()

	var last *httpclient.Response
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, false, err
		}

		resp, err := fn(ctx, acceptable)
		if resp != nil {
			last = resp
		}
		if err != nil {
			return last, false, err
		}
		if resp.Status == policy.SuccessStatus {
			return resp, true, nil
		}

		// Don't count or delay after the last attempt.
		if attempt < attempts {
			if policy.OnFailure != nil {
				policy.OnFailure()
			}
			if err := sleep(ctx, policy.Delay); err != nil {
				return last, false, err
			}
		}
	}
	return last, false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
