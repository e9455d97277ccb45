package runner

import (
	"context"
	"time"

	"github.com/torosent/shopflow/internal/httpclient"
)

// PollPolicy bounds a convergence wait.
type PollPolicy struct {
	Timeout  time.Duration
	Interval time.Duration
}

// PollUntil calls fn until pred holds for its response, returning true, or
// until Timeout has elapsed, returning false. Request errors count as "not
// yet". It sleeps between calls and never sleeps past the deadline.
func PollUntil(ctx context.Context, policy PollPolicy, fn func(ctx context.Context) (*httpclient.Response, error), pred func(*httpclient.Response) bool) bool {
	deadline := time.Now().Add(policy.Timeout)
	for {
		if ctx.Err() != nil {
			return false
		}
		resp, err := fn(ctx)
		if err == nil && resp != nil && pred(resp) {
			return true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		wait := remaining
		if policy.Interval > 0 {
			wait = min(policy.Interval, remaining)
		}
		if sleep(ctx, wait) != nil {
			return false
		}
	}
}
