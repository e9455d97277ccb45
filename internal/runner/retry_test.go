package runner_test

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/shopflow/internal/httpclient"
	"github.com/torosent/shopflow/internal/runner"
)

// scriptedAttempt returns the given statuses in order, repeating the last one.
func scriptedAttempt(calls *int, statuses ...int) runner.Attempt {
	return func(ctx context.Context, acceptable []int) (*httpclient.Response, error) {
		status := statuses[min(*calls, len(statuses)-1)]
		*calls++
		resp := &httpclient.Response{Status: status}
		if !httpclient.IsAcceptable(status, acceptable) {
			return resp, &httpclient.StatusError{Status: status}
		}
		return resp, nil
	}
}

func orderPolicy(failures *atomic.Int64) runner.RetryPolicy {
	return runner.RetryPolicy{
		MaxAttempts:   3,
		Delay:         time.Millisecond,
		SuccessStatus: 200,
		Retryable:     []int{200, 404, 500, 502, 503, 504},
		OnFailure:     func() { failures.Add(1) },
	}
}

func TestRetrySucceedsOnAttemptK(t *testing.T) {
	for k := 1; k <= 3; k++ {
		statuses := make([]int, 0, k)
		for i := 1; i < k; i++ {
			statuses = append(statuses, 503)
		}
		statuses = append(statuses, 200)

		var failures atomic.Int64
		calls := 0
		resp, ok, err := runner.Retry(context.Background(), orderPolicy(&failures), scriptedAttempt(&calls, statuses...))
		if err != nil || !ok {
			t.Fatalf("k=%d: Retry() = %v, %v; want success", k, ok, err)
		}
		if calls != k {
			t.Errorf("k=%d: attempts = %d", k, calls)
		}
		if resp.Status != 200 {
			t.Errorf("k=%d: status = %d", k, resp.Status)
		}
		if failures.Load() != int64(k-1) {
			t.Errorf("k=%d: failure counter = %d, want %d", k, failures.Load(), k-1)
		}
	}
}

func TestRetryExhausted(t *testing.T) {
	var failures atomic.Int64
	calls := 0
	resp, ok, err := runner.Retry(context.Background(), orderPolicy(&failures), scriptedAttempt(&calls, 502))
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if ok {
		t.Fatal("Retry() succeeded, want exhausted")
	}
	if calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
	if resp == nil || resp.Status != 502 {
		t.Errorf("last response = %+v, want 502", resp)
	}
	if failures.Load() != 2 {
		t.Errorf("failure counter = %d, want 2", failures.Load())
	}
}

func TestRetryStopsOnUnlistedStatus(t *testing.T) {
	var failures atomic.Int64
	calls := 0
	resp, ok, err := runner.Retry(context.Background(), orderPolicy(&failures), scriptedAttempt(&calls, 503, 400, 200))
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != 400 {
		t.Fatalf("Retry() error = %v, want StatusError 400", err)
	}
	if ok || calls != 2 {
		t.Errorf("ok=%v attempts=%d, want false/2", ok, calls)
	}
	if resp == nil || resp.Status != 400 {
		t.Errorf("last response = %+v", resp)
	}
	if failures.Load() != 1 {
		t.Errorf("failure counter = %d, want 1", failures.Load())
	}
}

func TestRetryStopsOnTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	calls := 0
	_, ok, err := runner.Retry(context.Background(), runner.RetryPolicy{MaxAttempts: 5, SuccessStatus: 200},
		func(context.Context, []int) (*httpclient.Response, error) {
			calls++
			return nil, boom
		})
	if !errors.Is(err, boom) || ok || calls != 1 {
		t.Errorf("Retry() = ok %v, err %v, calls %d", ok, err, calls)
	}
}

func TestRetryHonorsContextDuringDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	policy := runner.RetryPolicy{MaxAttempts: 5, Delay: time.Second, SuccessStatus: 200, Retryable: []int{503}}
	start := time.Now()
	_, ok, err := runner.Retry(ctx, policy, scriptedAttempt(&calls, 503))
	if !errors.Is(err, context.DeadlineExceeded) || ok {
		t.Fatalf("Retry() = %v, %v; want deadline exceeded", ok, err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Retry() did not stop promptly")
	}
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
}

func TestRetryPolicyAcceptable(t *testing.T) {
	p := runner.RetryPolicy{SuccessStatus: 200, Retryable: []int{502, 503}}
	got := p.Acceptable()
	slices.Sort(got)
	if !slices.Equal(got, []int{200, 502, 503}) {
		t.Errorf("Acceptable() = %v", got)
	}
	if len(p.Retryable) != 2 {
		t.Errorf("Acceptable() mutated Retryable: %v", p.Retryable)
	}
}
