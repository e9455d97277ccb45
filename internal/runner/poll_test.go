package runner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/torosent/shopflow/internal/httpclient"
	"github.com/torosent/shopflow/internal/runner"
)

func statusIs(want string) func(*httpclient.Response) bool {
	return func(r *httpclient.Response) bool { return r.JSON("status").String() == want }
}

func TestPollUntilImmediateSuccess(t *testing.T) {
	calls := 0
	ok := runner.PollUntil(context.Background(), runner.PollPolicy{Timeout: time.Second, Interval: 100 * time.Millisecond},
		func(context.Context) (*httpclient.Response, error) {
			calls++
			return &httpclient.Response{Status: 200, Body: []byte(`{"status":"CONFIRMED"}`)}, nil
		}, statusIs("CONFIRMED"))
	if !ok {
		t.Fatal("PollUntil() = false, want true")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPollUntilTimeoutBounds(t *testing.T) {
	timeout := 120 * time.Millisecond
	interval := 50 * time.Millisecond
	calls := 0

	start := time.Now()
	ok := runner.PollUntil(context.Background(), runner.PollPolicy{Timeout: timeout, Interval: interval},
		func(context.Context) (*httpclient.Response, error) {
			calls++
			return &httpclient.Response{Status: 200, Body: []byte(`{"status":"PENDING"}`)}, nil
		}, statusIs("CONFIRMED"))
	elapsed := time.Since(start)

	if ok {
		t.Fatal("PollUntil() = true, want false")
	}
	if elapsed < timeout {
		t.Errorf("returned after %s, before timeout %s", elapsed, timeout)
	}
	// Scheduling slack on top of timeout+interval.
	if elapsed > timeout+interval+50*time.Millisecond {
		t.Errorf("returned after %s, later than timeout+interval", elapsed)
	}
	if calls < 2 || calls > 5 {
		t.Errorf("calls = %d, want a handful spaced by the interval", calls)
	}
}

func TestPollUntilTreatsErrorsAsNotYet(t *testing.T) {
	calls := 0
	ok := runner.PollUntil(context.Background(), runner.PollPolicy{Timeout: time.Second, Interval: 5 * time.Millisecond},
		func(context.Context) (*httpclient.Response, error) {
			calls++
			switch calls {
			case 1:
				return nil, errors.New("dial tcp: refused")
			case 2:
				return &httpclient.Response{Status: 503}, &httpclient.StatusError{Status: 503}
			default:
				return &httpclient.Response{Status: 200, Body: []byte(`[]`)}, nil
			}
		}, func(r *httpclient.Response) bool {
			items, ok := r.Array()
			return ok && len(items) == 0
		})
	if !ok || calls != 3 {
		t.Errorf("PollUntil() = %v after %d calls, want true after 3", ok, calls)
	}
}

func TestPollUntilStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	ok := runner.PollUntil(ctx, runner.PollPolicy{Timeout: 5 * time.Second, Interval: time.Second},
		func(context.Context) (*httpclient.Response, error) {
			return &httpclient.Response{Status: 200}, nil
		}, func(*httpclient.Response) bool { return false })
	if ok {
		t.Fatal("PollUntil() = true after cancel")
	}
	if time.Since(start) > time.Second/2 {
		t.Errorf("PollUntil() ignored cancellation")
	}
}
