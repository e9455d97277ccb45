package flow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/torosent/shopflow/internal/httpclient"
)

// Kind classifies why a step ended the iteration.
type Kind string

const (
	KindTransport          Kind = "transport"
	KindUnexpectedStatus   Kind = "unexpected_status"
	KindRetryExhausted     Kind = "retry_exhausted"
	KindConvergenceTimeout Kind = "convergence_timeout"
	KindDataShape          Kind = "data_shape"
)

// StepError is the single fatal error type of the flow. It carries what is
// needed to diagnose a failed iteration from the log line alone.
type StepError struct {
	Step      string
	Kind      Kind
	Wave      string
	VU        int
	Iteration int
	Message   string
	Status    int
	Body      string
	Fields    map[string]any
	Err       error
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (wave=%s vu=%d iter=%d): %s", e.Step, e.Kind, e.Wave, e.VU, e.Iteration, e.Message)
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	for _, k := range sortedKeys(e.Fields) {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	if e.Body != "" {
		fmt.Fprintf(&b, " body=%s", e.Body)
	}
	// The status error repeats status and body.
	if e.Err != nil && e.Kind != KindUnexpectedStatus {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepTag is used by the metrics collector to attribute aborts.
func (e *StepError) StepTag() string {
	return e.Step
}

func (e *StepError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("step", e.Step)
	enc.AddString("kind", string(e.Kind))
	enc.AddString("message", e.Message)
	if e.Status != 0 {
		enc.AddInt("status", e.Status)
	}
	if e.Body != "" {
		enc.AddString("body", e.Body)
	}
	for _, k := range sortedKeys(e.Fields) {
		if err := enc.AddReflected(k, e.Fields[k]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// requestError classifies an error returned by the HTTP client.
func requestError(err error) (Kind, int, string) {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return KindUnexpectedStatus, statusErr.Status, statusErr.Body
	}
	return KindTransport, 0, ""
}
