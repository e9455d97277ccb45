package runner

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/torosent/shopflow/internal/credentials"
)

// VirtualUser identifies one simulated shopper. Ordinal is 1-based and unique
// across all waves of a run; Iteration is 0-based per user.
type VirtualUser struct {
	Wave       string
	Ordinal    int
	Iteration  int
	Credential credentials.Credential
}

// Scenario runs one iteration for a virtual user. A non-nil error aborts
// that iteration only.
type Scenario interface {
	Run(ctx context.Context, vu VirtualUser) error
}

// ScenarioFunc adapts a function to Scenario.
type ScenarioFunc func(ctx context.Context, vu VirtualUser) error

func (f ScenarioFunc) Run(ctx context.Context, vu VirtualUser) error {
	return f(ctx, vu)
}

// CredentialSource hands out the credential a user keeps for its lifetime.
type CredentialSource interface {
	ForUser(ordinal int) credentials.Credential
}

// IterationRecorder receives every finished iteration.
type IterationRecorder interface {
	RecordIteration(err error)
}

// Options configure the Runner.
type Options struct {
	Waves            []Wave            // from PlanWaves (required)
	Scenario         Scenario          // iteration body (required)
	Credentials      CredentialSource  // required
	Recorder         IterationRecorder // optional
	IterationTimeout time.Duration     // hard per-iteration deadline (0 means none)
	Logger           *zap.Logger
	Tracer           trace.Tracer
}

func (o *Options) normalize() {
	if o.IterationTimeout < 0 {
		o.IterationTimeout = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("shopflow")
	}
}
