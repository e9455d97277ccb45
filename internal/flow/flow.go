package flow

import (
	"context"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/torosent/shopflow/internal/config"
	"github.com/torosent/shopflow/internal/httpclient"
	"github.com/torosent/shopflow/internal/metrics"
	"github.com/torosent/shopflow/internal/runner"
	"github.com/torosent/shopflow/internal/tracing"
)

// Step tags. They name checks, errors, spans and per-step metrics.
const (
	StepAddress  = "ADDRESS"
	StepProduct  = "STEP1"
	StepCartAdd  = "STEP3"
	StepCartRead = "STEP4"
	StepOrder    = "STEP5"
	StepPayment  = "STEP6"
	StepSettle   = "STEP7"
	StepVerify   = "STEP8"
)

// Check names as reported in the summary.
const (
	CheckProductDetail  = "STEP1 product detail code=200"
	CheckCartAdd        = "STEP3 cart add code=201"
	CheckCartGet        = "STEP4 cart get code=200"
	CheckOrderCreate    = "STEP5 order create code=200"
	CheckCartClear      = "STEP7 cart clear code=204"
	CheckCartEmpty      = "STEP8 cart empty code=200"
	CheckOrderConfirmed = "STEP7 order confirmed by event"
	CheckCartEmptyEvent = "STEP8 cart emptied by event"
)

const (
	pathAddresses    = "/api/v2/users/me/addresses"
	pathProducts     = "/api/v2/products"
	pathCart         = "/api/v2/cart"
	pathCartBulk     = "/api/v2/cart/items/bulk"
	pathOrders       = "/api/v2/orders"
	pathPaymentReady = "/api/v2/payments/ready"
	browsePageQuery  = "?page=1&size=20"
)

// Doer issues one HTTP exchange. *httpclient.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, r httpclient.Request) (*httpclient.Response, error)
}

// Sink receives checks and business counters. *metrics.Collector satisfies it.
type Sink interface {
	Check(name string, ok bool) bool
	Add(name string, delta int64)
}

// Options shape the flow.
type Options struct {
	Hosts         config.Hosts
	ProductID     string // empty selects the first product of the catalogue listing
	CartClearMode config.CartClearMode
	EventWait     runner.PollPolicy
	OrderRetry    runner.RetryPolicy
	PaymentRetry  runner.RetryPolicy
	Logger        *zap.Logger
	Tracer        trace.Tracer
}

// OptionsFromConfig derives flow options from the run configuration. The
// retry budgets are fixed.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Hosts:         cfg.Hosts,
		ProductID:     cfg.ProductID,
		CartClearMode: cfg.CartClearMode,
		EventWait:     runner.PollPolicy{Timeout: cfg.EventWaitTimeout, Interval: cfg.EventWaitPoll},
		OrderRetry: runner.RetryPolicy{
			MaxAttempts:   config.OrderCreateAttempts,
			Delay:         config.OrderCreateDelay,
			SuccessStatus: http.StatusOK,
			Retryable:     []int{200, 404, 500, 502, 503, 504},
		},
		PaymentRetry: runner.RetryPolicy{
			MaxAttempts:   config.PaymentReadyAttempts,
			Delay:         config.PaymentReadyDelay,
			SuccessStatus: http.StatusOK,
			Retryable:     []int{200, 502, 503, 504},
		},
	}
}

// Flow is the checkout state machine. It is stateless between iterations and
// safe for concurrent use by any number of virtual users.
type Flow struct {
	client Doer
	sink   Sink
	opt    Options
	log    *zap.Logger
	tracer trace.Tracer
}

func New(client Doer, sink Sink, opt Options) *Flow {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Tracer == nil {
		opt.Tracer = noop.NewTracerProvider().Tracer("shopflow")
	}
	if opt.CartClearMode == "" {
		opt.CartClearMode = config.CartClearEvent
	}
	return &Flow{client: client, sink: sink, opt: opt, log: opt.Logger, tracer: opt.Tracer}
}

// iteration binds one virtual user's pass through the flow.
type iteration struct {
	*Flow
	vu    runner.VirtualUser
	state State
}

// Run executes one iteration. It returns nil when the transaction completed
// and a *StepError for the step that ended it otherwise.
func (f *Flow) Run(ctx context.Context, vu runner.VirtualUser) error {
	it := &iteration{Flow: f, vu: vu}

	steps := []struct {
		tag  string
		host string
		run  func(context.Context) error
	}{
		{StepAddress, f.opt.Hosts.User, it.ensureAddress},
		{StepProduct, f.opt.Hosts.Product, it.resolveProduct},
		{StepCartAdd, f.opt.Hosts.Cart, it.addToCart},
		{StepCartRead, f.opt.Hosts.Cart, it.readCart},
		{StepOrder, f.opt.Hosts.Order, it.createOrder},
		{StepPayment, f.opt.Hosts.Payment, it.initiatePayment},
		{StepSettle, "", it.settleCart},
	}
	for _, step := range steps {
		stepCtx, span := tracing.StartStepSpan(ctx, f.tracer, step.tag, step.host)
		err := step.run(stepCtx)
		tracing.EndSpan(span, err)
		if err != nil {
			return err
		}
	}

	f.sink.Add(metrics.CounterTxCompleted, 1)
	return nil
}

func (it *iteration) do(ctx context.Context, step, method, host, path string, body any, acceptable []int) (*httpclient.Response, error) {
	return it.client.Do(ctx, httpclient.Request{
		Method:     method,
		Host:       host,
		Path:       path,
		Body:       body,
		Acceptable: acceptable,
		Token:      string(it.vu.Credential),
		Step:       step,
	})
}

func (it *iteration) fail(step string, kind Kind, msg string, resp *httpclient.Response, err error) *StepError {
	se := &StepError{
		Step:      step,
		Kind:      kind,
		Wave:      it.vu.Wave,
		VU:        it.vu.Ordinal,
		Iteration: it.vu.Iteration,
		Message:   msg,
		Err:       err,
	}
	if resp != nil {
		se.Status = resp.Status
		se.Body = resp.Snippet()
	}
	return se
}

// requestFailed wraps an error returned by the client.
func (it *iteration) requestFailed(step, msg string, resp *httpclient.Response, err error) *StepError {
	kind, status, _ := requestError(err)
	se := it.fail(step, kind, msg, resp, err)
	if se.Status == 0 {
		se.Status = status
	}
	return se
}

func pathEscape(id string) string {
	return url.PathEscape(id)
}
