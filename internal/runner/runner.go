package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/shopflow/internal/tracing"
)

// Result captures execution summary.
type Result struct {
	Total       int64 // finished iterations, completed or aborted
	Errors      int64 // aborted iterations
	Interrupted int64 // cut short by run or wave cancellation; not counted in Total
	Duration    time.Duration
}

// Runner activates waves of virtual users and drives their iterations.
type Runner struct {
	opt Options
	log *zap.Logger

	total       atomic.Int64
	errs        atomic.Int64
	interrupted atomic.Int64
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt, log: opt.Logger}
}

// Run blocks until every wave has finished or ctx is cancelled. Waves whose
// offset has not elapsed when ctx ends are never activated.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range r.opt.Waves {
		g.Go(func() error {
			if err := sleep(gctx, w.Offset); err != nil {
				r.log.Info("wave not started", zap.String("wave", w.Name), zap.Error(err))
				return nil
			}
			r.runWave(gctx, w)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Total:       r.total.Load(),
		Errors:      r.errs.Load(),
		Interrupted: r.interrupted.Load(),
		Duration:    time.Since(start),
	}
	r.log.Info("run finished",
		zap.Int64("iterations", res.Total),
		zap.Int64("aborted", res.Errors),
		zap.Int64("interrupted", res.Interrupted),
		zap.Duration("elapsed", res.Duration),
	)
	return res
}

func (r *Runner) runWave(ctx context.Context, w Wave) {
	r.log.Info("wave started",
		zap.String("wave", w.Name),
		zap.Int("vus", w.Size),
		zap.Int("first_vu", w.FirstOrdinal),
		zap.Duration("offset", w.Offset),
	)

	// stop ends the loop of new iterations; run bounds the iterations themselves.
	var stop, run context.Context
	if w.Sustained() {
		var cancelStop, cancelRun context.CancelFunc
		stop, cancelStop = context.WithTimeout(ctx, w.Duration)
		defer cancelStop()
		run, cancelRun = context.WithTimeout(ctx, w.Duration+w.GracefulStop)
		defer cancelRun()
	} else {
		run = ctx
		if w.MaxDuration > 0 {
			var cancel context.CancelFunc
			run, cancel = context.WithTimeout(ctx, w.MaxDuration)
			defer cancel()
		}
		stop = run
	}

	var g errgroup.Group
	for _, ordinal := range w.Ordinals() {
		g.Go(func() error {
			r.runUser(run, stop, w, ordinal)
			return nil
		})
	}
	_ = g.Wait()

	r.log.Info("wave finished", zap.String("wave", w.Name))
}

func (r *Runner) runUser(run, stop context.Context, w Wave, ordinal int) {
	vu := VirtualUser{
		Wave:       w.Name,
		Ordinal:    ordinal,
		Credential: r.opt.Credentials.ForUser(ordinal),
	}
	for iter := 0; w.Sustained() || iter < w.Iterations; iter++ {
		if stop.Err() != nil {
			return
		}
		vu.Iteration = iter
		r.iterate(run, vu)
	}
}

func (r *Runner) iterate(ctx context.Context, vu VirtualUser) {
	itCtx := ctx
	if r.opt.IterationTimeout > 0 {
		var cancel context.CancelFunc
		itCtx, cancel = context.WithTimeout(ctx, r.opt.IterationTimeout)
		defer cancel()
	}
	itCtx, span := tracing.StartIterationSpan(itCtx, r.opt.Tracer, tracing.IterationAttrs{
		Wave:      vu.Wave,
		VU:        vu.Ordinal,
		Iteration: vu.Iteration,
	})

	err := r.opt.Scenario.Run(itCtx, vu)
	tracing.EndSpan(span, err)

	if err != nil && ctx.Err() != nil {
		r.interrupted.Add(1)
		r.log.Debug("iteration interrupted", vuFields(vu, err)...)
		return
	}

	r.total.Add(1)
	if r.opt.Recorder != nil {
		r.opt.Recorder.RecordIteration(err)
	}
	if err != nil {
		r.errs.Add(1)
		r.log.Warn("iteration aborted", vuFields(vu, err)...)
	}
}

func vuFields(vu VirtualUser, err error) []zap.Field {
	fields := []zap.Field{
		zap.String("wave", vu.Wave),
		zap.Int("vu", vu.Ordinal),
		zap.Int("iteration", vu.Iteration),
	}
	var detail zapcore.ObjectMarshaler
	if errors.As(err, &detail) {
		fields = append(fields, zap.Object("detail", detail))
	}
	return append(fields, zap.Error(err))
}
