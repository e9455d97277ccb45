// Package runner schedules virtual users and provides the two wait
// primitives the checkout flow is built on.
//
// # Waves
//
// [PlanWaves] splits the configured user budget into up to three waves
// started at multiples of the wave gap, or into one sustained pool in
// duration mode:
//
//	waves, err := runner.PlanWaves(*cfg)
//	if err != nil {
//		return err
//	}
//	r := runner.New(runner.Options{
//		Waves:            waves,
//		Scenario:         flow,
//		Credentials:      rotation,
//		Recorder:         collector,
//		IterationTimeout: cfg.DerivedIterationTimeout(),
//		Logger:           logger,
//	})
//	result := r.Run(ctx)
//
// User ordinals are global: wave1 takes 1..w1, wave2 continues from w1+1.
// Each user keeps the credential it was given for every iteration.
//
// # Retry and convergence
//
// [Retry] repeats a request until an exact success status, sleeping a fixed
// delay between attempts. Statuses outside the policy's whitelist surface as
// errors from the request itself and stop the loop.
//
// [PollUntil] waits for an asynchronous side effect: it re-issues a read until
// a predicate holds or a timeout elapses, sleeping between reads.
//
// # Errors
//
// A Scenario error aborts that iteration only. Errors that implement
// zapcore.ObjectMarshaler are logged with their structured fields.
package runner
