// Package metrics provides the run-wide metrics sink for shopflow.
//
// Every virtual user shares one [Collector]. It accepts only monotonic
// increments, so concurrent users never coordinate beyond atomic adds:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//
//	collector.RecordRequest("STEP1", latency, 200, false)
//	collector.Check("STEP1 product detail code=200", ok)
//	collector.Add(metrics.CounterTxCompleted, 1)
//	collector.RecordIteration(err)
//
//	snap := collector.Snapshot(collector.Elapsed())
//
// # Snapshot
//
// [Snapshot] is a detached copy used by the reporter and threshold evaluation:
//   - check pass/fail totals and per-check breakdown
//   - iteration counts, with aborts attributed to the failing step
//   - request counts, failure rate, requests and transactions per second
//   - latency percentiles overall and per step (HDR histogram)
//   - named business counters such as retry failures and wait timeouts
//
// # Prometheus
//
// The collector mirrors each update into a private Prometheus registry,
// served by [Collector.Handler] while a run is in progress.
package metrics
