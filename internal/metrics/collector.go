package metrics

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Well-known counter names shared by the flow and the reporter.
const (
	CounterTxCompleted                = "tx_completed"
	CounterOrderCreateRetryFailures   = "order_create_retry_failures"
	CounterPaymentReadyRetryFailures  = "payment_ready_retry_failures"
	CounterOrderConfirmedWaitTimeouts = "order_confirmed_wait_timeouts"
	CounterCartEventClearWaitTimeouts = "cart_event_clear_wait_timeouts"
	CounterAddressCreateFailures      = "address_create_failures"
)

// UntaggedAbort is the AbortsByStep key for aborts whose error names no step.
const UntaggedAbort = "untagged"

// Collector is the run-wide metrics sink. Counters only ever grow; every
// method is safe for concurrent use by any number of virtual users.
type Collector struct {
	httpReqs     atomic.Int64
	httpFailed   atomic.Int64
	checksPassed atomic.Int64
	checksFailed atomic.Int64
	iterations   atomic.Int64
	aborted      atomic.Int64

	counters sync.Map // name -> *atomic.Int64
	checks   sync.Map // name -> *checkCounter

	mu      sync.Mutex
	hist    *hdrhistogram.Histogram
	steps   map[string]*stepRecorder
	aborts  map[string]int64
	started time.Time

	prom *promMirror
}

type checkCounter struct {
	passes atomic.Int64
	fails  atomic.Int64
}

type stepRecorder struct {
	hist     *hdrhistogram.Histogram
	total    int64
	failures int64
	sum      time.Duration
	min      time.Duration
	max      time.Duration
	statuses map[string]int
}

// NewCollector returns an empty collector whose clock starts now.
func NewCollector() *Collector {
	return &Collector{
		hist:    newHistogram(),
		steps:   make(map[string]*stepRecorder),
		aborts:  make(map[string]int64),
		started: time.Now(),
		prom:    newPromMirror(),
	}
}

// Track latencies from 1µs up to 60s with 3 significant figures.
func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, 60_000_000, 3)
}

// Start resets the clock used for rate calculations.
func (c *Collector) Start() {
	c.mu.Lock()
	c.started = time.Now()
	c.mu.Unlock()
}

// Elapsed reports time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.started)
}

// RecordRequest records one HTTP exchange. status is 0 for transport errors.
func (c *Collector) RecordRequest(step string, latency time.Duration, status int, failed bool) {
	c.httpReqs.Add(1)
	if failed {
		c.httpFailed.Add(1)
	}

	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}

	c.mu.Lock()
	recordLatency(c.hist, latency)
	rec, ok := c.steps[step]
	if !ok {
		rec = &stepRecorder{hist: newHistogram(), statuses: make(map[string]int)}
		c.steps[step] = rec
	}
	recordLatency(rec.hist, latency)
	rec.total++
	if failed {
		rec.failures++
	}
	rec.sum += latency
	if rec.min == 0 || latency < rec.min {
		rec.min = latency
	}
	if latency > rec.max {
		rec.max = latency
	}
	rec.statuses[code]++
	c.mu.Unlock()

	c.prom.observeRequest(step, code, latency, failed)
}

func recordLatency(h *hdrhistogram.Histogram, latency time.Duration) {
	if latency <= 0 {
		return
	}
	us := latency.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

// Check records a named pass/fail assertion and returns ok unchanged so it
// can be used inline.
func (c *Collector) Check(name string, ok bool) bool {
	val, _ := c.checks.LoadOrStore(name, &checkCounter{})
	cc := val.(*checkCounter)
	if ok {
		cc.passes.Add(1)
		c.checksPassed.Add(1)
	} else {
		cc.fails.Add(1)
		c.checksFailed.Add(1)
	}
	c.prom.observeCheck(name, ok)
	return ok
}

// Add increments a named business counter. Non-positive deltas are ignored.
func (c *Collector) Add(name string, delta int64) {
	if delta <= 0 {
		return
	}
	val, _ := c.counters.LoadOrStore(name, new(atomic.Int64))
	val.(*atomic.Int64).Add(delta)
	c.prom.observeCounter(name, delta)
}

// Counter returns the current value of a named counter.
func (c *Collector) Counter(name string) int64 {
	if val, ok := c.counters.Load(name); ok {
		return val.(*atomic.Int64).Load()
	}
	return 0
}

// RecordIteration counts one finished iteration. A non-nil err marks it
// aborted; if err carries a step tag the abort is attributed to that step.
func (c *Collector) RecordIteration(err error) {
	c.iterations.Add(1)
	if err == nil {
		c.prom.observeIteration(false)
		return
	}
	c.aborted.Add(1)
	step := UntaggedAbort
	var tagged interface{ StepTag() string }
	if errors.As(err, &tagged) {
		step = tagged.StepTag()
	}
	c.mu.Lock()
	c.aborts[step]++
	c.mu.Unlock()
	c.prom.observeIteration(true)
}
