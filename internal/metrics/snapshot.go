package metrics

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// LatencyStats summarises a latency distribution in milliseconds.
type LatencyStats struct {
	Count  int64   `json:"count" yaml:"count"`
	MinMs  float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs  float64 `json:"max_ms" yaml:"max_ms"`
	MeanMs float64 `json:"mean_ms" yaml:"mean_ms"`
	P50Ms  float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms  float64 `json:"p90_ms" yaml:"p90_ms"`
	P95Ms  float64 `json:"p95_ms" yaml:"p95_ms"`
	P99Ms  float64 `json:"p99_ms" yaml:"p99_ms"`
}

// StepStats is the per-step request breakdown.
type StepStats struct {
	Requests int64          `json:"requests" yaml:"requests"`
	Failures int64          `json:"failures" yaml:"failures"`
	Latency  LatencyStats   `json:"latency" yaml:"latency"`
	Statuses map[string]int `json:"statuses,omitempty" yaml:"statuses,omitempty"`
}

// CheckStats counts the outcomes of one named check.
type CheckStats struct {
	Passes int64 `json:"passes" yaml:"passes"`
	Fails  int64 `json:"fails" yaml:"fails"`
}

// Snapshot is a point-in-time copy of every metric. It shares no state with
// the Collector that produced it.
type Snapshot struct {
	Duration   time.Duration `json:"-" yaml:"-"`
	DurationMs float64       `json:"duration_ms" yaml:"duration_ms"`

	ChecksPassed int64                 `json:"checks_passed" yaml:"checks_passed"`
	ChecksFailed int64                 `json:"checks_failed" yaml:"checks_failed"`
	ChecksRate   float64               `json:"checks_rate" yaml:"checks_rate"`
	Checks       map[string]CheckStats `json:"checks,omitempty" yaml:"checks,omitempty"`

	Iterations        int64            `json:"iterations" yaml:"iterations"`
	IterationsAborted int64            `json:"iterations_aborted" yaml:"iterations_aborted"`
	AbortsByStep      map[string]int64 `json:"aborts_by_step,omitempty" yaml:"aborts_by_step,omitempty"`

	HTTPReqs          int64   `json:"http_reqs" yaml:"http_reqs"`
	HTTPReqFailed     int64   `json:"http_req_failed" yaml:"http_req_failed"`
	HTTPReqFailedRate float64 `json:"http_req_failed_rate" yaml:"http_req_failed_rate"`
	RequestsPerSec    float64 `json:"rps" yaml:"rps"`

	TxCompleted int64   `json:"tx_completed" yaml:"tx_completed"`
	TxPerSec    float64 `json:"tps" yaml:"tps"`

	Counters map[string]int64     `json:"counters,omitempty" yaml:"counters,omitempty"`
	Latency  LatencyStats         `json:"http_req_duration" yaml:"http_req_duration"`
	Steps    map[string]StepStats `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// ChecksTotal is passes plus fails.
func (s Snapshot) ChecksTotal() int64 {
	return s.ChecksPassed + s.ChecksFailed
}

// StatusBuckets returns step -> status code -> count for every recorded request.
func (s Snapshot) StatusBuckets() map[string]map[string]int {
	if len(s.Steps) == 0 {
		return nil
	}
	out := make(map[string]map[string]int, len(s.Steps))
	for step, st := range s.Steps {
		if len(st.Statuses) > 0 {
			out[step] = st.Statuses
		}
	}
	return out
}

// CheckNames returns the recorded check names in sorted order.
func (s Snapshot) CheckNames() []string {
	names := make([]string, 0, len(s.Checks))
	for name := range s.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot computes aggregated statistics over elapsed wall-clock time.
// It only reads the collector.
func (c *Collector) Snapshot(elapsed time.Duration) Snapshot {
	snap := Snapshot{
		Duration:          elapsed,
		DurationMs:        float64(elapsed) / float64(time.Millisecond),
		ChecksPassed:      c.checksPassed.Load(),
		ChecksFailed:      c.checksFailed.Load(),
		Iterations:        c.iterations.Load(),
		IterationsAborted: c.aborted.Load(),
		HTTPReqs:          c.httpReqs.Load(),
		HTTPReqFailed:     c.httpFailed.Load(),
		TxCompleted:       c.Counter(CounterTxCompleted),
	}

	if total := snap.ChecksTotal(); total > 0 {
		snap.ChecksRate = float64(snap.ChecksPassed) / float64(total)
	}
	if snap.HTTPReqs > 0 {
		snap.HTTPReqFailedRate = float64(snap.HTTPReqFailed) / float64(snap.HTTPReqs)
	}
	if elapsed > 0 {
		snap.RequestsPerSec = float64(snap.HTTPReqs) / elapsed.Seconds()
		snap.TxPerSec = float64(snap.TxCompleted) / elapsed.Seconds()
	}

	c.checks.Range(func(key, value any) bool {
		if snap.Checks == nil {
			snap.Checks = make(map[string]CheckStats)
		}
		cc := value.(*checkCounter)
		snap.Checks[key.(string)] = CheckStats{Passes: cc.passes.Load(), Fails: cc.fails.Load()}
		return true
	})
	c.counters.Range(func(key, value any) bool {
		if snap.Counters == nil {
			snap.Counters = make(map[string]int64)
		}
		snap.Counters[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	snap.Latency = latencyStats(c.hist, 0, 0, 0)
	if len(c.steps) > 0 {
		snap.Steps = make(map[string]StepStats, len(c.steps))
		for name, rec := range c.steps {
			statuses := make(map[string]int, len(rec.statuses))
			for code, n := range rec.statuses {
				statuses[code] = n
			}
			snap.Steps[name] = StepStats{
				Requests: rec.total,
				Failures: rec.failures,
				Latency:  latencyStats(rec.hist, rec.min, rec.max, rec.mean()),
				Statuses: statuses,
			}
		}
	}
	if len(c.aborts) > 0 {
		snap.AbortsByStep = make(map[string]int64, len(c.aborts))
		for step, n := range c.aborts {
			snap.AbortsByStep[step] = n
		}
	}
	return snap
}

func (r *stepRecorder) mean() time.Duration {
	if r.total == 0 {
		return 0
	}
	return time.Duration(int64(r.sum) / r.total)
}

// latencyStats reads percentiles from h. Exact min/max/mean are used when
// known, otherwise the histogram's own values stand in.
func latencyStats(h *hdrhistogram.Histogram, lo, hi, mean time.Duration) LatencyStats {
	count := h.TotalCount()
	if count == 0 {
		return LatencyStats{}
	}
	us := func(v int64) float64 { return float64(v) / 1000 }
	out := LatencyStats{
		Count:  count,
		MinMs:  us(h.Min()),
		MaxMs:  us(h.Max()),
		MeanMs: h.Mean() / 1000,
		P50Ms:  us(h.ValueAtQuantile(50)),
		P90Ms:  us(h.ValueAtQuantile(90)),
		P95Ms:  us(h.ValueAtQuantile(95)),
		P99Ms:  us(h.ValueAtQuantile(99)),
	}
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	if lo > 0 {
		out.MinMs = ms(lo)
	}
	if hi > 0 {
		out.MaxMs = ms(hi)
	}
	if mean > 0 {
		out.MeanMs = ms(mean)
	}
	return out
}
