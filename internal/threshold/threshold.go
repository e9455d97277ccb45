package threshold

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/torosent/shopflow/internal/metrics"
)

// Threshold represents a pass/fail assertion over the final metrics.
type Threshold struct {
	Metric    string  // e.g., "http_req_duration", "checks"
	Aggregate string  // e.g., "p95", "rate", "count"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-" yaml:"-"`
	Expr      string    `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

// Supported aggregates per metric.
var aggregates = map[string][]string{
	"checks":             {"rate", "count"},
	"http_req_duration":  {"p50", "p90", "p95", "p99", "avg", "min", "max"},
	"http_req_failed":    {"rate", "count"},
	"http_reqs":          {"count", "rate"},
	"iterations":         {"count"},
	"iterations_aborted": {"count", "rate"},
	"tx_completed":       {"count", "rate"},
}

var (
	pattern   = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)
	operators = []string{"<", "<=", ">", ">=", "=="}
)

// Evaluator evaluates thresholds against a metrics snapshot.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided snapshot.
func (e *Evaluator) Evaluate(snap metrics.Snapshot) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, snap))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, snap metrics.Snapshot) Result {
	actual, err := extractMetricValue(t, snap)
	if err != nil {
		return Result{
			Threshold: t,
			Expr:      t.Raw,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Expr:      t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.4g %s %.4g", status, t.Raw, actual, t.Operator, t.Value),
	}
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "checks:rate > 0.99"              (share of passed checks)
// - "http_req_duration:p95 < 500"     (latency percentile in ms)
// - "http_req_failed:rate < 0.01"     (failure rate as decimal)
// - "http_reqs:rate > 100"            (requests per second)
// - "iterations:count >= 30"
// - "tx_completed:count >= 30"
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := pattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'checks:rate > 0.99')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	allowed, ok := aggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(supportedMetrics(), ", "))
	}
	if !slices.Contains(allowed, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(allowed, ", "))
	}
	if !slices.Contains(operators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

func supportedMetrics() []string {
	names := make([]string, 0, len(aggregates))
	for name := range aggregates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func extractMetricValue(t Threshold, snap metrics.Snapshot) (float64, error) {
	switch t.Metric {
	case "checks":
		if t.Aggregate == "count" {
			return float64(snap.ChecksTotal()), nil
		}
		return snap.ChecksRate, nil
	case "http_req_duration":
		return extractLatencyMetric(t.Aggregate, snap.Latency)
	case "http_req_failed":
		if t.Aggregate == "count" {
			return float64(snap.HTTPReqFailed), nil
		}
		return snap.HTTPReqFailedRate, nil
	case "http_reqs":
		if t.Aggregate == "count" {
			return float64(snap.HTTPReqs), nil
		}
		return snap.RequestsPerSec, nil
	case "iterations":
		return float64(snap.Iterations), nil
	case "iterations_aborted":
		if t.Aggregate == "count" {
			return float64(snap.IterationsAborted), nil
		}
		if snap.Iterations == 0 {
			return 0, nil
		}
		return float64(snap.IterationsAborted) / float64(snap.Iterations), nil
	case "tx_completed":
		if t.Aggregate == "count" {
			return float64(snap.TxCompleted), nil
		}
		return snap.TxPerSec, nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, lat metrics.LatencyStats) (float64, error) {
	switch aggregate {
	case "p50":
		return lat.P50Ms, nil
	case "p90":
		return lat.P90Ms, nil
	case "p95":
		return lat.P95Ms, nil
	case "p99":
		return lat.P99Ms, nil
	case "avg":
		return lat.MeanMs, nil
	case "min":
		return lat.MinMs, nil
	case "max":
		return lat.MaxMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for http_req_duration", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
