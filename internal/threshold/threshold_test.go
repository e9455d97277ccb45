package threshold

import (
	"strings"
	"testing"

	"github.com/torosent/shopflow/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "checks rate",
			input: "checks:rate > 0.99",
			want:  Threshold{Metric: "checks", Aggregate: "rate", Operator: ">", Value: 0.99, Raw: "checks:rate > 0.99"},
		},
		{
			name:  "p95 latency without spaces",
			input: "http_req_duration:p95<500",
			want:  Threshold{Metric: "http_req_duration", Aggregate: "p95", Operator: "<", Value: 500, Raw: "http_req_duration:p95<500"},
		},
		{
			name:  "failure rate",
			input: "  http_req_failed:rate < 0.01 ",
			want:  Threshold{Metric: "http_req_failed", Aggregate: "rate", Operator: "<", Value: 0.01, Raw: "http_req_failed:rate < 0.01"},
		},
		{
			name:  "completed transactions",
			input: "tx_completed:count >= 30",
			want:  Threshold{Metric: "tx_completed", Aggregate: "count", Operator: ">=", Value: 30, Raw: "tx_completed:count >= 30"},
		},
		{name: "empty string", input: "", wantError: true},
		{name: "missing aggregate", input: "checks > 0.9", wantError: true},
		{name: "unknown metric", input: "http_requests:rate > 1", wantError: true},
		{name: "aggregate not valid for metric", input: "iterations:p95 < 1", wantError: true},
		{name: "unsupported operator", input: "checks:rate != 1", wantError: true},
		{name: "bad number", input: "checks:rate > 0.9.9", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantError {
				if err == nil {
					t.Fatalf("Parse(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMultipleCollectsErrors(t *testing.T) {
	_, err := ParseMultiple([]string{"checks:rate > 0.9", "bogus", "iterations:max < 1"})
	if err == nil {
		t.Fatal("ParseMultiple() error = nil")
	}
	for _, want := range []string{"threshold[1]", "threshold[2]"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
	if got, err := ParseMultiple(nil); got != nil || err != nil {
		t.Errorf("ParseMultiple(nil) = %v, %v", got, err)
	}
}

func sampleSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		ChecksPassed:      98,
		ChecksFailed:      2,
		ChecksRate:        0.98,
		Iterations:        20,
		IterationsAborted: 1,
		HTTPReqs:          200,
		HTTPReqFailed:     4,
		HTTPReqFailedRate: 0.02,
		RequestsPerSec:    40,
		TxCompleted:       19,
		TxPerSec:          3.8,
		Latency:           metrics.LatencyStats{P50Ms: 12, P90Ms: 40, P95Ms: 55, P99Ms: 90, MeanMs: 20, MinMs: 2, MaxMs: 120},
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr   string
		actual float64
		pass   bool
	}{
		{"checks:rate > 0.99", 0.98, false},
		{"checks:rate >= 0.98", 0.98, true},
		{"checks:count == 100", 100, true},
		{"http_req_duration:p95 < 60", 55, true},
		{"http_req_duration:max < 100", 120, false},
		{"http_req_duration:avg <= 20", 20, true},
		{"http_req_failed:rate < 0.01", 0.02, false},
		{"http_req_failed:count <= 4", 4, true},
		{"http_reqs:count > 100", 200, true},
		{"http_reqs:rate > 50", 40, false},
		{"iterations:count == 20", 20, true},
		{"iterations_aborted:rate < 0.1", 0.05, true},
		{"tx_completed:count >= 19", 19, true},
		{"tx_completed:rate > 5", 3.8, false},
	}

	snap := sampleSnapshot()
	for _, tt := range tests {
		th, err := Parse(tt.expr)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tt.expr, err)
		}
		results := NewEvaluator([]Threshold{th}).Evaluate(snap)
		if len(results) != 1 {
			t.Fatalf("Evaluate(%q) returned %d results", tt.expr, len(results))
		}
		r := results[0]
		if r.Actual != tt.actual || r.Pass != tt.pass {
			t.Errorf("%s: actual=%v pass=%v, want %v/%v", tt.expr, r.Actual, r.Pass, tt.actual, tt.pass)
		}
		if r.Expr != tt.expr || r.Message == "" {
			t.Errorf("%s: result = %+v", tt.expr, r)
		}
	}
}

func TestAllPassed(t *testing.T) {
	if !AllPassed(nil) {
		t.Error("AllPassed(nil) = false")
	}
	if AllPassed([]Result{{Pass: true}, {Pass: false}}) {
		t.Error("AllPassed() with a failure = true")
	}
}

func TestEvaluateEmptySnapshot(t *testing.T) {
	th, _ := Parse("iterations_aborted:rate < 0.5")
	results := NewEvaluator([]Threshold{th}).Evaluate(metrics.Snapshot{})
	if !results[0].Pass || results[0].Actual != 0 {
		t.Errorf("empty snapshot result = %+v", results[0])
	}
	if got := NewEvaluator(nil).Evaluate(metrics.Snapshot{}); got != nil {
		t.Errorf("no thresholds = %v, want nil", got)
	}
}

func TestCompareValues(t *testing.T) {
	if !compareValues(0.1+0.2, "==", 0.3) {
		t.Error("== should tolerate float rounding")
	}
	if compareValues(1, "!", 1) {
		t.Error("unknown operator should fail")
	}
}
