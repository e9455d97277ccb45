package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/shopflow/internal/metrics"
	"github.com/torosent/shopflow/internal/runner"
	"github.com/torosent/shopflow/internal/threshold"
)

func sampleSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		Duration:          4 * time.Second,
		DurationMs:        4000,
		ChecksPassed:      27,
		ChecksFailed:      3,
		ChecksRate:        0.9,
		Checks:            map[string]metrics.CheckStats{"STEP1 product detail code=200": {Passes: 3}, "STEP7 order confirmed by event": {Passes: 2, Fails: 1}},
		Iterations:        3,
		IterationsAborted: 1,
		AbortsByStep:      map[string]int64{"STEP7": 1},
		HTTPReqs:          40,
		HTTPReqFailed:     2,
		HTTPReqFailedRate: 0.05,
		RequestsPerSec:    10,
		TxCompleted:       2,
		TxPerSec:          0.5,
		Counters:          map[string]int64{"order_create_retry": 2, "tx_completed": 2},
		Latency:           metrics.LatencyStats{Count: 40, P95Ms: 30},
		Steps: map[string]metrics.StepStats{
			"STEP5": {Requests: 5, Failures: 2, Statuses: map[string]int{"200": 3, "503": 2}},
		},
	}
}

func TestWriteDigest(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDigest(&buf, sampleSnapshot()); err != nil {
		t.Fatalf("WriteDigest() error = %v", err)
	}
	want := strings.Join([]string{
		"shopflow e2e summary",
		"checks: 27/30 passed",
		"iterations: 3",
		"http_reqs: 40",
		"rps: 10.00",
		"tps: 0.50",
		"tx_completed: 2",
		"http_req_failed_rate: 0.05",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("digest =\n%s\nwant\n%s", got, want)
	}
}

func TestWriteDigestEmptyRun(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDigest(&buf, metrics.Snapshot{}); err != nil {
		t.Fatalf("WriteDigest() error = %v", err)
	}
	for _, want := range []string{"checks: 0/0 passed", "rps: 0.00", "http_req_failed_rate: 0\n"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("digest missing %q:\n%s", want, buf.String())
		}
	}
}

func TestPrintReportSections(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleSnapshot())

	output := buf.String()
	for _, want := range []string{
		"Iterations:        3 (aborted 1)",
		"✗ STEP7 order confirmed by event: 2 passed, 1 failed",
		"✓ STEP1 product detail code=200",
		"STEP5: requests=5, failures=2",
		"STEP5 503: 2",
		"Aborts By Step:",
		"order_create_retry: 2",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("report missing %q:\n%s", want, output)
		}
	}
}

func TestNewReportAndExports(t *testing.T) {
	waves := []runner.Wave{
		{Name: "wave1", Size: 3, FirstOrdinal: 1, Iterations: 1},
		{Name: "wave2", Offset: 5 * time.Second, Size: 3, FirstOrdinal: 4, Iterations: 1},
	}
	th, err := threshold.Parse("checks:rate > 0.95")
	if err != nil {
		t.Fatal(err)
	}
	snap := sampleSnapshot()
	results := threshold.NewEvaluator([]threshold.Threshold{th}).Evaluate(snap)
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	report := NewReport("01HZY", started, "iterations", waves, runner.Result{Interrupted: 1}, snap, results)
	if report.ThresholdsPassed {
		t.Error("ThresholdsPassed = true with a failing threshold")
	}
	if len(report.Waves) != 2 || report.Waves[1].OffsetMs != 5000 || report.Waves[1].FirstVU != 4 {
		t.Errorf("waves = %+v", report.Waves)
	}

	var js bytes.Buffer
	if err := PrintJSONReport(&js, report); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("json output invalid: %v", err)
	}
	if decoded["run_id"] != "01HZY" || decoded["iterations_interrupted"] != float64(1) {
		t.Errorf("json header = %v", decoded)
	}
	m := decoded["metrics"].(map[string]any)
	if m["tx_completed"] != float64(2) || m["http_req_duration"].(map[string]any)["p95_ms"] != float64(30) {
		t.Errorf("json metrics = %v", m)
	}

	var ym bytes.Buffer
	if err := PrintYAMLReport(&ym, report); err != nil {
		t.Fatalf("PrintYAMLReport() error = %v", err)
	}
	var fromYAML Report
	if err := yaml.Unmarshal(ym.Bytes(), &fromYAML); err != nil {
		t.Fatalf("yaml output invalid: %v", err)
	}
	if fromYAML.Metrics.Checks["STEP7 order confirmed by event"].Fails != 1 || len(fromYAML.Thresholds) != 1 {
		t.Errorf("yaml report = %+v", fromYAML)
	}
}

func TestPrintThresholds(t *testing.T) {
	var buf bytes.Buffer
	PrintThresholds(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("no thresholds printed %q", buf.String())
	}
	PrintThresholds(&buf, []threshold.Result{{Pass: true, Message: "✓ a"}, {Message: "✗ b"}})
	if !strings.Contains(buf.String(), "Thresholds (1/2 passed)") || !strings.Contains(buf.String(), "✗ b") {
		t.Errorf("thresholds output = %q", buf.String())
	}
}
