package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/shopflow/internal/metrics"
	"github.com/torosent/shopflow/internal/runner"
	"github.com/torosent/shopflow/internal/threshold"
)

// WaveSummary describes one scheduled wave in the exported report.
type WaveSummary struct {
	Name       string  `json:"name" yaml:"name"`
	OffsetMs   float64 `json:"offset_ms" yaml:"offset_ms"`
	VUs        int     `json:"vus" yaml:"vus"`
	FirstVU    int     `json:"first_vu" yaml:"first_vu"`
	Iterations int     `json:"iterations,omitempty" yaml:"iterations,omitempty"`
}

// Report is the structured export written to summary.json or summary.yaml.
type Report struct {
	RunID            string             `json:"run_id" yaml:"run_id"`
	StartedAt        time.Time          `json:"started_at" yaml:"started_at"`
	Mode             string             `json:"mode" yaml:"mode"`
	Waves            []WaveSummary      `json:"waves" yaml:"waves"`
	Interrupted      int64              `json:"iterations_interrupted" yaml:"iterations_interrupted"`
	Metrics          metrics.Snapshot   `json:"metrics" yaml:"metrics"`
	Thresholds       []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	ThresholdsPassed bool               `json:"thresholds_passed" yaml:"thresholds_passed"`
}

// NewReport assembles the export for a finished run.
func NewReport(runID string, started time.Time, mode string, waves []runner.Wave, res runner.Result, snap metrics.Snapshot, results []threshold.Result) Report {
	summaries := make([]WaveSummary, 0, len(waves))
	for _, w := range waves {
		summaries = append(summaries, WaveSummary{
			Name:       w.Name,
			OffsetMs:   float64(w.Offset) / float64(time.Millisecond),
			VUs:        w.Size,
			FirstVU:    w.FirstOrdinal,
			Iterations: w.Iterations,
		})
	}
	return Report{
		RunID:            runID,
		StartedAt:        started.UTC(),
		Mode:             mode,
		Waves:            summaries,
		Interrupted:      res.Interrupted,
		Metrics:          snap,
		Thresholds:       results,
		ThresholdsPassed: threshold.AllPassed(results),
	}
}

// WriteDigest writes the short text summary.
func WriteDigest(w io.Writer, snap metrics.Snapshot) error {
	_, err := fmt.Fprintf(w,
		"shopflow e2e summary\n"+
			"checks: %d/%d passed\n"+
			"iterations: %d\n"+
			"http_reqs: %d\n"+
			"rps: %.2f\n"+
			"tps: %.2f\n"+
			"tx_completed: %d\n"+
			"http_req_failed_rate: %g\n",
		snap.ChecksPassed, snap.ChecksTotal(),
		snap.Iterations,
		snap.HTTPReqs,
		snap.RequestsPerSec,
		snap.TxPerSec,
		snap.TxCompleted,
		snap.HTTPReqFailedRate,
	)
	return err
}

// PrintReport outputs a human-readable breakdown of the run.
func PrintReport(w io.Writer, snap metrics.Snapshot) {
	fmt.Fprintln(w, "\n--- Checkout Run Results ---")
	fmt.Fprintf(w, "Duration:          %s\n", snap.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Iterations:        %d (aborted %d)\n", snap.Iterations, snap.IterationsAborted)
	fmt.Fprintf(w, "Transactions:      %d (%.2f/s)\n", snap.TxCompleted, snap.TxPerSec)
	fmt.Fprintf(w, "HTTP Requests:     %d (%.2f/s)\n", snap.HTTPReqs, snap.RequestsPerSec)
	fmt.Fprintf(w, "HTTP Failed:       %d (%.2f%%)\n", snap.HTTPReqFailed, snap.HTTPReqFailedRate*100)
	fmt.Fprintln(w, "\nLatency:")
	writeLatency(w, snap.Latency, "  ")

	if len(snap.Checks) > 0 {
		fmt.Fprintf(w, "\nChecks (%d/%d passed):\n", snap.ChecksPassed, snap.ChecksTotal())
		for _, name := range snap.CheckNames() {
			c := snap.Checks[name]
			mark := "✓"
			if c.Fails > 0 {
				mark = "✗"
			}
			fmt.Fprintf(w, "  %s %s: %d passed, %d failed\n", mark, name, c.Passes, c.Fails)
		}
	}

	if len(snap.Steps) > 0 {
		fmt.Fprintln(w, "\nStep Breakdown:")
		for _, name := range sortedKeys(snap.Steps) {
			st := snap.Steps[name]
			fmt.Fprintf(w, "  - %s: requests=%d, failures=%d, p95=%.1fms, p99=%.1fms\n",
				name, st.Requests, st.Failures, st.Latency.P95Ms, st.Latency.P99Ms)
		}
	}

	if buckets := snap.StatusBuckets(); len(buckets) > 0 {
		fmt.Fprintln(w, "\nStatus Buckets:")
		writeStatusBuckets(w, buckets, "  ")
	}

	if len(snap.AbortsByStep) > 0 {
		fmt.Fprintln(w, "\nAborts By Step:")
		for _, step := range sortedKeys(snap.AbortsByStep) {
			fmt.Fprintf(w, "  %s: %d\n", step, snap.AbortsByStep[step])
		}
	}

	if len(snap.Counters) > 0 {
		fmt.Fprintln(w, "\nCounters:")
		for _, name := range sortedKeys(snap.Counters) {
			fmt.Fprintf(w, "  %s: %d\n", name, snap.Counters[name])
		}
	}
}

// PrintThresholds lists threshold outcomes, one per line.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	passed := 0
	for _, r := range results {
		if r.Pass {
			passed++
		}
	}
	fmt.Fprintf(w, "\nThresholds (%d/%d passed):\n", passed, len(results))
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

func writeLatency(w io.Writer, lat metrics.LatencyStats, indent string) {
	fmt.Fprintf(w, "%sMin:             %.2fms\n", indent, lat.MinMs)
	fmt.Fprintf(w, "%sMax:             %.2fms\n", indent, lat.MaxMs)
	fmt.Fprintf(w, "%sMean:            %.2fms\n", indent, lat.MeanMs)
	fmt.Fprintf(w, "%sP50:             %.2fms\n", indent, lat.P50Ms)
	fmt.Fprintf(w, "%sP90:             %.2fms\n", indent, lat.P90Ms)
	fmt.Fprintf(w, "%sP95:             %.2fms\n", indent, lat.P95Ms)
	fmt.Fprintf(w, "%sP99:             %.2fms\n", indent, lat.P99Ms)
}

func writeStatusBuckets(w io.Writer, buckets map[string]map[string]int, indent string) {
	rows := metrics.FlattenStatusBuckets(buckets)
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s%s %s: %d\n", indent, row.Step, row.Code, row.Count)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
