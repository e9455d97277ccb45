package output

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/shopflow/internal/metrics"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Report           Report
	ThresholdSummary *ThresholdSummary
	StepNames        []string
	CheckNames       []string
	StatusRows       []metrics.StatusBucket
}

// ThresholdSummary counts threshold outcomes for the report header.
type ThresholdSummary struct {
	Total  int
	Passed int
	Failed int
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDuration": func(d time.Duration) string {
		return d.Round(time.Millisecond).String()
	},
	"formatFloat": func(f float64) string {
		return fmt.Sprintf("%.2f", f)
	},
	"formatPercent": func(part, total int64) string {
		if total == 0 {
			return "0.0"
		}
		return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
	},
}).Parse(htmlTemplate))

// GenerateHTMLReport renders a standalone HTML page for report.
func GenerateHTMLReport(w io.Writer, report Report) error {
	snap := report.Metrics

	var summary *ThresholdSummary
	if len(report.Thresholds) > 0 {
		summary = &ThresholdSummary{Total: len(report.Thresholds)}
		for _, r := range report.Thresholds {
			if r.Pass {
				summary.Passed++
			} else {
				summary.Failed++
			}
		}
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Report:           report,
		ThresholdSummary: summary,
		StepNames:        sortedKeys(snap.Steps),
		CheckNames:       snap.CheckNames(),
		StatusRows:       metrics.FlattenStatusBuckets(snap.StatusBuckets()),
	}

	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>shopflow run {{.Report.RunID}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #0f766e 0%, #1e3a8a 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 { font-size: 2rem; margin-bottom: 10px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 40px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #0f766e;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value { font-size: 2rem; font-weight: bold; }
        .card .subvalue { font-size: 0.85rem; color: #6c757d; margin-top: 5px; }
        .card.success { border-left-color: #10b981; }
        .card.error { border-left-color: #ef4444; }
        .section { margin-bottom: 40px; }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 12px; border-bottom: 1px solid #e5e7eb; }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        .badge { display: inline-block; padding: 4px 12px; border-radius: 12px; font-size: 0.85rem; font-weight: 600; }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-error { background: #fee2e2; color: #991b1b; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>shopflow checkout run</h1>
            <div class="meta">Run {{.Report.RunID}} | Mode: {{.Report.Mode}} | Started: {{.Report.StartedAt.Format "2006-01-02T15:04:05Z07:00"}}</div>
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Report.Metrics.Duration}}</div>
        </header>

        <div class="content">
            {{with .Report.Metrics}}
            <div class="grid">
                <div class="card">
                    <h3>Iterations</h3>
                    <div class="value">{{.Iterations}}</div>
                    <div class="subvalue">{{.IterationsAborted}} aborted</div>
                </div>
                <div class="card success">
                    <h3>Transactions</h3>
                    <div class="value">{{.TxCompleted}}</div>
                    <div class="subvalue">{{formatFloat .TxPerSec}}/s</div>
                </div>
                <div class="card">
                    <h3>HTTP Requests</h3>
                    <div class="value">{{.HTTPReqs}}</div>
                    <div class="subvalue">{{formatFloat .RequestsPerSec}}/s</div>
                </div>
                <div class="card error">
                    <h3>HTTP Failed</h3>
                    <div class="value">{{.HTTPReqFailed}}</div>
                    <div class="subvalue">{{formatPercent .HTTPReqFailed .HTTPReqs}}%</div>
                </div>
                <div class="card">
                    <h3>Checks</h3>
                    <div class="value">{{.ChecksPassed}}/{{.ChecksTotal}}</div>
                    <div class="subvalue">{{formatPercent .ChecksPassed .ChecksTotal}}% passed</div>
                </div>
                <div class="card">
                    <h3>Latency P95</h3>
                    <div class="value">{{formatFloat .Latency.P95Ms}}ms</div>
                    <div class="subvalue">p99 {{formatFloat .Latency.P99Ms}}ms, max {{formatFloat .Latency.MaxMs}}ms</div>
                </div>
            </div>
            {{end}}

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead><tr><th>Threshold</th><th>Actual</th><th>Status</th></tr></thead>
                    <tbody>
                        {{range .Report.Thresholds}}
                        <tr>
                            <td>{{.Expr}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>{{if .Pass}}<span class="badge badge-success">PASS</span>{{else}}<span class="badge badge-error">FAIL</span>{{end}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .CheckNames}}
            <div class="section">
                <h2>Checks</h2>
                <table>
                    <thead><tr><th>Check</th><th>Passed</th><th>Failed</th></tr></thead>
                    <tbody>
                        {{range .CheckNames}}
                        {{$c := index $.Report.Metrics.Checks .}}
                        <tr>
                            <td>{{.}}</td>
                            <td>{{$c.Passes}}</td>
                            <td>{{if $c.Fails}}<span class="badge badge-error">{{$c.Fails}}</span>{{else}}0{{end}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .StepNames}}
            <div class="section">
                <h2>Step Breakdown</h2>
                <table>
                    <thead><tr><th>Step</th><th>Requests</th><th>Failures</th><th>P50</th><th>P95</th><th>P99</th></tr></thead>
                    <tbody>
                        {{range .StepNames}}
                        {{$s := index $.Report.Metrics.Steps .}}
                        <tr>
                            <td><strong>{{.}}</strong></td>
                            <td>{{$s.Requests}}</td>
                            <td>{{$s.Failures}}</td>
                            <td>{{formatFloat $s.Latency.P50Ms}}ms</td>
                            <td>{{formatFloat $s.Latency.P95Ms}}ms</td>
                            <td>{{formatFloat $s.Latency.P99Ms}}ms</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .StatusRows}}
            <div class="section">
                <h2>Status Buckets</h2>
                <table>
                    <thead><tr><th>Step</th><th>Status</th><th>Count</th></tr></thead>
                    <tbody>
                        {{range .StatusRows}}
                        <tr><td>{{.Step}}</td><td>{{.Code}}</td><td>{{.Count}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Report.Waves}}
            <div class="section">
                <h2>Waves</h2>
                <table>
                    <thead><tr><th>Wave</th><th>Offset</th><th>VUs</th><th>First VU</th><th>Iterations</th></tr></thead>
                    <tbody>
                        {{range .Report.Waves}}
                        <tr><td>{{.Name}}</td><td>{{formatFloat .OffsetMs}}ms</td><td>{{.VUs}}</td><td>{{.FirstVU}}</td><td>{{if .Iterations}}{{.Iterations}}{{else}}sustained{{end}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>
</body>
</html>
`
