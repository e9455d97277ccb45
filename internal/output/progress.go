package output

import (
	"fmt"
	"io"
	"sort"
	"sync/atomic"
	"time"

	"github.com/torosent/shopflow/internal/metrics"
)

// SnapshotSource is the part of metrics.Collector the progress line reads.
type SnapshotSource interface {
	Elapsed() time.Duration
	Snapshot(elapsed time.Duration) metrics.Snapshot
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   SnapshotSource
	interval time.Duration
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source SnapshotSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		interval: interval,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(p.writer, progressLine(p.source.Snapshot(p.source.Elapsed())))
		case <-p.done:
			return
		}
	}
}

func progressLine(snap metrics.Snapshot) string {
	line := fmt.Sprintf("\rIterations: %d | Tx: %d | Aborted: %d | Checks: %d/%d | RPS: %.1f",
		snap.Iterations, snap.TxCompleted, snap.IterationsAborted,
		snap.ChecksPassed, snap.ChecksTotal(), snap.RequestsPerSec)
	if name, st, ok := topStep(snap); ok && snap.HTTPReqs > 0 {
		share := (float64(st.Requests) / float64(snap.HTTPReqs)) * 100
		line += fmt.Sprintf(" | Top Step: %s (%.0f%%, P99 %.1fms)", name, share, st.Latency.P99Ms)
	}
	return line
}

func topStep(snap metrics.Snapshot) (string, metrics.StepStats, bool) {
	if len(snap.Steps) == 0 {
		return "", metrics.StepStats{}, false
	}
	names := make([]string, 0, len(snap.Steps))
	for name := range snap.Steps {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := snap.Steps[names[i]].Requests, snap.Steps[names[j]].Requests
		if a == b {
			return names[i] < names[j]
		}
		return a > b
	})
	name := names[0]
	return name, snap.Steps[name], true
}
