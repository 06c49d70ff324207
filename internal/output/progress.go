package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/0x-wen/rlt/metrics"
)

// SnapshotFunc returns the live statistics of a run.
type SnapshotFunc func() metrics.Summary

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	snapshot SnapshotFunc
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(snapshot SnapshotFunc, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		snapshot: snapshot,
		ticker:   time.NewTicker(interval),
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

// Stop halts progress updates and ends the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
		return
	}
	p.ticker.Stop()
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, ProgressLine(p.snapshot()))
		case <-p.done:
			return
		}
	}
}

// ProgressLine renders a one-line, carriage-return prefixed view of a snapshot.
func ProgressLine(s metrics.Summary) string {
	line := fmt.Sprintf("\rIterations: %d | Errors: %d | Rate: %.1f/s | P99: %.1fms",
		s.Iterations, s.Errors, s.IterationsPerSec, s.Latency.P99Ms)
	if s.Items != s.Iterations {
		line += fmt.Sprintf(" | Items/s: %.1f", s.ItemsPerSec)
	}
	if faults := len(s.WorkerFaults); faults > 0 {
		line += fmt.Sprintf(" | Worker faults: %d", faults)
	}
	return line
}
