package output

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0x-wen/rlt/metrics"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressLine(t *testing.T) {
	line := ProgressLine(metrics.Summary{
		Iterations:       120,
		Items:            480,
		Errors:           3,
		IterationsPerSec: 60,
		ItemsPerSec:      240,
		Latency:          metrics.Latency{P99Ms: 12.5},
		WorkerFaults:     []metrics.WorkerFault{{WorkerID: 1, Stage: metrics.StageStartup}},
	})

	for _, want := range []string{"Iterations: 120", "Errors: 3", "Rate: 60.0/s", "P99: 12.5ms", "Items/s: 240.0", "Worker faults: 1"} {
		if !strings.Contains(line, want) {
			t.Errorf("ProgressLine() = %q, missing %q", line, want)
		}
	}
}

func TestProgressLineOmitsItemsWhenEqual(t *testing.T) {
	line := ProgressLine(metrics.Summary{Iterations: 10, Items: 10})
	if strings.Contains(line, "Items/s") {
		t.Errorf("ProgressLine() = %q, want no items column", line)
	}
}

func TestProgressReporterStopWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressReporter(func() metrics.Summary { return metrics.Summary{} }, 100*time.Millisecond, &buf)
	reporter.Stop()
	if buf.Len() != 0 {
		t.Errorf("output = %q, want nothing", buf.String())
	}
}

func TestProgressReporterFormatting(t *testing.T) {
	var calls atomic.Int64
	snapshot := func() metrics.Summary {
		calls.Add(1)
		return metrics.Summary{Iterations: 5}
	}

	var buf syncBuffer
	reporter := NewProgressReporter(snapshot, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()

	time.Sleep(100 * time.Millisecond)
	reporter.Stop()

	if calls.Load() == 0 {
		t.Fatal("snapshot was never taken")
	}
	if !strings.Contains(buf.String(), "Iterations: 5") {
		t.Errorf("output = %q, want progress line", buf.String())
	}
}
