package metrics_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/0x-wen/rlt/bench"
	"github.com/0x-wen/rlt/metrics"
)

func okReport(latency time.Duration) bench.IterReport {
	return bench.IterReport{Duration: latency, Status: bench.StatusFromHTTP(200), Bytes: 100, Items: 1}
}

func TestAggregatorLatencyStats(t *testing.T) {
	a := metrics.NewAggregator(1)

	// Record deterministic latencies.
	for _, ms := range []int{10, 20, 30, 40, 50} {
		a.Record(0, okReport(time.Duration(ms)*time.Millisecond), nil)
	}

	s := a.Snapshot(time.Second)
	if s.Iterations != 5 {
		t.Errorf("expected iterations 5, got %d", s.Iterations)
	}
	if s.Errors != 0 {
		t.Errorf("expected errors 0, got %d", s.Errors)
	}
	if s.Latency.Min != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", s.Latency.Min)
	}
	if s.Latency.Max != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", s.Latency.Max)
	}
	if s.Latency.Mean != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", s.Latency.Mean)
	}
	if s.Bytes != 500 {
		t.Errorf("expected bytes 500, got %d", s.Bytes)
	}
	if s.IterationsPerSec != 5 {
		t.Errorf("expected 5 iterations/s, got %f", s.IterationsPerSec)
	}
}

func TestPercentilesCalculations(t *testing.T) {
	a := metrics.NewAggregator(4)

	// 100 samples: 1ms, 2ms, ..., 100ms spread over four workers.
	for i := 1; i <= 100; i++ {
		a.Record(uint32(i%4), okReport(time.Duration(i)*time.Millisecond), nil)
	}

	l := a.Snapshot(0).Latency
	if l.P50 < 49*time.Millisecond || l.P50 > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", l.P50)
	}
	if l.P90 < 89*time.Millisecond || l.P90 > 91*time.Millisecond {
		t.Errorf("expected P90 ~90ms, got %s", l.P90)
	}
	if l.P95 < 94*time.Millisecond || l.P95 > 96*time.Millisecond {
		t.Errorf("expected P95 ~95ms, got %s", l.P95)
	}
	if l.P99 < 98*time.Millisecond || l.P99 > 100*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", l.P99)
	}
	if l.P999 > l.Max {
		t.Errorf("P99.9 %s exceeds max %s", l.P999, l.Max)
	}
}

func TestItemsAreNormalized(t *testing.T) {
	a := metrics.NewAggregator(1)
	a.Record(0, bench.IterReport{Duration: time.Millisecond}, nil)
	a.Record(0, bench.IterReport{Duration: time.Millisecond, Items: 10}, nil)

	s := a.Snapshot(time.Second)
	if s.Items != 11 {
		t.Fatalf("expected items 11, got %d", s.Items)
	}
	if s.ItemsPerSec != 11 {
		t.Fatalf("expected 11 items/s, got %f", s.ItemsPerSec)
	}
}

func TestErrorsCountedFromStatusAndErr(t *testing.T) {
	a := metrics.NewAggregator(2)
	a.Record(0, okReport(time.Millisecond), nil)
	a.Record(0, bench.IterReport{Duration: time.Millisecond, Status: bench.StatusFromHTTP(503)}, nil)
	a.Record(1, bench.FailedReport(time.Millisecond), context.DeadlineExceeded)
	a.Record(1, bench.FailedReport(time.Millisecond), errors.New("connection refused"))

	s := a.Snapshot(time.Second)
	if s.Errors != 3 {
		t.Fatalf("expected 3 errors, got %d", s.Errors)
	}
	if s.ErrorRate != 0.75 {
		t.Fatalf("expected error rate 0.75, got %f", s.ErrorRate)
	}
	if s.ErrorKinds["Context deadline exceeded"] != 1 {
		t.Errorf("expected deadline error kind, got %v", s.ErrorKinds)
	}
	if s.ErrorKinds["connection refused"] != 1 {
		t.Errorf("expected message error kind, got %v", s.ErrorKinds)
	}
	if len(metrics.ErrorBuckets(s.Statuses)) != 2 {
		t.Errorf("expected 2 failing status buckets, got %+v", s.Statuses)
	}
}

func TestWorkerTotalsMatch(t *testing.T) {
	const workers = 100 // more than the shard cap
	a := metrics.NewAggregator(workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id uint32) {
			defer wg.Done()
			for j := 0; j <= int(id%7); j++ {
				a.Record(id, okReport(time.Millisecond), nil)
			}
		}(uint32(w))
	}

	// Concurrent reader.
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				a.Snapshot(time.Second)
				time.Sleep(time.Millisecond)
			}
		}
	}()
	wg.Wait()
	close(done)

	s := a.Finalize(time.Second)
	var sum int64
	for _, w := range s.Workers {
		sum += w.Iterations
		if w.Iterations != int64(w.ID%7)+1 {
			t.Errorf("worker %d: expected %d iterations, got %d", w.ID, w.ID%7+1, w.Iterations)
		}
	}
	if sum != s.Iterations {
		t.Fatalf("per-worker sum %d != total %d", sum, s.Iterations)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	a := metrics.NewAggregator(2)
	a.Record(0, okReport(5*time.Millisecond), nil)
	a.Record(1, bench.FailedReport(7*time.Millisecond), errors.New("boom"))
	a.RecordFault(1, metrics.StageIteration, errors.New("broken"))

	first := a.Finalize(2 * time.Second)
	second := a.Finalize(5 * time.Second)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("finalize not idempotent:\n%+v\n%+v", first, second)
	}

	// Mutating a returned summary must not leak into the cached one.
	first.ErrorKinds["boom"] = 99
	third := a.Finalize(0)
	if third.ErrorKinds["boom"] != 1 {
		t.Fatalf("cached summary was mutated: %v", third.ErrorKinds)
	}
}

func TestSnapshotAgreesWithFinalize(t *testing.T) {
	a := metrics.NewAggregator(3)
	for i := 0; i < 30; i++ {
		a.Record(uint32(i%3), okReport(time.Duration(i+1)*time.Millisecond), nil)
	}
	snap := a.Snapshot(time.Second)
	final := a.Finalize(time.Second)
	if !reflect.DeepEqual(snap, final) {
		t.Fatalf("snapshot and final disagree:\n%+v\n%+v", snap, final)
	}
}

func TestRecordFault(t *testing.T) {
	a := metrics.NewAggregator(3)
	a.RecordFault(0, metrics.StageStartup, errors.New("dial failed"))
	a.RecordFault(2, metrics.StageStartup, nil)
	a.RecordFault(1, metrics.StageTeardown, errors.New("close failed"))

	s := a.Finalize(0)
	if s.StartupFailures() != 2 {
		t.Fatalf("expected 2 startup failures, got %d", s.StartupFailures())
	}
	if !s.Workers[0].Faulted || s.Workers[1].Faulted || !s.Workers[2].Faulted {
		t.Fatalf("unexpected faulted flags: %+v", s.Workers)
	}
	if s.WorkerFaults[1].Error != "unknown error" {
		t.Fatalf("expected placeholder message, got %q", s.WorkerFaults[1].Error)
	}
}

func TestRunIDIsStable(t *testing.T) {
	a := metrics.NewAggregator(1)
	b := metrics.NewAggregator(1)
	if a.RunID() == "" || a.RunID() == b.RunID() {
		t.Fatalf("expected distinct non-empty run IDs, got %q and %q", a.RunID(), b.RunID())
	}
	if a.Snapshot(0).RunID != a.RunID() {
		t.Fatal("snapshot must carry the run ID")
	}
}

func TestJSONReportSchema(t *testing.T) {
	a := metrics.NewAggregator(1)
	a.Record(0, okReport(15*time.Millisecond), nil)
	a.Record(0, okReport(25*time.Millisecond), nil)

	data, err := json.Marshal(a.Finalize(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("failed to marshal summary: %v", err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	for _, field := range []string{"run_id", "iterations", "items", "bytes", "errors", "error_rate", "duration_ms", "iterations_per_sec", "items_per_sec", "latency", "statuses", "workers"} {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in JSON output", field)
		}
	}
	latency, ok := parsed["latency"].(map[string]interface{})
	if !ok {
		t.Fatal("latency is not an object")
	}
	for _, field := range []string{"min_ms", "max_ms", "mean_ms", "p50_ms", "p90_ms", "p95_ms", "p99_ms"} {
		if _, ok := latency[field]; !ok {
			t.Errorf("missing latency field %q", field)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type namedKind struct{}

func (namedKind) Error() string     { return "quota exhausted for tenant 42" }
func (namedKind) ErrorKind() string { return "Quota" }

type customErr struct{ code int }

func (e *customErr) Error() string { return fmt.Sprintf("custom %d", e.code) }

func TestErrorKind(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "Unknown error"},
		{"deadline", context.DeadlineExceeded, "Context deadline exceeded"},
		{"wrapped deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), "Context deadline exceeded"},
		{"canceled", &url.Error{Op: "Get", URL: "http://x", Err: context.Canceled}, "Context canceled"},
		{"eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), "Unexpected EOF"},
		{"net timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, "Timeout"},
		{"dial", &url.Error{Op: "Get", URL: "http://x", Err: refused}, "Network dial error"},
		{"self named", fmt.Errorf("call: %w", namedKind{}), "Quota"},
		{"unusable", bench.Unusable(errors.New("socket closed")), "State unusable: socket closed"},
		{"unusable deadline", bench.Unusable(context.DeadlineExceeded), "State unusable: Context deadline exceeded"},
		{"bare unusable", bench.ErrStateUnusable, "State unusable"},
		{"plain", errors.New("plain"), "plain"},
		{"wrapped plain", fmt.Errorf("step 2: %w", errors.New("plain")), "plain"},
		{"typed", fmt.Errorf("op: %w", &customErr{code: 7}), "metrics_test.customErr"},
		{"long message", errors.New(strings.Repeat("é", 80)), strings.Repeat("é", 60)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := metrics.ErrorKind(tt.err)
			if got != tt.want {
				t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("ErrorKind(%v) is not valid UTF-8", tt.err)
			}
		})
	}
}

func TestAggregatorZeroLatencyMin(t *testing.T) {
	a := metrics.NewAggregator(2)
	a.Record(0, okReport(5*time.Millisecond), nil)
	a.Record(1, bench.IterReport{Status: bench.StatusOK()}, nil)
	a.Record(0, okReport(3*time.Millisecond), nil)

	s := a.Finalize(time.Second)
	if s.Latency.Min != 0 {
		t.Fatalf("expected min 0 from the zero-duration report, got %s", s.Latency.Min)
	}
	if s.Latency.Max != 5*time.Millisecond {
		t.Fatalf("expected max 5ms, got %s", s.Latency.Max)
	}
}
